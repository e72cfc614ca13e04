package httpfetch

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tachyon-core/internal/breaker"
)

type memWriter struct {
	buf []byte
}

func (w *memWriter) WriteAt(p []byte, off int64) (int, error) {
	need := int(off) + len(p)
	if need > len(w.buf) {
		grown := make([]byte, need)
		copy(grown, w.buf)
		w.buf = grown
	}
	copy(w.buf[off:], p)
	return len(p), nil
}

func TestProbeReadsSizeAndFilename(t *testing.T) {
	body := bytes.Repeat([]byte("x"), 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="payload.bin"`)
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Range", "bytes 0-0/1000")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(body[:1])
	}))
	defer srv.Close()

	f := New(srv.Client(), breaker.New(5, 0), nil)
	p, err := f.Probe(context.Background(), srv.URL, RequestOptions{}, nil, "dl-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), p.Size)
	assert.Equal(t, "payload.bin", p.Filename)
	assert.True(t, p.AcceptRanges)
	assert.Equal(t, `"v1"`, p.ETag)
}

func TestStreamWritesFullBody(t *testing.T) {
	want := bytes.Repeat([]byte("abcd"), 500)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(want)
	}))
	defer srv.Close()

	f := New(srv.Client(), breaker.New(5, 0), nil)
	dest := &memWriter{}
	n, err := f.Stream(context.Background(), StreamParams{URL: srv.URL}, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(len(want)), n)
	assert.Equal(t, want, dest.buf)
}

func TestStreamResumesWithRange(t *testing.T) {
	full := bytes.Repeat([]byte("z"), 100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bytes=50-", r.Header.Get("Range"))
		w.Header().Set("Content-Range", "bytes 50-99/100")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(full[50:])
	}))
	defer srv.Close()

	f := New(srv.Client(), breaker.New(5, 0), nil)
	dest := &memWriter{buf: make([]byte, 50)}
	copy(dest.buf, full[:50])
	n, err := f.Stream(context.Background(), StreamParams{URL: srv.URL, ResumeFrom: 50, Validator: `"v1"`}, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(50), n)
	assert.Equal(t, full, dest.buf)
}

func TestStreamDetectsValidatorChanged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Server ignores If-Range and returns the full body with 200.
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("fresh content"))
	}))
	defer srv.Close()

	f := New(srv.Client(), breaker.New(5, 0), nil)
	dest := &memWriter{buf: make([]byte, 10)}
	_, err := f.Stream(context.Background(), StreamParams{URL: srv.URL, ResumeFrom: 10, Validator: `"stale"`}, dest)
	assert.ErrorIs(t, err, ErrValidatorChanged)
}

func TestStream403ClassifiesAsLinkExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := New(srv.Client(), breaker.New(5, 0), nil)
	dest := &memWriter{}
	_, err := f.Stream(context.Background(), StreamParams{URL: srv.URL}, dest)
	assert.ErrorIs(t, err, ErrLinkExpired)

	info := Classify(err, 0)
	assert.Equal(t, "client_permanent", string(info.Kind))
}

func TestStreamStopsAfterMaxRedirects(t *testing.T) {
	var hops int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hops++
		http.Redirect(w, r, r.URL.String(), http.StatusFound)
	}))
	defer srv.Close()

	f := New(srv.Client(), breaker.New(5, 0), nil)
	dest := &memWriter{}
	_, err := f.Stream(context.Background(), StreamParams{URL: srv.URL, Options: RequestOptions{MaxRedirects: 2}}, dest)
	require.Error(t, err)
	assert.LessOrEqual(t, hops, 4)
}

func TestRedirectStripsAuthorizationCrossOrigin(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte("ok"))
	}))
	defer target.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusFound)
	}))
	defer srv.Close()

	f := New(srv.Client(), breaker.New(5, 0), nil)
	dest := &memWriter{}
	_, err := f.Stream(context.Background(), StreamParams{
		URL:     srv.URL,
		Options: RequestOptions{Headers: map[string]string{"Authorization": "Bearer secret"}},
	}, dest)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), dest.buf)
}
