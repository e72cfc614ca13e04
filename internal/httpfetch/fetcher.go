// Package httpfetch implements the single-connection streaming fetch
// used by each download attempt, adapted from the teacher's
// engine/http.go probe logic and engine/worker.go part-download loop
// (project-tachyon), collapsed from multi-part segmentation to the
// single Range-resumable stream this spec calls for. Its CheckRedirect
// enforces a configurable max-redirect cap, strips credentials across
// origins, and re-fires beforeRequest on every hop.
package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"tachyon-core/internal/breaker"
	"tachyon-core/internal/scripting"
)

// ErrDiskFull is wrapped by CheckDiskSpace when the destination volume
// lacks room for the download; httpfetch classifies it as
// storage-permanent.
var ErrDiskFull = errors.New("destination disk is full")

const (
	GenericUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	readBufferSize   = 64 * 1024
	probeTimeout     = 30 * time.Second

	// defaultMaxRedirects mirrors net/http's own built-in cap, used
	// when a caller leaves RequestOptions.MaxRedirects unset.
	defaultMaxRedirects = 10
)

// redirectCtxKey carries per-request redirect policy through
// http.Client's CheckRedirect, which only receives the in-flight
// *http.Request (whose context is derived from the original one via
// Request.Clone on every hop).
type redirectCtxKey struct{}

type redirectState struct {
	maxRedirects int
	effective    map[string]bool
	downloadID   string
}

// Probe describes what a HEAD-less Range probe learned about a URL.
type Probe struct {
	Size         int64
	Filename     string
	Status       int
	AcceptRanges bool
	ETag         string
	LastModified string
	ContentType  string
}

// RequestOptions customizes an outbound request, mutable by the
// beforeRequest script hook before it is issued.
type RequestOptions struct {
	Headers      map[string]string
	UserAgent    string
	MaxRedirects int // 0 means defaultMaxRedirects
}

// Fetcher issues probe and streaming GETs for one task at a time,
// applying circuit-breaker gating and script hooks around the wire.
type Fetcher struct {
	client   *http.Client
	breakers *breaker.Registry
	scripts  *scripting.Broker
}

// New builds a Fetcher. scripts may be nil to disable hook dispatch.
// It installs its own CheckRedirect on client so redirects honor
// RequestOptions.MaxRedirects, strip Authorization/Proxy-Authorization
// on cross-origin hops, and give beforeRequest a chance to re-inject
// headers per spec.md §4.3/§6.
func New(client *http.Client, breakers *breaker.Registry, scripts *scripting.Broker) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	// Copy rather than mutate: client may be http.DefaultClient or
	// shared with another caller, and CheckRedirect below closes over
	// this particular Fetcher.
	owned := *client
	f := &Fetcher{client: &owned, breakers: breakers, scripts: scripts}
	owned.CheckRedirect = f.checkRedirect
	return f
}

// checkRedirect enforces the per-request redirect cap, strips
// credentials on cross-origin hops, and re-fires beforeRequest so a
// script can reinstate Authorization for a redirect it trusts.
func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	state, _ := req.Context().Value(redirectCtxKey{}).(*redirectState)
	maxRedirects := defaultMaxRedirects
	if state != nil && state.maxRedirects > 0 {
		maxRedirects = state.maxRedirects
	}
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}

	prev := via[len(via)-1]
	if req.URL.Host != prev.URL.Host {
		req.Header.Del("Authorization")
		req.Header.Del("Proxy-Authorization")
	}

	if state == nil || f.scripts == nil {
		return nil
	}
	beforeCtx := scripting.BeforeRequestCtx{
		URL:        req.URL.String(),
		Headers:    flattenHeader(req.Header),
		UserAgent:  req.Header.Get("User-Agent"),
		DownloadID: state.downloadID,
	}
	result, err := f.scripts.FireSync(req.Context(), scripting.EventBeforeRequest, beforeCtx, state.effective)
	if err != nil {
		return nil
	}
	out, ok := result.(scripting.BeforeRequestCtx)
	if !ok {
		return nil
	}
	for k, v := range out.Headers {
		req.Header.Set(k, v)
	}
	if out.UserAgent != "" {
		req.Header.Set("User-Agent", out.UserAgent)
	}
	return nil
}

func (f *Fetcher) buildRequest(ctx context.Context, method, rawURL string, opts RequestOptions, effective map[string]bool, downloadID string) (*http.Request, error) {
	beforeCtx := scripting.BeforeRequestCtx{
		URL:        rawURL,
		Headers:    cloneMap(opts.Headers),
		UserAgent:  opts.UserAgent,
		DownloadID: downloadID,
	}
	if f.scripts != nil {
		result, err := f.scripts.FireSync(ctx, scripting.EventBeforeRequest, beforeCtx, effective)
		if err != nil {
			return nil, fmt.Errorf("beforeRequest hook: %w", err)
		}
		if out, ok := result.(scripting.BeforeRequestCtx); ok {
			beforeCtx = out
		}
	}

	ctx = context.WithValue(ctx, redirectCtxKey{}, &redirectState{
		maxRedirects: opts.MaxRedirects,
		effective:    effective,
		downloadID:   downloadID,
	})
	req, err := http.NewRequestWithContext(ctx, method, beforeCtx.URL, nil)
	if err != nil {
		return nil, err
	}
	ua := beforeCtx.UserAgent
	if ua == "" {
		ua = GenericUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range beforeCtx.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// Probe issues a Range: bytes=0-0 GET to learn size, filename and
// resumability without pulling the whole body, mirroring the teacher's
// ProbeURL (no HEAD request, since many origins reject HEAD).
func (f *Fetcher) Probe(ctx context.Context, rawURL string, opts RequestOptions, effective map[string]bool, downloadID string) (*Probe, error) {
	origin := breaker.Origin(rawURL)
	if f.breakers != nil {
		if allowed, _ := f.breakers.Allow(origin); !allowed {
			return nil, fmt.Errorf("circuit open for %s", origin)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := f.buildRequest(ctx, http.MethodGet, rawURL, opts, effective, downloadID)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := f.client.Do(req)
	if err != nil {
		f.recordOutcome(origin, err)
		return nil, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1))

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusPartialContent {
		f.recordOutcome(origin, fmt.Errorf("status %d", resp.StatusCode))
		return &Probe{Status: resp.StatusCode}, fmt.Errorf("probe failed: %s", friendlyHTTPError(resp.StatusCode))
	}
	f.recordOutcome(origin, nil)

	p := &Probe{
		Status:       resp.StatusCode,
		AcceptRanges: resp.Header.Get("Accept-Ranges") == "bytes",
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		ContentType:  resp.Header.Get("Content-Type"),
		Size:         resp.ContentLength,
	}

	if resp.StatusCode == http.StatusPartialContent {
		p.AcceptRanges = true
		if cr := resp.Header.Get("Content-Range"); cr != "" {
			if parts := strings.Split(cr, "/"); len(parts) == 2 {
				if total, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
					p.Size = total
				}
			}
		}
	}

	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			p.Filename = params["filename"]
		}
	}
	if p.Filename == "" {
		p.Filename = filepath.Base(resp.Request.URL.Path)
		if p.Filename == "." || p.Filename == "/" {
			p.Filename = "download"
		}
	}

	headersCtx := scripting.HeadersReceivedCtx{
		URL: rawURL, Status: resp.StatusCode, Headers: flattenHeader(resp.Header),
		ContentLength: p.Size, ETag: p.ETag, LastModified: p.LastModified, ContentType: p.ContentType,
	}
	if f.scripts != nil {
		f.scripts.FireAsync(scripting.EventHeadersReceived, headersCtx, effective)
	}

	return p, nil
}

// StreamParams describes one streaming attempt.
type StreamParams struct {
	URL            string
	Options        RequestOptions
	Effective      map[string]bool
	DownloadID     string
	ResumeFrom     int64  // byte offset already on disk
	Validator      string // ETag or Last-Modified captured from a prior attempt
	Limiter        *rate.Limiter
	OnProgress     func(downloaded int64, now time.Time)
}

// Stream performs one GET (optionally resumed via Range/If-Range) and
// copies the body into dest, applying bandwidth shaping and progress
// callbacks. It returns the total bytes written by THIS call (not
// including ResumeFrom) and a classified error, if any.
func (f *Fetcher) Stream(ctx context.Context, params StreamParams, dest io.WriterAt) (int64, error) {
	origin := breaker.Origin(params.URL)
	if f.breakers != nil {
		if allowed, _ := f.breakers.Allow(origin); !allowed {
			return 0, fmt.Errorf("circuit open for %s", origin)
		}
	}

	req, err := f.buildRequest(ctx, http.MethodGet, params.URL, params.Options, params.Effective, params.DownloadID)
	if err != nil {
		return 0, err
	}
	if params.ResumeFrom > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", params.ResumeFrom))
		if params.Validator != "" {
			req.Header.Set("If-Range", params.Validator)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.recordOutcome(origin, err)
		return 0, err
	}
	defer resp.Body.Close()

	if params.ResumeFrom > 0 && resp.StatusCode == http.StatusOK {
		// Server ignored If-Range (or doesn't support it): the
		// validator no longer matches what we have on disk.
		f.recordOutcome(origin, nil)
		return 0, ErrValidatorChanged
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		err := fmt.Errorf("unexpected status: %d", resp.StatusCode)
		f.recordOutcome(origin, err)
		if resp.StatusCode == http.StatusForbidden {
			return 0, ErrLinkExpired
		}
		return 0, err
	}

	buf := make([]byte, readBufferSize)
	offset := params.ResumeFrom
	var written int64

	for {
		if params.Limiter != nil {
			if err := params.Limiter.WaitN(ctx, readBufferSize); err != nil {
				return written, err
			}
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := dest.WriteAt(buf[:n], offset); writeErr != nil {
				f.recordOutcome(origin, writeErr)
				return written, writeErr
			}
			offset += int64(n)
			written += int64(n)
			if params.OnProgress != nil {
				params.OnProgress(offset, time.Now())
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			f.recordOutcome(origin, readErr)
			return written, readErr
		}
	}

	f.recordOutcome(origin, nil)
	return written, nil
}

func (f *Fetcher) recordOutcome(origin string, err error) {
	if f.breakers == nil {
		return
	}
	if err != nil {
		f.breakers.RecordFailure(origin)
	} else {
		f.breakers.RecordSuccess(origin)
	}
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
