package scripting

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, name, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
}

func TestBeforeRequestRewritesHeaders(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "01_headers.js", `
		ggg.on("beforeRequest", function(ctx) {
			ctx.setHeader("X-Hook", "yes");
			ctx.setUrl(ctx.url + "?traced=1");
		});
	`)
	b := New(dir, time.Second, 8, nil)
	defer b.Close()

	result, err := b.FireSync(context.Background(), EventBeforeRequest, BeforeRequestCtx{
		URL:     "https://example.com/file.bin",
		Headers: map[string]string{},
	}, nil)
	require.NoError(t, err)

	out, ok := result.(BeforeRequestCtx)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/file.bin?traced=1", out.URL)
	assert.Equal(t, "yes", out.Headers["X-Hook"])
}

func TestFilterSkipsNonMatchingHandlers(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "01_scoped.js", `
		ggg.on("beforeRequest", function(ctx) {
			ctx.setHeader("Scoped", "true");
		}, {filter: "only-this-host\\.example"});
	`)
	b := New(dir, time.Second, 8, nil)
	defer b.Close()

	result, err := b.FireSync(context.Background(), EventBeforeRequest, BeforeRequestCtx{
		URL:     "https://other.example/file.bin",
		Headers: map[string]string{},
	}, nil)
	require.NoError(t, err)
	out := result.(BeforeRequestCtx)
	assert.Empty(t, out.Headers["Scoped"])
}

func TestStopPropagationHaltsLaterHandlers(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "01_first.js", `
		ggg.on("beforeRequest", function(ctx) {
			ctx.setHeader("First", "1");
			ctx.stopPropagation();
		});
	`)
	writeScript(t, dir, "02_second.js", `
		ggg.on("beforeRequest", function(ctx) {
			ctx.setHeader("Second", "1");
		});
	`)
	b := New(dir, time.Second, 8, nil)
	defer b.Close()

	result, err := b.FireSync(context.Background(), EventBeforeRequest, BeforeRequestCtx{
		URL:     "https://example.com/file.bin",
		Headers: map[string]string{},
	}, nil)
	require.NoError(t, err)
	out := result.(BeforeRequestCtx)
	assert.Equal(t, "1", out.Headers["First"])
	assert.Empty(t, out.Headers["Second"])
}

func TestInvalidUrlMutationRejected(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "01_bad.js", `
		ggg.on("beforeRequest", function(ctx) {
			ctx.setUrl("://not a url");
		});
	`)
	b := New(dir, time.Second, 8, nil)
	defer b.Close()

	result, err := b.FireSync(context.Background(), EventBeforeRequest, BeforeRequestCtx{
		URL:     "https://example.com/file.bin",
		Headers: map[string]string{},
	}, nil)
	// The handler's error is logged and the chain proceeds with the
	// unmodified context rather than propagating a Go error to the caller.
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/file.bin", result.(BeforeRequestCtx).URL)
}

func TestEffectiveScriptsDisablesByFile(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "01_tag.js", `
		ggg.on("beforeRequest", function(ctx) {
			ctx.setHeader("Tagged", "1");
		});
	`)
	b := New(dir, time.Second, 8, nil)
	defer b.Close()

	result, err := b.FireSync(context.Background(), EventBeforeRequest, BeforeRequestCtx{
		URL:     "https://example.com/file.bin",
		Headers: map[string]string{},
	}, map[string]bool{"01_tag.js": false})
	require.NoError(t, err)
	out := result.(BeforeRequestCtx)
	assert.Empty(t, out.Headers["Tagged"])
}

func TestReloadPicksUpNewScript(t *testing.T) {
	dir := t.TempDir()
	b := New(dir, time.Second, 8, nil)
	defer b.Close()

	writeScript(t, dir, "01_late.js", `
		ggg.on("beforeRequest", function(ctx) {
			ctx.setHeader("Late", "1");
		});
	`)
	require.NoError(t, b.Reload(context.Background()))

	result, err := b.FireSync(context.Background(), EventBeforeRequest, BeforeRequestCtx{
		URL:     "https://example.com/file.bin",
		Headers: map[string]string{},
	}, nil)
	require.NoError(t, err)
	out := result.(BeforeRequestCtx)
	assert.Equal(t, "1", out.Headers["Late"])
}

func TestAsyncHookDoesNotBlockCaller(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "01_progress.js", `
		ggg.on("progress", function(ctx) {});
	`)
	b := New(dir, time.Second, 2, nil)
	defer b.Close()

	for i := 0; i < 10; i++ {
		b.FireAsync(EventProgress, ProgressCtx{URL: "https://example.com/f", Downloaded: int64(i)}, nil)
	}
}

func TestValidateHeaderKeyRejectsNonASCII(t *testing.T) {
	assert.Error(t, ValidateHeaderKey("X-Héader"))
	assert.NoError(t, ValidateHeaderKey("X-Ok"))
}

func TestValidateFilenameRejectsPathSeparator(t *testing.T) {
	assert.Error(t, ValidateFilename("../evil.bin"))
	assert.Error(t, ValidateFilename("sub/dir.bin"))
	assert.NoError(t, ValidateFilename("clean.bin"))
}
