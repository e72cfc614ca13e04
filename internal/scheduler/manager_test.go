package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tachyon-core/internal/breaker"
	"tachyon-core/internal/config"
	"tachyon-core/internal/events"
	"tachyon-core/internal/history"
	"tachyon-core/internal/httpfetch"
	"tachyon-core/internal/netutil"
	"tachyon-core/internal/persist"
	"tachyon-core/internal/scripting"
	"tachyon-core/internal/task"
)

type testEnv struct {
	mgr  *Manager
	bus  *events.Bus
	root string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	store, err := persist.New(root)
	require.NoError(t, err)

	cfg := config.NewLoader(store)
	hist, err := history.New(store, 100)
	require.NoError(t, err)
	bus := events.New(nil)
	breakers := breaker.New(5, time.Minute)
	scripts := scripting.New(filepath.Join(root, "scripts"), 0, 0, nil)
	t.Cleanup(scripts.Close)
	bw := netutil.NewManager()
	fetcher := httpfetch.New(http.DefaultClient, breakers, scripts)

	mgr, err := New(Deps{
		Config: cfg, Store: store, History: hist, Bus: bus,
		Fetcher: fetcher, Breakers: breakers, Scripts: scripts, Bandwidth: bw,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)
	t.Cleanup(func() {
		mgr.Stop()
		cancel()
	})

	return &testEnv{mgr: mgr, bus: bus, root: root}
}

func fullBodyServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func waitForTopic(t *testing.T, sub *events.Subscription, topic events.Topic, timeout time.Duration) events.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-sub.Events():
			if ev.Topic == topic {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for topic %s", topic)
		}
	}
}

func TestSubmitDownloadsAndCompletes(t *testing.T) {
	env := newTestEnv(t)
	srv := fullBodyServer(t, []byte("hello world"))

	sub := env.bus.Subscribe(events.TopicTaskCompleted, events.TopicTaskFailed)
	defer sub.Close()

	destDir := filepath.Join(env.root, "downloads")
	_, err := env.mgr.Submit(srv.URL+"/greeting.txt", task.Destination{FolderID: "f1", Directory: destDir}, 0, task.Overrides{})
	require.NoError(t, err)

	ev := waitForTopic(t, sub, events.TopicTaskCompleted, 5*time.Second)
	assert.NotEmpty(t, ev.Data)

	written, err := os.ReadFile(filepath.Join(destDir, "greeting.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(written))
}

func TestSubmitToStoppedFolderDoesNotDispatch(t *testing.T) {
	env := newTestEnv(t)
	srv := fullBodyServer(t, []byte("should not be fetched"))

	env.mgr.StopFolder("f2")
	tk, err := env.mgr.Submit(srv.URL+"/x.bin", task.Destination{FolderID: "f2", Directory: t.TempDir()}, 0, task.Overrides{})
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)
	fq, ok := env.mgr.folders["f2"]
	require.True(t, ok)
	stored, ok := fq.Get(tk.IDString())
	require.True(t, ok)
	assert.Equal(t, task.StatusPending, stored.Status)
}

func TestStartFolderResumesDispatch(t *testing.T) {
	env := newTestEnv(t)
	srv := fullBodyServer(t, []byte("resumed"))

	env.mgr.StopFolder("f3")
	sub := env.bus.Subscribe(events.TopicTaskCompleted)
	defer sub.Close()

	_, err := env.mgr.Submit(srv.URL+"/y.bin", task.Destination{FolderID: "f3", Directory: t.TempDir()}, 0, task.Overrides{})
	require.NoError(t, err)

	env.mgr.StartFolder("f3")
	waitForTopic(t, sub, events.TopicTaskCompleted, 5*time.Second)
}

func TestDeleteRemovesPendingTask(t *testing.T) {
	env := newTestEnv(t)
	env.mgr.StopFolder("f4")

	tk, err := env.mgr.Submit("http://example.invalid/never-fetched", task.Destination{FolderID: "f4", Directory: t.TempDir()}, 0, task.Overrides{})
	require.NoError(t, err)

	require.NoError(t, env.mgr.Delete("f4", tk.IDString()))
	fq := env.mgr.folders["f4"]
	_, ok := fq.Get(tk.IDString())
	assert.False(t, ok)
}

func TestUndoDeleteRestoresTombstonedHistoryRecord(t *testing.T) {
	env := newTestEnv(t)
	srv := fullBodyServer(t, []byte("archived"))

	sub := env.bus.Subscribe(events.TopicTaskCompleted)
	defer sub.Close()
	tk, err := env.mgr.Submit(srv.URL+"/z.bin", task.Destination{FolderID: "f5", Directory: t.TempDir()}, 0, task.Overrides{})
	require.NoError(t, err)
	waitForTopic(t, sub, events.TopicTaskCompleted, 5*time.Second)

	require.NoError(t, env.mgr.Delete("f5", tk.IDString()))
	_, visible := indexByID(env.mgr.history.All(), tk.IDString())
	assert.False(t, visible)

	assert.True(t, env.mgr.UndoDelete(tk.IDString()))
	_, visible = indexByID(env.mgr.history.All(), tk.IDString())
	assert.True(t, visible)
}

func indexByID(records []task.Record, id string) (task.Record, bool) {
	for _, r := range records {
		if r.ID == id {
			return r, true
		}
	}
	return task.Record{}, false
}

func TestReloadConfigRejectedWhileDownloading(t *testing.T) {
	env := newTestEnv(t)

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.Write([]byte("slow"))
	}))
	defer srv.Close()

	_, err := env.mgr.Submit(srv.URL+"/slow.bin", task.Destination{FolderID: "f6", Directory: t.TempDir()}, 0, task.Overrides{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		fq, ok := env.mgr.folders["f6"]
		return ok && fq.Counters().Downloading > 0
	}, 2*time.Second, 10*time.Millisecond)

	err = env.mgr.ReloadConfig()
	close(block)
	assert.Error(t, err)
}

func TestMoveToFolderRelocatesPendingTask(t *testing.T) {
	env := newTestEnv(t)
	env.mgr.StopFolder("src")
	env.mgr.StopFolder("dst")

	tk, err := env.mgr.Submit("http://example.invalid/file", task.Destination{FolderID: "src", Directory: t.TempDir()}, 0, task.Overrides{})
	require.NoError(t, err)

	require.NoError(t, env.mgr.MoveToFolder("src", tk.IDString(), "dst"))

	_, ok := env.mgr.folders["src"].Get(tk.IDString())
	assert.False(t, ok)
	moved, ok := env.mgr.folders["dst"].Get(tk.IDString())
	require.True(t, ok)
	assert.Equal(t, "dst", moved.Dest.FolderID)
}
