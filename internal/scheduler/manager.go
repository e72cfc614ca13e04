// Package scheduler implements the DownloadScheduler (spec §4.1): the
// three-level admission-control dispatch loop, generalizing the
// teacher's queue.SmartScheduler (GetNextTask/OnTaskStarted/
// OnTaskCompleted, project-tachyon/internal/queue/scheduler.go) and
// engine.queueWorker/executeTask (project-tachyon/internal/engine/
// executor.go) from a single global queue to per-folder permit pools,
// an ActiveFolders set bounded by Amax, and circuit-breaker-aware
// admission.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"tachyon-core/internal/breaker"
	"tachyon-core/internal/config"
	"tachyon-core/internal/events"
	"tachyon-core/internal/history"
	"tachyon-core/internal/httpfetch"
	"tachyon-core/internal/netutil"
	"tachyon-core/internal/persist"
	"tachyon-core/internal/queue"
	"tachyon-core/internal/scripting"
	"tachyon-core/internal/task"
)

// Manager owns every FolderQueue, the global permit pool, and the
// dispatch loop that hands tasks to the fetcher as slots open up.
type Manager struct {
	mu      sync.Mutex
	cond    *sync.Cond
	folders map[string]*queue.FolderQueue
	active  map[string]bool // ActiveFolders
	stopped map[string]bool // folders paused via stop_folder

	globalSem *queue.Semaphore
	amax      int

	cfg      *config.Loader
	app      config.AppSettings
	store    *persist.Store
	history  *history.Store
	bus      *events.Bus
	fetcher  *httpfetch.Fetcher
	breakers *breaker.Registry
	scripts  *scripting.Broker
	bw       *netutil.Manager
	retry    *retryController
	logger   *slog.Logger

	cancels map[string]context.CancelFunc // running task id -> cancel
	seq     int64

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// Deps bundles the collaborators a Manager is composed from, wired by
// cmd/tachyond's composition root.
type Deps struct {
	Config   *config.Loader
	Store    *persist.Store
	History  *history.Store
	Bus      *events.Bus
	Fetcher  *httpfetch.Fetcher
	Breakers *breaker.Registry
	Scripts  *scripting.Broker
	Bandwidth *netutil.Manager
	Logger   *slog.Logger
}

// New creates a Manager, loading app settings and any already-persisted
// folder queues found under store's root.
func New(d Deps) (*Manager, error) {
	app, err := d.Config.LoadApp()
	if err != nil {
		return nil, fmt.Errorf("scheduler: loading app settings: %w", err)
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		folders:   make(map[string]*queue.FolderQueue),
		active:    make(map[string]bool),
		stopped:   make(map[string]bool),
		globalSem: queue.NewSemaphore(app.MaxConcurrent),
		amax:      app.ParallelFolderCount,
		cfg:       d.Config,
		app:       app,
		store:     d.Store,
		history:   d.History,
		bus:       d.Bus,
		fetcher:   d.Fetcher,
		breakers:  d.Breakers,
		scripts:   d.Scripts,
		bw:        d.Bandwidth,
		retry:     newRetryController(app.RetryDelaySeconds, app.RetryCount),
		logger:    logger,
		cancels:   make(map[string]context.CancelFunc),
	}
	m.cond = sync.NewCond(&m.mu)

	entries, err := os.ReadDir(filepath.Dir(d.Store.SettingsPath()))
	if err != nil {
		return nil, fmt.Errorf("scheduler: scanning persisted folders: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(d.Store.FolderQueuePath(e.Name())); err != nil {
			continue
		}
		if _, err := m.folderOrNew(e.Name()); err != nil {
			logger.Error("failed to load persisted folder", "folder", e.Name(), "error", err)
		}
	}
	return m, nil
}

// Start launches the dispatch loop. Cancel ctx (or call Stop) to drain
// in-flight downloads and shut it down.
func (m *Manager) Start(ctx context.Context) {
	m.runCtx, m.runCancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.dispatchLoop()
}

// Stop requests the dispatch loop to exit and waits for all in-flight
// downloads to unwind, mirroring the teacher's drain-then-checkpoint
// TachyonEngine.Shutdown shape.
func (m *Manager) Stop() {
	if m.runCancel != nil {
		m.runCancel()
	}
	m.mu.Lock()
	m.cond.Broadcast()
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) wake() {
	m.mu.Lock()
	m.cond.Broadcast()
	m.mu.Unlock()
}

// folderOrNew returns folder's queue, creating it (with its permit
// pool sized from config) on first reference, and loading any
// previously persisted queue.toml snapshot.
func (m *Manager) folderOrNew(folderID string) (*queue.FolderQueue, error) {
	if fq, ok := m.folders[folderID]; ok {
		return fq, nil
	}
	snap, err := m.cfg.Snapshot(folderID)
	if err != nil {
		return nil, err
	}
	maxConcurrent, exceeds := snap.EffectiveMaxConcurrent()
	if exceeds {
		m.logger.Warn("folder max_concurrent exceeds global max_concurrent", "folder", folderID, "folder_max", maxConcurrent, "global_max", snap.App.MaxConcurrent)
	}
	fq := queue.New(folderID, maxConcurrent)
	m.folders[folderID] = fq
	m.loadPersistedQueueLocked(fq)
	return fq, nil
}

func (m *Manager) loadPersistedQueueLocked(fq *queue.FolderQueue) {
	var file struct {
		Tasks []task.Record `toml:"task"`
	}
	ok, err := m.store.ReadTOML(m.store.FolderQueuePath(fq.FolderID), &file)
	if err != nil {
		m.logger.Error("failed to load persisted folder queue", "folder", fq.FolderID, "error", err)
		return
	}
	if !ok {
		return
	}
	for _, rec := range file.Tasks {
		t, err := task.FromRecord(rec)
		if err != nil {
			m.logger.Error("skipping corrupt queue record", "folder", fq.FolderID, "error", err)
			continue
		}
		if t.Status == task.StatusDownloading {
			// Crash recovery: nothing was actually in flight.
			t.Status = task.StatusPending
		}
		fq.Enqueue(t)
		if t.EnqueueSeq >= m.seq {
			m.seq = t.EnqueueSeq + 1
		}
	}
}

func (m *Manager) persistFolderLocked(fq *queue.FolderQueue) {
	var file struct {
		Tasks []task.Record `toml:"task"`
	}
	for _, t := range fq.GetAll() {
		file.Tasks = append(file.Tasks, t.ToRecord())
	}
	if err := m.store.WriteTOML(m.store.FolderQueuePath(fq.FolderID), file); err != nil {
		m.logger.Error("failed to persist folder queue", "folder", fq.FolderID, "error", err)
	}
}

// Submit enqueues a new Pending task into its destination folder,
// per spec.md §6's `submit` control operation.
func (m *Manager) Submit(rawURL string, dest task.Destination, priority int64, overrides task.Overrides) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fq, err := m.folderOrNew(dest.FolderID)
	if err != nil {
		return nil, err
	}
	m.seq++
	t := task.New(rawURL, dest, priority, m.seq)
	t.Overrides = overrides

	fq.Enqueue(t)
	m.persistFolderLocked(fq)
	m.bus.Publish(events.Event{Topic: events.TopicTaskAdded, Data: t.IDString()})
	m.cond.Broadcast()
	return t, nil
}

// StartTask transitions a Paused task back to Pending so it is picked
// up by the next dispatch cycle.
func (m *Manager) StartTask(folderID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fq, ok := m.folders[folderID]
	if !ok {
		return fmt.Errorf("scheduler: unknown folder %s", folderID)
	}
	t, ok := fq.Get(taskID)
	if !ok {
		return fmt.Errorf("scheduler: unknown task %s", taskID)
	}
	if t.Status != task.StatusPaused {
		return fmt.Errorf("scheduler: task %s is not paused", taskID)
	}
	t.Status = task.StatusPending
	fq.Refresh()
	m.persistFolderLocked(fq)
	m.cond.Broadcast()
	return nil
}

// Pause cancels a Downloading task's in-flight attempt and marks it
// Paused, releasing its permits back to the pool.
func (m *Manager) Pause(folderID, taskID string) error {
	m.mu.Lock()
	cancel, running := m.cancels[taskID]
	m.mu.Unlock()
	if running {
		cancel()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	fq, ok := m.folders[folderID]
	if !ok {
		return fmt.Errorf("scheduler: unknown folder %s", folderID)
	}
	t, ok := fq.Get(taskID)
	if !ok {
		return fmt.Errorf("scheduler: unknown task %s", taskID)
	}
	t.Status = task.StatusPaused
	fq.Refresh()
	m.persistFolderLocked(fq)
	m.bus.Publish(events.Event{Topic: events.TopicTaskPaused, Data: t.IDString()})
	return nil
}

// Retry resets a Failed task's retry_count and returns it to Pending.
func (m *Manager) Retry(folderID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fq, ok := m.folders[folderID]
	if !ok {
		return fmt.Errorf("scheduler: unknown folder %s", folderID)
	}
	t, ok := fq.Get(taskID)
	if !ok {
		return fmt.Errorf("scheduler: unknown task %s", taskID)
	}
	if t.Status != task.StatusFailed {
		return fmt.Errorf("scheduler: task %s is not failed", taskID)
	}
	t.RetryCount = 0
	t.Status = task.StatusPending
	fq.Refresh()
	m.persistFolderLocked(fq)
	m.cond.Broadcast()
	return nil
}

// Delete removes a task. A Pending/Paused/Failed task is removed
// outright from its FolderQueue; a Completed task (already moved into
// HistoryStore on completion) is tombstoned with an undo window per
// spec.md §9's resolved Open Question.
func (m *Manager) Delete(folderID, taskID string) error {
	m.mu.Lock()
	fq, ok := m.folders[folderID]
	m.mu.Unlock()
	if ok {
		if t, removed := fq.Remove(taskID); removed {
			m.mu.Lock()
			m.persistFolderLocked(fq)
			m.mu.Unlock()
			m.bus.Publish(events.Event{Topic: events.TopicTaskDeleted, Data: t.IDString()})
			return nil
		}
	}
	if m.history.Tombstone(taskID) {
		m.bus.Publish(events.Event{Topic: events.TopicTaskDeleted, Data: taskID})
		return nil
	}
	return fmt.Errorf("scheduler: unknown task %s", taskID)
}

// UndoDelete reverses a pending history tombstone.
func (m *Manager) UndoDelete(taskID string) bool {
	return m.history.Undo(taskID)
}

// MoveToFolder relocates a task (Pending or Paused only — an in-flight
// download keeps running to completion in its original folder) from
// its current folder into dest.
func (m *Manager) MoveToFolder(fromFolder, taskID, toFolder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.folders[fromFolder]
	if !ok {
		return fmt.Errorf("scheduler: unknown folder %s", fromFolder)
	}
	t, ok := src.Get(taskID)
	if !ok {
		return fmt.Errorf("scheduler: unknown task %s", taskID)
	}
	if t.Status == task.StatusDownloading {
		return fmt.Errorf("scheduler: cannot move task %s while downloading", taskID)
	}
	src.Remove(taskID)
	m.persistFolderLocked(src)

	dst, err := m.folderOrNew(toFolder)
	if err != nil {
		src.Enqueue(t)
		return err
	}
	t.Dest.FolderID = toFolder
	dst.Enqueue(t)
	m.persistFolderLocked(dst)
	m.cond.Broadcast()
	return nil
}

// StartFolder/StopFolder gate admission for one folder without
// touching its queued tasks.
func (m *Manager) StartFolder(folderID string) {
	m.mu.Lock()
	delete(m.stopped, folderID)
	m.cond.Broadcast()
	m.mu.Unlock()
}

func (m *Manager) StopFolder(folderID string) {
	m.mu.Lock()
	m.stopped[folderID] = true
	m.mu.Unlock()
}

// StartAll/StopAll apply StartFolder/StopFolder to every known folder.
func (m *Manager) StartAll() {
	m.mu.Lock()
	m.stopped = make(map[string]bool)
	m.cond.Broadcast()
	m.mu.Unlock()
}

func (m *Manager) StopAll() {
	m.mu.Lock()
	for id := range m.folders {
		m.stopped[id] = true
	}
	m.mu.Unlock()
}

// ReloadScripts delegates to the ScriptBroker; always permitted, even
// with downloads in flight.
func (m *Manager) ReloadScripts(ctx context.Context) error {
	return m.scripts.Reload(ctx)
}

// ReloadConfig re-reads settings.toml and resizes the global and
// per-folder permit pools accordingly. Rejected while any task is
// Downloading, per spec.md §6.
func (m *Manager) ReloadConfig() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, fq := range m.folders {
		if fq.Counters().Downloading > 0 {
			return fmt.Errorf("scheduler: reload_config rejected: a download is in progress")
		}
	}

	app, err := m.cfg.LoadApp()
	if err != nil {
		return err
	}
	m.app = app
	m.amax = app.ParallelFolderCount
	m.globalSem.Resize(app.MaxConcurrent)
	m.retry = newRetryController(app.RetryDelaySeconds, app.RetryCount)

	for id, fq := range m.folders {
		snap, err := m.cfg.Snapshot(id)
		if err != nil {
			m.logger.Error("failed to reload folder config", "folder", id, "error", err)
			continue
		}
		maxConcurrent, exceeds := snap.EffectiveMaxConcurrent()
		if exceeds {
			m.logger.Warn("folder max_concurrent exceeds global max_concurrent after reload", "folder", id)
		}
		fq.Permits.Resize(maxConcurrent)
	}
	m.cond.Broadcast()
	return nil
}

// dispatchLoop is the generalized form of the teacher's queueWorker:
// it blocks on cond until a slot and an admissible task coincide, then
// hands the task to a worker goroutine. Permit acquisition order is
// folder permit first, then global permit, both as non-blocking
// TryAcquire calls taken back to back under m.mu: a task is marked
// Downloading and persisted only once both are actually held, so the
// on-disk/in-memory status never claims a permit the task doesn't
// hold. If the global pool is saturated the folder permit is returned
// immediately and dispatch waits for the next release to retry.
func (m *Manager) dispatchLoop() {
	defer m.wg.Done()
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		if m.runCtx.Err() != nil {
			return
		}
		folderID, t, ok := m.nextDispatchLocked()
		if !ok {
			m.reapDeactivatedFoldersLocked()
			m.cond.Wait()
			continue
		}

		fq := m.folders[folderID]
		if !fq.Permits.TryAcquire() {
			// Lost the race (e.g. Resize shrank capacity since the
			// pick); re-scan immediately, another folder may still be
			// admissible.
			continue
		}
		if !m.globalSem.TryAcquire() {
			fq.Permits.Release()
			// The global pool is shared by every folder, so no other
			// candidate can dispatch either; wait for a release.
			m.reapDeactivatedFoldersLocked()
			m.cond.Wait()
			continue
		}

		m.active[folderID] = true
		t.Status = task.StatusDownloading
		now := time.Now()
		t.StartedAt = &now
		fq.Refresh()
		m.persistFolderLocked(fq)

		ctx, cancel := context.WithCancel(m.runCtx)
		m.cancels[t.IDString()] = cancel

		m.wg.Add(1)
		go m.runTask(ctx, cancel, folderID, t)
	}
}

// nextDispatchLocked must be called with m.mu held. It returns the
// next (folder, task) pair to dispatch, or ok=false if none is ready.
func (m *Manager) nextDispatchLocked() (string, *task.Task, bool) {
	candidates := admissibleFolders(m.folders, m.active, m.amax, m.stopped, m.breakers)
	folderID, t, ok := pickFolder(m.folders, candidates)
	return folderID, t, ok
}

func (m *Manager) reapDeactivatedFoldersLocked() {
	var toDeactivate []string
	for id := range m.active {
		fq, ok := m.folders[id]
		if !ok || folderDeactivatable(fq, m.breakers) {
			toDeactivate = append(toDeactivate, id)
		}
	}
	sort.Strings(toDeactivate)
	for _, id := range toDeactivate {
		delete(m.active, id)
		m.bus.Publish(events.Event{Topic: events.TopicFolderState, Data: map[string]any{"folder_id": id, "active": false}})
	}
}

// runTask executes one download attempt end to end: probe, allocate,
// stream, persist terminal state, and — on a retriable failure — hand
// back to Pending after the retry controller's backoff.
func (m *Manager) runTask(ctx context.Context, cancel context.CancelFunc, folderID string, t *task.Task) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		delete(m.cancels, t.IDString())
		m.globalSem.Release()
		if fq, ok := m.folders[folderID]; ok {
			fq.Permits.Release()
			fq.Refresh()
			m.persistFolderLocked(fq)
		}
		m.cond.Broadcast()
		m.mu.Unlock()
		cancel()
	}()

	m.bus.Publish(events.Event{Topic: events.TopicTaskStarted, Data: t.IDString()})
	effective := m.effectiveScriptsFor(folderID)

	snap, err := m.cfg.Snapshot(folderID)
	if err != nil {
		m.failTask(folderID, t, err)
		return
	}

	opts := httpfetch.RequestOptions{
		Headers:      t.Overrides.Headers,
		UserAgent:    firstNonEmpty(t.Overrides.UserAgent, snap.EffectiveUserAgent()),
		MaxRedirects: snap.App.MaxRedirects,
	}

	if !t.HasTotal() {
		probe, err := m.fetcher.Probe(ctx, t.URL, opts, effective, t.IDString())
		if err != nil {
			m.failTask(folderID, t, err)
			return
		}
		t.TotalBytes = probe.Size
		t.Resume.Supported = probe.AcceptRanges
		if probe.ETag != "" {
			t.Resume.Validator = probe.ETag
		} else {
			t.Resume.Validator = probe.LastModified
		}
		if t.Dest.Filename == "" {
			t.Dest.Filename = probe.Filename
		}
	}

	destPath := filepath.Join(t.Dest.Directory, t.Dest.Filename)
	if err := httpfetch.CheckDiskSpace(destPath, t.TotalBytes-t.BytesDownloaded); err != nil {
		m.failTaskKind(folderID, t, task.ErrKindStoragePermanent, err)
		return
	}

	f, err := httpfetch.Allocate(destPath, t.TotalBytes)
	if err != nil {
		m.failTaskKind(folderID, t, task.ErrKindStoragePermanent, err)
		return
	}
	defer f.Close()

	resumeFrom := int64(0)
	if t.Resume.Supported {
		resumeFrom = t.BytesDownloaded
	}

	limiter := m.bw.LimiterFor(folderID)
	start := time.Now()
	_, err = m.fetcher.Stream(ctx, httpfetch.StreamParams{
		URL: t.URL, Options: opts, Effective: effective, DownloadID: t.IDString(),
		ResumeFrom: resumeFrom, Validator: t.Resume.Validator, Limiter: limiter,
		OnProgress: func(downloaded int64, now time.Time) {
			t.RecordProgress(downloaded, now)
			m.bus.Publish(events.Event{Topic: events.TopicTaskProgress, Data: t.IDString()})
			m.scripts.FireAsync(scripting.EventProgress, scripting.ProgressCtx{
				URL: t.URL, Filename: t.Dest.Filename, Downloaded: downloaded, Total: t.TotalBytes,
				Speed: t.Speed, Percentage: percentage(downloaded, t.TotalBytes),
			}, effective)
		},
	}, f)

	if err != nil {
		m.failTask(folderID, t, err)
		return
	}

	m.completeTask(folderID, t, start, effective)
}

func (m *Manager) completeTask(folderID string, t *task.Task, start time.Time, effective map[string]bool) {
	now := time.Now()
	t.CompletedAt = &now
	t.Status = task.StatusCompleted

	completedCtx := scripting.CompletedCtx{
		URL: t.URL, Filename: t.Dest.Filename, SavePath: t.Dest.Directory,
		Size: t.TotalBytes, DurationMS: now.Sub(start).Milliseconds(),
	}
	result, err := m.scripts.FireSync(context.Background(), scripting.EventCompleted, completedCtx, effective)
	if err == nil {
		if out, ok := result.(scripting.CompletedCtx); ok {
			if out.NewFilename != "" {
				t.Overrides.NewFilename = out.NewFilename
			}
			if out.MoveToPath != "" {
				t.Overrides.SavePathOverride = out.MoveToPath
			}
		}
	}
	if err := m.applyCompletionOverrides(t); err != nil {
		m.logger.Error("failed to apply completed-hook rename/move", "task", t.IDString(), "error", err)
	}

	m.mu.Lock()
	if fq, ok := m.folders[folderID]; ok {
		fq.Remove(t.IDString())
		m.persistFolderLocked(fq)
	}
	m.mu.Unlock()

	if err := m.history.Append(t.ToRecord()); err != nil {
		m.logger.Error("failed to append history record", "task", t.IDString(), "error", err)
	}
	m.bus.Publish(events.Event{Topic: events.TopicTaskCompleted, Data: t.IDString()})
}

// applyCompletionOverrides performs the rename and/or relocation the
// completed hook may have requested, via os.Rename (same-volume move;
// the destination tree lives under one configured root in practice).
// A move target that cannot be created is left in place at its
// original path per spec.md §9's resolved Open Question: a failed
// move is logged and does not fail the otherwise-successful download.
func (m *Manager) applyCompletionOverrides(t *task.Task) error {
	if t.Overrides.NewFilename == "" && t.Overrides.SavePathOverride == "" {
		return nil
	}
	oldPath := filepath.Join(t.Dest.Directory, t.Dest.Filename)

	newDir := t.Dest.Directory
	if t.Overrides.SavePathOverride != "" {
		newDir = t.Overrides.SavePathOverride
	}
	newName := t.Dest.Filename
	if t.Overrides.NewFilename != "" {
		newName = t.Overrides.NewFilename
	}
	newPath := filepath.Join(newDir, newName)
	if newPath == oldPath {
		return nil
	}

	if err := os.MkdirAll(newDir, 0o755); err != nil {
		return fmt.Errorf("creating move destination %s: %w", newDir, err)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("moving %s to %s: %w", oldPath, newPath, err)
	}
	t.Dest.Directory = newDir
	t.Dest.Filename = newName
	return nil
}

func (m *Manager) failTask(folderID string, t *task.Task, err error) {
	m.failTaskInfo(folderID, t, httpfetch.Classify(err, 0))
}

func (m *Manager) failTaskKind(folderID string, t *task.Task, kind task.ErrorKind, err error) {
	m.failTaskInfo(folderID, t, task.ErrorInfo{Kind: kind, Message: err.Error()})
}

func (m *Manager) failTaskInfo(folderID string, t *task.Task, info task.ErrorInfo) {
	if info.Kind == task.ErrKindCanceled {
		// Pause or shutdown canceled the attempt: not a failure, no
		// retry, and the status is left to whoever canceled it.
		return
	}
	t.Error = info
	t.RetryCount++

	retriable := t.Error.Kind.Retriable() && !m.retry.exhausted(t.RetryCount)
	if retriable {
		t.Status = task.StatusPending
		m.logger.Warn("task failed, will retry", "task", t.IDString(), "attempt", t.RetryCount, "error", info.Message)
		go func() {
			time.Sleep(m.retry.delay(t.RetryCount))
			m.wake()
		}()
	} else {
		t.Status = task.StatusFailed
		m.logger.Error("task failed permanently", "task", t.IDString(), "error", info.Message)
	}

	m.mu.Lock()
	if fq, ok := m.folders[folderID]; ok {
		fq.Refresh()
		m.persistFolderLocked(fq)
	}
	m.mu.Unlock()

	m.scripts.FireAsync(scripting.EventError, scripting.ErrorCtx{
		URL: t.URL, Filename: t.Dest.Filename, Error: info.Message, RetryCount: t.RetryCount, StatusCode: t.Error.StatusCode,
	}, m.effectiveScriptsFor(folderID))
	m.bus.Publish(events.Event{Topic: events.TopicTaskFailed, Data: t.IDString()})
}

func (m *Manager) effectiveScriptsFor(folderID string) map[string]bool {
	snap, err := m.cfg.Snapshot(folderID)
	if err != nil {
		return nil
	}
	if !snap.EffectiveScriptsEnabled() {
		files := snap.EffectiveScriptFiles()
		out := make(map[string]bool, len(files))
		for k := range files {
			out[k] = false
		}
		return out
	}
	return snap.EffectiveScriptFiles()
}

func percentage(downloaded, total int64) float64 {
	if total <= 0 {
		return -1
	}
	return float64(downloaded) / float64(total) * 100
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
