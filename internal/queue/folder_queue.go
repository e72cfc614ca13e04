// Package queue implements the per-folder ordered work list and its
// permit pool (spec §4.2), generalizing the teacher's single global
// DownloadQueue (project-tachyon/internal/queue) into one instance per
// folder with priority-ordered dequeue.
package queue

import (
	"sort"
	"sync"

	"tachyon-core/internal/task"
)

// Counters is an O(1) snapshot of a FolderQueue's task-status mix.
type Counters struct {
	Pending     int
	Downloading int
}

// FolderQueue holds the ordered tasks belonging to one folder plus its
// folder-scoped permit pool. Only the scheduler may mutate it; readers
// may snapshot via GetAll/Counters.
type FolderQueue struct {
	FolderID string

	mu      sync.Mutex
	items   []*task.Task
	pending int
	downloading int

	Permits *Semaphore
}

// New creates an empty FolderQueue with a permit pool sized maxConcurrent.
func New(folderID string, maxConcurrent int) *FolderQueue {
	return &FolderQueue{
		FolderID: folderID,
		items:    make([]*task.Task, 0),
		Permits:  NewSemaphore(maxConcurrent),
	}
}

// Enqueue inserts a task, keeping the slice ordered by (priority desc,
// enqueue_seq asc) as spec §4.1's ordering guarantee requires.
func (q *FolderQueue) Enqueue(t *task.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, t)
	q.resort()
	q.recount()
}

func (q *FolderQueue) resort() {
	sort.SliceStable(q.items, func(i, j int) bool {
		if q.items[i].Priority != q.items[j].Priority {
			return q.items[i].Priority > q.items[j].Priority
		}
		return q.items[i].EnqueueSeq < q.items[j].EnqueueSeq
	})
}

func (q *FolderQueue) recount() {
	pending, downloading := 0, 0
	for _, t := range q.items {
		switch t.Status {
		case task.StatusPending:
			pending++
		case task.StatusDownloading:
			downloading++
		}
	}
	q.pending = pending
	q.downloading = downloading
}

// Remove drops a task by id, returning it if present.
func (q *FolderQueue) Remove(id string) (*task.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, t := range q.items {
		if t.IDString() == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			q.recount()
			return t, true
		}
	}
	return nil, false
}

// Get returns a task by id without removing it.
func (q *FolderQueue) Get(id string) (*task.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.items {
		if t.IDString() == id {
			return t, true
		}
	}
	return nil, false
}

// HeadPending returns the oldest-priority-ordered Pending task without
// removing it, or nil if none is eligible.
func (q *FolderQueue) HeadPending() *task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.items {
		if t.Status == task.StatusPending {
			return t
		}
	}
	return nil
}

// Counters returns the current pending/downloading counts. They are
// recomputed on every mutation, so readers always see true counts
// consistent with the last applied state transition.
func (q *FolderQueue) Counters() Counters {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Counters{Pending: q.pending, Downloading: q.downloading}
}

// Refresh recomputes counters after a caller mutates a task's Status
// in place (the scheduler holds the only *task.Task pointers and edits
// Status directly rather than round-tripping through the queue).
func (q *FolderQueue) Refresh() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.recount()
}

// GetAll returns a defensive copy of the queue contents, ordered.
func (q *FolderQueue) GetAll() []*task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*task.Task, len(q.items))
	copy(out, q.items)
	return out
}

// Len reports the total number of tasks tracked by this folder,
// regardless of status.
func (q *FolderQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsDeactivatable reports whether this folder has no downloading tasks
// and no admissible pending tasks (spec §4.1's deactivation rule),
// given a predicate that knows which pending tasks are circuit-blocked.
func (q *FolderQueue) IsDeactivatable(blocked func(*task.Task) bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.downloading > 0 {
		return false
	}
	for _, t := range q.items {
		if t.Status == task.StatusPending && !blocked(t) {
			return false
		}
	}
	return true
}
