package scheduler

import (
	"sort"

	"tachyon-core/internal/breaker"
	"tachyon-core/internal/queue"
	"tachyon-core/internal/task"
)

// folderHasRunnableHead reports whether folder has at least one
// Pending task whose origin is not presently circuit-Open. It peeks
// breaker state rather than calling Allow, so scanning for admission
// never consumes a Half-Open probe slot that belongs to the actual
// attempt.
func folderHasRunnableHead(fq *queue.FolderQueue, breakers *breaker.Registry) (*task.Task, bool) {
	for _, t := range fq.GetAll() {
		if t.Status != task.StatusPending {
			continue
		}
		if breakers == nil {
			return t, true
		}
		origin := breaker.Origin(t.URL)
		if breakers.State(origin) != breaker.Open {
			return t, true
		}
	}
	return nil, false
}

// admissibleFolders returns, among candidate folders, those eligible
// to be picked for a free global slot per spec §4.1's admission rule:
// already active, or (ActiveFolders below Amax AND it has a runnable
// pending head).
func admissibleFolders(folders map[string]*queue.FolderQueue, active map[string]bool, amax int, stopped map[string]bool, breakers *breaker.Registry) []string {
	var ids []string
	belowAmax := len(active) < amax
	for id, fq := range folders {
		if stopped[id] {
			continue
		}
		if _, ok := folderHasRunnableHead(fq, breakers); !ok {
			continue
		}
		if active[id] || belowAmax {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// pickFolder chooses, among admissible folders with a free folder
// permit, the one whose head-of-queue task has the oldest enqueue_seq
// (ties broken lexicographically by folder id, which admissibleFolders
// already sorts by). It does not acquire any permit; callers that find
// ok must still win both the folder's and the global permit before
// treating the task as dispatched.
func pickFolder(folders map[string]*queue.FolderQueue, candidates []string) (folderID string, head *task.Task, ok bool) {
	bestSeq := int64(0)
	found := false
	for _, id := range candidates {
		fq := folders[id]
		if fq.Permits.Available() <= 0 {
			continue
		}
		h := fq.HeadPending()
		if h == nil {
			continue
		}
		if !found || h.EnqueueSeq < bestSeq {
			bestSeq = h.EnqueueSeq
			folderID = id
			head = h
			found = true
		}
	}
	return folderID, head, found
}

// folderDeactivatable implements spec §4.1's deactivation rule: no
// downloading tasks and no admissible (non-circuit-blocked) pending
// tasks remain.
func folderDeactivatable(fq *queue.FolderQueue, breakers *breaker.Registry) bool {
	return fq.IsDeactivatable(func(t *task.Task) bool {
		if breakers == nil {
			return false
		}
		return breakers.State(breaker.Origin(t.URL)) == breaker.Open
	})
}
