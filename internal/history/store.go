// Package history implements the HistoryStore (spec §4.7): an
// append-only, id-keyed, optionally capped log of terminal task
// snapshots, adapted from the teacher's storage.Storage.{SaveTask,
// GetAllTasks,DeleteTask} shape (internal/storage/db.go), generalized
// from a badger KV bucket to persist.Store's TOML file and from a hard
// delete to a tombstone+undo-until-flush per spec.md §9's resolved
// Open Question on delete-on-Completed semantics.
package history

import (
	"fmt"
	"sync"
	"time"

	"tachyon-core/internal/persist"
	"tachyon-core/internal/task"
)

// file is the on-disk shape of history.toml: an array of tables, one
// per terminal record, in append order.
type file struct {
	Records []task.Record `toml:"record"`
}

// Store holds terminal task snapshots in memory, backed by
// persist.Store for durability across restarts.
type Store struct {
	mu         sync.Mutex
	store      *persist.Store
	cap        int // 0 = unbounded
	records    []task.Record
	tombstones map[string]time.Time // id -> marked-deleted-at, pending Flush
}

// New loads history.toml (if present) under store's root and returns a
// Store capped at maxRecords (0 = unbounded, drop-oldest once exceeded).
func New(store *persist.Store, maxRecords int) (*Store, error) {
	s := &Store{
		store:      store,
		cap:        maxRecords,
		tombstones: make(map[string]time.Time),
	}
	var f file
	ok, err := store.ReadTOML(store.HistoryPath(), &f)
	if err != nil {
		return nil, fmt.Errorf("history: loading: %w", err)
	}
	if ok {
		s.records = f.Records
	}
	return s, nil
}

// Append records t's terminal snapshot, trimming the oldest entry if
// the store is at capacity, then persists the full log.
func (s *Store) Append(r task.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, r)
	if s.cap > 0 && len(s.records) > s.cap {
		s.records = s.records[len(s.records)-s.cap:]
	}
	return s.persistLocked()
}

// All returns every non-tombstoned record, oldest first.
func (s *Store) All() []task.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]task.Record, 0, len(s.records))
	for _, r := range s.records {
		if _, tombstoned := s.tombstones[r.ID]; tombstoned {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Get returns the record for id, even if tombstoned (pending undo).
func (s *Store) Get(id string) (task.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			return r, true
		}
	}
	return task.Record{}, false
}

// Tombstone marks id deleted without removing it from disk, leaving a
// window for Undo before the next Flush. Deleting an already-tombstoned
// id is a no-op.
func (s *Store) Tombstone(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tombstones[id]; ok {
		return false
	}
	for _, r := range s.records {
		if r.ID == id {
			s.tombstones[id] = time.Now()
			return true
		}
	}
	return false
}

// Undo reverses a pending Tombstone for id, if it has not yet been
// Flushed.
func (s *Store) Undo(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tombstones[id]; !ok {
		return false
	}
	delete(s.tombstones, id)
	return true
}

// Flush permanently removes every tombstoned record older than
// olderThan from disk, clearing their tombstones. Pass 0 to flush all
// pending tombstones regardless of age.
func (s *Store) Flush(olderThan time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tombstones) == 0 {
		return nil
	}

	cutoff := time.Now().Add(-olderThan)
	kept := s.records[:0:0]
	for _, r := range s.records {
		deletedAt, tombstoned := s.tombstones[r.ID]
		if tombstoned && (olderThan == 0 || deletedAt.Before(cutoff)) {
			delete(s.tombstones, r.ID)
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	return s.store.WriteTOML(s.store.HistoryPath(), file{Records: s.records})
}
