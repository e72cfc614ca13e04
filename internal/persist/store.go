// Package persist implements the PersistenceLayer (spec §4.6): durable
// TOML files written via write-to-temp-then-rename, grounded on
// github.com/BurntSushi/toml (a confirmed indirect dependency shared by
// rescale-labs/rescale-int and ethereum-go-ethereum) and on the
// teacher's Checkpoint-before-shutdown intent in
// engine/manager.go, generalized from a KV store to the textual,
// backward-compatible file layout spec.md §6 requires.
package persist

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Store roots every path this layer reads and writes under one
// directory, matching spec.md §6's on-disk layout:
//
//	<root>/settings.toml
//	<root>/default/settings.toml
//	<root>/<folder_id>/settings.toml
//	<root>/<folder_id>/queue.toml
//	<root>/history.toml
type Store struct {
	root string
}

// New creates a Store rooted at dir, creating it if absent.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persist: creating root %s: %w", dir, err)
	}
	return &Store{root: dir}, nil
}

// SettingsPath returns the app-level settings file path.
func (s *Store) SettingsPath() string { return filepath.Join(s.root, "settings.toml") }

// DefaultFolderSettingsPath returns the default-folder settings path.
func (s *Store) DefaultFolderSettingsPath() string {
	return filepath.Join(s.root, "default", "settings.toml")
}

// FolderSettingsPath returns the per-folder settings override path.
func (s *Store) FolderSettingsPath(folderID string) string {
	return filepath.Join(s.root, folderID, "settings.toml")
}

// FolderQueuePath returns the per-folder queue snapshot path.
func (s *Store) FolderQueuePath(folderID string) string {
	return filepath.Join(s.root, folderID, "queue.toml")
}

// HistoryPath returns the append-only history file path.
func (s *Store) HistoryPath() string { return filepath.Join(s.root, "history.toml") }

// WriteTOML encodes v and atomically replaces path: it writes to a
// temp file in the same directory, fsyncs it, then renames over the
// destination so a crash mid-write never leaves a truncated file.
func (s *Store) WriteTOML(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persist: creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("persist: creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	enc := toml.NewEncoder(tmp)
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return fmt.Errorf("persist: encoding %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("persist: syncing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("persist: closing temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("persist: renaming into %s: %w", path, err)
	}
	return nil
}

// ReadTOML decodes path into v. A missing file is not an error; v is
// left unmodified and ok is false.
func (s *Store) ReadTOML(path string, v any) (ok bool, err error) {
	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, v); err != nil {
		return false, fmt.Errorf("persist: decoding %s: %w", path, err)
	}
	return true, nil
}
