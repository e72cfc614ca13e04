// Package config implements the narrow configuration surface spec.md
// §6 enumerates, adapted from the teacher's internal/config.ConfigManager
// key/accessor style but backed by github.com/BurntSushi/toml files
// instead of the badger-backed storage.Storage, per persist.Store's
// settings.toml / default/settings.toml / <folder_id>/settings.toml
// layout.
package config

import (
	"fmt"

	"tachyon-core/internal/persist"
)

// ScriptsConfig is the app-wide scripting block.
type ScriptsConfig struct {
	Enabled   bool            `toml:"enabled"`
	Directory string          `toml:"directory"`
	TimeoutS  int             `toml:"timeout_s"`
	Files     map[string]bool `toml:"files,omitempty"`
}

// AppSettings is the root of settings.toml.
type AppSettings struct {
	MaxConcurrent           int           `toml:"max_concurrent"`
	MaxConcurrentPerFolder  int           `toml:"max_concurrent_per_folder"`
	ParallelFolderCount     int           `toml:"parallel_folder_count"`
	RetryCount              int           `toml:"retry_count"`
	RetryDelaySeconds       int           `toml:"retry_delay"`
	MaxRedirects            int           `toml:"max_redirects"`
	UserAgent               string        `toml:"user_agent"`
	GlobalBandwidthBytesSec int           `toml:"global_bandwidth_bytes_sec,omitempty"`
	CircuitThreshold        int           `toml:"circuit_threshold"`
	CircuitOpenSeconds      int           `toml:"circuit_open_seconds"`
	HistoryCap              int           `toml:"history_cap"`
	Scripts                 ScriptsConfig `toml:"scripts"`
}

// FolderOverrides holds the subset of AppSettings a folder may
// override, per spec.md §6's "Per-folder overrides" list.
type FolderOverrides struct {
	SavePath           string            `toml:"save_path,omitempty"`
	AutoDateDirectory  *bool             `toml:"auto_date_directory,omitempty"`
	AutoStartDownloads *bool             `toml:"auto_start_downloads,omitempty"`
	ScriptsEnabled     *bool             `toml:"scripts_enabled,omitempty"`
	ScriptFiles        map[string]bool   `toml:"script_files,omitempty"`
	MaxConcurrent      *int              `toml:"max_concurrent,omitempty"`
	UserAgent          string            `toml:"user_agent,omitempty"`
	DefaultHeaders     map[string]string `toml:"default_headers,omitempty"`
}

func defaults() AppSettings {
	return AppSettings{
		MaxConcurrent:          8,
		MaxConcurrentPerFolder: 3,
		ParallelFolderCount:    4,
		RetryCount:             3,
		RetryDelaySeconds:      2,
		MaxRedirects:           5,
		CircuitThreshold:       5,
		CircuitOpenSeconds:     60,
		HistoryCap:             500,
		Scripts: ScriptsConfig{
			Enabled:  true,
			TimeoutS: 30,
		},
	}
}

// Snapshot is the immutable, by-value configuration view the scheduler
// consults on every admission decision (Design Notes §9), composed of
// the app settings and one folder's resolved overrides.
type Snapshot struct {
	App    AppSettings
	Folder FolderOverrides
}

// EffectiveMaxConcurrent resolves the folder's effective per-folder
// cap, warning (via the returned bool) when it exceeds the global cap
// per spec.md §6's validation rule.
func (s Snapshot) EffectiveMaxConcurrent() (value int, exceedsGlobal bool) {
	v := s.App.MaxConcurrentPerFolder
	if s.Folder.MaxConcurrent != nil {
		v = *s.Folder.MaxConcurrent
	}
	return v, v > s.App.MaxConcurrent
}

// EffectiveUserAgent resolves the folder's UA override, or the app default.
func (s Snapshot) EffectiveUserAgent() string {
	if s.Folder.UserAgent != "" {
		return s.Folder.UserAgent
	}
	return s.App.UserAgent
}

// EffectiveScriptsEnabled resolves the two-level enable/disable gate.
func (s Snapshot) EffectiveScriptsEnabled() bool {
	if !s.App.Scripts.Enabled {
		return false
	}
	if s.Folder.ScriptsEnabled != nil {
		return *s.Folder.ScriptsEnabled
	}
	return true
}

// EffectiveScriptFiles merges the app-level file map with the folder's
// partial override, folder entries winning per key.
func (s Snapshot) EffectiveScriptFiles() map[string]bool {
	out := make(map[string]bool, len(s.App.Scripts.Files)+len(s.Folder.ScriptFiles))
	for k, v := range s.App.Scripts.Files {
		out[k] = v
	}
	for k, v := range s.Folder.ScriptFiles {
		out[k] = v
	}
	return out
}

// Loader reads and writes the app/default/per-folder settings files
// through a persist.Store.
type Loader struct {
	store *persist.Store
}

// NewLoader wraps store as a config.Loader.
func NewLoader(store *persist.Store) *Loader {
	return &Loader{store: store}
}

// LoadApp reads settings.toml, falling back to built-in defaults for
// any field the file omits (TOML decode leaves zero values untouched,
// so defaults are seeded before decoding).
func (l *Loader) LoadApp() (AppSettings, error) {
	app := defaults()
	if _, err := l.store.ReadTOML(l.store.SettingsPath(), &app); err != nil {
		return AppSettings{}, fmt.Errorf("config: loading settings.toml: %w", err)
	}
	if app.MaxConcurrent == 0 || app.MaxConcurrentPerFolder == 0 || app.ParallelFolderCount == 0 {
		return AppSettings{}, fmt.Errorf("config: max_concurrent, max_concurrent_per_folder and parallel_folder_count must be non-zero")
	}
	return app, nil
}

// SaveApp writes settings.toml.
func (l *Loader) SaveApp(app AppSettings) error {
	return l.store.WriteTOML(l.store.SettingsPath(), app)
}

// LoadFolder reads default/settings.toml as the base for every folder,
// then the folder's own settings.toml on top of it (fields the folder
// file sets win). Either file may be absent; with neither present the
// result is an empty (no-override) value.
func (l *Loader) LoadFolder(folderID string) (FolderOverrides, error) {
	var f FolderOverrides
	if _, err := l.store.ReadTOML(l.store.DefaultFolderSettingsPath(), &f); err != nil {
		return FolderOverrides{}, fmt.Errorf("config: loading default folder settings: %w", err)
	}
	if _, err := l.store.ReadTOML(l.store.FolderSettingsPath(folderID), &f); err != nil {
		return FolderOverrides{}, fmt.Errorf("config: loading folder %s settings: %w", folderID, err)
	}
	return f, nil
}

// SaveFolder writes a folder's settings.toml override file.
func (l *Loader) SaveFolder(folderID string, f FolderOverrides) error {
	return l.store.WriteTOML(l.store.FolderSettingsPath(folderID), f)
}

// Snapshot composes the app settings with one folder's overrides into
// the immutable value the scheduler consults for admission decisions.
func (l *Loader) Snapshot(folderID string) (Snapshot, error) {
	app, err := l.LoadApp()
	if err != nil {
		return Snapshot{}, err
	}
	folder, err := l.LoadFolder(folderID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{App: app, Folder: folder}, nil
}
