package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tachyon-core/internal/persist"
)

func newLoader(t *testing.T) *Loader {
	t.Helper()
	p, err := persist.New(t.TempDir())
	require.NoError(t, err)
	return NewLoader(p)
}

func TestLoadAppFillsDefaultsWhenFileAbsent(t *testing.T) {
	l := newLoader(t)
	app, err := l.LoadApp()
	require.NoError(t, err)
	assert.Equal(t, 8, app.MaxConcurrent)
	assert.Equal(t, 3, app.MaxConcurrentPerFolder)
	assert.True(t, app.Scripts.Enabled)
}

func TestSaveThenLoadAppRoundTrips(t *testing.T) {
	l := newLoader(t)
	app, err := l.LoadApp()
	require.NoError(t, err)
	app.MaxConcurrent = 20
	app.UserAgent = "custom-ua"
	require.NoError(t, l.SaveApp(app))

	reloaded, err := l.LoadApp()
	require.NoError(t, err)
	assert.Equal(t, 20, reloaded.MaxConcurrent)
	assert.Equal(t, "custom-ua", reloaded.UserAgent)
}

func TestEffectiveMaxConcurrentFlagsExceedsGlobal(t *testing.T) {
	override := 99
	snap := Snapshot{
		App:    AppSettings{MaxConcurrent: 10, MaxConcurrentPerFolder: 3},
		Folder: FolderOverrides{MaxConcurrent: &override},
	}
	v, exceeds := snap.EffectiveMaxConcurrent()
	assert.Equal(t, 99, v)
	assert.True(t, exceeds)
}

func TestEffectiveScriptsEnabledTwoLevelGate(t *testing.T) {
	disabled := false
	snap := Snapshot{
		App:    AppSettings{Scripts: ScriptsConfig{Enabled: true}},
		Folder: FolderOverrides{ScriptsEnabled: &disabled},
	}
	assert.False(t, snap.EffectiveScriptsEnabled())

	snap.App.Scripts.Enabled = false
	snap.Folder.ScriptsEnabled = nil
	assert.False(t, snap.EffectiveScriptsEnabled())
}

func TestEffectiveScriptFilesFolderOverridesWin(t *testing.T) {
	snap := Snapshot{
		App:    AppSettings{Scripts: ScriptsConfig{Files: map[string]bool{"a.js": true, "b.js": true}}},
		Folder: FolderOverrides{ScriptFiles: map[string]bool{"b.js": false}},
	}
	merged := snap.EffectiveScriptFiles()
	assert.True(t, merged["a.js"])
	assert.False(t, merged["b.js"])
}

func TestFolderSettingsRoundTrip(t *testing.T) {
	l := newLoader(t)
	require.NoError(t, l.SaveFolder("f1", FolderOverrides{SavePath: "/tmp/f1", UserAgent: "custom"}))

	f, err := l.LoadFolder("f1")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/f1", f.SavePath)
	assert.Equal(t, "custom", f.UserAgent)
}
