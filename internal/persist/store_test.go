package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `toml:"name"`
	Count int    `toml:"count"`
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	path := s.FolderQueuePath("folder-1")
	require.NoError(t, s.WriteTOML(path, sample{Name: "a", Count: 3}))

	var got sample
	ok, err := s.ReadTOML(path, &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, sample{Name: "a", Count: 3}, got)
}

func TestReadMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	var got sample
	ok, err := s.ReadTOML(s.SettingsPath(), &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, s.WriteTOML(s.HistoryPath(), sample{Name: "x"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}

func TestWriteOverwritesExistingFileAtomically(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	path := filepath.Join(dir, "settings.toml")

	require.NoError(t, s.WriteTOML(path, sample{Name: "first", Count: 1}))
	require.NoError(t, s.WriteTOML(path, sample{Name: "second", Count: 2}))

	var got sample
	_, err = s.ReadTOML(path, &got)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Name)
}
