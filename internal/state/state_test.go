package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	s, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.False(t, s.IsProcessed(42))
	assert.Empty(t, s.Issues())
}

func TestMarkProcessedPersists(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(dir)
	require.NoError(t, err)

	require.NoError(t, s.MarkProcessed(42, "https://github.com/o/r/pull/101"))
	assert.True(t, s.IsProcessed(42))

	// A fresh load sees the record.
	reloaded, err := Load(dir)
	require.NoError(t, err)
	assert.True(t, reloaded.IsProcessed(42))
	rec, ok := reloaded.Get(42)
	require.True(t, ok)
	assert.Equal(t, "https://github.com/o/r/pull/101", rec.PRURL)
	assert.False(t, rec.ProcessedAt.IsZero())
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(dir)
	require.NoError(t, err)

	require.NoError(t, s.MarkProcessed(7, ""))
	require.NoError(t, s.Remove(7))
	assert.False(t, s.IsProcessed(7))

	err = s.Remove(7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFlushIsAtomic(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(dir)
	require.NoError(t, err)
	require.NoError(t, s.MarkProcessed(1, ""))

	// No temp file left behind after a flush.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}

	// The written file is valid on its own.
	_, err = os.Stat(filepath.Join(dir, "state.yaml"))
	assert.NoError(t, err)
}

func TestCorruptStateFileIsAnError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.yaml"), []byte("{not yaml: ["), 0644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestIssuesSorted(t *testing.T) {
	s, err := Load(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.MarkProcessed(9, ""))
	require.NoError(t, s.MarkProcessed(3, ""))
	require.NoError(t, s.MarkProcessed(5, ""))
	assert.Equal(t, []int{3, 5, 9}, s.Issues())
}
