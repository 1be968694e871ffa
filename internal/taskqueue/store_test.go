package taskqueue

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateStore_RoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := NewStateStore(dir, nil)

	tasks := []Task{
		{TaskID: "task-1", DocumentID: 7, Status: StatusPending, CreatedAt: time.Now().UTC(), MaxRetries: 3},
		{TaskID: "task-2", DocumentID: 8, Status: StatusProcessing, CreatedAt: time.Now().UTC(), MaxRetries: 3},
	}

	require.NoError(t, store.Save(tasks))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "task-1", loaded[0].TaskID)
	assert.Equal(t, int64(8), loaded[1].DocumentID)

	// The atomic protocol leaves no temp file behind.
	_, statErr := os.Stat(filepath.Join(dir, stateFileName+".tmp"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestStateStore_MissingFileYieldsEmpty(t *testing.T) {
	t.Parallel()

	store := NewStateStore(t.TempDir(), nil)

	tasks, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestStateStore_EmptyFileYieldsEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, stateFileName), nil, 0o644))

	store := NewStateStore(dir, nil)

	tasks, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestStateStore_CorruptFileBackedUp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, stateFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store := NewStateStore(dir, nil)

	tasks, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, tasks)

	// The corrupt file was moved aside, not destroyed.
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	backups, globErr := filepath.Glob(path + ".backup.*")
	require.NoError(t, globErr)
	require.Len(t, backups, 1)

	content, readErr := os.ReadFile(backups[0])
	require.NoError(t, readErr)
	assert.Equal(t, "{not json", string(content))
}

func TestStateStore_VersionStamped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := NewStateStore(dir, nil)

	require.NoError(t, store.Save(nil))

	content, err := os.ReadFile(filepath.Join(dir, stateFileName))
	require.NoError(t, err)
	assert.Contains(t, string(content), `"version": "1.0"`)
	assert.Contains(t, string(content), `"tasks": []`)
}
