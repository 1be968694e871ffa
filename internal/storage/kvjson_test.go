package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightrag-go/lightrag/internal/storage"
)

func TestJSONKVStore_UpsertGetRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	store := storage.NewJSONKVStore[storage.ChunkRecord](dir, storage.IndexTextChunks)

	empty, err := store.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)

	record := storage.ChunkRecord{Content: "alpha", Tokens: 1, FullDocID: "doc-1", FilePath: "a.txt"}

	require.NoError(t, store.Upsert(ctx, map[string]storage.ChunkRecord{"chunk-1": record}))

	got, ok, err := store.GetByID(ctx, "chunk-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, record, got)

	_, ok, err = store.GetByID(ctx, "chunk-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJSONKVStore_FilterKeysReturnsAbsent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewJSONKVStore[storage.DocRecord](t.TempDir(), storage.IndexFullDocs)

	require.NoError(t, store.Upsert(ctx, map[string]storage.DocRecord{
		"doc-1": {Content: "a"},
		"doc-2": {Content: "b"},
	}))

	absent, err := store.FilterKeys(ctx, []string{"doc-1", "doc-3", "doc-2", "doc-4"})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-3", "doc-4"}, absent)
}

func TestJSONKVStore_FlushAndReload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	store := storage.NewJSONKVStore[storage.DocRecord](dir, storage.IndexFullDocs)
	require.NoError(t, store.Upsert(ctx, map[string]storage.DocRecord{"doc-1": {Content: "hello"}}))
	require.NoError(t, store.IndexDoneCallback(ctx))

	// A fresh instance reads the flushed file.
	reopened := storage.NewJSONKVStore[storage.DocRecord](dir, storage.IndexFullDocs)

	got, ok, err := reopened.GetByID(ctx, "doc-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", got.Content)
}

func TestJSONKVStore_FlushIsAtomic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	store := storage.NewJSONKVStore[storage.DocRecord](dir, storage.IndexFullDocs)
	require.NoError(t, store.Upsert(ctx, map[string]storage.DocRecord{"doc-1": {Content: "x"}}))
	require.NoError(t, store.IndexDoneCallback(ctx))

	// No temp file is left behind after a successful flush.
	_, err := os.Stat(filepath.Join(dir, "full_docs.json.tmp"))
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(filepath.Join(dir, "full_docs.json"))
	assert.NoError(t, err)
}

func TestJSONKVStore_DeleteAndDrop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	store := storage.NewJSONKVStore[storage.DocRecord](dir, storage.IndexFullDocs)
	require.NoError(t, store.Upsert(ctx, map[string]storage.DocRecord{
		"doc-1": {Content: "a"},
		"doc-2": {Content: "b"},
	}))
	require.NoError(t, store.IndexDoneCallback(ctx))

	require.NoError(t, store.Delete(ctx, []string{"doc-1", "doc-missing"}))

	_, ok, err := store.GetByID(ctx, "doc-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Drop(ctx))

	empty, err := store.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)

	_, statErr := os.Stat(filepath.Join(dir, "full_docs.json"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestJSONKVStore_GetByIDs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewJSONKVStore[storage.ChunkIDIndexRecord](t.TempDir(), storage.IndexEntityChunks)

	require.NoError(t, store.Upsert(ctx, map[string]storage.ChunkIDIndexRecord{
		"ALPHA": {ChunkIDs: []string{"c1", "c2"}, Count: 2},
		"BETA":  {ChunkIDs: []string{"c3"}, Count: 1},
	}))

	found, err := store.GetByIDs(ctx, []string{"ALPHA", "GAMMA"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, []string{"c1", "c2"}, found["ALPHA"].ChunkIDs)
}
