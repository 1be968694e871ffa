package merge_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightrag-go/lightrag/internal/merge"
	"github.com/lightrag-go/lightrag/internal/storage"
)

func TestIndexUpdater_DedupesAndSortsPairOrientation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	entities := storage.NewJSONKVStore[storage.DocEntityIndexRecord](dir, storage.IndexFullEntities)
	relations := storage.NewJSONKVStore[storage.DocRelationIndexRecord](dir, storage.IndexFullRelations)

	updater := merge.NewIndexUpdater(entities, relations)

	names := []string{"ALPHA", "BETA", "ALPHA"}
	pairs := []storage.Pair{{"B", "A"}, {"A", "B"}, {"C", "D"}}

	require.NoError(t, updater.Update(ctx, "doc-1", names, pairs))

	entRecord, ok, err := entities.GetByID(ctx, "doc-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"ALPHA", "BETA"}, entRecord.EntityNames)
	assert.Equal(t, 2, entRecord.Count)

	relRecord, ok, err := relations.GetByID(ctx, "doc-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []storage.Pair{{"A", "B"}, {"C", "D"}}, relRecord.RelationPairs)
	assert.Equal(t, 2, relRecord.Count)
}

func TestIndexUpdater_EmptyDocument(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	entities := storage.NewJSONKVStore[storage.DocEntityIndexRecord](dir, storage.IndexFullEntities)
	relations := storage.NewJSONKVStore[storage.DocRelationIndexRecord](dir, storage.IndexFullRelations)

	updater := merge.NewIndexUpdater(entities, relations)

	require.NoError(t, updater.Update(ctx, "doc-1", nil, nil))

	entRecord, ok, err := entities.GetByID(ctx, "doc-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, entRecord.EntityNames)
	assert.Zero(t, entRecord.Count)
}
