package merge

import (
	"context"
	"fmt"

	"github.com/lightrag-go/lightrag/internal/storage"
)

// IndexUpdater is phase 3 of the merge: it records which entity names and
// relation pairs each document produced. These indices power
// document-level queries and cleanup.
type IndexUpdater struct {
	fullEntities  storage.KVStore[storage.DocEntityIndexRecord]
	fullRelations storage.KVStore[storage.DocRelationIndexRecord]
}

// NewIndexUpdater creates an index updater.
func NewIndexUpdater(
	fullEntities storage.KVStore[storage.DocEntityIndexRecord],
	fullRelations storage.KVStore[storage.DocRelationIndexRecord],
) *IndexUpdater {
	return &IndexUpdater{fullEntities: fullEntities, fullRelations: fullRelations}
}

// Update writes the per-document entity and relation indices. Names are
// deduplicated; pairs are stored in sorted orientation.
func (u *IndexUpdater) Update(ctx context.Context, docID string, entityNames []string, pairs []storage.Pair) error {
	names := dedupe(entityNames)

	sorted := make([]storage.Pair, 0, len(pairs))
	seen := make(map[storage.Pair]struct{}, len(pairs))

	for _, pair := range pairs {
		if pair[0] > pair[1] {
			pair[0], pair[1] = pair[1], pair[0]
		}

		if _, ok := seen[pair]; ok {
			continue
		}

		seen[pair] = struct{}{}
		sorted = append(sorted, pair)
	}

	err := u.fullEntities.Upsert(ctx, map[string]storage.DocEntityIndexRecord{
		docID: {EntityNames: names, Count: len(names)},
	})
	if err != nil {
		return fmt.Errorf("update entity index for %s: %w", docID, err)
	}

	relErr := u.fullRelations.Upsert(ctx, map[string]storage.DocRelationIndexRecord{
		docID: {RelationPairs: sorted, Count: len(sorted)},
	})
	if relErr != nil {
		return fmt.Errorf("update relation index for %s: %w", docID, relErr)
	}

	return nil
}
