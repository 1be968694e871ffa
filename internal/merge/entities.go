package merge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/lightrag-go/lightrag/internal/ids"
	"github.com/lightrag-go/lightrag/internal/llm"
	"github.com/lightrag-go/lightrag/internal/storage"
)

// EntityMerger is phase 1 of the merge: it collapses same-named entities
// collected across chunks into single graph nodes and vector records.
type EntityMerger struct {
	graph        storage.GraphStore
	vectors      storage.VectorStore
	entityChunks storage.KVStore[storage.ChunkIDIndexRecord]
	embedder     llm.EmbeddingClient
	descriptions *DescriptionMerger
	cfg          Config
	logger       *slog.Logger
}

// NewEntityMerger creates an entity merger.
func NewEntityMerger(
	graph storage.GraphStore,
	vectors storage.VectorStore,
	entityChunks storage.KVStore[storage.ChunkIDIndexRecord],
	embedder llm.EmbeddingClient,
	descriptions *DescriptionMerger,
	cfg Config,
	logger *slog.Logger,
) *EntityMerger {
	if logger == nil {
		logger = slog.Default()
	}

	return &EntityMerger{
		graph:        graph,
		vectors:      vectors,
		entityChunks: entityChunks,
		embedder:     embedder,
		descriptions: descriptions,
		cfg:          cfg,
		logger:       logger,
	}
}

// pendingNode is a fully composed node awaiting the batched embedding and
// upsert steps.
type pendingNode struct {
	name string
	data storage.NodeData
}

// MergeAll merges every entity group and returns the names present in the
// graph for this document (including groups skipped under KEEP whose node
// already existed). Entities with no usable description are skipped with
// a warning; a missing expected node under a KEEP skip is logged at ERROR
// and the group aborted.
func (m *EntityMerger) MergeAll(ctx context.Context, groups map[string][]llm.Entity, progress ProgressFunc) ([]string, error) {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}

	sort.Strings(names)

	var (
		pending     []pendingNode
		mergedNames []string
	)

	for i, name := range names {
		node, include, err := m.mergeOne(ctx, name, groups[name])
		if err != nil {
			return nil, err
		}

		if include {
			mergedNames = append(mergedNames, name)
		}

		if node != nil {
			pending = append(pending, *node)
		}

		if progress != nil {
			progress(i+1, len(names))
		}
	}

	err := m.upsertPending(ctx, pending)
	if err != nil {
		return nil, err
	}

	return mergedNames, nil
}

// mergeOne composes the merged node for one entity group. Returns nil
// node when the group resolves to the existing node unchanged or is
// skipped; include reports whether the name belongs in the document's
// entity index.
func (m *EntityMerger) mergeOne(ctx context.Context, name string, incoming []llm.Entity) (*pendingNode, bool, error) {
	existing, nodeExists, err := m.graph.GetNode(ctx, name)
	if err != nil {
		return nil, false, fmt.Errorf("load entity node %q: %w", name, err)
	}

	existingSourceIDs := splitSep(existing.SourceID)

	limited, truncate, keepSkip, err := m.unionChunkIDs(ctx, name, incoming, existingSourceIDs)
	if err != nil {
		return nil, false, err
	}

	if m.cfg.SourceIDsLimitMethod == MethodKEEP {
		incoming = filterBySourceWindow(incoming, limited, existingSourceIDs)

		if keepSkip && len(incoming) == 0 {
			if !nodeExists {
				m.logger.Error("KEEP skip expected an existing entity node",
					"entity", name, "err", ErrInternalInconsistency)

				return nil, false, nil
			}

			// Window already full of older chunks; the stored node stands.
			return nil, true, nil
		}
	}

	entityType := majorityVoteType(incoming, splitSep(existing.EntityType))

	descList := collectDescriptions(existing.Description, sortedDescriptions(incoming))
	if len(descList) == 0 {
		m.logger.Warn("entity has no usable description, skipping",
			"entity", name, "err", ErrMissingDescription)

		return nil, false, nil
	}

	merged, _, err := m.descriptions.Merge(ctx, llm.SummaryKindEntity, name, descList)
	if err != nil {
		return nil, false, err
	}

	filePaths := m.mergeFilePaths(splitSep(existing.FilePath), entityFilePaths(incoming))

	data := storage.NodeData{
		EntityID:    name,
		EntityType:  entityType,
		Description: merged,
		SourceID:    joinSep(limited),
		FilePath:    joinSep(filePaths),
		CreatedAt:   time.Now().Unix(),
		Truncate:    truncate,
	}

	return &pendingNode{name: name, data: data}, true, nil
}

// unionChunkIDs loads the unlimited chunk-id history for name, appends the
// incoming chunk ids, persists the union, and returns the windowed view.
// keepSkip reports that the pre-existing list already filled the window.
func (m *EntityMerger) unionChunkIDs(ctx context.Context, name string, incoming []llm.Entity, fallback []string) ([]string, string, bool, error) {
	record, ok, err := m.entityChunks.GetByID(ctx, name)
	if err != nil {
		return nil, "", false, fmt.Errorf("load chunk-id index for %q: %w", name, err)
	}

	base := record.ChunkIDs
	if !ok {
		base = fallback
	}

	union := make([]string, 0, len(base)+len(incoming))
	union = append(union, base...)

	for _, e := range incoming {
		if e.SourceID != "" {
			union = append(union, e.SourceID)
		}
	}

	union = dedupe(union)

	upsertErr := m.entityChunks.Upsert(ctx, map[string]storage.ChunkIDIndexRecord{
		name: {ChunkIDs: union, Count: len(union)},
	})
	if upsertErr != nil {
		return nil, "", false, fmt.Errorf("persist chunk-id index for %q: %w", name, upsertErr)
	}

	limit := m.cfg.MaxSourceIDsPerEntity
	limited, truncate := ApplyLimit(union, limit, m.cfg.SourceIDsLimitMethod)

	keepSkip := limit > 0 && len(base) >= limit

	return limited, truncate, keepSkip, nil
}

// mergeFilePaths unions existing and incoming paths and applies the
// windowing policy with the truncation marker.
func (m *EntityMerger) mergeFilePaths(existing, incoming []string) []string {
	paths := dedupe(append(existing, incoming...))

	return windowFilePaths(paths, m.cfg.MaxFilePaths, m.cfg.SourceIDsLimitMethod)
}

// upsertPending embeds all composed nodes in one batch, then performs the
// graph upserts followed by the vector upsert.
func (m *EntityMerger) upsertPending(ctx context.Context, pending []pendingNode) error {
	if len(pending) == 0 {
		return nil
	}

	texts := make([]string, len(pending))
	for i, p := range pending {
		texts[i] = p.name + "\n" + p.data.Description
	}

	vectors, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed entity nodes: %w", err)
	}

	records := make([]storage.VectorRecord, len(pending))

	for i, p := range pending {
		upsertErr := m.graph.UpsertNode(ctx, p.name, p.data)
		if upsertErr != nil {
			return fmt.Errorf("upsert entity node %q: %w", p.name, upsertErr)
		}

		records[i] = storage.VectorRecord{
			ID:      ids.ForEntity(p.name),
			Vector:  vectors[i],
			Content: texts[i],
			Metadata: map[string]string{
				"content":     texts[i],
				"entity_name": p.name,
				"source_id":   p.data.SourceID,
				"file_path":   p.data.FilePath,
			},
		}
	}

	collection := storage.CollectionName(storage.CollectionEntities, m.embedder.Dimension())

	vecErr := m.vectors.Upsert(ctx, collection, records)
	if vecErr != nil {
		return fmt.Errorf("upsert entity vectors: %w", vecErr)
	}

	return nil
}

// filterBySourceWindow drops incoming entities whose source chunk is
// neither inside the limited window nor in the pre-existing window.
func filterBySourceWindow(incoming []llm.Entity, limited, existing []string) []llm.Entity {
	allowed := toSet(limited)
	for id := range toSet(existing) {
		allowed[id] = struct{}{}
	}

	out := incoming[:0]

	for _, e := range incoming {
		if _, ok := allowed[e.SourceID]; ok {
			out = append(out, e)
		}
	}

	return out
}

// majorityVoteType picks the most frequent entity type among incoming and
// pre-existing types; ties break toward the earliest occurrence.
func majorityVoteType(incoming []llm.Entity, existing []string) string {
	counts := make(map[string]int)

	var order []string

	observe := func(t string) {
		if t == "" {
			return
		}

		if counts[t] == 0 {
			order = append(order, t)
		}

		counts[t]++
	}

	for _, e := range incoming {
		observe(e.Type)
	}

	for _, t := range existing {
		observe(t)
	}

	best := llm.UnknownEntityType
	bestCount := 0

	for _, t := range order {
		if counts[t] > bestCount {
			best = t
			bestCount = counts[t]
		}
	}

	return best
}

// sortedDescriptions returns the incoming descriptions ordered by
// (timestamp asc, length desc), empties dropped.
func sortedDescriptions(incoming []llm.Entity) []string {
	entities := make([]llm.Entity, 0, len(incoming))

	for _, e := range incoming {
		if e.Description != "" {
			entities = append(entities, e)
		}
	}

	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].Timestamp != entities[j].Timestamp {
			return entities[i].Timestamp < entities[j].Timestamp
		}

		return len(entities[i].Description) > len(entities[j].Description)
	})

	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.Description
	}

	return out
}
