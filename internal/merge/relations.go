package merge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/lightrag-go/lightrag/internal/ids"
	"github.com/lightrag-go/lightrag/internal/llm"
	"github.com/lightrag-go/lightrag/internal/storage"
)

// RelationMerger is phase 2 of the merge: it collapses same-pair relations
// into undirected graph edges, materialises missing endpoint nodes, and
// refreshes the relation vector records.
type RelationMerger struct {
	graph          storage.GraphStore
	vectors        storage.VectorStore
	relationChunks storage.KVStore[storage.ChunkIDIndexRecord]
	embedder       llm.EmbeddingClient
	descriptions   *DescriptionMerger
	cfg            Config
	logger         *slog.Logger
}

// NewRelationMerger creates a relation merger.
func NewRelationMerger(
	graph storage.GraphStore,
	vectors storage.VectorStore,
	relationChunks storage.KVStore[storage.ChunkIDIndexRecord],
	embedder llm.EmbeddingClient,
	descriptions *DescriptionMerger,
	cfg Config,
	logger *slog.Logger,
) *RelationMerger {
	if logger == nil {
		logger = slog.Default()
	}

	return &RelationMerger{
		graph:          graph,
		vectors:        vectors,
		relationChunks: relationChunks,
		embedder:       embedder,
		descriptions:   descriptions,
		cfg:            cfg,
		logger:         logger,
	}
}

// pendingEdge is a fully composed edge awaiting embedding and upsert.
type pendingEdge struct {
	pair storage.Pair
	data storage.EdgeData
	text string
}

// Result is the outcome of phase 2: the pairs present in the graph for
// this document and the endpoint names materialised as placeholder nodes.
type Result struct {
	Pairs     []storage.Pair
	Endpoints []string
}

// MergeAll merges every relation group. Self-loops are skipped. Relations
// with no usable description are skipped with a warning.
func (m *RelationMerger) MergeAll(ctx context.Context, groups map[storage.Pair][]llm.Relation, progress ProgressFunc) (Result, error) {
	pairs := make([]storage.Pair, 0, len(groups))
	for pair := range groups {
		pairs = append(pairs, pair)
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}

		return pairs[i][1] < pairs[j][1]
	})

	var (
		result       Result
		pending      []pendingEdge
		materialised = make(map[string]struct{})
	)

	for i, pair := range pairs {
		if pair[0] == pair[1] {
			m.logger.Warn("skipping self-loop relation", "entity", pair[0])

			if progress != nil {
				progress(i+1, len(pairs))
			}

			continue
		}

		edge, include, err := m.mergeOne(ctx, pair, groups[pair])
		if err != nil {
			return Result{}, err
		}

		if include {
			result.Pairs = append(result.Pairs, pair)

			endpoints, epErr := m.materialiseEndpoints(ctx, pair, groups, materialised)
			if epErr != nil {
				return Result{}, epErr
			}

			result.Endpoints = append(result.Endpoints, endpoints...)
		}

		if edge != nil {
			pending = append(pending, *edge)
		}

		if progress != nil {
			progress(i+1, len(pairs))
		}
	}

	err := m.upsertPending(ctx, pending)
	if err != nil {
		return Result{}, err
	}

	return result, nil
}

// mergeOne composes the merged edge for one pair. Returns nil edge when
// the pair resolves to the existing edge unchanged or is skipped.
func (m *RelationMerger) mergeOne(ctx context.Context, pair storage.Pair, incoming []llm.Relation) (*pendingEdge, bool, error) {
	existing, edgeExists, err := m.graph.GetEdge(ctx, pair[0], pair[1])
	if err != nil {
		return nil, false, fmt.Errorf("load edge %v: %w", pair, err)
	}

	existingSourceIDs := splitSep(existing.SourceID)

	limited, truncate, keepSkip, err := m.unionChunkIDs(ctx, pair, incoming, existingSourceIDs)
	if err != nil {
		return nil, false, err
	}

	if m.cfg.SourceIDsLimitMethod == MethodKEEP {
		incoming = filterRelationsBySourceWindow(incoming, limited, existingSourceIDs)

		if keepSkip && len(incoming) == 0 {
			if !edgeExists {
				m.logger.Error("KEEP skip expected an existing edge",
					"source", pair[0], "target", pair[1], "err", ErrInternalInconsistency)

				return nil, false, nil
			}

			return nil, true, nil
		}
	}

	weight := existing.Weight
	for _, r := range incoming {
		weight += r.Weight
	}

	keywords := mergeKeywords(existing.Keywords, incoming)

	descList := collectDescriptions(existing.Description, sortedRelationDescriptions(incoming))
	if len(descList) == 0 {
		m.logger.Warn("relation has no usable description, skipping",
			"source", pair[0], "target", pair[1], "err", ErrMissingDescription)

		return nil, false, nil
	}

	name := fmt.Sprintf("(%s, %s)", pair[0], pair[1])

	merged, _, err := m.descriptions.Merge(ctx, llm.SummaryKindRelation, name, descList)
	if err != nil {
		return nil, false, err
	}

	filePaths := dedupe(append(splitSep(existing.FilePath), relationFilePaths(incoming)...))
	filePaths = windowFilePaths(filePaths, m.cfg.MaxFilePaths, m.cfg.SourceIDsLimitMethod)

	data := storage.EdgeData{
		Weight:      weight,
		Description: merged,
		Keywords:    keywords,
		SourceID:    joinSep(limited),
		FilePath:    joinSep(filePaths),
		CreatedAt:   time.Now().Unix(),
		Truncate:    truncate,
	}

	text := keywords + "\t" + pair[0] + "\n" + pair[1] + "\n" + merged

	return &pendingEdge{pair: pair, data: data, text: text}, true, nil
}

// unionChunkIDs mirrors the entity-side union, keyed by the sorted pair.
func (m *RelationMerger) unionChunkIDs(ctx context.Context, pair storage.Pair, incoming []llm.Relation, fallback []string) ([]string, string, bool, error) {
	key := pair[0] + ids.Separator + pair[1]

	record, ok, err := m.relationChunks.GetByID(ctx, key)
	if err != nil {
		return nil, "", false, fmt.Errorf("load chunk-id index for %v: %w", pair, err)
	}

	base := record.ChunkIDs
	if !ok {
		base = fallback
	}

	union := make([]string, 0, len(base)+len(incoming))
	union = append(union, base...)

	for _, r := range incoming {
		if r.SourceChunkID != "" {
			union = append(union, r.SourceChunkID)
		}
	}

	union = dedupe(union)

	upsertErr := m.relationChunks.Upsert(ctx, map[string]storage.ChunkIDIndexRecord{
		key: {ChunkIDs: union, Count: len(union)},
	})
	if upsertErr != nil {
		return nil, "", false, fmt.Errorf("persist chunk-id index for %v: %w", pair, upsertErr)
	}

	limit := m.cfg.MaxSourceIDsPerRelation
	limited, truncate := ApplyLimit(union, limit, m.cfg.SourceIDsLimitMethod)

	keepSkip := limit > 0 && len(base) >= limit

	return limited, truncate, keepSkip, nil
}

// materialiseEndpoints creates placeholder nodes for pair endpoints that
// do not exist in the graph. Runs at most once per name per document and
// never overwrites an existing node.
func (m *RelationMerger) materialiseEndpoints(ctx context.Context, pair storage.Pair, groups map[storage.Pair][]llm.Relation, materialised map[string]struct{}) ([]string, error) {
	var created []string

	for _, name := range pair {
		if _, done := materialised[name]; done {
			continue
		}

		materialised[name] = struct{}{}

		exists, err := m.graph.HasNode(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("check endpoint node %q: %w", name, err)
		}

		if exists {
			continue
		}

		data := endpointNodeData(name, groups)

		upsertErr := m.graph.UpsertNode(ctx, name, data)
		if upsertErr != nil {
			return nil, fmt.Errorf("materialise endpoint node %q: %w", name, upsertErr)
		}

		created = append(created, name)
	}

	return created, nil
}

// endpointNodeData derives a placeholder node from every relation in the
// document that touches the name, deduplicating across relations.
func endpointNodeData(name string, groups map[storage.Pair][]llm.Relation) storage.NodeData {
	var (
		sourceIDs    []string
		descriptions []string
		filePaths    []string
	)

	pairs := make([]storage.Pair, 0, len(groups))
	for pair := range groups {
		pairs = append(pairs, pair)
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}

		return pairs[i][1] < pairs[j][1]
	})

	for _, pair := range pairs {
		if pair[0] != name && pair[1] != name {
			continue
		}

		for _, r := range groups[pair] {
			if r.SourceChunkID != "" {
				sourceIDs = append(sourceIDs, r.SourceChunkID)
			}

			if r.Description != "" {
				descriptions = append(descriptions, r.Description)
			}

			if r.FilePath != "" {
				filePaths = append(filePaths, r.FilePath)
			}
		}
	}

	return storage.NodeData{
		EntityID:    name,
		EntityType:  llm.UnknownEntityType,
		Description: joinSep(dedupe(descriptions)),
		SourceID:    joinSep(dedupe(sourceIDs)),
		FilePath:    joinSep(dedupe(filePaths)),
		CreatedAt:   time.Now().Unix(),
	}
}

// upsertPending deletes stale relation vectors, embeds all composed edges
// in one batch, then upserts edges and vector records.
func (m *RelationMerger) upsertPending(ctx context.Context, pending []pendingEdge) error {
	if len(pending) == 0 {
		return nil
	}

	collection := storage.CollectionName(storage.CollectionRelationships, m.embedder.Dimension())

	for _, p := range pending {
		err := m.deleteStaleVectors(ctx, collection, p.pair)
		if err != nil {
			return err
		}
	}

	texts := make([]string, len(pending))
	for i, p := range pending {
		texts[i] = p.text
	}

	vectors, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed relation edges: %w", err)
	}

	records := make([]storage.VectorRecord, len(pending))

	for i, p := range pending {
		upsertErr := m.graph.UpsertEdge(ctx, p.pair[0], p.pair[1], p.data)
		if upsertErr != nil {
			return fmt.Errorf("upsert edge %v: %w", p.pair, upsertErr)
		}

		records[i] = storage.VectorRecord{
			ID:      ids.ForRelation(p.pair[0], p.pair[1]),
			Vector:  vectors[i],
			Content: p.text,
			Metadata: map[string]string{
				"content":   p.text,
				"src_id":    p.pair[0],
				"tgt_id":    p.pair[1],
				"source_id": p.data.SourceID,
				"file_path": p.data.FilePath,
			},
		}
	}

	vecErr := m.vectors.Upsert(ctx, collection, records)
	if vecErr != nil {
		return fmt.Errorf("upsert relation vectors: %w", vecErr)
	}

	return nil
}

// deleteStaleVectors removes any previously stored vector record for the
// pair in either orientation, querying first so only existing ids are
// deleted.
func (m *RelationMerger) deleteStaleVectors(ctx context.Context, collection string, pair storage.Pair) error {
	candidates := []string{
		ids.ForRelation(pair[0], pair[1]),
		ids.ForRelation(pair[1], pair[0]),
	}

	hits, err := m.vectors.GetByIDs(ctx, collection, candidates)
	if err != nil {
		return fmt.Errorf("query stale relation vectors %v: %w", pair, err)
	}

	if len(hits) == 0 {
		return nil
	}

	stale := make([]string, len(hits))
	for i, h := range hits {
		stale[i] = h.ID
	}

	deleteErr := m.vectors.Delete(ctx, collection, stale)
	if deleteErr != nil {
		return fmt.Errorf("delete stale relation vectors %v: %w", pair, deleteErr)
	}

	return nil
}

// filterRelationsBySourceWindow drops incoming relations whose source
// chunk is neither inside the limited window nor pre-existing.
func filterRelationsBySourceWindow(incoming []llm.Relation, limited, existing []string) []llm.Relation {
	allowed := toSet(limited)
	for id := range toSet(existing) {
		allowed[id] = struct{}{}
	}

	out := incoming[:0]

	for _, r := range incoming {
		if _, ok := allowed[r.SourceChunkID]; ok {
			out = append(out, r)
		}
	}

	return out
}

// mergeKeywords unions the existing keywords (comma-delimited, possibly
// <SEP>-joined across merges) with the incoming relations' keywords,
// deduplicates, sorts, and comma-joins.
func mergeKeywords(existing string, incoming []llm.Relation) string {
	var all []string

	for _, part := range splitSep(existing) {
		all = append(all, splitKeywords(part)...)
	}

	for _, r := range incoming {
		all = append(all, splitKeywords(r.Keywords)...)
	}

	all = dedupe(all)
	sort.Strings(all)

	return strings.Join(all, ",")
}

// splitKeywords splits a comma-delimited keyword string, trimming spaces
// and dropping empties.
func splitKeywords(s string) []string {
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	out := parts[:0]

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}

// sortedRelationDescriptions returns the incoming descriptions ordered by
// (timestamp asc, length desc), empties dropped.
func sortedRelationDescriptions(incoming []llm.Relation) []string {
	relations := make([]llm.Relation, 0, len(incoming))

	for _, r := range incoming {
		if r.Description != "" {
			relations = append(relations, r)
		}
	}

	sort.SliceStable(relations, func(i, j int) bool {
		if relations[i].Timestamp != relations[j].Timestamp {
			return relations[i].Timestamp < relations[j].Timestamp
		}

		return len(relations[i].Description) > len(relations[j].Description)
	})

	out := make([]string, len(relations))
	for i, r := range relations {
		out[i] = r.Description
	}

	return out
}

// entityFilePaths collects the non-empty file paths of incoming entities
// in order.
func entityFilePaths(incoming []llm.Entity) []string {
	var paths []string

	for _, e := range incoming {
		if e.FilePath != "" {
			paths = append(paths, e.FilePath)
		}
	}

	return paths
}

// relationFilePaths collects the non-empty file paths of incoming
// relations in order.
func relationFilePaths(incoming []llm.Relation) []string {
	var paths []string

	for _, r := range incoming {
		if r.FilePath != "" {
			paths = append(paths, r.FilePath)
		}
	}

	return paths
}
