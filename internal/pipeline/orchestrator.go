package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/lightrag-go/lightrag/internal/chunker"
	"github.com/lightrag-go/lightrag/internal/ids"
	"github.com/lightrag-go/lightrag/internal/llm"
	"github.com/lightrag-go/lightrag/internal/merge"
	"github.com/lightrag-go/lightrag/internal/storage"
)

// tracerName is the fallback OTel tracer name for ingestion spans.
const tracerName = "lightrag"

// defaultChunkConcurrency bounds parallel chunk processing when the
// config leaves it unset.
const defaultChunkConcurrency = 4

// OrchestratorConfig wires the orchestrator's collaborators.
type OrchestratorConfig struct {
	Chunker   *chunker.Chunker
	Processor *ChunkProcessor
	Entities  *merge.EntityMerger
	Relations *merge.RelationMerger
	Index     *merge.IndexUpdater

	TextChunks storage.KVStore[storage.ChunkRecord]
	FullDocs   storage.KVStore[storage.DocRecord]
	Vectors    storage.VectorStore
	Embedder   llm.EmbeddingClient

	// Flush lists every store to flush at the Persisting stage.
	Flush []storage.Flusher

	// Concurrency bounds parallel chunk processing.
	Concurrency int

	Bus    *Bus
	Logger *slog.Logger

	// Tracer is the OTel tracer for ingestion spans.
	// When nil, falls back to otel.Tracer("lightrag").
	Tracer trace.Tracer
}

// Orchestrator drives a full document ingestion: chunk, extract, merge,
// index, persist.
type Orchestrator struct {
	cfg    OrchestratorConfig
	logger *slog.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultChunkConcurrency
	}

	return &Orchestrator{cfg: cfg, logger: cfg.Logger}
}

func (o *Orchestrator) tracer() trace.Tracer {
	if o.cfg.Tracer != nil {
		return o.cfg.Tracer
	}

	return otel.Tracer(tracerName)
}

// publish emits a marker-only progress event.
func (o *Orchestrator) publish(docID string, stage Stage) {
	o.publishCount(docID, stage, 0, 0)
}

// publishCount emits a progress event with countable progress.
func (o *Orchestrator) publishCount(docID string, stage Stage, current, total int) {
	if o.cfg.Bus == nil {
		return
	}

	o.cfg.Bus.Publish(Event{DocID: docID, Stage: stage, Current: current, Total: total})
}

// Insert ingests one document and returns its id. An empty docID is
// derived from the content hash. A document whose id already exists in
// full_docs is skipped without events.
func (o *Orchestrator) Insert(ctx context.Context, content, filePath, docID string) (string, error) {
	if docID == "" {
		docID = ids.ForDocument(content)
	}

	ctx, span := o.tracer().Start(ctx, "lightrag.insert",
		trace.WithAttributes(attribute.String("doc.id", docID)))
	defer span.End()

	_, exists, err := o.cfg.FullDocs.GetByID(ctx, docID)
	if err != nil {
		return "", fmt.Errorf("check full_docs for %s: %w", docID, err)
	}

	if exists {
		o.logger.Info("document already ingested, skipping", "doc_id", docID)

		return docID, nil
	}

	o.publish(docID, StageDocumentChunking)

	chunks, err := o.cfg.Chunker.Chunk(content, docID, filePath, "", false)
	if err != nil {
		return "", fmt.Errorf("chunk document %s: %w", docID, err)
	}

	span.SetAttributes(attribute.Int("doc.chunks", len(chunks)))

	o.publish(docID, StageStoringTextChunks)

	err = o.storeTextChunks(ctx, chunks)
	if err != nil {
		return "", err
	}

	results := o.processChunks(ctx, docID, chunks)

	o.publish(docID, StageStoringChunkVectors)

	err = o.storeChunkVectors(ctx, chunks, results)
	if err != nil {
		return "", err
	}

	entityGroups, relationGroups := groupExtractions(results)

	o.publishCount(docID, StageMergingEntities, 0, len(entityGroups))

	entityNames, err := o.cfg.Entities.MergeAll(ctx, entityGroups, func(current, total int) {
		o.publishCount(docID, StageMergingEntities, current, total)
	})
	if err != nil {
		return "", fmt.Errorf("merge entities for %s: %w", docID, err)
	}

	o.publishCount(docID, StageMergingRelations, 0, len(relationGroups))

	relResult, err := o.cfg.Relations.MergeAll(ctx, relationGroups, func(current, total int) {
		o.publishCount(docID, StageMergingRelations, current, total)
	})
	if err != nil {
		return "", fmt.Errorf("merge relations for %s: %w", docID, err)
	}

	o.publish(docID, StageUpdatingStorage)

	allNames := append(entityNames, relResult.Endpoints...)

	err = o.cfg.Index.Update(ctx, docID, allNames, relResult.Pairs)
	if err != nil {
		return "", err
	}

	o.publish(docID, StageStoringFullDocument)

	err = o.cfg.FullDocs.Upsert(ctx, map[string]storage.DocRecord{docID: {Content: content}})
	if err != nil {
		return "", fmt.Errorf("persist full document %s: %w", docID, err)
	}

	o.publish(docID, StagePersisting)

	err = o.flushAll(ctx)
	if err != nil {
		return "", err
	}

	o.publish(docID, StageCompleted)
	o.logger.Info("document ingested",
		"doc_id", docID, "chunks", len(chunks),
		"entities", len(entityNames), "relations", len(relResult.Pairs))

	return docID, nil
}

// storeTextChunks persists every chunk record into text_chunks.
func (o *Orchestrator) storeTextChunks(ctx context.Context, chunks []chunker.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	records := make(map[string]storage.ChunkRecord, len(chunks))

	for _, c := range chunks {
		records[c.ID] = storage.ChunkRecord{
			Content:         c.Content,
			Tokens:          c.Tokens,
			ChunkOrderIndex: c.OrderIndex,
			FullDocID:       c.DocID,
			FilePath:        c.FilePath,
		}
	}

	err := o.cfg.TextChunks.Upsert(ctx, records)
	if err != nil {
		return fmt.Errorf("persist text chunks: %w", err)
	}

	return nil
}

// processChunks runs the chunk processor across a bounded worker pool.
// A failed chunk is logged and dropped; the rest of the document still
// proceeds.
func (o *Orchestrator) processChunks(ctx context.Context, docID string, chunks []chunker.Chunk) []ChunkResult {
	jobs := make(chan chunker.Chunk, len(chunks))
	results := make(chan ChunkResult, len(chunks))

	workers := min(o.cfg.Concurrency, len(chunks))

	var (
		wg   sync.WaitGroup
		done int
		mu   sync.Mutex
	)

	wg.Add(workers)

	for range workers {
		go func() {
			defer wg.Done()

			for chunk := range jobs {
				result, err := o.cfg.Processor.Process(ctx, chunk)

				mu.Lock()
				done++
				current := done
				mu.Unlock()

				if err != nil {
					o.logger.Error("chunk processing failed, skipping chunk",
						"doc_id", docID, "chunk_id", chunk.ID, "err", err)
				} else {
					results <- result
				}

				o.publishCount(docID, StageProcessingChunks, current, len(chunks))
			}
		}()
	}

	for _, chunk := range chunks {
		jobs <- chunk
	}

	close(jobs)
	wg.Wait()
	close(results)

	ordered := make(map[string]ChunkResult, len(chunks))
	for r := range results {
		ordered[r.ChunkID] = r
	}

	out := make([]ChunkResult, 0, len(ordered))

	for _, chunk := range chunks {
		if r, ok := ordered[chunk.ID]; ok {
			out = append(out, r)
		}
	}

	return out
}

// storeChunkVectors upserts the chunk embeddings in one batch.
func (o *Orchestrator) storeChunkVectors(ctx context.Context, chunks []chunker.Chunk, results []ChunkResult) error {
	if len(results) == 0 {
		return nil
	}

	byID := make(map[string]chunker.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	records := make([]storage.VectorRecord, 0, len(results))

	for _, r := range results {
		chunk := byID[r.ChunkID]

		records = append(records, storage.VectorRecord{
			ID:      r.ChunkID,
			Vector:  r.Embedding,
			Content: chunk.Content,
			Metadata: map[string]string{
				"content":     chunk.Content,
				"full_doc_id": chunk.DocID,
				"file_path":   chunk.FilePath,
			},
		})
	}

	collection := storage.CollectionName(storage.CollectionChunks, o.cfg.Embedder.Dimension())

	err := o.cfg.Vectors.Upsert(ctx, collection, records)
	if err != nil {
		return fmt.Errorf("upsert chunk vectors: %w", err)
	}

	return nil
}

// flushAll flushes every registered store concurrently.
func (o *Orchestrator) flushAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, store := range o.cfg.Flush {
		g.Go(func() error {
			return store.IndexDoneCallback(ctx)
		})
	}

	err := g.Wait()
	if err != nil {
		return fmt.Errorf("flush stores: %w", err)
	}

	return nil
}

// groupExtractions collects entities by name and relations by sorted
// endpoint pair across all chunk results.
func groupExtractions(results []ChunkResult) (map[string][]llm.Entity, map[storage.Pair][]llm.Relation) {
	entityGroups := make(map[string][]llm.Entity)
	relationGroups := make(map[storage.Pair][]llm.Relation)

	for _, r := range results {
		for _, e := range r.Entities {
			entityGroups[e.Name] = append(entityGroups[e.Name], e)
		}

		for _, rel := range r.Relations {
			pair := storage.Pair{rel.SourceName, rel.TargetName}
			if pair[0] > pair[1] {
				pair[0], pair[1] = pair[1], pair[0]
			}

			relationGroups[pair] = append(relationGroups[pair], rel)
		}
	}

	return entityGroups, relationGroups
}
