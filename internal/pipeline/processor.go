package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lightrag-go/lightrag/internal/chunker"
	"github.com/lightrag-go/lightrag/internal/llm"
	"github.com/lightrag-go/lightrag/internal/storage"
)

// defaultExtractionTemperature is the sampling temperature used for
// entity/relation extraction when the config leaves it unset.
const defaultExtractionTemperature = 0.3

// ProcessorConfig tunes per-chunk extraction.
type ProcessorConfig struct {
	// EntityTypes is the allowed entity type set passed to extraction.
	EntityTypes []string
	// Temperature overrides the extraction sampling temperature.
	Temperature float32
	// MaxEntities caps extracted entities per chunk. Zero means unlimited.
	MaxEntities int
	// MaxRelations caps extracted relations per chunk. Zero means unlimited.
	MaxRelations int
}

// ChunkResult is the output of processing one chunk: its embedding and
// the entities and relations extracted from it.
type ChunkResult struct {
	ChunkID   string
	Embedding []float32
	Entities  []llm.Entity
	Relations []llm.Relation
}

// ChunkProcessor embeds a chunk and extracts its entities and relations,
// backed by a content-keyed cache so identical chunks across documents
// never hit the model twice.
type ChunkProcessor struct {
	cache    storage.KVStore[storage.LLMCacheRecord]
	client   llm.Client
	embedder llm.EmbeddingClient
	cfg      ProcessorConfig
	logger   *slog.Logger
}

// NewChunkProcessor creates a chunk processor.
func NewChunkProcessor(
	cache storage.KVStore[storage.LLMCacheRecord],
	client llm.Client,
	embedder llm.EmbeddingClient,
	cfg ProcessorConfig,
	logger *slog.Logger,
) *ChunkProcessor {
	if logger == nil {
		logger = slog.Default()
	}

	return &ChunkProcessor{
		cache:    cache,
		client:   client,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
	}
}

// Process returns the ChunkResult for the chunk, from cache when the same
// content was processed before. The cache is flushed to durable storage
// before returning so partial progress survives a crash.
func (p *ChunkProcessor) Process(ctx context.Context, chunk chunker.Chunk) (ChunkResult, error) {
	record, ok, err := p.cache.GetByID(ctx, chunk.ID)
	if err != nil {
		return ChunkResult{}, fmt.Errorf("cache lookup for %s: %w", chunk.ID, err)
	}

	if ok {
		p.logger.Debug("chunk cache hit", "chunk_id", chunk.ID)

		return p.restamp(record, chunk), nil
	}

	embedding, err := p.embedder.Embed(ctx, chunk.Content)
	if err != nil {
		return ChunkResult{}, fmt.Errorf("embed chunk %s: %w", chunk.ID, err)
	}

	temperature := p.cfg.Temperature
	if temperature == 0 {
		temperature = defaultExtractionTemperature
	}

	extraction, err := p.client.ExtractEntitiesAndRelations(
		ctx, chunk.Content, p.cfg.EntityTypes, temperature, p.cfg.MaxEntities, p.cfg.MaxRelations)
	if err != nil {
		return ChunkResult{}, fmt.Errorf("extract chunk %s: %w", chunk.ID, err)
	}

	record = storage.LLMCacheRecord{
		Embedding: embedding,
		Entities:  extraction.Entities,
		Relations: extraction.Relations,
	}

	cacheErr := p.cache.Upsert(ctx, map[string]storage.LLMCacheRecord{chunk.ID: record})
	if cacheErr != nil {
		return ChunkResult{}, fmt.Errorf("cache extraction for %s: %w", chunk.ID, cacheErr)
	}

	flushErr := p.cache.IndexDoneCallback(ctx)
	if flushErr != nil {
		return ChunkResult{}, fmt.Errorf("flush extraction cache: %w", flushErr)
	}

	return p.restamp(record, chunk), nil
}

// restamp attaches the current chunk's identity to the cached entities
// and relations and materialises the ChunkResult.
func (p *ChunkProcessor) restamp(record storage.LLMCacheRecord, chunk chunker.Chunk) ChunkResult {
	now := time.Now().Unix()

	entities := make([]llm.Entity, len(record.Entities))
	for i, e := range record.Entities {
		e.SourceID = chunk.ID
		e.FilePath = chunk.FilePath
		e.Timestamp = now
		entities[i] = e
	}

	relations := make([]llm.Relation, len(record.Relations))
	for i, r := range record.Relations {
		r.SourceChunkID = chunk.ID
		r.FilePath = chunk.FilePath
		r.Timestamp = now
		relations[i] = r
	}

	return ChunkResult{
		ChunkID:   chunk.ID,
		Embedding: record.Embedding,
		Entities:  entities,
		Relations: relations,
	}
}
