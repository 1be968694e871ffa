// Package commands implements CLI command handlers for lightrag.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lightrag-go/lightrag/internal/chunker"
	"github.com/lightrag-go/lightrag/internal/config"
	"github.com/lightrag-go/lightrag/internal/llm"
	"github.com/lightrag-go/lightrag/internal/merge"
	"github.com/lightrag-go/lightrag/internal/observability"
	"github.com/lightrag-go/lightrag/internal/pipeline"
	"github.com/lightrag-go/lightrag/internal/storage"
	"github.com/lightrag-go/lightrag/internal/storage/qvec"
	"github.com/lightrag-go/lightrag/internal/storage/redkv"
	"github.com/lightrag-go/lightrag/internal/taskqueue"
	"github.com/lightrag-go/lightrag/internal/tokenizer"
)

// workingDirPerm is the permission mode for the working directory.
const workingDirPerm = 0o755

// Services holds the assembled application graph for one CLI invocation.
type Services struct {
	Config       *config.Config
	Logger       *slog.Logger
	Queue        *taskqueue.Queue
	Bus          *pipeline.Bus
	Orchestrator *pipeline.Orchestrator
	Processor    *taskqueue.Processor

	closers []func() error
}

// Close releases all backing connections.
func (s *Services) Close() {
	for _, closeFn := range s.closers {
		err := closeFn()
		if err != nil {
			s.Logger.Warn("failed to close resource", "err", err)
		}
	}
}

// kvStores bundles one KVStore per named index.
type kvStores struct {
	textChunks     storage.KVStore[storage.ChunkRecord]
	fullDocs       storage.KVStore[storage.DocRecord]
	fullEntities   storage.KVStore[storage.DocEntityIndexRecord]
	fullRelations  storage.KVStore[storage.DocRelationIndexRecord]
	entityChunks   storage.KVStore[storage.ChunkIDIndexRecord]
	relationChunks storage.KVStore[storage.ChunkIDIndexRecord]
	llmCache       storage.KVStore[storage.LLMCacheRecord]
}

func (k *kvStores) flushers() []storage.Flusher {
	return []storage.Flusher{
		k.textChunks, k.fullDocs, k.fullEntities, k.fullRelations,
		k.entityChunks, k.relationChunks, k.llmCache,
	}
}

// buildServices assembles the full pipeline from configuration.
func buildServices(configPath, logLevel string) (*Services, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if logLevel == "" {
		logLevel = cfg.Log.Level
	}

	logger, err := observability.NewLogger(os.Stderr, logLevel, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	mkdirErr := os.MkdirAll(cfg.WorkingDir, workingDirPerm)
	if mkdirErr != nil {
		return nil, fmt.Errorf("create working dir: %w", mkdirErr)
	}

	tok, err := tokenizer.NewTiktoken(cfg.Chunking.Encoding)
	if err != nil {
		return nil, err
	}

	chk, err := chunker.New(tok, cfg.Chunking.TokenSize, cfg.Chunking.OverlapTokenSize)
	if err != nil {
		return nil, err
	}

	client := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:             cfg.LLM.APIKey,
		BaseURL:            cfg.LLM.BaseURL,
		Model:              cfg.LLM.Model,
		EmbeddingModel:     cfg.Embedding.Model,
		EmbeddingDimension: cfg.Embedding.Dimension,
	})

	services := &Services{Config: cfg, Logger: logger}

	kv, err := buildKVStores(cfg, services)
	if err != nil {
		return nil, err
	}

	vectors, err := buildVectorStore(cfg, client, logger, services)
	if err != nil {
		return nil, err
	}

	mergeCfg := merge.Config{
		SummaryContextSize:       cfg.Merge.SummaryContextSize,
		SummaryMaxTokens:         cfg.Merge.SummaryMaxTokens,
		SummaryLengthRecommended: cfg.Merge.SummaryLengthRecommended,
		ForceLLMSummaryOnMerge:   cfg.Merge.ForceLLMSummaryOnMerge,
		MaxSourceIDsPerEntity:    cfg.Merge.MaxSourceIDsPerEntity,
		MaxSourceIDsPerRelation:  cfg.Merge.MaxSourceIDsPerRelation,
		SourceIDsLimitMethod:     merge.Method(cfg.Merge.SourceIDsLimitMethod),
		MaxFilePaths:             cfg.Merge.MaxFilePaths,
	}

	graph := storage.NewJSONGraphStore(cfg.WorkingDir)
	descriptions := merge.NewDescriptionMerger(tok, client, mergeCfg, logger)
	entities := merge.NewEntityMerger(graph, vectors, kv.entityChunks, client, descriptions, mergeCfg, logger)
	relations := merge.NewRelationMerger(graph, vectors, kv.relationChunks, client, descriptions, mergeCfg, logger)
	index := merge.NewIndexUpdater(kv.fullEntities, kv.fullRelations)

	processor := pipeline.NewChunkProcessor(kv.llmCache, client, client, pipeline.ProcessorConfig{
		EntityTypes:  cfg.LLM.EntityTypes,
		Temperature:  cfg.LLM.Temperature,
		MaxEntities:  cfg.LLM.MaxEntities,
		MaxRelations: cfg.LLM.MaxRelations,
	}, logger)

	services.Bus = pipeline.NewBus()

	flush := append(kv.flushers(), graph, vectors)

	services.Orchestrator = pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
		Chunker:     chk,
		Processor:   processor,
		Entities:    entities,
		Relations:   relations,
		Index:       index,
		TextChunks:  kv.textChunks,
		FullDocs:    kv.fullDocs,
		Vectors:     vectors,
		Embedder:    client,
		Flush:       flush,
		Concurrency: cfg.Pipeline.ChunkConcurrency,
		Bus:         services.Bus,
		Logger:      logger,
		Tracer:      observability.Tracer(),
	})

	services.Queue = taskqueue.NewQueue(
		taskqueue.NewStateStore(cfg.WorkingDir, logger), cfg.Queue.MaxRetries, logger)

	pollInterval, err := time.ParseDuration(cfg.Queue.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("parse queue poll interval: %w", err)
	}

	services.Processor = taskqueue.NewProcessor(
		services.Queue, services.Orchestrator, services.Bus, pollInterval, logger)

	return services, nil
}

// buildKVStores selects the key-value backend from configuration.
func buildKVStores(cfg *config.Config, services *Services) (*kvStores, error) {
	switch cfg.Storage.KVBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})

		services.closers = append(services.closers, client.Close)

		ws := cfg.Workspace

		return &kvStores{
			textChunks:     redkv.New[storage.ChunkRecord](client, ws, storage.IndexTextChunks),
			fullDocs:       redkv.New[storage.DocRecord](client, ws, storage.IndexFullDocs),
			fullEntities:   redkv.New[storage.DocEntityIndexRecord](client, ws, storage.IndexFullEntities),
			fullRelations:  redkv.New[storage.DocRelationIndexRecord](client, ws, storage.IndexFullRelations),
			entityChunks:   redkv.New[storage.ChunkIDIndexRecord](client, ws, storage.IndexEntityChunks),
			relationChunks: redkv.New[storage.ChunkIDIndexRecord](client, ws, storage.IndexRelationChunks),
			llmCache:       redkv.New[storage.LLMCacheRecord](client, ws, storage.IndexLLMCache),
		}, nil
	default:
		dir := cfg.WorkingDir

		return &kvStores{
			textChunks:     storage.NewJSONKVStore[storage.ChunkRecord](dir, storage.IndexTextChunks),
			fullDocs:       storage.NewJSONKVStore[storage.DocRecord](dir, storage.IndexFullDocs),
			fullEntities:   storage.NewJSONKVStore[storage.DocEntityIndexRecord](dir, storage.IndexFullEntities),
			fullRelations:  storage.NewJSONKVStore[storage.DocRelationIndexRecord](dir, storage.IndexFullRelations),
			entityChunks:   storage.NewJSONKVStore[storage.ChunkIDIndexRecord](dir, storage.IndexEntityChunks),
			relationChunks: storage.NewJSONKVStore[storage.ChunkIDIndexRecord](dir, storage.IndexRelationChunks),
			llmCache:       storage.NewJSONKVStore[storage.LLMCacheRecord](dir, storage.IndexLLMCache),
		}, nil
	}
}

// buildVectorStore selects the vector backend from configuration.
func buildVectorStore(cfg *config.Config, embedder llm.EmbeddingClient, logger *slog.Logger, services *Services) (storage.VectorStore, error) {
	switch cfg.Storage.VectorBackend {
	case "qdrant":
		store, err := qvec.New(qvec.Config{
			Host:      cfg.Storage.Qdrant.Host,
			Port:      cfg.Storage.Qdrant.Port,
			APIKey:    cfg.Storage.Qdrant.APIKey,
			UseTLS:    cfg.Storage.Qdrant.UseTLS,
			Workspace: cfg.Workspace,
			Dimension: cfg.Embedding.Dimension,
		}, embedder, logger)
		if err != nil {
			return nil, err
		}

		services.closers = append(services.closers, store.Close)

		return store, nil
	default:
		return storage.NewJSONVectorStore(cfg.WorkingDir, embedder), nil
	}
}
