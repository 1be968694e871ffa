// Package config loads and validates the application configuration from
// file, environment, and defaults.
package config

import "errors"

// Config is the top-level configuration struct.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	// Workspace namespaces all persisted state (vector point ids, Redis
	// keys) so multiple deployments can share backing services.
	Workspace string `mapstructure:"workspace"`

	// WorkingDir holds the JSON state files and the task queue file.
	WorkingDir string `mapstructure:"working_dir"`

	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Merge     MergeConfig     `mapstructure:"merge"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Log       LogConfig       `mapstructure:"log"`
}

// ChunkingConfig holds document chunking knobs.
type ChunkingConfig struct {
	TokenSize        int    `mapstructure:"token_size"`
	OverlapTokenSize int    `mapstructure:"overlap_token_size"`
	Encoding         string `mapstructure:"encoding"`
}

// MergeConfig holds entity/relation merge knobs.
type MergeConfig struct {
	SummaryContextSize       int    `mapstructure:"summary_context_size"`
	SummaryMaxTokens         int    `mapstructure:"summary_max_tokens"`
	SummaryLengthRecommended int    `mapstructure:"summary_length_recommended"`
	ForceLLMSummaryOnMerge   int    `mapstructure:"force_llm_summary_on_merge"`
	MaxSourceIDsPerEntity    int    `mapstructure:"max_source_ids_per_entity"`
	MaxSourceIDsPerRelation  int    `mapstructure:"max_source_ids_per_relation"`
	SourceIDsLimitMethod     string `mapstructure:"source_ids_limit_method"`
	MaxFilePaths             int    `mapstructure:"max_file_paths"`
}

// LLMConfig holds the completion model settings.
type LLMConfig struct {
	APIKey       string   `mapstructure:"api_key"`
	BaseURL      string   `mapstructure:"base_url"`
	Model        string   `mapstructure:"model"`
	EntityTypes  []string `mapstructure:"entity_types"`
	Temperature  float32  `mapstructure:"temperature"`
	MaxEntities  int      `mapstructure:"max_entities"`
	MaxRelations int      `mapstructure:"max_relations"`
}

// EmbeddingConfig holds the embedding model settings.
type EmbeddingConfig struct {
	Model     string `mapstructure:"model"`
	Dimension int    `mapstructure:"dimension"`
}

// PipelineConfig holds ingestion concurrency knobs.
type PipelineConfig struct {
	ChunkConcurrency int `mapstructure:"chunk_concurrency"`
}

// QueueConfig holds task queue knobs.
type QueueConfig struct {
	MaxRetries   int    `mapstructure:"max_retries"`
	PollInterval string `mapstructure:"poll_interval"`
}

// StorageConfig selects the key-value and vector backends.
type StorageConfig struct {
	// KVBackend is "json" (file-backed) or "redis".
	KVBackend string `mapstructure:"kv_backend"`
	// VectorBackend is "json" (file-backed) or "qdrant".
	VectorBackend string `mapstructure:"vector_backend"`

	Redis  RedisConfig  `mapstructure:"redis"`
	Qdrant QdrantConfig `mapstructure:"qdrant"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
	UseTLS bool   `mapstructure:"use_tls"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `mapstructure:"level"`
	// Format is text or json.
	Format string `mapstructure:"format"`
}

// Defaults applied when neither file nor environment provides a value.
const (
	DefaultWorkspace        = "default"
	DefaultWorkingDir       = "./lightrag"
	DefaultChunkTokenSize   = 1200
	DefaultChunkOverlap     = 100
	DefaultTokenizerEnc     = "cl100k_base"
	DefaultSummaryContext   = 4000
	DefaultSummaryMaxTokens = 1200
	DefaultSummaryLength    = 500
	DefaultForceLLMSummary  = 6
	DefaultMaxSourceIDs     = 60
	DefaultLimitMethod      = "FIFO"
	DefaultMaxFilePaths     = 30
	DefaultLLMModel         = "gpt-4o-mini"
	DefaultEmbeddingModel   = "text-embedding-3-small"
	DefaultEmbeddingDim     = 1536
	DefaultChunkConcurrency = 4
	DefaultQueueMaxRetries  = 3
	DefaultQueuePoll        = "5s"
	DefaultKVBackend        = "json"
	DefaultVectorBackend    = "json"
	DefaultQdrantPort       = 6334
	DefaultRedisAddr        = "localhost:6379"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

// Sentinel errors for configuration validation.
var (
	// ErrInvalidChunking indicates the chunk window is malformed.
	ErrInvalidChunking = errors.New("chunk overlap must satisfy 0 <= overlap < token size")

	// ErrInvalidLimitMethod indicates an unknown source-ids limit method.
	ErrInvalidLimitMethod = errors.New("source_ids_limit_method must be FIFO or KEEP")

	// ErrInvalidDimension indicates a non-positive embedding dimension.
	ErrInvalidDimension = errors.New("embedding dimension must be positive")

	// ErrInvalidBackend indicates an unknown storage backend name.
	ErrInvalidBackend = errors.New("unknown storage backend")
)

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Chunking.TokenSize <= 0 || c.Chunking.OverlapTokenSize < 0 ||
		c.Chunking.OverlapTokenSize >= c.Chunking.TokenSize {
		return ErrInvalidChunking
	}

	if c.Merge.SourceIDsLimitMethod != "FIFO" && c.Merge.SourceIDsLimitMethod != "KEEP" {
		return ErrInvalidLimitMethod
	}

	if c.Embedding.Dimension <= 0 {
		return ErrInvalidDimension
	}

	if c.Storage.KVBackend != "json" && c.Storage.KVBackend != "redis" {
		return ErrInvalidBackend
	}

	if c.Storage.VectorBackend != "json" && c.Storage.VectorBackend != "qdrant" {
		return ErrInvalidBackend
	}

	return nil
}
