package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".lightrag"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for settings.
const envPrefix = "LIGHTRAG"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// Load reads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func Load(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("workspace", DefaultWorkspace)
	viperCfg.SetDefault("working_dir", DefaultWorkingDir)

	viperCfg.SetDefault("chunking.token_size", DefaultChunkTokenSize)
	viperCfg.SetDefault("chunking.overlap_token_size", DefaultChunkOverlap)
	viperCfg.SetDefault("chunking.encoding", DefaultTokenizerEnc)

	viperCfg.SetDefault("merge.summary_context_size", DefaultSummaryContext)
	viperCfg.SetDefault("merge.summary_max_tokens", DefaultSummaryMaxTokens)
	viperCfg.SetDefault("merge.summary_length_recommended", DefaultSummaryLength)
	viperCfg.SetDefault("merge.force_llm_summary_on_merge", DefaultForceLLMSummary)
	viperCfg.SetDefault("merge.max_source_ids_per_entity", DefaultMaxSourceIDs)
	viperCfg.SetDefault("merge.max_source_ids_per_relation", DefaultMaxSourceIDs)
	viperCfg.SetDefault("merge.source_ids_limit_method", DefaultLimitMethod)
	viperCfg.SetDefault("merge.max_file_paths", DefaultMaxFilePaths)

	viperCfg.SetDefault("llm.model", DefaultLLMModel)
	viperCfg.SetDefault("llm.entity_types", []string{})

	viperCfg.SetDefault("embedding.model", DefaultEmbeddingModel)
	viperCfg.SetDefault("embedding.dimension", DefaultEmbeddingDim)

	viperCfg.SetDefault("pipeline.chunk_concurrency", DefaultChunkConcurrency)

	viperCfg.SetDefault("queue.max_retries", DefaultQueueMaxRetries)
	viperCfg.SetDefault("queue.poll_interval", DefaultQueuePoll)

	viperCfg.SetDefault("storage.kv_backend", DefaultKVBackend)
	viperCfg.SetDefault("storage.vector_backend", DefaultVectorBackend)
	viperCfg.SetDefault("storage.redis.addr", DefaultRedisAddr)
	viperCfg.SetDefault("storage.qdrant.host", "localhost")
	viperCfg.SetDefault("storage.qdrant.port", DefaultQdrantPort)

	viperCfg.SetDefault("log.level", DefaultLogLevel)
	viperCfg.SetDefault("log.format", DefaultLogFormat)
}
