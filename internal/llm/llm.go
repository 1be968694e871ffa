// Package llm defines the language-model and embedding collaborator
// contracts plus the entity/relation types produced by extraction.
package llm

import "context"

// UnknownEntityType is assigned when extraction produces no usable type.
const UnknownEntityType = "UNKNOWN"

// Entity is a named concept extracted from a chunk.
type Entity struct {
	// Name is the normalised entity name and the merge key.
	Name string `json:"name"`
	// Type is the entity type from the configured set, or UNKNOWN.
	Type string `json:"type"`
	// Description is the extracted description of the entity.
	Description string `json:"description"`
	// SourceID is the id of the chunk the entity was extracted from.
	SourceID string `json:"source_id"`
	// FilePath is the origin path of the source document.
	FilePath string `json:"file_path"`
	// Timestamp is the extraction time in unix seconds.
	Timestamp int64 `json:"timestamp"`
}

// Relation is an undirected association between two named entities.
type Relation struct {
	// SourceName and TargetName are the endpoint entity names.
	SourceName string `json:"source_name"`
	TargetName string `json:"target_name"`
	// Keywords is a comma-joined keyword list for the relation.
	Keywords string `json:"keywords"`
	// Description is the extracted description of the relation.
	Description string `json:"description"`
	// Weight is the relation strength; weights accumulate across merges.
	Weight float64 `json:"weight"`
	// SourceChunkID is the id of the chunk the relation was extracted from.
	SourceChunkID string `json:"source_chunk_id"`
	// FilePath is the origin path of the source document.
	FilePath string `json:"file_path"`
	// Timestamp is the extraction time in unix seconds.
	Timestamp int64 `json:"timestamp"`
}

// Extraction is the combined output of entity/relation extraction for one
// chunk of text.
type Extraction struct {
	Entities  []Entity  `json:"entities"`
	Relations []Relation `json:"relations"`
}

// SummaryKind identifies what a description summary describes.
type SummaryKind string

// Summary kinds.
const (
	SummaryKindEntity   SummaryKind = "Entity"
	SummaryKindRelation SummaryKind = "Relation"
)

// GenerateOptions tune a single completion call.
type GenerateOptions struct {
	// Temperature is the sampling temperature. Zero means provider default.
	Temperature float32
	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// Client is the language-model collaborator. Implementations own their own
// retry policy; the pipeline never retries individual calls.
type Client interface {
	// Generate returns the completion for the prompt.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// GenerateStream returns the completion as a sequence of text
	// fragments. The channel is closed when the completion ends; a
	// terminal error is delivered via the returned error channel.
	GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan string, <-chan error)

	// ExtractEntitiesAndRelations extracts typed entities and undirected
	// relations from text. Zero maxEntities/maxRelations means unlimited.
	ExtractEntitiesAndRelations(ctx context.Context, text string, entityTypes []string, temperature float32, maxEntities, maxRelations int) (Extraction, error)

	// Summarise condenses a set of descriptions of the named entity or
	// relation into a single description of roughly targetTokens tokens.
	Summarise(ctx context.Context, kind SummaryKind, name string, descriptions []string, targetTokens int) (string, error)
}

// EmbeddingClient is the embedding collaborator. All vectors share the
// fixed dimension reported by Dimension.
type EmbeddingClient interface {
	// Embed returns the embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension returns the vector dimension.
	Dimension() int
}
