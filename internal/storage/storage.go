// Package storage defines the key-value, graph, and vector store contracts
// consumed by the ingestion pipeline, plus the JSON-file default
// implementations that persist into the working directory.
package storage

import (
	"context"
	"fmt"
)

// Named key-value indices. Each maps to one JSON file in the working dir.
const (
	IndexTextChunks     = "text_chunks"
	IndexFullDocs       = "full_docs"
	IndexFullEntities   = "full_entities"
	IndexFullRelations  = "full_relations"
	IndexEntityChunks   = "entity_chunks"
	IndexRelationChunks = "relation_chunks"
	IndexLLMCache       = "llm_cache"
)

// Vector collection base names.
const (
	CollectionChunks        = "chunks"
	CollectionEntities      = "entities"
	CollectionRelationships = "relationships"
)

// collectionNameFormat is the vector collection naming scheme. Retained
// verbatim for interoperability with state persisted by other runtimes.
const collectionNameFormat = "lightrag_vdb_dotnet_%s_%dd"

// CollectionName derives the full vector collection name for a base name
// and embedding dimension.
func CollectionName(base string, dim int) string {
	return fmt.Sprintf(collectionNameFormat, base, dim)
}

// KVStore is a named key-value index holding records of type V.
// Implementations serialise access internally; concurrent readers are
// allowed, writers are exclusive.
type KVStore[V any] interface {
	// GetByID returns the record for id, reporting whether it exists.
	GetByID(ctx context.Context, id string) (V, bool, error)

	// GetByIDs returns the records found for ids, keyed by id. Missing
	// ids are simply absent from the result.
	GetByIDs(ctx context.Context, ids []string) (map[string]V, error)

	// FilterKeys returns the subset of ids that are NOT present.
	FilterKeys(ctx context.Context, ids []string) ([]string, error)

	// Upsert inserts or replaces the given records.
	Upsert(ctx context.Context, records map[string]V) error

	// Delete removes the given ids. Missing ids are ignored.
	Delete(ctx context.Context, ids []string) error

	// IsEmpty reports whether the index holds no records.
	IsEmpty(ctx context.Context) (bool, error)

	// IndexDoneCallback flushes pending writes to durable storage.
	IndexDoneCallback(ctx context.Context) error

	// Drop removes all records and the backing storage.
	Drop(ctx context.Context) error
}

// Flusher is the flush-only facet shared by every store kind. The
// orchestrator flushes all stores through it at the end of an ingestion.
type Flusher interface {
	IndexDoneCallback(ctx context.Context) error
}

// NodeData is the persisted property set of a graph entity node.
// List-typed fields are joined with the <SEP> separator.
type NodeData struct {
	EntityID    string `json:"entity_id"`
	EntityType  string `json:"entity_type"`
	Description string `json:"description"`
	SourceID    string `json:"source_id"`
	FilePath    string `json:"file_path"`
	CreatedAt   int64  `json:"created_at"`
	Truncate    string `json:"truncate"`
}

// EdgeData is the persisted property set of a graph relation edge.
type EdgeData struct {
	Weight      float64 `json:"weight"`
	Description string  `json:"description"`
	Keywords    string  `json:"keywords"`
	SourceID    string  `json:"source_id"`
	FilePath    string  `json:"file_path"`
	CreatedAt   int64   `json:"created_at"`
	Truncate    string  `json:"truncate"`
}

// Pair is an undirected node pair. Callers store pairs in sorted
// orientation; stores tolerate either orientation on lookup.
type Pair [2]string

// GraphStore is the knowledge-graph collaborator. Edges are undirected.
type GraphStore interface {
	HasNode(ctx context.Context, id string) (bool, error)
	GetNode(ctx context.Context, id string) (NodeData, bool, error)
	UpsertNode(ctx context.Context, id string, data NodeData) error

	HasEdge(ctx context.Context, source, target string) (bool, error)
	GetEdge(ctx context.Context, source, target string) (EdgeData, bool, error)
	UpsertEdge(ctx context.Context, source, target string, data EdgeData) error

	GetNodesBatch(ctx context.Context, ids []string) (map[string]NodeData, error)
	GetNodeDegreesBatch(ctx context.Context, ids []string) (map[string]int, error)
	GetNodesEdgesBatch(ctx context.Context, ids []string) (map[string][]Pair, error)
	GetEdgesBatch(ctx context.Context, pairs []Pair) (map[Pair]EdgeData, error)

	// IndexDoneCallback flushes pending writes to durable storage.
	IndexDoneCallback(ctx context.Context) error
}

// VectorRecord is one point upserted into a vector collection.
type VectorRecord struct {
	// ID is the application-level record id (e.g. "ent-<md5>").
	ID string
	// Vector is the embedding; its dimension matches the collection.
	Vector []float32
	// Content is the raw text the vector was computed from.
	Content string
	// Metadata carries application fields stored alongside the point.
	Metadata map[string]string
}

// VectorHit is one query or lookup result from a vector collection.
type VectorHit struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]string
}

// VectorStore is the vector-database collaborator.
type VectorStore interface {
	// Upsert inserts or replaces records in the collection.
	Upsert(ctx context.Context, collection string, records []VectorRecord) error

	// Query returns up to topK hits with similarity >= threshold,
	// most similar first.
	Query(ctx context.Context, collection string, vector []float32, topK int, threshold float32) ([]VectorHit, error)

	// QueryText embeds text and queries with the resulting vector.
	QueryText(ctx context.Context, collection, text string, topK int, threshold float32) ([]VectorHit, error)

	// Delete removes the given record ids. Missing ids are ignored.
	Delete(ctx context.Context, collection string, ids []string) error

	// GetByIDs returns the stored records for the given ids, skipping
	// ids that do not exist.
	GetByIDs(ctx context.Context, collection string, ids []string) ([]VectorHit, error)

	// IndexDoneCallback flushes pending writes to durable storage.
	IndexDoneCallback(ctx context.Context) error
}
