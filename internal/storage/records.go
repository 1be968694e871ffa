package storage

import "github.com/lightrag-go/lightrag/internal/llm"

// ChunkRecord is the text_chunks value: one persisted chunk of a document.
type ChunkRecord struct {
	Content         string `json:"content"`
	Tokens          int    `json:"tokens"`
	ChunkOrderIndex int    `json:"chunk_order_index"`
	FullDocID       string `json:"full_doc_id"`
	FilePath        string `json:"file_path"`
}

// DocRecord is the full_docs value: the complete document content.
type DocRecord struct {
	Content string `json:"content"`
}

// LLMCacheRecord is the llm_cache value: the extraction output for one
// chunk, keyed by chunk id. The record is content-addressed and document
// independent, so the per-document fields of its entities and relations
// (source id, file path, timestamp) are stored zeroed and re-stamped on
// every cache hit.
type LLMCacheRecord struct {
	Embedding []float32      `json:"embedding"`
	Entities  []llm.Entity   `json:"entities"`
	Relations []llm.Relation `json:"relations"`
}

// ChunkIDIndexRecord is the entity_chunks / relation_chunks value: the
// unlimited, insertion-ordered, deduplicated chunk-id history for one
// entity name or relation pair. The graph's source_id property is a
// windowed view of this list.
type ChunkIDIndexRecord struct {
	ChunkIDs []string `json:"chunk_ids"`
	Count    int      `json:"count"`
}

// DocEntityIndexRecord is the full_entities value: the entity names
// produced by one document.
type DocEntityIndexRecord struct {
	EntityNames []string `json:"entity_names"`
	Count       int      `json:"count"`
}

// DocRelationIndexRecord is the full_relations value: the relation pairs
// produced by one document, each stored in sorted orientation.
type DocRelationIndexRecord struct {
	RelationPairs []Pair `json:"relation_pairs"`
	Count         int    `json:"count"`
}
