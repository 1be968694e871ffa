package storage

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"sync"

	"github.com/lightrag-go/lightrag/internal/llm"
	"github.com/lightrag-go/lightrag/internal/persist"
)

// vectorFilePrefix prefixes the per-collection JSON files.
const vectorFilePrefix = "vdb_"

// storedVector is the on-disk form of one vector record.
type storedVector struct {
	Vector   []float32         `json:"vector"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// jsonCollection holds one collection's working set.
type jsonCollection struct {
	loaded bool
	dirty  bool
	data   map[string]storedVector
}

// JSONVectorStore is a VectorStore backed by one JSON file per collection
// in the working directory, with brute-force cosine similarity search.
// Suitable for single-process deployments; larger installs use the Qdrant
// adapter.
type JSONVectorStore struct {
	dir      string
	codec    persist.Codec
	embedder llm.EmbeddingClient

	mu          sync.Mutex
	collections map[string]*jsonCollection
}

// NewJSONVectorStore creates a JSON-file vector store in dir. The embedder
// serves QueryText.
func NewJSONVectorStore(dir string, embedder llm.EmbeddingClient) *JSONVectorStore {
	return &JSONVectorStore{
		dir:         dir,
		codec:       persist.NewJSONCodec(),
		embedder:    embedder,
		collections: make(map[string]*jsonCollection),
	}
}

func (s *JSONVectorStore) collectionPath(collection string) string {
	return filepath.Join(s.dir, vectorFilePrefix+collection+".json")
}

// collection returns the loaded working set for a collection, reading its
// file on first access.
func (s *JSONVectorStore) collection(name string) (*jsonCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[name]
	if !ok {
		col = &jsonCollection{data: make(map[string]storedVector)}
		s.collections[name] = col
	}

	if col.loaded {
		return col, nil
	}

	var data map[string]storedVector

	err := persist.Load(s.collectionPath(name), s.codec, &data)
	if err != nil && !persist.IsNotExist(err) {
		return nil, fmt.Errorf("load vector collection %s: %w", name, err)
	}

	if data != nil {
		col.data = data
	}

	col.loaded = true

	return col, nil
}

// Upsert implements VectorStore.Upsert.
func (s *JSONVectorStore) Upsert(_ context.Context, collection string, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	col, err := s.collection(collection)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		col.data[r.ID] = storedVector{Vector: r.Vector, Content: r.Content, Metadata: r.Metadata}
	}

	col.dirty = true

	return nil
}

// Query implements VectorStore.Query using brute-force cosine similarity.
func (s *JSONVectorStore) Query(_ context.Context, collection string, vector []float32, topK int, threshold float32) ([]VectorHit, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var hits []VectorHit

	for id, stored := range col.data {
		score := cosineSimilarity(vector, stored.Vector)
		if score < threshold {
			continue
		}

		hits = append(hits, VectorHit{ID: id, Score: score, Content: stored.Content, Metadata: stored.Metadata})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}

	return hits, nil
}

// QueryText implements VectorStore.QueryText.
func (s *JSONVectorStore) QueryText(ctx context.Context, collection, text string, topK int, threshold float32) ([]VectorHit, error) {
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query text: %w", err)
	}

	return s.Query(ctx, collection, vector, topK, threshold)
}

// Delete implements VectorStore.Delete.
func (s *JSONVectorStore) Delete(_ context.Context, collection string, ids []string) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if _, ok := col.data[id]; ok {
			delete(col.data, id)
			col.dirty = true
		}
	}

	return nil
}

// GetByIDs implements VectorStore.GetByIDs.
func (s *JSONVectorStore) GetByIDs(_ context.Context, collection string, ids []string) ([]VectorHit, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hits := make([]VectorHit, 0, len(ids))

	for _, id := range ids {
		if stored, ok := col.data[id]; ok {
			hits = append(hits, VectorHit{ID: id, Content: stored.Content, Metadata: stored.Metadata})
		}
	}

	return hits, nil
}

// IndexDoneCallback implements VectorStore.IndexDoneCallback. Flushes
// every dirty collection atomically.
func (s *JSONVectorStore) IndexDoneCallback(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, col := range s.collections {
		if !col.dirty {
			continue
		}

		err := persist.SaveAtomic(s.collectionPath(name), s.codec, col.data)
		if err != nil {
			return fmt.Errorf("flush vector collection %s: %w", name, err)
		}

		col.dirty = false
	}

	return nil
}

// cosineSimilarity returns the cosine of the angle between a and b.
// Mismatched dimensions or zero vectors score 0.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64

	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
