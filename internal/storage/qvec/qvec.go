// Package qvec implements the vector store contract on a Qdrant server.
// Point ids are deterministic UUIDs derived from the workspace and the
// application record id, so re-upserts overwrite rather than duplicate;
// the record id itself rides along in the payload for round-trips.
package qvec

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qdrant/go-client/qdrant"

	"github.com/lightrag-go/lightrag/internal/ids"
	"github.com/lightrag-go/lightrag/internal/llm"
	"github.com/lightrag-go/lightrag/internal/storage"
)

// recordIDKey is the payload field carrying the application record id.
const recordIDKey = "__id__"

// contentKey is the payload field carrying the embedded text.
const contentKey = "content"

// Config connects and scopes a Qdrant-backed store.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool

	// Workspace prefixes point-id derivation so multiple workspaces can
	// share one server.
	Workspace string

	// Dimension is the embedding dimension used when creating collections.
	Dimension int
}

// Store is a Qdrant-backed vector store.
type Store struct {
	client    *qdrant.Client
	cfg       Config
	embedder  llm.EmbeddingClient
	logger    *slog.Logger
	collCache map[string]struct{}
}

// New connects to Qdrant and returns a store. The embedder is only
// required for QueryText and may be nil otherwise.
func New(cfg Config, embedder llm.EmbeddingClient, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant: %w", err)
	}

	return &Store{
		client:    client,
		cfg:       cfg,
		embedder:  embedder,
		logger:    logger,
		collCache: make(map[string]struct{}),
	}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// ensureCollection creates the collection with cosine distance when it
// does not exist yet.
func (s *Store) ensureCollection(ctx context.Context, collection string) error {
	if _, ok := s.collCache[collection]; ok {
		return nil
	}

	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", collection, err)
	}

	if !exists {
		createErr := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.cfg.Dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if createErr != nil {
			return fmt.Errorf("create collection %s: %w", collection, createErr)
		}

		s.logger.Info("created vector collection", "collection", collection, "dim", s.cfg.Dimension)
	}

	s.collCache[collection] = struct{}{}

	return nil
}

// pointID derives the deterministic point UUID for a record id.
func (s *Store) pointID(recordID string) *qdrant.PointId {
	return qdrant.NewIDUUID(ids.PointUUID(s.cfg.Workspace, recordID))
}

// Upsert writes the records into the collection, waiting for the write
// to be applied.
func (s *Store) Upsert(ctx context.Context, collection string, records []storage.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	err := s.ensureCollection(ctx, collection)
	if err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(records))

	for i, r := range records {
		payload := map[string]any{
			recordIDKey: r.ID,
			contentKey:  r.Content,
		}

		for k, v := range r.Metadata {
			payload[k] = v
		}

		points[i] = &qdrant.PointStruct{
			Id:      s.pointID(r.ID),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: qdrant.NewValueMap(payload),
		}
	}

	_, upsertErr := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if upsertErr != nil {
		return fmt.Errorf("upsert %d points into %s: %w", len(points), collection, upsertErr)
	}

	return nil
}

// Query returns up to topK hits above the similarity threshold, most
// similar first.
func (s *Store) Query(ctx context.Context, collection string, vector []float32, topK int, threshold float32) ([]storage.VectorHit, error) {
	err := s.ensureCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	scored, queryErr := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		ScoreThreshold: qdrant.PtrOf(threshold),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if queryErr != nil {
		return nil, fmt.Errorf("query %s: %w", collection, queryErr)
	}

	hits := make([]storage.VectorHit, 0, len(scored))

	for _, point := range scored {
		hit := hitFromPayload(point.Payload)
		hit.Score = point.Score
		hits = append(hits, hit)
	}

	return hits, nil
}

// QueryText embeds text and queries with the resulting vector.
func (s *Store) QueryText(ctx context.Context, collection, text string, topK int, threshold float32) ([]storage.VectorHit, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("query %s by text: no embedder configured", collection)
	}

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query text: %w", err)
	}

	return s.Query(ctx, collection, vector, topK, threshold)
}

// Delete removes the given record ids. Missing ids are ignored.
func (s *Store) Delete(ctx context.Context, collection string, recordIDs []string) error {
	if len(recordIDs) == 0 {
		return nil
	}

	err := s.ensureCollection(ctx, collection)
	if err != nil {
		return err
	}

	points := make([]*qdrant.PointId, len(recordIDs))
	for i, id := range recordIDs {
		points[i] = s.pointID(id)
	}

	_, deleteErr := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelectorIDs(points),
		Wait:           qdrant.PtrOf(true),
	})
	if deleteErr != nil {
		return fmt.Errorf("delete %d points from %s: %w", len(points), collection, deleteErr)
	}

	return nil
}

// GetByIDs returns the stored records for the given ids, skipping ids
// that do not exist.
func (s *Store) GetByIDs(ctx context.Context, collection string, recordIDs []string) ([]storage.VectorHit, error) {
	if len(recordIDs) == 0 {
		return nil, nil
	}

	err := s.ensureCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	points := make([]*qdrant.PointId, len(recordIDs))
	for i, id := range recordIDs {
		points[i] = s.pointID(id)
	}

	retrieved, getErr := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            points,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if getErr != nil {
		return nil, fmt.Errorf("get %d points from %s: %w", len(points), collection, getErr)
	}

	hits := make([]storage.VectorHit, 0, len(retrieved))
	for _, point := range retrieved {
		hits = append(hits, hitFromPayload(point.Payload))
	}

	return hits, nil
}

// IndexDoneCallback is a no-op: Qdrant writes are durable on upsert.
func (s *Store) IndexDoneCallback(context.Context) error {
	return nil
}

// hitFromPayload reconstructs the application-level hit from a point
// payload.
func hitFromPayload(payload map[string]*qdrant.Value) storage.VectorHit {
	hit := storage.VectorHit{Metadata: make(map[string]string, len(payload))}

	for k, v := range payload {
		value := v.GetStringValue()

		switch k {
		case recordIDKey:
			hit.ID = value
		case contentKey:
			hit.Content = value
			hit.Metadata[k] = value
		default:
			hit.Metadata[k] = value
		}
	}

	return hit
}
