package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/lightrag-go/lightrag/internal/persist"
)

// graphFileName is the JSON file holding the persisted knowledge graph.
const graphFileName = "graph_chunk_entity_relation.json"

// canonicalPair returns the pair in sorted orientation, the stored form
// for undirected edges.
func canonicalPair(source, target string) Pair {
	if source <= target {
		return Pair{source, target}
	}

	return Pair{target, source}
}

// graphSnapshot is the on-disk form of the graph. Edges are a list so the
// JSON stays readable regardless of characters in node names.
type graphSnapshot struct {
	Nodes map[string]NodeData `json:"nodes"`
	Edges []edgeEntry         `json:"edges"`
}

type edgeEntry struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Data   EdgeData `json:"data"`
}

// JSONGraphStore is a GraphStore backed by one JSON file in the working
// directory. The whole graph is held in memory and flushed atomically.
type JSONGraphStore struct {
	path  string
	codec persist.Codec

	loadMu sync.Mutex
	loaded bool

	mu    sync.RWMutex
	nodes map[string]NodeData
	edges map[Pair]EdgeData
	dirty bool
}

// NewJSONGraphStore creates a JSON-file graph store in dir.
func NewJSONGraphStore(dir string) *JSONGraphStore {
	return &JSONGraphStore{
		path:  filepath.Join(dir, graphFileName),
		codec: persist.NewJSONCodec(),
		nodes: make(map[string]NodeData),
		edges: make(map[Pair]EdgeData),
	}
}

func (g *JSONGraphStore) ensureLoaded() error {
	g.loadMu.Lock()
	defer g.loadMu.Unlock()

	if g.loaded {
		return nil
	}

	var snap graphSnapshot

	err := persist.Load(g.path, g.codec, &snap)
	if err != nil && !persist.IsNotExist(err) {
		return fmt.Errorf("load graph %s: %w", g.path, err)
	}

	nodes := snap.Nodes
	if nodes == nil {
		nodes = make(map[string]NodeData)
	}

	edges := make(map[Pair]EdgeData, len(snap.Edges))
	for _, e := range snap.Edges {
		edges[canonicalPair(e.Source, e.Target)] = e.Data
	}

	g.mu.Lock()
	g.nodes = nodes
	g.edges = edges
	g.mu.Unlock()

	g.loaded = true

	return nil
}

// HasNode implements GraphStore.HasNode.
func (g *JSONGraphStore) HasNode(_ context.Context, id string) (bool, error) {
	if err := g.ensureLoaded(); err != nil {
		return false, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	_, ok := g.nodes[id]

	return ok, nil
}

// GetNode implements GraphStore.GetNode.
func (g *JSONGraphStore) GetNode(_ context.Context, id string) (NodeData, bool, error) {
	if err := g.ensureLoaded(); err != nil {
		return NodeData{}, false, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	data, ok := g.nodes[id]

	return data, ok, nil
}

// UpsertNode implements GraphStore.UpsertNode.
func (g *JSONGraphStore) UpsertNode(_ context.Context, id string, data NodeData) error {
	if err := g.ensureLoaded(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes[id] = data
	g.dirty = true

	return nil
}

// HasEdge implements GraphStore.HasEdge. Orientation-agnostic.
func (g *JSONGraphStore) HasEdge(_ context.Context, source, target string) (bool, error) {
	if err := g.ensureLoaded(); err != nil {
		return false, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	_, ok := g.edges[canonicalPair(source, target)]

	return ok, nil
}

// GetEdge implements GraphStore.GetEdge. Orientation-agnostic.
func (g *JSONGraphStore) GetEdge(_ context.Context, source, target string) (EdgeData, bool, error) {
	if err := g.ensureLoaded(); err != nil {
		return EdgeData{}, false, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	data, ok := g.edges[canonicalPair(source, target)]

	return data, ok, nil
}

// UpsertEdge implements GraphStore.UpsertEdge. The edge is stored in
// canonical (sorted) orientation.
func (g *JSONGraphStore) UpsertEdge(_ context.Context, source, target string, data EdgeData) error {
	if err := g.ensureLoaded(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.edges[canonicalPair(source, target)] = data
	g.dirty = true

	return nil
}

// GetNodesBatch implements GraphStore.GetNodesBatch.
func (g *JSONGraphStore) GetNodesBatch(_ context.Context, ids []string) (map[string]NodeData, error) {
	if err := g.ensureLoaded(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	found := make(map[string]NodeData, len(ids))

	for _, id := range ids {
		if data, ok := g.nodes[id]; ok {
			found[id] = data
		}
	}

	return found, nil
}

// GetNodeDegreesBatch implements GraphStore.GetNodeDegreesBatch.
func (g *JSONGraphStore) GetNodeDegreesBatch(_ context.Context, ids []string) (map[string]int, error) {
	if err := g.ensureLoaded(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	degrees := make(map[string]int, len(ids))

	for _, id := range ids {
		degrees[id] = 0
	}

	for pair := range g.edges {
		for _, id := range ids {
			if pair[0] == id || pair[1] == id {
				degrees[id]++
			}
		}
	}

	return degrees, nil
}

// GetNodesEdgesBatch implements GraphStore.GetNodesEdgesBatch.
func (g *JSONGraphStore) GetNodesEdgesBatch(_ context.Context, ids []string) (map[string][]Pair, error) {
	if err := g.ensureLoaded(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make(map[string][]Pair, len(ids))

	for pair := range g.edges {
		for _, id := range ids {
			if pair[0] == id || pair[1] == id {
				result[id] = append(result[id], pair)
			}
		}
	}

	return result, nil
}

// GetEdgesBatch implements GraphStore.GetEdgesBatch.
func (g *JSONGraphStore) GetEdgesBatch(_ context.Context, pairs []Pair) (map[Pair]EdgeData, error) {
	if err := g.ensureLoaded(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	found := make(map[Pair]EdgeData, len(pairs))

	for _, pair := range pairs {
		if data, ok := g.edges[canonicalPair(pair[0], pair[1])]; ok {
			found[pair] = data
		}
	}

	return found, nil
}

// IndexDoneCallback implements GraphStore.IndexDoneCallback.
func (g *JSONGraphStore) IndexDoneCallback(_ context.Context) error {
	if err := g.ensureLoaded(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.dirty {
		return nil
	}

	snap := graphSnapshot{Nodes: g.nodes, Edges: make([]edgeEntry, 0, len(g.edges))}
	for pair, data := range g.edges {
		snap.Edges = append(snap.Edges, edgeEntry{Source: pair[0], Target: pair[1], Data: data})
	}

	err := persist.SaveAtomic(g.path, g.codec, snap)
	if err != nil {
		return fmt.Errorf("flush graph %s: %w", g.path, err)
	}

	g.dirty = false

	return nil
}
