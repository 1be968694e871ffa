package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/lightrag-go/lightrag/internal/persist"
)

// JSONKVStore is a KVStore backed by a single JSON file per index in the
// working directory. Reads hit an in-memory working set loaded lazily on
// first access; writes mark the store dirty and are flushed to disk by
// IndexDoneCallback via an atomic tmp-file-plus-rename replace.
type JSONKVStore[V any] struct {
	path  string
	codec persist.Codec

	loadMu sync.Mutex
	loaded bool

	mu    sync.RWMutex
	data  map[string]V
	dirty bool
}

// NewJSONKVStore creates a JSON-file KV store for the named index in dir.
func NewJSONKVStore[V any](dir, name string) *JSONKVStore[V] {
	return &JSONKVStore[V]{
		path:  filepath.Join(dir, name+".json"),
		codec: persist.NewJSONCodec(),
		data:  make(map[string]V),
	}
}

// ensureLoaded reads the backing file on first access. A missing or empty
// file yields an empty index.
func (s *JSONKVStore[V]) ensureLoaded() error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if s.loaded {
		return nil
	}

	var data map[string]V

	err := persist.Load(s.path, s.codec, &data)
	if err != nil && !persist.IsNotExist(err) {
		return fmt.Errorf("load kv index %s: %w", s.path, err)
	}

	if data == nil {
		data = make(map[string]V)
	}

	s.mu.Lock()
	s.data = data
	s.mu.Unlock()

	s.loaded = true

	return nil
}

// GetByID implements KVStore.GetByID.
func (s *JSONKVStore[V]) GetByID(_ context.Context, id string) (V, bool, error) {
	var zero V

	if err := s.ensureLoaded(); err != nil {
		return zero, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.data[id]

	return val, ok, nil
}

// GetByIDs implements KVStore.GetByIDs.
func (s *JSONKVStore[V]) GetByIDs(_ context.Context, ids []string) (map[string]V, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	found := make(map[string]V, len(ids))

	for _, id := range ids {
		if val, ok := s.data[id]; ok {
			found[id] = val
		}
	}

	return found, nil
}

// FilterKeys implements KVStore.FilterKeys.
func (s *JSONKVStore[V]) FilterKeys(_ context.Context, ids []string) ([]string, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var absent []string

	for _, id := range ids {
		if _, ok := s.data[id]; !ok {
			absent = append(absent, id)
		}
	}

	return absent, nil
}

// Upsert implements KVStore.Upsert.
func (s *JSONKVStore[V]) Upsert(_ context.Context, records map[string]V) error {
	if len(records) == 0 {
		return nil
	}

	if err := s.ensureLoaded(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, val := range records {
		s.data[id] = val
	}

	s.dirty = true

	return nil
}

// Delete implements KVStore.Delete.
func (s *JSONKVStore[V]) Delete(_ context.Context, ids []string) error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if _, ok := s.data[id]; ok {
			delete(s.data, id)
			s.dirty = true
		}
	}

	return nil
}

// IsEmpty implements KVStore.IsEmpty.
func (s *JSONKVStore[V]) IsEmpty(_ context.Context) (bool, error) {
	if err := s.ensureLoaded(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data) == 0, nil
}

// IndexDoneCallback implements KVStore.IndexDoneCallback. Writes the whole
// index atomically; a crash mid-flush leaves the previous file intact.
func (s *JSONKVStore[V]) IndexDoneCallback(_ context.Context) error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	err := persist.SaveAtomic(s.path, s.codec, s.data)
	if err != nil {
		return fmt.Errorf("flush kv index %s: %w", s.path, err)
	}

	s.dirty = false

	return nil
}

// Drop implements KVStore.Drop.
func (s *JSONKVStore[V]) Drop(_ context.Context) error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string]V)
	s.dirty = false

	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("drop kv index %s: %w", s.path, err)
	}

	return nil
}
