// Package redkv implements the key-value store contract on Redis. Each
// named index maps to a key namespace "{workspace}:{index}:{id}" holding
// JSON-encoded records.
package redkv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// scanBatch is the COUNT hint for SCAN-based operations.
const scanBatch = 512

// Store is a Redis-backed key-value index holding records of type V.
type Store[V any] struct {
	client redis.UniversalClient
	prefix string
}

// New creates a store for one named index. The workspace isolates
// multiple deployments sharing a Redis instance.
func New[V any](client redis.UniversalClient, workspace, index string) *Store[V] {
	return &Store[V]{
		client: client,
		prefix: workspace + ":" + index + ":",
	}
}

func (s *Store[V]) key(id string) string {
	return s.prefix + id
}

// GetByID returns the record for id, reporting whether it exists.
func (s *Store[V]) GetByID(ctx context.Context, id string) (V, bool, error) {
	var value V

	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return value, false, nil
		}

		return value, false, fmt.Errorf("redis get %s: %w", id, err)
	}

	unmarshalErr := json.Unmarshal(raw, &value)
	if unmarshalErr != nil {
		return value, false, fmt.Errorf("decode record %s: %w", id, unmarshalErr)
	}

	return value, true, nil
}

// GetByIDs returns the records found for ids, keyed by id.
func (s *Store[V]) GetByIDs(ctx context.Context, ids []string) (map[string]V, error) {
	if len(ids) == 0 {
		return map[string]V{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}

	raws, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget %d keys: %w", len(keys), err)
	}

	records := make(map[string]V, len(ids))

	for i, raw := range raws {
		text, ok := raw.(string)
		if !ok {
			continue
		}

		var value V

		unmarshalErr := json.Unmarshal([]byte(text), &value)
		if unmarshalErr != nil {
			return nil, fmt.Errorf("decode record %s: %w", ids[i], unmarshalErr)
		}

		records[ids[i]] = value
	}

	return records, nil
}

// FilterKeys returns the subset of ids that are NOT present.
func (s *Store[V]) FilterKeys(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()

	checks := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		checks[i] = pipe.Exists(ctx, s.key(id))
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("redis exists pipeline: %w", err)
	}

	var absent []string

	for i, check := range checks {
		if check.Val() == 0 {
			absent = append(absent, ids[i])
		}
	}

	return absent, nil
}

// Upsert inserts or replaces the given records.
func (s *Store[V]) Upsert(ctx context.Context, records map[string]V) error {
	if len(records) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()

	for id, value := range records {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", id, err)
		}

		pipe.Set(ctx, s.key(id), raw, 0)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis set pipeline: %w", err)
	}

	return nil
}

// Delete removes the given ids. Missing ids are ignored.
func (s *Store[V]) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}

	err := s.client.Del(ctx, keys...).Err()
	if err != nil {
		return fmt.Errorf("redis del %d keys: %w", len(keys), err)
	}

	return nil
}

// IsEmpty reports whether the index holds no records.
func (s *Store[V]) IsEmpty(ctx context.Context) (bool, error) {
	var cursor uint64

	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", scanBatch).Result()
		if err != nil {
			return false, fmt.Errorf("redis scan %s: %w", s.prefix, err)
		}

		if len(keys) > 0 {
			return false, nil
		}

		cursor = next
		if cursor == 0 {
			return true, nil
		}
	}
}

// IndexDoneCallback is a no-op: Redis writes are durable on SET.
func (s *Store[V]) IndexDoneCallback(context.Context) error {
	return nil
}

// Drop removes every record in the index.
func (s *Store[V]) Drop(ctx context.Context) error {
	var cursor uint64

	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis scan %s: %w", s.prefix, err)
		}

		if len(keys) > 0 {
			delErr := s.client.Del(ctx, keys...).Err()
			if delErr != nil {
				return fmt.Errorf("redis del %d keys: %w", len(keys), delErr)
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
