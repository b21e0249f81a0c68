package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// BulkQueueKey is the well-known key holding the pending bulk insert.
const BulkQueueKey = "ntconsole:bulk_insert_queue"

// RedisBulkQueueStore keeps the serialized bulk insert queue under one
// Redis key. SET replaces the whole value, so a reader never sees a
// partially written queue.
type RedisBulkQueueStore struct {
	client *redis.Client
	key    string
}

func NewRedisBulkQueueStore(client *redis.Client) *RedisBulkQueueStore {
	return &RedisBulkQueueStore{client: client, key: BulkQueueKey}
}

// Load returns the stored queue, or nil when none is stored.
func (s *RedisBulkQueueStore) Load(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load bulk queue: %w", err)
	}
	return data, nil
}

func (s *RedisBulkQueueStore) Save(ctx context.Context, data []byte) error {
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save bulk queue: %w", err)
	}
	return nil
}

func (s *RedisBulkQueueStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear bulk queue: %w", err)
	}
	return nil
}
