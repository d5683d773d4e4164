package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const processedKeyPrefix = "processed_event:"

// IdempotencyStore records processed event ids in Redis so that replays are
// recognized across restarts and replicas. It satisfies kafka.IdempotencyStore.
type IdempotencyStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewIdempotencyStore creates a store whose entries expire after ttl.
func NewIdempotencyStore(client redis.UniversalClient, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

func (s *IdempotencyStore) Contains(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, processedKeyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (s *IdempotencyStore) Add(ctx context.Context, eventID string) error {
	if err := s.client.SetNX(ctx, processedKeyPrefix+eventID, 1, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	return nil
}
