// Package redis holds the Redis-backed product read cache and the
// processed-event store used by the fulfillment consumer.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storefront/orderreview/internal/domain"
	"github.com/storefront/orderreview/pkg/breaker"
)

const (
	productKeyPrefix   = "product:"
	invalidatedSuffix  = ":invalidated"
	defaultInvalidHold = 5 * time.Second
)

// setUnlessInvalidated writes KEYS[1] only when no invalidation marker
// (KEYS[2]) is live.
var setUnlessInvalidated = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

// ProductCache caches product reads by id.
//
// Invalidate leaves a marker for the hold period, and Set skips products
// with a live marker. A read that loaded a product before a write committed
// therefore cannot repopulate the cache with the old row after the write
// invalidated it, as long as the read finishes within the hold.
type ProductCache struct {
	client  redis.UniversalClient
	ttl     time.Duration
	hold    time.Duration
	breaker *breaker.Breaker
}

// NewProductCache creates a cache whose entries live for ttl.
func NewProductCache(client redis.UniversalClient, ttl time.Duration) *ProductCache {
	return &ProductCache{client: client, ttl: ttl, hold: defaultInvalidHold}
}

// WithInvalidationHold sets how long an invalidated product refuses writes.
func (c *ProductCache) WithInvalidationHold(d time.Duration) *ProductCache {
	c.hold = d
	return c
}

// WithBreaker routes every Redis call through b. While b is open the cache
// reports breaker.ErrOpen and callers fall back to the store.
func (c *ProductCache) WithBreaker(b *breaker.Breaker) *ProductCache {
	c.breaker = b
	return c
}

// Get returns the cached product, or (nil, nil) on a miss.
func (c *ProductCache) Get(ctx context.Context, id string) (*domain.Product, error) {
	var data []byte
	err := c.breaker.Do(func() error {
		var err error
		data, err = c.client.Get(ctx, productKeyPrefix+id).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("redis get product: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	var p domain.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

// Set stores p with the configured TTL unless p was invalidated within the
// hold period.
func (c *ProductCache) Set(ctx context.Context, p *domain.Product) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}
	key := productKeyPrefix + p.ID
	err = c.breaker.Do(func() error {
		return setUnlessInvalidated.Run(ctx, c.client,
			[]string{key, key + invalidatedSuffix},
			data, c.ttl.Milliseconds(),
		).Err()
	})
	if err != nil {
		return fmt.Errorf("redis set product: %w", err)
	}
	return nil
}

// Invalidate drops the given products from the cache and holds off
// re-caching them.
func (c *ProductCache) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productKeyPrefix + id
	}
	err := c.breaker.Do(func() error {
		_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, keys...)
			if c.hold > 0 {
				for _, k := range keys {
					pipe.Set(ctx, k+invalidatedSuffix, 1, c.hold)
				}
			}
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("redis del products: %w", err)
	}
	return nil
}
