package redis

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/orderreview/internal/domain"
	"github.com/storefront/orderreview/pkg/breaker"
)

func setupTestRedis(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func sampleProduct() *domain.Product {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.Product{
		ID:            "prod-1",
		Name:          "Mug",
		Price:         1500,
		Stock:         4,
		AverageRating: 4.5,
		TotalReviews:  2,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ---------------------------------------------------------------------------
// ProductCache
// ---------------------------------------------------------------------------

func TestProductCache_Miss(t *testing.T) {
	client, _ := setupTestRedis(t)
	cache := NewProductCache(client, time.Minute)

	got, err := cache.Get(context.Background(), "prod-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestProductCache_SetThenGet(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := NewProductCache(client, 5*time.Minute)
	p := sampleProduct()

	require.NoError(t, cache.Set(context.Background(), p))
	assert.Equal(t, 5*time.Minute, mr.TTL("product:prod-1"))

	got, err := cache.Get(context.Background(), "prod-1")
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestProductCache_Expires(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := NewProductCache(client, time.Minute)
	require.NoError(t, cache.Set(context.Background(), sampleProduct()))

	mr.FastForward(2 * time.Minute)

	got, err := cache.Get(context.Background(), "prod-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestProductCache_CorruptEntry(t *testing.T) {
	client, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("product:prod-1", "{not json"))

	_, err := NewProductCache(client, time.Minute).Get(context.Background(), "prod-1")
	assert.Error(t, err)
}

func TestProductCache_Invalidate(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := NewProductCache(client, time.Minute)
	ctx := context.Background()

	p := sampleProduct()
	data, _ := json.Marshal(p)
	require.NoError(t, mr.Set("product:prod-1", string(data)))
	require.NoError(t, mr.Set("product:prod-2", string(data)))

	require.NoError(t, cache.Invalidate(ctx, "prod-1", "prod-2", "prod-3"))
	assert.False(t, mr.Exists("product:prod-1"))
	assert.False(t, mr.Exists("product:prod-2"))
	assert.NoError(t, cache.Invalidate(ctx))
}

func TestProductCache_SetAfterInvalidateIsHeldOff(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := NewProductCache(client, time.Minute).WithInvalidationHold(2 * time.Second)
	ctx := context.Background()
	p := sampleProduct()

	// A reader that loaded the row before the write commits arrives late.
	require.NoError(t, cache.Invalidate(ctx, p.ID))
	require.NoError(t, cache.Set(ctx, p))
	assert.False(t, mr.Exists("product:prod-1"), "stale row must not be cached")

	mr.FastForward(3 * time.Second)
	require.NoError(t, cache.Set(ctx, p))
	got, err := cache.Get(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.ID, got.ID)
}

func TestProductCache_ZeroHoldCachesImmediately(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := NewProductCache(client, time.Minute).WithInvalidationHold(0)
	ctx := context.Background()

	require.NoError(t, cache.Invalidate(ctx, "prod-1"))
	require.NoError(t, cache.Set(ctx, sampleProduct()))
	assert.True(t, mr.Exists("product:prod-1"))
}

func TestProductCache_ServerDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := NewProductCache(client, time.Minute)
	mr.Close()

	_, err := cache.Get(context.Background(), "prod-1")
	assert.Error(t, err)
}

func TestProductCache_BreakerOpensWhenServerDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	cfg := breaker.DefaultConfig("product-cache")
	cfg.MinRequests = 2
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := NewProductCache(client, time.Minute).WithBreaker(breaker.New(cfg, nil, logger))
	ctx := context.Background()

	// Misses are not failures.
	for i := 0; i < 3; i++ {
		got, err := cache.Get(ctx, "prod-1")
		require.NoError(t, err)
		assert.Nil(t, got)
	}

	mr.Close()
	for i := 0; i < 4; i++ {
		_, _ = cache.Get(ctx, "prod-1")
	}

	err := cache.Set(ctx, sampleProduct())
	assert.ErrorIs(t, err, breaker.ErrOpen)
}

// ---------------------------------------------------------------------------
// IdempotencyStore
// ---------------------------------------------------------------------------

func TestIdempotencyStore(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewIdempotencyStore(client, time.Hour)
	ctx := context.Background()

	seen, err := store.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.Add(ctx, "evt-1"))
	seen, err = store.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)

	mr.FastForward(2 * time.Hour)
	seen, _ = store.Contains(ctx, "evt-1")
	assert.False(t, seen)
}
