package routing

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, 30*time.Second, slog.Default()), mr
}

func TestRedisCache_RoundTrip(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	_, ok := cache.Get(ctx, "k1")
	assert.False(t, ok)

	fallback := StoreGraph
	want := Decision{
		Strategy:      StrategyHybrid,
		PrimaryStore:  StoreVector,
		FallbackStore: &fallback,
		Reasoning:     "both healthy",
		Complexity:    ComplexityHybridQuery,
	}
	cache.Set(ctx, "k1", want)

	got, ok := cache.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.True(t, mr.Exists(cacheKeyPrefix+"k1"))
}

func TestRedisCache_TTL(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, "k2", Decision{Strategy: StrategyVectorOnly})
	mr.FastForward(31 * time.Second)

	_, ok := cache.Get(ctx, "k2")
	assert.False(t, ok)
}

func TestRedisCache_MalformedEntryIsMiss(t *testing.T) {
	cache, mr := newTestCache(t)
	require.NoError(t, mr.Set(cacheKeyPrefix+"bad", "{not json"))

	_, ok := cache.Get(context.Background(), "bad")
	assert.False(t, ok)
}

func TestRedisCache_UnavailableIsMiss(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	cache := NewRedisCache(client, time.Minute, slog.Default())
	mr.Close()

	cache.Set(context.Background(), "k3", Decision{Strategy: StrategyVectorOnly})
	_, ok := cache.Get(context.Background(), "k3")
	assert.False(t, ok)
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := DialRedis(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	assert.NoError(t, client.Close())

	_, err = DialRedis(context.Background(), "::not a url")
	assert.Error(t, err)
}
