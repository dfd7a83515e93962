package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/emergent-company/dualstore/pkg/logger"
)

const cacheKeyPrefix = "dualstore:route:"

// DecisionCache stores routing decisions by query fingerprint and health signature.
// Cache failures never fail a query; they are logged and treated as misses.
type DecisionCache interface {
	Get(ctx context.Context, key string) (Decision, bool)
	Set(ctx context.Context, key string, d Decision)
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) (Decision, bool) { return Decision{}, false }
func (noopCache) Set(context.Context, string, Decision) {}

// NoopCache returns a cache that never stores anything.
func NoopCache() DecisionCache { return noopCache{} }

// RedisCache keeps decisions in redis with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client, ttl time.Duration, log *slog.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
		log:    log.With(logger.Scope("routing.cache")),
	}
}

// DialRedis parses url and verifies the connection.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Get returns the cached decision for key.
func (c *RedisCache) Get(ctx context.Context, key string) (Decision, bool) {
	data, err := c.client.Get(ctx, cacheKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Decision{}, false
	}
	if err != nil {
		c.log.Warn("decision cache read failed", logger.Error(err))
		return Decision{}, false
	}

	var d Decision
	if err := json.Unmarshal(data, &d); err != nil {
		c.log.Warn("discarding malformed cached decision", slog.String("key", key), logger.Error(err))
		return Decision{}, false
	}
	return d, true
}

// Set stores d under key with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, d Decision) {
	data, err := json.Marshal(d)
	if err != nil {
		c.log.Warn("failed to encode decision", logger.Error(err))
		return
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+key, data, c.ttl).Err(); err != nil {
		c.log.Warn("decision cache write failed", logger.Error(err))
	}
}

// Close closes the redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
