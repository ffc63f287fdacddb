package middleware

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimitStore implements RateLimitStore backed by Redis, so limits
// hold across multiple API instances. It uses a fixed window counter: INCR on
// the key, with the window TTL set when the key is first created.
//
// The store fails open: if Redis is unreachable the request is allowed and the
// full quota is reported, so a cache outage never takes down the API.
type RedisRateLimitStore struct {
	client  *redis.Client
	metrics *Metrics
}

// NewRedisRateLimitStore creates a Redis-backed rate limit store.
func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

// WithMetrics attaches middleware metrics so fail-open events are counted.
func (s *RedisRateLimitStore) WithMetrics(m *Metrics) *RedisRateLimitStore {
	s.metrics = m
	return s
}

// Allow checks if a request from the given key should be allowed.
// Implements the RateLimitStore interface.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int, int) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// NX so an existing window keeps its original expiry
	pipe.ExpireNX(ctx, key, config.WindowDuration)

	if _, err := pipe.Exec(ctx); err != nil {
		if s.metrics != nil {
			s.metrics.IncRateLimitRedisErrors()
		}
		return true, config.RequestsPerWindow, 0
	}

	count := int(incr.Val())
	if count <= config.RequestsPerWindow {
		return true, config.RequestsPerWindow - count, 0
	}

	retryAfter := int(config.WindowDuration / time.Second)
	if ttl, err := s.client.TTL(ctx, key).Result(); err == nil && ttl > 0 {
		retryAfter = int(ttl / time.Second)
	}
	if retryAfter <= 0 {
		retryAfter = 1
	}
	return false, 0, retryAfter
}
