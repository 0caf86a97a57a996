package middleware

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimitStore implements RateLimitStore backed by Redis so limits
// hold across multiple API instances. Fixed window counters via INCR with a
// TTL set on the first hit of each window.
type RedisRateLimitStore struct {
	client *redis.Client
}

// NewRedisRateLimitStore creates a Redis-backed rate limit store.
func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

// Allow checks if a request from the given key should be allowed.
// Fails open: if Redis is unreachable the request is allowed, since
// dropping traffic on a cache outage is worse than briefly losing limits.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int) {
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		slog.WarnContext(ctx, "rate limit store unavailable, allowing request", "error", err)
		return true, 0
	}

	if count == 1 {
		if err := s.client.Expire(ctx, redisKey, config.WindowDuration).Err(); err != nil {
			slog.WarnContext(ctx, "failed to set rate limit window expiry", "key", redisKey, "error", err)
		}
	}

	if count <= int64(config.RequestsPerWindow) {
		return true, 0
	}

	ttl, err := s.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl <= 0 {
		return false, int(config.WindowDuration.Seconds())
	}
	return false, int(ttl.Seconds())
}
