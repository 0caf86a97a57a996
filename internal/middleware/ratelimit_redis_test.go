package middleware

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestRedis connects to a local Redis or skips the test.
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisStoreAllowsUnderLimit(t *testing.T) {
	client := newTestRedis(t)
	store := NewRedisRateLimitStore(client)
	config := RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute}
	ctx := context.Background()
	key := fmt.Sprintf("test-under-%d", time.Now().UnixNano())

	for i := 0; i < 3; i++ {
		allowed, _ := store.Allow(ctx, key, config)
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
}

func TestRedisStoreBlocksOverLimit(t *testing.T) {
	client := newTestRedis(t)
	store := NewRedisRateLimitStore(client)
	config := RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}
	ctx := context.Background()
	key := fmt.Sprintf("test-over-%d", time.Now().UnixNano())

	store.Allow(ctx, key, config)
	store.Allow(ctx, key, config)

	allowed, retryAfter := store.Allow(ctx, key, config)
	if allowed {
		t.Fatal("third request should be blocked")
	}
	if retryAfter <= 0 || retryAfter > 60 {
		t.Errorf("retryAfter = %d, want within (0, 60]", retryAfter)
	}
}

func TestRedisStoreWindowExpires(t *testing.T) {
	client := newTestRedis(t)
	store := NewRedisRateLimitStore(client)
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Second}
	ctx := context.Background()
	key := fmt.Sprintf("test-expire-%d", time.Now().UnixNano())

	store.Allow(ctx, key, config)
	if allowed, _ := store.Allow(ctx, key, config); allowed {
		t.Fatal("should be blocked inside the window")
	}

	time.Sleep(1100 * time.Millisecond)

	if allowed, _ := store.Allow(ctx, key, config); !allowed {
		t.Fatal("should be allowed after the window expires")
	}
}

func TestRedisStoreFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:1", DialTimeout: 100 * time.Millisecond})
	defer client.Close()
	store := NewRedisRateLimitStore(client)
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}

	allowed, retryAfter := store.Allow(context.Background(), "any", config)
	if !allowed {
		t.Error("unreachable redis must fail open")
	}
	if retryAfter != 0 {
		t.Errorf("retryAfter = %d, want 0", retryAfter)
	}
}
