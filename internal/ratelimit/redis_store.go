package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "survey:ratelimit:"

// RedisStore shares fixed window counters between server instances.
// The window starts at the first INCR of a key and ends when the key expires.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// Increment implements Store.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	k := redisKeyPrefix + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, fmt.Errorf("increment rate counter: %w", err)
	}

	remaining := ttl.Val()
	if incr.Val() == 1 || remaining <= 0 {
		// First request of the window, or a key left without expiry.
		if err := s.client.PExpire(ctx, k, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("set rate counter expiry: %w", err)
		}
		remaining = window
	}
	return int(incr.Val()), s.now().Add(remaining), nil
}
