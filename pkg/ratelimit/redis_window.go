package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisFixedWindow is the fixed-window algorithm of spec §4.5 backed by
// Redis INCR/PEXPIRE instead of an in-process map, so every process
// pointed at the same Redis shares one count per key. Nothing in this
// repository constructs one and the config has no Redis setting; the
// collaboration gateway uses the in-memory limiters. Fails closed
// (denies) if Redis is unreachable, matching the fail-closed posture
// used for rate limiting elsewhere in the retrieval pack.
type RedisFixedWindow struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRedisFixedWindow constructs a RedisFixedWindow admitting at most
// limit checks per window, per key, shared across every process pointed
// at client.
func NewRedisFixedWindow(client *redis.Client, limit int, window time.Duration) *RedisFixedWindow {
	return &RedisFixedWindow{client: client, limit: limit, window: window}
}

// Check implements Limiter.
func (w *RedisFixedWindow) Check(key string) Result {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	now := time.Now()
	bucket := "ratelimit:" + key + ":" + now.Truncate(w.window).Format(time.RFC3339Nano)

	count, err := w.client.Incr(ctx, bucket).Result()
	if err != nil {
		return Result{Decision: Deny, Limit: w.limit, ResetAt: now.Add(w.window)}
	}
	if count == 1 {
		w.client.PExpire(ctx, bucket, w.window)
	}

	resetAt := now.Truncate(w.window).Add(w.window)
	if int(count) > w.limit {
		return Result{
			Decision:   Deny,
			Limit:      w.limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}
	}

	return Result{
		Decision:  Allow,
		Limit:     w.limit,
		Remaining: w.limit - int(count),
		ResetAt:   resetAt,
	}
}
