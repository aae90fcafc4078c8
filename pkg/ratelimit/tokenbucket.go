package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket is the token-bucket algorithm of spec §4.5: refills by
// elapsed·rate capped at capacity, then removes one token per check.
// Backed by golang.org/x/time/rate, one limiter per key.
type TokenBucket struct {
	rate     rate.Limit
	capacity int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewTokenBucket constructs a TokenBucket with the given refill rate
// (tokens/sec) and burst capacity.
func NewTokenBucket(ratePerSec float64, capacity int) *TokenBucket {
	return &TokenBucket{
		rate:     rate.Limit(ratePerSec),
		capacity: capacity,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (b *TokenBucket) limiterFor(key string) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.limiters[key]
	if !ok {
		l = rate.NewLimiter(b.rate, b.capacity)
		b.limiters[key] = l
	}
	return l
}

// Check implements Limiter.
func (b *TokenBucket) Check(key string) Result {
	l := b.limiterFor(key)
	now := time.Now()

	res := l.ReserveN(now, 1)
	if !res.OK() {
		return Result{Decision: Deny, Limit: b.capacity}
	}

	delay := res.DelayFrom(now)
	if delay > 0 {
		res.CancelAt(now)
		return Result{
			Decision:   Deny,
			Limit:      b.capacity,
			Remaining:  0,
			RetryAfter: delay,
		}
	}

	return Result{
		Decision:  Allow,
		Limit:     b.capacity,
		Remaining: int(l.TokensAt(now)),
	}
}
