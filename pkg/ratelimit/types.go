// Package ratelimit implements the three interchangeable rate-limiting
// algorithms of spec §4.5 — token bucket, sliding window, fixed window —
// behind one shared contract, plus an OrgRateLimiter adapter consumed by
// pkg/billing's per-org request/token caps (spec §4.3 "Rate limiting").
package ratelimit

import "time"

// Decision is the outcome of one Limiter.Check call.
type Decision string

const (
	Allow Decision = "allow"
	Deny  Decision = "deny"
)

// Result is the shared contract every algorithm returns (spec §4.5
// "check(key) → (decision, limit, remaining, reset_at, retry_after)").
type Result struct {
	Decision   Decision
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter is satisfied by all three algorithms. The default posture is
// purely in-memory within one process, relying on the connection
// affinity the gateway already establishes (spec §4.5); RedisFixedWindow
// is the opt-in distributed variant for deployments that need a shared
// counter across pods.
type Limiter interface {
	Check(key string) Result
}
