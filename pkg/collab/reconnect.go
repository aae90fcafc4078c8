package collab

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/codeready-toolchain/agentcore/pkg/config"
)

// ErrTooManyAttempts is returned when a reconnection token has already
// exhausted its backoff-gated attempt budget.
var ErrTooManyAttempts = errors.New("collab: reconnection token exhausted its attempt budget")

// ErrBackoffNotElapsed is returned when a reconnect is attempted
// before the exponential-backoff gate for this token has opened.
var ErrBackoffNotElapsed = errors.New("collab: reconnect attempted before backoff elapsed")

// ErrTokenNotFound is returned for an unknown or expired reconnect token.
var ErrTokenNotFound = errors.New("collab: unknown or expired reconnect token")

// RecoveryRecord is what the gateway stores for a client on disconnect
// (spec §4.6 "Reconnection"): the last acknowledged version per
// document, any unacked operations the client sent before dropping,
// and its last cursor.
type RecoveryRecord struct {
	UserID         string
	DocumentID     string
	LastAckVersion int
	Pending        []Batch
	CursorPosition int

	issuedAt     time.Time
	lastAttempt  time.Time
	attempts     int
	expiresAt    time.Time
}

// ReconnectManager issues and redeems reconnection tokens, enforcing
// the TTL and exponential-backoff gate from spec §4.6.
type ReconnectManager struct {
	cfg *config.CollabConfig

	mu      sync.Mutex
	records map[string]*RecoveryRecord // token -> record
}

// NewReconnectManager constructs a ReconnectManager.
func NewReconnectManager(cfg *config.CollabConfig) *ReconnectManager {
	return &ReconnectManager{cfg: cfg, records: make(map[string]*RecoveryRecord)}
}

// IssueToken stores a RecoveryRecord for a disconnected client and
// returns a short-lived opaque token redeemable for one reconnection
// attempt at a time.
func (r *ReconnectManager) IssueToken(rec RecoveryRecord, now time.Time) (string, error) {
	token, err := randomToken()
	if err != nil {
		return "", err
	}

	rec.issuedAt = now
	rec.expiresAt = now.Add(r.cfg.ReconnectTokenTTL.Dur())

	r.mu.Lock()
	r.records[token] = &rec
	r.mu.Unlock()
	return token, nil
}

// Redeem validates one reconnection attempt against token, returning
// the stored RecoveryRecord on success. The token survives a
// successful redeem (a flaky client may need to redeem the same token
// again shortly after), gated by an exponential backoff — base *
// 2^(attempts-1), capped at max, so base after the first attempt —
// between successive attempts; it is
// deleted once ReconnectMaxAttempts is reached or the TTL expires.
func (r *ReconnectManager) Redeem(token string, now time.Time) (RecoveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[token]
	if !ok {
		return RecoveryRecord{}, ErrTokenNotFound
	}
	if now.After(rec.expiresAt) {
		delete(r.records, token)
		return RecoveryRecord{}, ErrTokenNotFound
	}
	if rec.attempts >= r.cfg.ReconnectMaxAttempts {
		delete(r.records, token)
		return RecoveryRecord{}, ErrTooManyAttempts
	}

	if rec.attempts > 0 {
		gate := backoffDelay(r.cfg, rec.attempts-1)
		if now.Sub(rec.lastAttempt) < gate {
			return RecoveryRecord{}, ErrBackoffNotElapsed
		}
	}

	rec.attempts++
	rec.lastAttempt = now
	return *rec, nil
}

// backoffDelay computes base * 2^attempts capped at max (spec §4.6
// "exponential-backoff gate: base 1s, multiplier 2, max 60s").
func backoffDelay(cfg *config.CollabConfig, attempts int) time.Duration {
	base := cfg.ReconnectBackoffBase.Dur()
	max := cfg.ReconnectBackoffMax.Dur()
	delay := base
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	return delay
}

func randomToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating reconnect token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
