package collab

import (
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/agentcore/pkg/config"
)

// BreakerState is the closed set of circuit-breaker states (spec
// §4.6 "Circuit breaker").
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// BackpressureSource reports the raw signals the breaker normalizes
// into a single [0,1] scalar (spec §9 open question (a)): queue depth
// as a fraction of capacity, active connections as a fraction of the
// configured cap, and the error rate over the trailing 60s.
type BackpressureSource interface {
	QueueDepthRatio() float64
	ConnectionRatio() float64
	ErrorRate60s() float64
}

// Backpressure fixes the open question's formula as a weighted max of
// the three normalized signals — any single overloaded dimension trips
// the breaker even if the others are calm.
func Backpressure(s BackpressureSource) float64 {
	v := s.QueueDepthRatio()
	if c := s.ConnectionRatio(); c > v {
		v = c
	}
	if e := s.ErrorRate60s(); e > v {
		v = e
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// StateChangeFunc is invoked on every breaker transition, used by the
// alert manager (spec §4.6 "State changes invoke a callback").
type StateChangeFunc func(from, to BreakerState, backpressure float64)

// Breaker is the three-state admission gate protecting the
// collaboration gateway (spec §4.6, testable property 7).
type Breaker struct {
	cfg      *config.BreakerConfig
	onChange StateChangeFunc

	mu              sync.Mutex
	state           BreakerState
	openedAt        time.Time
	halfOpenAdmits  int
	halfOpenFailed  bool
	halfOpenSucceeded int
}

// NewBreaker constructs a Breaker starting CLOSED.
func NewBreaker(cfg *config.BreakerConfig, onChange StateChangeFunc) *Breaker {
	return &Breaker{cfg: cfg, state: StateClosed, onChange: onChange}
}

// State reports the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Sample is called on the configured SampleInterval timer with the
// latest backpressure reading; it drives CLOSED->OPEN and the OPEN
// duration timeout into HALF_OPEN.
func (b *Breaker) Sample(backpressure float64, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if backpressure >= b.cfg.ActivationThreshold {
			b.transitionLocked(StateOpen, backpressure, now)
		}
	case StateOpen:
		if now.Sub(b.openedAt) >= b.cfg.OpenDuration.Dur() {
			b.transitionLocked(StateHalfOpen, backpressure, now)
		}
	case StateHalfOpen:
		if backpressure >= b.cfg.DeactivationThreshold {
			b.transitionLocked(StateOpen, backpressure, now)
		}
	}
}

// Admit reports whether a new admission should be let through right
// now, and for HALF_OPEN consumes one of the trial admission slots.
func (b *Breaker) Admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		return false
	case StateHalfOpen:
		if b.halfOpenAdmits >= b.cfg.HalfOpenMaxRequests {
			return false
		}
		b.halfOpenAdmits++
		return true
	default:
		return false
	}
}

// ReportResult records the outcome of a HALF_OPEN trial admission. A
// failure (or continued high backpressure, handled by Sample) sends
// the breaker back OPEN; once all trial admissions succeed the
// breaker closes.
func (b *Breaker) ReportResult(ok bool, backpressure float64, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateHalfOpen {
		return
	}
	if !ok {
		b.halfOpenFailed = true
		b.transitionLocked(StateOpen, backpressure, now)
		return
	}
	b.halfOpenSucceeded++
	if b.halfOpenSucceeded >= b.cfg.HalfOpenMaxRequests && !b.halfOpenFailed {
		b.transitionLocked(StateClosed, backpressure, now)
	}
}

func (b *Breaker) transitionLocked(to BreakerState, backpressure float64, now time.Time) {
	from := b.state
	b.state = to
	b.halfOpenSucceeded = 0
	switch to {
	case StateOpen:
		b.openedAt = now
		b.halfOpenAdmits = 0
		b.halfOpenFailed = false
	case StateHalfOpen:
		b.halfOpenAdmits = 0
		b.halfOpenFailed = false
	case StateClosed:
		b.halfOpenAdmits = 0
		b.halfOpenFailed = false
	}

	slog.Info("collab circuit breaker transition", "from", from, "to", to, "backpressure", backpressure)
	if b.onChange != nil {
		b.onChange(from, to, backpressure)
	}
}
