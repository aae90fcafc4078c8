package collab

import (
	"testing"
	"time"

	"github.com/codeready-toolchain/agentcore/pkg/config"
)

func testBreakerConfig() *config.BreakerConfig {
	return &config.BreakerConfig{
		ActivationThreshold:   0.95,
		DeactivationThreshold: 0.85,
		OpenDuration:          config.Duration(30 * time.Second),
		HalfOpenMaxRequests:   5,
		SampleInterval:        config.Duration(time.Second),
	}
}

func TestBreaker_ClosedAdmitsAll(t *testing.T) {
	b := NewBreaker(testBreakerConfig(), nil)
	for i := 0; i < 10; i++ {
		if !b.Admit() {
			t.Fatal("CLOSED breaker should admit")
		}
	}
}

func TestBreaker_TripsOpenAboveActivationThreshold(t *testing.T) {
	var transitions []BreakerState
	b := NewBreaker(testBreakerConfig(), func(from, to BreakerState, bp float64) {
		transitions = append(transitions, to)
	})

	now := time.Now()
	b.Sample(0.98, now)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want OPEN", b.State())
	}
	if b.Admit() {
		t.Fatal("OPEN breaker should reject admission")
	}
	if len(transitions) != 1 || transitions[0] != StateOpen {
		t.Fatalf("transitions = %v, want [open]", transitions)
	}
}

func TestBreaker_OpenTransitionsToHalfOpenAfterDuration(t *testing.T) {
	b := NewBreaker(testBreakerConfig(), nil)
	now := time.Now()
	b.Sample(0.98, now)
	if b.State() != StateOpen {
		t.Fatal("expected OPEN")
	}

	b.Sample(0.98, now.Add(10*time.Second))
	if b.State() != StateOpen {
		t.Fatal("should still be OPEN before open_duration elapses")
	}

	b.Sample(0.98, now.Add(31*time.Second))
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want HALF_OPEN after open_duration", b.State())
	}
}

func TestBreaker_HalfOpen_AllTrialsSucceed_Closes(t *testing.T) {
	cfg := testBreakerConfig()
	cfg.HalfOpenMaxRequests = 2
	b := NewBreaker(cfg, nil)
	now := time.Now()
	b.Sample(0.98, now)
	b.Sample(0.98, now.Add(31*time.Second)) // -> HALF_OPEN

	if !b.Admit() || !b.Admit() {
		t.Fatal("half-open should admit up to HalfOpenMaxRequests")
	}
	if b.Admit() {
		t.Fatal("half-open should reject beyond HalfOpenMaxRequests")
	}

	b.ReportResult(true, 0.5, now)
	b.ReportResult(true, 0.5, now)
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want CLOSED after all trials succeed", b.State())
	}
}

func TestBreaker_HalfOpen_FailureReopens(t *testing.T) {
	cfg := testBreakerConfig()
	b := NewBreaker(cfg, nil)
	now := time.Now()
	b.Sample(0.98, now)
	b.Sample(0.98, now.Add(31*time.Second)) // -> HALF_OPEN

	b.Admit()
	b.ReportResult(false, 0.9, now)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want OPEN after half-open trial failure", b.State())
	}
}

func TestBreaker_HalfOpen_BackpressureStillHigh_Reopens(t *testing.T) {
	cfg := testBreakerConfig()
	b := NewBreaker(cfg, nil)
	now := time.Now()
	b.Sample(0.98, now)
	b.Sample(0.98, now.Add(31*time.Second)) // -> HALF_OPEN

	b.Sample(0.9, now.Add(32*time.Second)) // still >= deactivation threshold
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want OPEN (backpressure still above deactivation threshold)", b.State())
	}
}

func TestBreaker_FullCycle_CallbackInvokedThreeTimes(t *testing.T) {
	// Mirrors spec §8 scenario 6: open, half_open, close.
	var transitions []BreakerState
	b := NewBreaker(testBreakerConfig(), func(from, to BreakerState, bp float64) {
		transitions = append(transitions, to)
	})

	now := time.Now()
	b.Sample(0.98, now)
	b.Sample(0.98, now.Add(31*time.Second))
	for i := 0; i < 5; i++ {
		b.Admit()
		b.ReportResult(true, 0.5, now.Add(31*time.Second))
	}

	if len(transitions) != 3 {
		t.Fatalf("transitions = %v, want 3 (open, half_open, close)", transitions)
	}
	want := []BreakerState{StateOpen, StateHalfOpen, StateClosed}
	for i, w := range want {
		if transitions[i] != w {
			t.Fatalf("transitions[%d] = %v, want %v", i, transitions[i], w)
		}
	}
}

type fakeBackpressure struct {
	queue, conn, errRate float64
}

func (f fakeBackpressure) QueueDepthRatio() float64 { return f.queue }
func (f fakeBackpressure) ConnectionRatio() float64 { return f.conn }
func (f fakeBackpressure) ErrorRate60s() float64    { return f.errRate }

func TestBackpressure_IsWeightedMaxOfSignals(t *testing.T) {
	got := Backpressure(fakeBackpressure{queue: 0.2, conn: 0.9, errRate: 0.1})
	if got != 0.9 {
		t.Fatalf("Backpressure = %v, want 0.9 (max signal)", got)
	}
}
