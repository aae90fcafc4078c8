package runs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codeready-toolchain/agentcore/ent"
	"github.com/codeready-toolchain/agentcore/ent/run"
	"github.com/codeready-toolchain/agentcore/pkg/queue"
)

// ErrLeaseSuperseded is returned when the caller's fencing token no
// longer matches the run's current token — another worker has since
// taken over the lease (spec §4.1 "a superseded worker cannot corrupt
// state").
var ErrLeaseSuperseded = errors.New("lease superseded")

// ErrStateVersionMismatch is returned when the caller's expected
// state_version is stale, meaning some other writer already advanced
// the run past the version this caller observed.
var ErrStateVersionMismatch = errors.New("state version mismatch")

// Machine performs guarded state transitions against the store. Every
// write supplies the lease's fencing token and the expected
// state_version; the store accepts the write iff both match, then
// bumps state_version (spec §4.1 "Lease protocol").
type Machine struct {
	client *ent.Client
}

// NewMachine constructs a Machine bound to client.
func NewMachine(client *ent.Client) *Machine {
	return &Machine{client: client}
}

// Transition moves a run from its current state to "to", guarded by the
// lease's fencing token and the caller's observed state_version. It
// returns ErrInvalidTransition without touching the store if the edge is
// not legal from the caller-observed "from" state.
func (m *Machine) Transition(ctx context.Context, lease queue.JobLease, from, to State, expectedVersion int64) error {
	if err := checkTransition(from, to); err != nil {
		return err
	}

	n, err := m.client.Run.Update().
		Where(
			run.IDEQ(lease.RunID),
			run.StateEQ(from),
			run.StateVersionEQ(expectedVersion),
			run.FencingTokenEQ(lease.FencingToken),
		).
		SetState(to).
		SetStateVersion(expectedVersion + 1).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("transitioning run %s: %w", lease.RunID, err)
	}
	if n == 0 {
		return m.diagnoseRejectedWrite(ctx, lease, expectedVersion)
	}
	return nil
}

// diagnoseRejectedWrite distinguishes a stale fencing token from a stale
// state_version so callers can react appropriately (abandon vs. retry
// with a fresh read).
func (m *Machine) diagnoseRejectedWrite(ctx context.Context, lease queue.JobLease, expectedVersion int64) error {
	r, err := m.client.Run.Get(ctx, lease.RunID)
	if err != nil {
		return fmt.Errorf("guarded write rejected, and run lookup failed: %w", err)
	}
	if r.FencingToken != lease.FencingToken {
		return ErrLeaseSuperseded
	}
	if r.StateVersion != expectedVersion {
		return ErrStateVersionMismatch
	}
	return ErrInvalidTransition
}

// RecordFailure transitions a run to FAILED and attaches a structured
// error record, for non-retryable failures (spec §4.1 "Failure
// semantics"). Succeeds from any non-terminal state.
func (m *Machine) RecordFailure(ctx context.Context, lease queue.JobLease, from State, expectedVersion int64, errRecord map[string]interface{}) error {
	if IsTerminal(from) {
		return fmt.Errorf("%w: run already terminal", ErrInvalidTransition)
	}

	n, err := m.client.Run.Update().
		Where(
			run.IDEQ(lease.RunID),
			run.StateEQ(from),
			run.StateVersionEQ(expectedVersion),
			run.FencingTokenEQ(lease.FencingToken),
		).
		SetState(StateFailed).
		SetStateVersion(expectedVersion + 1).
		SetLastError(errRecord).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("recording failure for run %s: %w", lease.RunID, err)
	}
	if n == 0 {
		return m.diagnoseRejectedWrite(ctx, lease, expectedVersion)
	}
	return nil
}

// ObserveCancelled reports whether a cancel request has landed for this
// run (state == CANCELLED), without taking any lock. The Executor checks
// this before running each state (spec §4.1 "Cancellation").
func (m *Machine) ObserveCancelled(ctx context.Context, runID string) (bool, error) {
	r, err := m.client.Run.Get(ctx, runID)
	if err != nil {
		return false, fmt.Errorf("loading run %s: %w", runID, err)
	}
	return r.State == StateCancelled, nil
}

// RequestCancel writes CANCELLED at the earliest legal state. Unlike
// Transition, this is not lease-guarded: cancellation is an external,
// unprivileged request that must succeed even against a worker that has
// gone silent (spec §4.1 "A cancel request writes CANCELLED at the
// earliest legal state").
func (m *Machine) RequestCancel(ctx context.Context, runID string) error {
	r, err := m.client.Run.Get(ctx, runID)
	if err != nil {
		return fmt.Errorf("loading run %s: %w", runID, err)
	}
	if err := checkTransition(r.State, StateCancelled); err != nil {
		return err
	}

	n, err := m.client.Run.Update().
		Where(run.IDEQ(runID), run.StateEQ(r.State), run.StateVersionEQ(r.StateVersion)).
		SetState(StateCancelled).
		SetStateVersion(r.StateVersion + 1).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("cancelling run %s: %w", runID, err)
	}
	if n == 0 {
		// Someone else moved the run in the meantime; the caller gets
		// ErrStateVersionMismatch and may retry against the now-current state.
		return fmt.Errorf("%w: concurrent transition, retry", ErrStateVersionMismatch)
	}
	return nil
}

// AcquireLease is a thin convenience wrapper so callers outside pkg/queue
// (e.g. API handlers resuming a stopped run) can obtain a lease without
// importing queue internals. It delegates to the same claim path used by
// the worker pool's job claim, scoped to a single known run.
func (m *Machine) AcquireLease(ctx context.Context, runID, workerID string, ttl time.Duration) (queue.JobLease, error) {
	r, err := m.client.Run.Get(ctx, runID)
	if err != nil {
		return queue.JobLease{}, fmt.Errorf("loading run %s: %w", runID, err)
	}

	newToken := r.FencingToken + 1
	n, err := m.client.Run.Update().
		Where(run.IDEQ(runID), run.FencingTokenEQ(r.FencingToken)).
		SetFencingToken(newToken).
		SetLeaseOwner(workerID).
		SetFencingExpiresAt(time.Now().Add(ttl)).
		Save(ctx)
	if err != nil {
		return queue.JobLease{}, fmt.Errorf("acquiring lease for run %s: %w", runID, err)
	}
	if n == 0 {
		return queue.JobLease{}, ErrLeaseSuperseded
	}

	return queue.JobLease{RunID: runID, WorkerID: workerID, FencingToken: newToken}, nil
}
