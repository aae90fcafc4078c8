package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/agentcore/ent"
	"github.com/codeready-toolchain/agentcore/ent/job"
	"github.com/codeready-toolchain/agentcore/pkg/billing"
	"github.com/codeready-toolchain/agentcore/pkg/core"
	"github.com/codeready-toolchain/agentcore/pkg/queue"
	"github.com/codeready-toolchain/agentcore/pkg/runs"
)

var (
	errInvalidAction = errors.New("invalid action")
	errMissingField  = errors.New("missing required field")
)

// runService implements the `execute` control-plane verb (spec §6): it
// is the thin layer between HTTP and the orchestrator primitives in
// pkg/runs/pkg/queue, responsible only for translating
// create/start/stop/retry/resume into ent writes plus a job enqueue —
// the state-machine and execution logic itself lives in pkg/runs.
type runService struct {
	client     *ent.Client
	machine    *runs.Machine
	workerPool *queue.WorkerPool
	billing    *billing.Service
}

func newRunService(client *ent.Client, machine *runs.Machine, workerPool *queue.WorkerPool, billingSvc *billing.Service) *runService {
	return &runService{client: client, machine: machine, workerPool: workerPool, billing: billingSvc}
}

// newRunServiceFromCore builds a runService from a composed Core,
// tolerating a nil Core (unit tests construct a Server without one).
func newRunServiceFromCore(cr *core.Core) *runService {
	if cr == nil || cr.DB == nil {
		return newRunService(nil, nil, nil, nil)
	}
	return newRunService(cr.DB.Client, cr.Machine, cr.Queue, cr.Billing)
}

// Execute dispatches one `execute` action and returns the response the
// HTTP layer serializes directly.
func (s *runService) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResponse, error) {
	switch req.Action {
	case "create":
		return s.create(ctx, req)
	case "start":
		return s.start(ctx, req)
	case "stop":
		return s.stop(ctx, req)
	case "retry":
		return s.retry(ctx, req)
	case "resume":
		return s.resume(ctx, req)
	default:
		return ExecuteResponse{}, fmt.Errorf("%w: %q", errInvalidAction, req.Action)
	}
}

// create inserts a new Run in CREATED and enqueues its first Job, after
// a billing preflight confirms the tenant has any credit at all (spec
// §6 "402 on insufficient credits").
func (s *runService) create(ctx context.Context, req ExecuteRequest) (ExecuteResponse, error) {
	if req.TenantID == "" {
		return ExecuteResponse{}, fmt.Errorf("%w: tenant_id", errMissingField)
	}
	if req.Prompt == "" {
		return ExecuteResponse{}, fmt.Errorf("%w: prompt", errMissingField)
	}

	if s.billing != nil {
		ok, err := s.billing.HasCredit(ctx, req.TenantID)
		if err != nil {
			return ExecuteResponse{}, fmt.Errorf("checking tenant credit: %w", err)
		}
		if !ok {
			return ExecuteResponse{}, &billing.RejectedError{Reason: billing.RejectInsufficientCredits, Detail: "no available balance"}
		}
	}

	runID := uuid.NewString()
	if err := s.client.Run.Create().
		SetID(runID).
		SetTenantID(req.TenantID).
		SetPrompt(req.Prompt).
		Exec(ctx); err != nil {
		return ExecuteResponse{}, fmt.Errorf("creating run: %w", err)
	}

	if err := s.enqueue(ctx, runID); err != nil {
		return ExecuteResponse{}, fmt.Errorf("enqueueing run %s: %w", runID, err)
	}

	return ExecuteResponse{RunID: runID, Status: string(runs.StateCreated), Message: "run created and enqueued"}, nil
}

// start re-enqueues a run that exists but has no active job (e.g. a
// CREATED run whose initial enqueue failed). Idempotent: if a job is
// already enqueued or leased, it reports the run's current status
// without creating a duplicate.
func (s *runService) start(ctx context.Context, req ExecuteRequest) (ExecuteResponse, error) {
	if req.RunID == "" {
		return ExecuteResponse{}, fmt.Errorf("%w: run_id", errMissingField)
	}

	r, err := s.client.Run.Get(ctx, req.RunID)
	if err != nil {
		return ExecuteResponse{}, err
	}
	if runs.IsTerminal(r.State) {
		return ExecuteResponse{}, fmt.Errorf("%w: run %s is already in terminal state %s", errInvalidAction, r.ID, r.State)
	}

	if err := s.enqueue(ctx, r.ID); err != nil && !ent.IsConstraintError(err) {
		return ExecuteResponse{}, fmt.Errorf("enqueueing run %s: %w", r.ID, err)
	}

	return ExecuteResponse{RunID: r.ID, Status: string(r.State), Message: "run started"}, nil
}

// stop requests cancellation at the earliest legal state and, if a
// worker on this pod currently holds the job, cancels its context
// immediately (spec §4.1 "Cancellation").
func (s *runService) stop(ctx context.Context, req ExecuteRequest) (ExecuteResponse, error) {
	if req.RunID == "" {
		return ExecuteResponse{}, fmt.Errorf("%w: run_id", errMissingField)
	}

	if err := s.machine.RequestCancel(ctx, req.RunID); err != nil {
		return ExecuteResponse{}, err
	}

	if s.workerPool != nil {
		if j, err := s.client.Job.Query().
			Where(job.RunIDEQ(req.RunID), job.StatusEQ(job.StatusLeased)).
			First(ctx); err == nil {
			s.workerPool.CancelJob(j.ID)
		}
	}

	return ExecuteResponse{RunID: req.RunID, Status: string(runs.StateCancelled), Message: "cancellation requested"}, nil
}

// retry starts a fresh run carrying forward a failed run's tenant and
// prompt, rather than reviving the original record: FAILED has no
// outgoing edge in the transition table (spec §4.1), so a retry is a new
// attempt, not a resurrection of the old one.
func (s *runService) retry(ctx context.Context, req ExecuteRequest) (ExecuteResponse, error) {
	if req.RunID == "" {
		return ExecuteResponse{}, fmt.Errorf("%w: run_id", errMissingField)
	}

	original, err := s.client.Run.Get(ctx, req.RunID)
	if err != nil {
		return ExecuteResponse{}, err
	}
	if original.State != runs.StateFailed {
		return ExecuteResponse{}, fmt.Errorf("%w: run %s is in state %s, not failed", errInvalidAction, original.ID, original.State)
	}

	newID := uuid.NewString()
	if err := s.client.Run.Create().
		SetID(newID).
		SetTenantID(original.TenantID).
		SetPrompt(original.Prompt).
		SetRetryCount(original.RetryCount + 1).
		Exec(ctx); err != nil {
		return ExecuteResponse{}, fmt.Errorf("creating retry run: %w", err)
	}

	if err := s.enqueue(ctx, newID); err != nil {
		return ExecuteResponse{}, fmt.Errorf("enqueueing retry run %s: %w", newID, err)
	}

	return ExecuteResponse{RunID: newID, Status: string(runs.StateCreated), Message: fmt.Sprintf("retry of run %s", original.ID)}, nil
}

// resume re-enqueues a non-terminal run with no active job, the
// operator-triggered counterpart to the worker pool's own automatic
// orphan recovery (pkg/queue's lease-expiry sweep handles the crash
// case; resume handles an operator restarting a run that was stopped or
// whose job row was otherwise lost).
func (s *runService) resume(ctx context.Context, req ExecuteRequest) (ExecuteResponse, error) {
	if req.RunID == "" {
		return ExecuteResponse{}, fmt.Errorf("%w: run_id", errMissingField)
	}

	r, err := s.client.Run.Get(ctx, req.RunID)
	if err != nil {
		return ExecuteResponse{}, err
	}
	if runs.IsTerminal(r.State) {
		return ExecuteResponse{}, fmt.Errorf("%w: run %s is already in terminal state %s", errInvalidAction, r.ID, r.State)
	}

	if err := s.enqueue(ctx, r.ID); err != nil && !ent.IsConstraintError(err) {
		return ExecuteResponse{}, fmt.Errorf("re-enqueueing run %s: %w", r.ID, err)
	}

	return ExecuteResponse{RunID: r.ID, Status: string(r.State), Message: "run resumed"}, nil
}

// Get projects a Run entity into its read-only HTTP representation
// (spec §6 "runs/{id} read-only accessor, returning state and progress").
func (s *runService) Get(ctx context.Context, runID string) (RunResponse, error) {
	r, err := s.client.Run.Get(ctx, runID)
	if err != nil {
		return RunResponse{}, err
	}

	resp := RunResponse{
		RunID:           r.ID,
		TenantID:        r.TenantID,
		State:           string(r.State),
		StateVersion:    r.StateVersion,
		PhaseProgress:   r.PhaseProgress,
		AccumulatedCost: r.AccumulatedCost,
		RetryCount:      r.RetryCount,
		LastError:       r.LastError,
		TerminalResult:  r.TerminalResult,
	}
	if r.CurrentPhaseIndex != nil {
		idx := *r.CurrentPhaseIndex
		resp.CurrentPhaseIndex = &idx
	}
	return resp, nil
}

// enqueue inserts a fresh Job row for runID. The partial unique index on
// (run_id) WHERE status IN ('enqueued','leased') makes a duplicate
// enqueue attempt a constraint error, which callers treat as "already
// running" rather than a failure.
func (s *runService) enqueue(ctx context.Context, runID string) error {
	return s.client.Job.Create().
		SetID(uuid.NewString()).
		SetRunID(runID).
		Exec(ctx)
}

