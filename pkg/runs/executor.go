package runs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codeready-toolchain/agentcore/ent"
	"github.com/codeready-toolchain/agentcore/pkg/queue"
)

// StepResult is the outcome of running a single plan step.
type StepResult struct {
	Output      map[string]interface{}
	Retryable   bool
	Err         error
}

// StepRunner executes one plan step (an LLM call, tool call, or sandbox
// call) and persists its output keyed by idempotencyKey, so that
// replaying an already-committed step is a cheap no-op (spec §4.1
// "Crash recovery" — "each side-effecting call is deduplicated at the
// store by its idempotency key"). The concrete implementation is
// pkg/steprunner, which composes pkg/billing (pre/post-call accounting),
// pkg/llmgateway, and pkg/sandbox; this package depends only on the
// interface.
type StepRunner interface {
	RunStep(ctx context.Context, runID string, phase Phase, step Step, idempotencyKey string) StepResult
}

// PlanDecomposer turns a run's prompt into a Plan (DECOMPOSING state).
// Concrete implementation lives alongside pkg/llmgateway; this package
// only needs the interface to drive the state machine.
type PlanDecomposer interface {
	Decompose(ctx context.Context, prompt string) (Plan, error)
}

// Executor drives a single Run from its current state through to a
// terminal state, implementing queue.RunExecutor. It owns the
// orchestrator's internal state-machine transitions; the worker pool
// only handles claiming, lease renewal, and terminal job bookkeeping.
type Executor struct {
	client     *ent.Client
	machine    *Machine
	decomposer PlanDecomposer
	steps      StepRunner
}

// NewExecutor constructs an Executor.
func NewExecutor(client *ent.Client, decomposer PlanDecomposer, steps StepRunner) *Executor {
	return &Executor{
		client:     client,
		machine:    NewMachine(client),
		decomposer: decomposer,
		steps:      steps,
	}
}

// Execute implements queue.RunExecutor.
func (e *Executor) Execute(ctx context.Context, lease queue.JobLease) *queue.ExecutionResult {
	log := slog.With("run_id", lease.RunID, "worker_id", lease.WorkerID)

	r, err := e.client.Run.Get(ctx, lease.RunID)
	if err != nil {
		return &queue.ExecutionResult{Status: queue.JobOutcomeFailed, Error: fmt.Errorf("loading run: %w", err)}
	}

	if IsTerminal(r.State) {
		return &queue.ExecutionResult{Status: queue.JobOutcomeCompleted}
	}

	state := r.State
	version := r.StateVersion

	for !IsTerminal(state) {
		if cancelled, err := e.machine.ObserveCancelled(ctx, lease.RunID); err == nil && cancelled {
			return &queue.ExecutionResult{Status: queue.JobOutcomeCancelled}
		}
		if err := ctx.Err(); err != nil {
			return &queue.ExecutionResult{Status: queue.JobOutcomeCheckpointed, Error: err}
		}

		next, advanceErr := e.runState(ctx, lease, r, state, version)
		if advanceErr != nil {
			if advanceErr.retryable {
				return &queue.ExecutionResult{Status: queue.JobOutcomeCheckpointed, Error: advanceErr.err}
			}
			if err := e.machine.RecordFailure(ctx, lease, state, version, advanceErr.record()); err != nil {
				log.Error("failed to record terminal failure", "error", err)
			}
			return &queue.ExecutionResult{Status: queue.JobOutcomeFailed, Error: advanceErr.err}
		}

		if err := e.machine.Transition(ctx, lease, state, next, version); err != nil {
			return &queue.ExecutionResult{Status: queue.JobOutcomePreempted, Error: err}
		}

		state = next
		version++
	}

	if state == StateFailed || state == StateCancelled {
		return &queue.ExecutionResult{Status: queue.JobOutcomeFailed}
	}
	return &queue.ExecutionResult{Status: queue.JobOutcomeCompleted}
}

// advanceError distinguishes a retryable transient condition (re-enqueue,
// stay in state) from a non-retryable one (transition to FAILED).
type advanceError struct {
	err       error
	retryable bool
	kind      string
}

func (e *advanceError) record() map[string]interface{} {
	return map[string]interface{}{"kind": e.kind, "message": e.err.Error()}
}

// runState executes the work associated with being in "state" and
// returns the next legal state to transition to.
func (e *Executor) runState(ctx context.Context, lease queue.JobLease, r *ent.Run, state State, version int64) (State, *advanceError) {
	switch state {
	case StateCreated:
		return StateValidating, nil

	case StateValidating:
		if r.Prompt == "" {
			return "", &advanceError{err: fmt.Errorf("empty prompt"), kind: "InvalidPlan"}
		}
		return StateDecomposing, nil

	case StateDecomposing:
		plan, err := e.decomposer.Decompose(ctx, r.Prompt)
		if err != nil {
			return "", &advanceError{err: err, retryable: true}
		}
		if err := e.client.Run.UpdateOneID(r.ID).SetPlan(planToMap(plan)).Exec(ctx); err != nil {
			return "", &advanceError{err: fmt.Errorf("persisting plan: %w", err), retryable: true}
		}
		return StateScheduling, nil

	case StateScheduling:
		return StateExecuting, nil

	case StateExecuting:
		plan := mapToPlan(r.Plan)
		if err := e.executePhases(ctx, lease, r.ID, plan); err != nil {
			if err.retryable {
				return "", err
			}
			return "", err
		}
		return StateAggregating, nil

	case StateAggregating:
		return StateFinalizing, nil

	case StateFinalizing:
		return StateCompleted, nil

	default:
		return "", &advanceError{err: fmt.Errorf("no work defined for state %s", state), kind: "InternalError"}
	}
}

// executePhases runs every phase in dependency order, resuming from the
// latest checkpoint (spec §4.1 "Per-phase execution" and "Crash
// recovery").
func (e *Executor) executePhases(ctx context.Context, lease queue.JobLease, runID string, plan Plan) *advanceError {
	ordered := plan.ToOrderedPhases()

	resumeIndex, resumeKeys, err := e.resumePoint(ctx, runID, ordered)
	if err != nil {
		return &advanceError{err: err, retryable: true}
	}

	for i := resumeIndex; i < len(ordered); i++ {
		phase := ordered[i]

		if err := writePhaseStart(ctx, e.client, runID, phase, i); err != nil {
			return &advanceError{err: err, retryable: true}
		}

		committed := resumeKeys
		if i != resumeIndex {
			committed = map[string]bool{}
		}

		accumulator := map[string]interface{}{}
		for _, step := range phase.Steps {
			key := fmt.Sprintf("%s:%s:%s", runID, phase.ID, step.ID)
			if committed[key] {
				continue // already committed before crash; dedup per spec §4.1.
			}

			result := e.steps.RunStep(ctx, runID, phase, step, key)
			if result.Err != nil {
				if result.Retryable {
					return &advanceError{err: result.Err, retryable: true}
				}
				return &advanceError{err: result.Err, kind: "StepFailed"}
			}

			for k, v := range result.Output {
				accumulator[k] = v
			}
			committed[key] = true
		}

		keys := make([]string, 0, len(committed))
		for k := range committed {
			keys = append(keys, k)
		}
		if err := writePhaseComplete(ctx, e.client, runID, phase, i, accumulator, keys); err != nil {
			return &advanceError{err: err, retryable: true}
		}
	}

	return nil
}

// resumePoint inspects the latest checkpoint to decide which phase index
// to resume from and which step keys of that phase are already
// committed.
func (e *Executor) resumePoint(ctx context.Context, runID string, ordered []Phase) (int, map[string]bool, error) {
	cp, err := latestCheckpoint(ctx, e.client, runID)
	if err != nil {
		return 0, nil, err
	}
	if cp == nil {
		return 0, map[string]bool{}, nil
	}

	if cp.Kind == "phase_complete" {
		return int(cp.PhaseIndex) + 1, map[string]bool{}, nil
	}
	// phase_start with no matching phase_complete: resume this phase,
	// replaying from step 0. A phase_start checkpoint records no committed
	// keys, so every step runs again under its idempotency key.
	return int(cp.PhaseIndex), committedStepKeys(cp), nil
}

func planToMap(p Plan) map[string]interface{} {
	out := map[string]interface{}{"goal": p.Goal}
	phases := make([]interface{}, len(p.Phases))
	for i, ph := range p.Phases {
		phases[i] = map[string]interface{}{
			"id": ph.ID, "name": ph.Name, "description": ph.Description,
			"depends_on": ph.DependsOn, "tools": ph.Tools, "outputs": ph.Outputs,
			"risk_level": ph.RiskLevel, "estimated_duration_seconds": ph.EstimatedDuration,
		}
	}
	out["phases"] = phases
	return out
}

func mapToPlan(m map[string]interface{}) Plan {
	// Defensive decode: the store round-trips whatever planToMap wrote.
	// A malformed/missing plan yields an empty Plan rather than panicking;
	// executePhases then simply has no phases to run.
	var p Plan
	if m == nil {
		return p
	}
	if goal, ok := m["goal"].(string); ok {
		p.Goal = goal
	}
	phasesRaw, ok := m["phases"].([]interface{})
	if !ok {
		return p
	}
	for _, raw := range phasesRaw {
		pm, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		var ph Phase
		ph.ID, _ = pm["id"].(string)
		ph.Name, _ = pm["name"].(string)
		ph.Description, _ = pm["description"].(string)
		ph.DependsOn = toStringSlice(pm["depends_on"])
		ph.Tools = toStringSlice(pm["tools"])
		ph.Outputs = toStringSlice(pm["outputs"])
		if rl, ok := pm["risk_level"].(float64); ok {
			ph.RiskLevel = rl
		}
		if ed, ok := pm["estimated_duration_seconds"].(float64); ok {
			ph.EstimatedDuration = ed
		}
		p.Phases = append(p.Phases, ph)
	}
	return p
}

func toStringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
