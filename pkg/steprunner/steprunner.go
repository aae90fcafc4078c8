// Package steprunner composes pkg/llmgateway, pkg/billing, and
// pkg/sandbox into the concrete pkg/runs.StepRunner used by the
// orchestrator's Executor to run one plan step at a time (spec §4.1
// "Per-phase execution").
package steprunner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codeready-toolchain/agentcore/ent"
	"github.com/codeready-toolchain/agentcore/ent/stepresult"
	"github.com/codeready-toolchain/agentcore/pkg/billing"
	"github.com/codeready-toolchain/agentcore/pkg/llmgateway"
	"github.com/codeready-toolchain/agentcore/pkg/runs"
	"github.com/codeready-toolchain/agentcore/pkg/sandbox"
	"github.com/google/uuid"
)

// defaultExecTimeout bounds a single sandbox call when a step doesn't
// specify one, so a hung shell command can't stall a worker forever.
const defaultExecTimeout = 2 * time.Minute

// Runner implements runs.StepRunner by dispatching on step kind: LLM
// completions go through the billing pre/post-call gate and the
// provider gateway, sandbox/tool steps go through the sandbox manager.
type Runner struct {
	client          *ent.Client
	gateway         *llmgateway.Gateway
	billing         *billing.Service
	sandboxMgr      *sandbox.Manager
	sandboxProvider sandbox.Provider
	sandboxTier     string
}

// New constructs a Runner. sandboxTier names the sandbox.Manager tier
// used for every sandbox step unless the step specifies one in its
// Input (key "tier").
func New(client *ent.Client, gateway *llmgateway.Gateway, billingSvc *billing.Service, sandboxMgr *sandbox.Manager, sandboxProvider sandbox.Provider, sandboxTier string) *Runner {
	return &Runner{
		client:          client,
		gateway:         gateway,
		billing:         billingSvc,
		sandboxMgr:      sandboxMgr,
		sandboxProvider: sandboxProvider,
		sandboxTier:     sandboxTier,
	}
}

// RunStep implements runs.StepRunner.
func (r *Runner) RunStep(ctx context.Context, runID string, phase runs.Phase, step runs.Step, idempotencyKey string) runs.StepResult {
	switch step.Kind {
	case runs.StepKindLLM:
		return r.runLLMStep(ctx, runID, step, idempotencyKey)
	case runs.StepKindSandbox, runs.StepKindTool:
		return r.runSandboxStep(ctx, runID, phase, step, idempotencyKey)
	default:
		return runs.StepResult{Err: fmt.Errorf("steprunner: unknown step kind %q", step.Kind)}
	}
}

// runLLMStep runs one LLM completion, gated by the billing pre-call
// budget check and recorded via the post-call usage ledger (spec
// §4.3's PreCallCheck/RecordUsage pair).
func (r *Runner) runLLMStep(ctx context.Context, runID string, step runs.Step, idempotencyKey string) runs.StepResult {
	run, err := r.client.Run.Get(ctx, runID)
	if err != nil {
		return runs.StepResult{Err: fmt.Errorf("loading run for billing: %w", err), Retryable: true}
	}

	prompt, _ := step.Input["prompt"].(string)
	estimatedInputTokens := estimateTokens(prompt)
	estimatedOutputTokens := 1024

	if r.billing != nil {
		_, err := r.billing.PreCallCheck(ctx, billing.PreCallRequest{
			OrgID:           run.TenantID,
			RunID:           runID,
			Model:           step.Model,
			InputTokens:     estimatedInputTokens,
			MaxOutputTokens: estimatedOutputTokens,
		})
		if err != nil {
			return runs.StepResult{Err: err}
		}
	}

	result, err := r.gateway.Complete(ctx, llmgateway.CompleteRequest{
		Messages:  []llmgateway.Message{{Role: llmgateway.RoleUser, Content: prompt}},
		Model:     step.Model,
		MaxTokens: estimatedOutputTokens,
	})
	if err != nil {
		var transient *llmgateway.TransientError
		return runs.StepResult{Err: err, Retryable: errors.As(err, &transient)}
	}

	if r.billing != nil {
		// A ledger-write failure doesn't invalidate a completion the
		// caller already paid provider-side for; pkg/billing's own
		// degraded-mode handling governs future calls, so the error is
		// not passed on and the step succeeds with the completion.
		_ = r.billing.RecordUsage(ctx, billing.PostCallUsage{
			OrgID:        run.TenantID,
			RunID:        runID,
			StepID:       idempotencyKey,
			Model:        step.Model,
			Provider:     result.Provider,
			InputTokens:  result.InputTokens,
			OutputTokens: result.OutputTokens,
		})
	}

	return runs.StepResult{
		Output: map[string]interface{}{
			"content":       result.Content,
			"input_tokens":  result.InputTokens,
			"output_tokens": result.OutputTokens,
			"stop_reason":   string(result.StopReason),
		},
	}
}

// runSandboxStep runs one shell/tool step inside the run's sandbox
// environment, creating it on first use (spec §4.4 "get_or_create").
//
// Unlike an LLM step, which gets replay protection for free from the
// billing ledger's own idempotency key, a shell command has no
// downstream ledger to dedup against — re-running it on replay would
// re-run its side effects. The checkpoint's committed_step_keys only
// records a step once its whole phase finishes, leaving a crash window
// between a command executing and its phase completing. A persisted
// StepResult row closes that window: it's checked before executing and
// written immediately after, independent of phase-complete.
func (r *Runner) runSandboxStep(ctx context.Context, runID string, phase runs.Phase, step runs.Step, idempotencyKey string) runs.StepResult {
	if r.client != nil {
		if prior, err := r.client.StepResult.Query().
			Where(stepresult.IdempotencyKeyEQ(idempotencyKey)).
			Only(ctx); err == nil {
			return runs.StepResult{Output: prior.Output}
		} else if !ent.IsNotFound(err) {
			return runs.StepResult{Err: fmt.Errorf("checking step result: %w", err), Retryable: true}
		}
	}

	if r.sandboxMgr == nil {
		return runs.StepResult{Err: fmt.Errorf("steprunner: sandbox step requested but no sandbox manager configured")}
	}

	tier := r.sandboxTier
	if t, ok := step.Input["tier"].(string); ok && t != "" {
		tier = t
	}

	handle, err := r.sandboxMgr.GetOrCreate(ctx, runID, sandbox.EnvConfig{Tier: tier})
	if err != nil {
		return runs.StepResult{Err: fmt.Errorf("acquiring sandbox: %w", err), Retryable: true}
	}

	command, _ := step.Input["command"].(string)
	if command == "" {
		command = step.Tool
	}

	res, err := handle.ExecuteShell(ctx, r.sandboxProvider, command, defaultExecTimeout)
	if err != nil {
		return runs.StepResult{Err: fmt.Errorf("executing sandbox command: %w", err), Retryable: true}
	}

	output := map[string]interface{}{
		"exit_code": res.ExitCode,
		"stdout":    res.Stdout,
		"stderr":    res.Stderr,
		"timed_out": res.TimedOut,
	}

	if r.client != nil {
		createErr := r.client.StepResult.Create().
			SetID(uuid.NewString()).
			SetRunID(runID).
			SetPhaseID(phase.ID).
			SetStepID(step.ID).
			SetIdempotencyKey(idempotencyKey).
			SetOutput(output).
			Exec(ctx)
		if createErr != nil && !ent.IsConstraintError(createErr) {
			return runs.StepResult{Output: output, Err: fmt.Errorf("persisting step result: %w", createErr)}
		}
	}

	return runs.StepResult{Output: output}
}

// estimateTokens is a coarse ~4-chars-per-token heuristic used only to
// size the pre-call budget check; the post-call ledger entry is always
// based on the provider's actual reported token counts.
func estimateTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	return len(s)/4 + 1
}
