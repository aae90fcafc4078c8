package llmgateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/codeready-toolchain/agentcore/pkg/runs"
)

// decomposerSystemPrompt instructs the model to emit a Plan as JSON
// matching runs.Plan's field tags exactly, so the response can be
// unmarshaled with no intermediate representation.
const decomposerSystemPrompt = `You turn a user goal into a structured execution plan.
Respond with ONLY a JSON object of the form:
{"goal": "...", "phases": [{"id": "...", "name": "...", "description": "...",
"depends_on": ["..."], "tools": ["..."], "outputs": ["..."], "risk_level": 0.0,
"estimated_duration_seconds": 0, "steps": [{"id": "...", "kind": "llm|tool|sandbox",
"model": "...", "tool": "...", "input": {}}]}]}
No prose, no markdown fences.`

// Decomposer adapts a Gateway into runs.PlanDecomposer (spec §4.1
// DECOMPOSING state), asking the routed model to emit a Plan as JSON.
type Decomposer struct {
	gateway *Gateway
	model   string
}

// NewDecomposer constructs a Decomposer that routes through gateway
// using model for every decomposition call.
func NewDecomposer(gateway *Gateway, model string) *Decomposer {
	return &Decomposer{gateway: gateway, model: model}
}

// Decompose implements runs.PlanDecomposer.
func (d *Decomposer) Decompose(ctx context.Context, prompt string) (runs.Plan, error) {
	res, err := d.gateway.Complete(ctx, CompleteRequest{
		Model:     d.model,
		System:    decomposerSystemPrompt,
		MaxTokens: 4096,
		Messages: []Message{
			{Role: RoleUser, Content: prompt},
		},
	})
	if err != nil {
		return runs.Plan{}, fmt.Errorf("decomposing prompt: %w", err)
	}

	var plan runs.Plan
	if err := json.Unmarshal([]byte(res.Content), &plan); err != nil {
		return runs.Plan{}, fmt.Errorf("parsing plan JSON from model output: %w", err)
	}
	return plan, nil
}
