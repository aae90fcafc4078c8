// Package llmgateway is the provider-agnostic LLM client: a single
// complete/stream shape (spec §6 "LLM provider interface (consumed)")
// with fallback and retry across interchangeable providers, generalized
// from the teacher's single gRPC-backed provider to multiple swappable
// ones keyed by model id.
package llmgateway

import (
	"context"
	"errors"
)

// Role mirrors spec §6's conversation message roles.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of the conversation sent to a provider.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	ToolName   string
}

// ToolDefinition describes a tool available to the model.
type ToolDefinition struct {
	Name             string
	Description      string
	ParametersSchema string
}

// ToolCall is a model's request to call a tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolChoice steers whether/which tool the model should call.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceNone     ToolChoice = "none"
	ToolChoiceRequired ToolChoice = "required"
)

// StopReason names why a completion ended.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// CompleteRequest is the provider-agnostic call shape of spec §6.
type CompleteRequest struct {
	Messages    []Message
	Model       string
	System      string
	MaxTokens   int
	Temperature float64
	Tools       []ToolDefinition
	ToolChoice  ToolChoice
}

// CompleteResult is the provider-agnostic response shape of spec §6.
type CompleteResult struct {
	Content      string
	InputTokens  int
	OutputTokens int
	ToolCalls    []ToolCall
	StopReason   StopReason
	CostUSD      float64
	LatencyMs    int64
	Provider     string
}

// Chunk is one piece of a streaming completion.
type Chunk struct {
	Content   string
	ToolCall  *ToolCall
	Usage     *CompleteResult // populated on the final chunk only
	Err       error
}

// Provider is satisfied by each concrete LLM backend. Complete is
// required; Stream is optional (providers that don't support it return
// ErrStreamingUnsupported).
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompleteRequest) (CompleteResult, error)
	Stream(ctx context.Context, req CompleteRequest) (<-chan Chunk, error)
}

var (
	// ErrStreamingUnsupported is returned by a Provider.Stream that
	// doesn't implement streaming.
	ErrStreamingUnsupported = errors.New("llmgateway: provider does not support streaming")
	// ErrNoProviderForModel is returned when no provider/route covers a model id.
	ErrNoProviderForModel = errors.New("llmgateway: no provider routes this model")
	// ErrAllProvidersFailed is returned when the primary and every
	// fallback provider failed (spec §7 "TransientProvider ... falls back
	// to the configured fallback provider, then surfaced").
	ErrAllProvidersFailed = errors.New("llmgateway: all providers failed")
)

// TransientError wraps a provider failure classified as retryable/
// fallback-eligible (spec §7 "TransientProvider — LLM 5xx/timeout/
// connection error").
type TransientError struct {
	Provider string
	Err      error
}

func (e *TransientError) Error() string {
	return "transient provider error (" + e.Provider + "): " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }
