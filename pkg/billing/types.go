// Package billing implements the token-billing ledger: pre-call budget
// estimation, atomic post-call charging, degraded-mode fallback, and
// run-termination reconciliation (spec §4.3).
package billing

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Mode is the billing service's current operating mode (spec §4.3
// "Modes").
type Mode string

const (
	ModeNormal   Mode = "normal"
	ModeDegraded Mode = "degraded"
	ModeReadOnly Mode = "read_only"
	ModeDisabled Mode = "disabled"
)

// RejectReason names why PreCallCheck refused to authorize a call.
type RejectReason string

const (
	RejectInsufficientCredits RejectReason = "InsufficientCredits"
	RejectPerCallLimit        RejectReason = "PerCallLimit"
	RejectRunBudget           RejectReason = "RunBudget"
	RejectRateLimit           RejectReason = "RateLimit"
)

// RejectedError is returned by PreCallCheck when a call is refused.
type RejectedError struct {
	Reason RejectReason
	Detail string
}

func (e *RejectedError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return string(e.Reason) + ": " + e.Detail
}

var (
	// ErrUnknownModel is returned when no price-table entry exists for a model.
	ErrUnknownModel = errors.New("billing: unknown model in price table")
)

// PriceTable maps model id to per-token input/output rates.
type PriceTable map[string]ModelPrice

// ModelPrice is the per-token price for one model, in USD.
type ModelPrice struct {
	InputPerToken  decimal.Decimal
	OutputPerToken decimal.Decimal
}

// Cost computes input_tokens*InputPerToken + output_tokens*OutputPerToken.
func (p ModelPrice) Cost(inputTokens, outputTokens int) decimal.Decimal {
	in := decimal.NewFromInt(int64(inputTokens)).Mul(p.InputPerToken)
	out := decimal.NewFromInt(int64(outputTokens)).Mul(p.OutputPerToken)
	return in.Add(out)
}

// PreCallRequest describes a pending LLM call awaiting budget approval.
type PreCallRequest struct {
	OrgID           string
	RunID           string
	Model           string
	InputTokens     int
	MaxOutputTokens int
	RunBudget       *decimal.Decimal // optional run-scoped budget ceiling
}

// PreCallApproval is returned on a successful PreCallCheck.
type PreCallApproval struct {
	BudgetedAmount decimal.Decimal
}

// PostCallUsage describes the actual usage of a completed LLM call.
type PostCallUsage struct {
	OrgID        string
	RunID        string
	StepID       string
	Model        string
	Provider     string
	InputTokens  int
	OutputTokens int
}

// OrgRateLimiter enforces the per-org sliding-minute request/token caps
// ahead of pre-call estimation (spec §4.3 "Rate limiting"). Concrete
// implementation lives in pkg/ratelimit; billing depends only on this
// narrow contract.
type OrgRateLimiter interface {
	AllowRequest(orgID string) bool
	AllowTokens(orgID string, tokens int) bool
}

// Tokenizer estimates the input-token count for a model-specific prompt.
// Concrete implementations live alongside pkg/llmgateway; billing only
// needs the interface so it stays independent of any one provider's
// tokenizer library.
type Tokenizer interface {
	CountTokens(model string, messages []string) (int, error)
}
