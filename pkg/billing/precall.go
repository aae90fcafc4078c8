package billing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// PreCallCheck implements spec §4.3's pre-call contract: estimate cost,
// apply the safety buffer, and reject with a typed reason if the org
// cannot afford the call or has exceeded a configured limit.
func (s *Service) PreCallCheck(ctx context.Context, req PreCallRequest) (PreCallApproval, error) {
	if s.isDisabled() {
		return PreCallApproval{}, nil
	}

	if s.limits != nil {
		if !s.limits.AllowRequest(req.OrgID) {
			return PreCallApproval{}, &RejectedError{Reason: RejectRateLimit, Detail: "org request rate exceeded"}
		}
		if !s.limits.AllowTokens(req.OrgID, req.InputTokens+req.MaxOutputTokens) {
			return PreCallApproval{}, &RejectedError{Reason: RejectRateLimit, Detail: "org token rate exceeded"}
		}
	}

	price, ok := s.prices[req.Model]
	if !ok {
		return PreCallApproval{}, fmt.Errorf("%w: %s", ErrUnknownModel, req.Model)
	}

	base := price.Cost(req.InputTokens, req.MaxOutputTokens)
	buffer := decimal.NewFromFloat(1 + s.cfg.SafetyBufferPct)
	budgeted := base.Mul(buffer)

	capUSD := decimal.NewFromFloat(s.cfg.PerCallCapUSD)
	if s.cfg.PerCallCapUSD > 0 && budgeted.GreaterThan(capUSD) {
		return PreCallApproval{}, &RejectedError{Reason: RejectPerCallLimit, Detail: budgeted.String()}
	}

	if req.RunBudget != nil && budgeted.GreaterThan(*req.RunBudget) {
		return PreCallApproval{}, &RejectedError{Reason: RejectRunBudget, Detail: budgeted.String()}
	}

	// read_only mode lets calls through without a balance check — there
	// is no reliable ledger to check against (spec §4.3 "read_only
	// silently allows operations to proceed").
	if !s.isReadOnly() {
		available, err := availableBalance(ctx, s.client, req.OrgID)
		if err != nil {
			s.recordFailure()
			return PreCallApproval{}, fmt.Errorf("checking available balance: %w", err)
		}
		if available.LessThan(budgeted) {
			return PreCallApproval{}, &RejectedError{Reason: RejectInsufficientCredits, Detail: available.String()}
		}
	}

	return PreCallApproval{BudgetedAmount: budgeted}, nil
}
