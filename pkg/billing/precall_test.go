package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

type fakeLimiter struct {
	allowRequest bool
	allowTokens  bool
}

func (f fakeLimiter) AllowRequest(string) bool        { return f.allowRequest }
func (f fakeLimiter) AllowTokens(string, int) bool    { return f.allowTokens }

func TestPreCallCheck_Disabled_AlwaysApproves(t *testing.T) {
	s := testService()
	s.SetDisabled(true)
	approval, err := s.PreCallCheck(context.Background(), PreCallRequest{Model: "nonexistent-model"})
	require.NoError(t, err)
	assert.True(t, approval.BudgetedAmount.IsZero())
}

func TestPreCallCheck_UnknownModel_Errors(t *testing.T) {
	s := testService()
	_, err := s.PreCallCheck(context.Background(), PreCallRequest{OrgID: "org1", Model: "unknown"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownModel))
}

func TestPreCallCheck_RateLimited_Requests(t *testing.T) {
	s := testService()
	s.limits = fakeLimiter{allowRequest: false, allowTokens: true}
	_, err := s.PreCallCheck(context.Background(), PreCallRequest{OrgID: "org1", Model: "gpt-4o"})
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, RejectRateLimit, rejected.Reason)
}

func TestPreCallCheck_RateLimited_Tokens(t *testing.T) {
	s := testService()
	s.limits = fakeLimiter{allowRequest: true, allowTokens: false}
	_, err := s.PreCallCheck(context.Background(), PreCallRequest{OrgID: "org1", Model: "gpt-4o", InputTokens: 100})
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, RejectRateLimit, rejected.Reason)
}

func TestPreCallCheck_PerCallCapExceeded(t *testing.T) {
	s := testService()
	_, err := s.PreCallCheck(context.Background(), PreCallRequest{
		OrgID: "org1", Model: "gpt-4o", InputTokens: 10_000_000, MaxOutputTokens: 10_000_000,
	})
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, RejectPerCallLimit, rejected.Reason)
}

func TestPreCallCheck_RunBudgetExceeded(t *testing.T) {
	s := testService()
	small := mustDecimal(t, "0.0001")
	_, err := s.PreCallCheck(context.Background(), PreCallRequest{
		OrgID: "org1", Model: "gpt-4o", InputTokens: 1000, MaxOutputTokens: 1000, RunBudget: &small,
	})
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, RejectRunBudget, rejected.Reason)
}
