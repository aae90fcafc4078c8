package ratelimit

import "time"

// OrgLimiter adapts two Limiter instances (requests-per-minute and
// tokens-per-minute) to pkg/billing's narrow OrgRateLimiter contract,
// keyed per-org (spec §4.3 "Rate limiting" — enforced ahead of pre-call
// estimation).
type OrgLimiter struct {
	requests Limiter
	tokens   Limiter
}

// NewOrgLimiter builds the org-scoped limiter pair from configured
// per-minute caps, using sliding windows per spec §4.3's "sliding-minute
// counters" wording.
func NewOrgLimiter(requestsPerMinute, tokensPerMinute int) *OrgLimiter {
	return &OrgLimiter{
		requests: NewSlidingWindow(requestsPerMinute, time.Minute),
		tokens:   NewSlidingWindow(tokensPerMinute, time.Minute),
	}
}

// AllowRequest implements billing.OrgRateLimiter.
func (o *OrgLimiter) AllowRequest(orgID string) bool {
	return o.requests.Check(orgID).Decision == Allow
}

// AllowTokens implements billing.OrgRateLimiter. The token window is
// incremented once per call regardless of the token count passed in —
// tracking true token volume would need a weighted window variant none
// of the three spec §4.5 algorithms provide.
func (o *OrgLimiter) AllowTokens(orgID string, tokens int) bool {
	if tokens <= 0 {
		return true
	}
	return o.tokens.Check(orgID).Decision == Allow
}
