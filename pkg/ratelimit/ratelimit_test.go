package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucket_AllowsUpToCapacityThenDenies(t *testing.T) {
	b := NewTokenBucket(0.001, 3)
	for i := 0; i < 3; i++ {
		assert.Equal(t, Allow, b.Check("k").Decision)
	}
	res := b.Check("k")
	assert.Equal(t, Deny, res.Decision)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestTokenBucket_SeparateKeysIndependent(t *testing.T) {
	b := NewTokenBucket(0.001, 1)
	assert.Equal(t, Allow, b.Check("a").Decision)
	assert.Equal(t, Allow, b.Check("b").Decision)
	assert.Equal(t, Deny, b.Check("a").Decision)
}

func TestSlidingWindow_AdmitsUnderLimitThenDenies(t *testing.T) {
	w := NewSlidingWindow(2, time.Minute)
	assert.Equal(t, Allow, w.Check("k").Decision)
	assert.Equal(t, Allow, w.Check("k").Decision)
	res := w.Check("k")
	assert.Equal(t, Deny, res.Decision)
	assert.Equal(t, 0, res.Remaining)
}

func TestSlidingWindow_ExpiredEntriesAreTrimmed(t *testing.T) {
	w := NewSlidingWindow(1, 10*time.Millisecond)
	assert.Equal(t, Allow, w.Check("k").Decision)
	assert.Equal(t, Deny, w.Check("k").Decision)
	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, Allow, w.Check("k").Decision)
}

func TestFixedWindow_AdmitsUpToLimitWithinBucket(t *testing.T) {
	w := NewFixedWindow(2, time.Minute)
	assert.Equal(t, Allow, w.Check("k").Decision)
	assert.Equal(t, Allow, w.Check("k").Decision)
	assert.Equal(t, Deny, w.Check("k").Decision)
}

func TestFixedWindow_ResetsInNextBucket(t *testing.T) {
	w := NewFixedWindow(1, 10*time.Millisecond)
	assert.Equal(t, Allow, w.Check("k").Decision)
	assert.Equal(t, Deny, w.Check("k").Decision)
	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, Allow, w.Check("k").Decision)
}

func TestOrgLimiter_DeniesWhenRequestWindowExhausted(t *testing.T) {
	o := NewOrgLimiter(1, 100)
	assert.True(t, o.AllowRequest("org1"))
	assert.False(t, o.AllowRequest("org1"))
}

func TestOrgLimiter_ZeroTokensAlwaysAllowed(t *testing.T) {
	o := NewOrgLimiter(10, 0)
	assert.True(t, o.AllowTokens("org1", 0))
}
