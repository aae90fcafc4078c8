package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentcore/pkg/config"
)

func TestSign_VerifiesOnlyWithSameSecret(t *testing.T) {
	payload := NewPayload("run.completed", map[string]any{"run_id": "r1"}, time.Unix(1700000000, 0))
	body, err := canonicalJSON(payload)
	require.NoError(t, err)

	sig := sign("shh", 1700000000, body)
	assert.True(t, Verify("shh", 1700000000, body, sig))
	assert.False(t, Verify("wrong-secret", 1700000000, body, sig))
}

func TestCanonicalJSON_IsDeterministicRegardlessOfMapInsertionOrder(t *testing.T) {
	a := NewPayload("e", map[string]any{"b": 2, "a": 1, "c": 3}, time.Unix(0, 0))
	b := NewPayload("e", map[string]any{"c": 3, "a": 1, "b": 2}, time.Unix(0, 0))

	bodyA, err := canonicalJSON(a)
	require.NoError(t, err)
	bodyB, err := canonicalJSON(b)
	require.NoError(t, err)

	assert.Equal(t, bodyA, bodyB)
}

func TestSignatureHeader_HasSha256Prefix(t *testing.T) {
	assert.Equal(t, "sha256=deadbeef", signatureHeader("deadbeef"))
}

func TestVerifyRequest_RejectsStaleTimestamp(t *testing.T) {
	cfg := &config.WebhookConfig{MaxSkew: config.Duration(5 * time.Minute)}
	payload := NewPayload("e", nil, time.Unix(1700000000, 0))
	body, err := canonicalJSON(payload)
	require.NoError(t, err)

	sig := sign("s", 1700000000, body)
	now := time.Unix(1700000000, 0).Add(10 * time.Minute)

	assert.False(t, VerifyRequest(cfg, "s", 1700000000, body, sig, now))
	assert.True(t, VerifyRequest(cfg, "s", 1700000000, body, sig, time.Unix(1700000000, 0).Add(time.Minute)))
}
