package billing

import (
	"testing"
	"time"

	"github.com/codeready-toolchain/agentcore/pkg/config"
	"github.com/stretchr/testify/assert"
)

func testService() *Service {
	cfg := &config.BillingConfig{
		SafetyBufferPct:  0.20,
		PerCallCapUSD:    5.00,
		FailureThreshold: 3,
		RecoveryInterval: config.Duration(30 * time.Second),
		MaxRetries:       2,
		PriceTable: map[string]config.ModelPrice{
			"gpt-4o": {InputPerToken: 0.000005, OutputPerToken: 0.000015},
		},
	}
	return NewService(nil, cfg, nil)
}

func TestService_RecordFailure_TripsReadOnlyAtThreshold(t *testing.T) {
	s := testService()
	for i := 0; i < 2; i++ {
		s.recordFailure()
		assert.Equal(t, ModeNormal, s.Mode())
	}
	s.recordFailure()
	assert.Equal(t, ModeReadOnly, s.Mode())
}

func TestService_RecordSuccess_ResetsFailureCount(t *testing.T) {
	s := testService()
	s.recordFailure()
	s.recordFailure()
	s.recordSuccess()
	s.recordFailure()
	s.recordFailure()
	assert.Equal(t, ModeNormal, s.Mode(), "failure count should have reset on success")
}

func TestService_RecordSuccess_RecoversAfterInterval(t *testing.T) {
	s := testService()
	s.cfg.RecoveryInterval = config.Duration(1 * time.Millisecond)
	s.recordFailure()
	s.recordFailure()
	s.recordFailure()
	require := assert.New(t)
	require.Equal(ModeReadOnly, s.Mode())

	time.Sleep(5 * time.Millisecond)
	s.recordSuccess()
	require.Equal(ModeNormal, s.Mode())
}

func TestService_SetDisabled_TogglesMode(t *testing.T) {
	s := testService()
	s.SetDisabled(true)
	assert.Equal(t, ModeDisabled, s.Mode())
	s.SetDisabled(false)
	assert.Equal(t, ModeNormal, s.Mode())
}
