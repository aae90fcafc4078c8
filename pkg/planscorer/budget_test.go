package planscorer

import (
	"testing"
	"time"

	"github.com/codeready-toolchain/agentcore/pkg/runs"
	"github.com/stretchr/testify/assert"
)

func TestCheckPlan_TooManyPhases(t *testing.T) {
	phases := make([]runs.Phase, MaxPhases+1)
	for i := range phases {
		phases[i] = runs.Phase{ID: "p"}
	}
	reason, aborted := CheckPlan(runs.Plan{Phases: phases})
	assert.True(t, aborted)
	assert.Equal(t, AbortTooManyPhases, reason)
}

func TestCheckPlan_PhaseDurationTooLong(t *testing.T) {
	plan := runs.Plan{Phases: []runs.Phase{{ID: "p", EstimatedDuration: 11 * 60}}}
	reason, aborted := CheckPlan(plan)
	assert.True(t, aborted)
	assert.Equal(t, AbortPhaseDurationTooLong, reason)
}

func TestCheckPlan_TotalDurationTooLong(t *testing.T) {
	plan := runs.Plan{Phases: []runs.Phase{
		{ID: "a", EstimatedDuration: 35 * 60},
		{ID: "b", EstimatedDuration: 30 * 60},
	}}
	reason, aborted := CheckPlan(plan)
	assert.True(t, aborted)
	assert.Equal(t, AbortTotalDurationTooLong, reason)
}

func TestCheckPlan_WithinBudget_NotAborted(t *testing.T) {
	plan := runs.Plan{Phases: []runs.Phase{{ID: "a", EstimatedDuration: 60}}}
	_, aborted := CheckPlan(plan)
	assert.False(t, aborted)
}

func TestSession_RecordRepair_TooSlow(t *testing.T) {
	s := NewSession("run-1", "plan-1")
	reason, aborted := s.RecordRepair(16 * time.Second)
	assert.True(t, aborted)
	assert.Equal(t, AbortSingleRepairTooSlow, reason)
}

func TestSession_RecordRepair_TooManyAttempts(t *testing.T) {
	s := NewSession("run-1", "plan-1")
	var reason AbortReason
	var aborted bool
	for i := 0; i < MaxRepairAttempts+1; i++ {
		reason, aborted = s.RecordRepair(0)
	}
	assert.True(t, aborted)
	assert.Equal(t, AbortTooManyRepairAttempts, reason)
	assert.Equal(t, MaxRepairAttempts+1, s.RepairAttempts())
}

func TestSession_RecordRegeneration_TooMany(t *testing.T) {
	s := NewSession("run-1", "plan-1")
	var reason AbortReason
	var aborted bool
	for i := 0; i < MaxRegenerations+1; i++ {
		reason, aborted = s.RecordRegeneration()
	}
	assert.True(t, aborted)
	assert.Equal(t, AbortTooManyRegenerations, reason)
	assert.Equal(t, MaxRegenerations+1, s.RegenerationCount())
}
