package planscorer

import (
	"fmt"
	"time"

	"github.com/codeready-toolchain/agentcore/pkg/runs"
)

// Budget bounds are the exact abort-condition constants from spec §4.2.
const (
	MaxPlanningElapsed  = 30 * time.Second
	MaxRepairElapsed    = 60 * time.Second
	MaxSingleRepair     = 15 * time.Second
	MaxRepairAttempts   = 3
	MaxRegenerations    = 2
	MaxPhases           = 15
	MaxPhaseDuration    = 10 * time.Minute
	MaxTotalPlanDuration = 60 * time.Minute
)

// AbortReason names why a planning session was aborted.
type AbortReason string

const (
	AbortPlanningTimeExceeded    AbortReason = "planning_time_exceeded"
	AbortRepairTimeExceeded      AbortReason = "repair_time_exceeded"
	AbortSingleRepairTooSlow     AbortReason = "single_repair_too_slow"
	AbortTooManyRepairAttempts   AbortReason = "too_many_repair_attempts"
	AbortTooManyRegenerations    AbortReason = "too_many_regenerations"
	AbortTooManyPhases           AbortReason = "too_many_phases"
	AbortPhaseDurationTooLong    AbortReason = "phase_duration_too_long"
	AbortTotalDurationTooLong    AbortReason = "total_duration_too_long"
)

// Session tracks one plan's repair/regeneration budget across the
// ACCEPT/REPAIR/REGENERATE loop (spec §4.2 "Budgets").
type Session struct {
	RunID  string
	PlanID string

	startedAt         time.Time
	repairElapsed     time.Duration
	repairAttempts    int
	regenerationCount int
}

// NewSession starts a fresh budget-tracking session for one run.
func NewSession(runID, planID string) *Session {
	return &Session{RunID: runID, PlanID: planID, startedAt: time.Now()}
}

// CheckPlan validates static plan-shape limits (phase count, per-phase
// and total estimated duration) independent of elapsed wall-clock time.
func CheckPlan(plan runs.Plan) (AbortReason, bool) {
	if len(plan.Phases) > MaxPhases {
		return AbortTooManyPhases, true
	}

	var total time.Duration
	for _, ph := range plan.Phases {
		d := time.Duration(ph.EstimatedDuration * float64(time.Second))
		if d > MaxPhaseDuration {
			return AbortPhaseDurationTooLong, true
		}
		total += d
	}
	if total > MaxTotalPlanDuration {
		return AbortTotalDurationTooLong, true
	}

	return "", false
}

// CheckElapsed validates the wall-clock and attempt-count budgets.
// Called before starting a repair or regeneration attempt.
func (s *Session) CheckElapsed() (AbortReason, bool) {
	if time.Since(s.startedAt) > MaxPlanningElapsed {
		return AbortPlanningTimeExceeded, true
	}
	if s.repairElapsed > MaxRepairElapsed {
		return AbortRepairTimeExceeded, true
	}
	if s.repairAttempts > MaxRepairAttempts {
		return AbortTooManyRepairAttempts, true
	}
	if s.regenerationCount > MaxRegenerations {
		return AbortTooManyRegenerations, true
	}
	return "", false
}

// RecordRepair accounts for one completed repair attempt, returning an
// abort reason if the single-repair ceiling was exceeded.
func (s *Session) RecordRepair(duration time.Duration) (AbortReason, bool) {
	s.repairAttempts++
	s.repairElapsed += duration
	if duration > MaxSingleRepair {
		return AbortSingleRepairTooSlow, true
	}
	return s.CheckElapsed()
}

// RecordRegeneration accounts for one completed regeneration attempt.
func (s *Session) RecordRegeneration() (AbortReason, bool) {
	s.regenerationCount++
	return s.CheckElapsed()
}

// RepairAttempts returns the number of repair attempts recorded so far.
func (s *Session) RepairAttempts() int { return s.repairAttempts }

// RegenerationCount returns the number of regenerations recorded so far.
func (s *Session) RegenerationCount() int { return s.regenerationCount }

// Elapsed returns total wall-clock time since the session started.
func (s *Session) Elapsed() time.Duration { return time.Since(s.startedAt) }

func (r AbortReason) Error() string {
	return fmt.Sprintf("plan scoring aborted: %s", string(r))
}
