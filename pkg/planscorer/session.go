package planscorer

import (
	"context"
	"fmt"
	"time"

	"github.com/codeready-toolchain/agentcore/ent"
	"github.com/codeready-toolchain/agentcore/ent/scoringsession"
	"github.com/google/uuid"
)

// RepairRecord is one entry of a ScoringSession's repair_attempts log.
type RepairRecord struct {
	Type        RepairSuggestionType `json:"type"`
	BeforeScore float64              `json:"before_score"`
	AfterScore  float64              `json:"after_score"`
	DurationMs  int64                `json:"duration_ms"`
}

// StartSession creates the ScoringSession row for a run's first plan
// (spec §4.2 "Scoring session") and returns the persisted row.
func StartSession(ctx context.Context, client *ent.Client, runID, planID string) (*ent.ScoringSession, error) {
	row, err := client.ScoringSession.Create().
		SetID(uuid.NewString()).
		SetRunID(runID).
		SetPlanID(planID).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating scoring session for run %s: %w", runID, err)
	}
	return row, nil
}

// RecordScores persists the four sub-scores, composite, and decision for
// the current evaluation of a session's plan.
func RecordScores(ctx context.Context, client *ent.Client, sessionID string, s Scores, decision Decision) error {
	err := client.ScoringSession.UpdateOneID(sessionID).
		SetFeasibility(s.Feasibility).
		SetCompleteness(s.Completeness).
		SetEfficiency(s.Efficiency).
		SetRiskAdjusted(s.RiskAdjusted).
		SetComposite(s.Composite).
		SetDecision(string(decision)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("recording scores for session %s: %w", sessionID, err)
	}
	return nil
}

// RecordRepairAttempt appends one repair attempt to the session's log and
// bumps repair_count.
func RecordRepairAttempt(ctx context.Context, client *ent.Client, sessionID string, rec RepairRecord) error {
	row, err := client.ScoringSession.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("loading session %s: %w", sessionID, err)
	}

	entry := map[string]interface{}{
		"type":         string(rec.Type),
		"before_score": rec.BeforeScore,
		"after_score":  rec.AfterScore,
		"duration_ms":  rec.DurationMs,
	}
	attempts := append(append([]map[string]interface{}{}, row.RepairAttempts...), entry)

	err = client.ScoringSession.UpdateOneID(sessionID).
		SetRepairAttempts(attempts).
		SetRepairCount(row.RepairCount + 1).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("recording repair attempt for session %s: %w", sessionID, err)
	}
	return nil
}

// RecordRegeneration bumps regeneration_count and rebinds the session to
// the freshly regenerated plan's id.
func RecordRegeneration(ctx context.Context, client *ent.Client, sessionID, newPlanID string) error {
	row, err := client.ScoringSession.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("loading session %s: %w", sessionID, err)
	}

	err = client.ScoringSession.UpdateOneID(sessionID).
		SetPlanID(newPlanID).
		SetRegenerationCount(row.RegenerationCount + 1).
		SetStatus(scoringsession.StatusRegenerated).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("recording regeneration for session %s: %w", sessionID, err)
	}
	return nil
}

// Accept marks a session as accepted and stamps completed_at/elapsed_ms.
func Accept(ctx context.Context, client *ent.Client, sessionID string, startedAt time.Time) error {
	return finish(ctx, client, sessionID, scoringsession.StatusAccepted, startedAt, nil)
}

// Abort marks a session as aborted with a reason (spec §4.2 abort
// conditions) and stamps completed_at/elapsed_ms.
func Abort(ctx context.Context, client *ent.Client, sessionID string, startedAt time.Time, reason AbortReason) error {
	r := string(reason)
	return finish(ctx, client, sessionID, scoringsession.StatusAborted, startedAt, &r)
}

func finish(ctx context.Context, client *ent.Client, sessionID string, status scoringsession.Status, startedAt time.Time, abortReason *string) error {
	now := time.Now()
	upd := client.ScoringSession.UpdateOneID(sessionID).
		SetStatus(status).
		SetCompletedAt(now).
		SetElapsedMs(int(now.Sub(startedAt) / time.Millisecond))
	if abortReason != nil {
		upd = upd.SetAbortReason(*abortReason)
	}
	if err := upd.Exec(ctx); err != nil {
		return fmt.Errorf("finishing scoring session %s: %w", sessionID, err)
	}
	return nil
}

// ActiveSession returns the in-progress scoring session for a run, if any
// (spec §4.2), or nil when there is none. No package in this repository
// calls it.
func ActiveSession(ctx context.Context, client *ent.Client, runID string) (*ent.ScoringSession, error) {
	row, err := client.ScoringSession.Query().
		Where(
			scoringsession.RunIDEQ(runID),
			scoringsession.StatusEQ(scoringsession.StatusInProgress),
		).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading active scoring session for run %s: %w", runID, err)
	}
	return row, nil
}
