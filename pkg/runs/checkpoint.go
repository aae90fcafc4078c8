package runs

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/agentcore/ent"
	"github.com/codeready-toolchain/agentcore/ent/checkpoint"
	"github.com/google/uuid"
)

// writePhaseStart writes the "phase starting" checkpoint (idempotency
// key `run_id:phase_id:start`, spec §4.1 step 1). Safe to call more than
// once for the same phase: the idempotency key's unique index makes the
// second write a no-op failure that the caller treats as success.
func writePhaseStart(ctx context.Context, client *ent.Client, runID string, phase Phase, phaseIndex int) error {
	key := fmt.Sprintf("%s:%s:start", runID, phase.ID)

	err := client.Checkpoint.Create().
		SetID(uuid.NewString()).
		SetRunID(runID).
		SetPhaseID(phase.ID).
		SetPhaseIndex(phaseIndex).
		SetKind(checkpoint.KindPhaseStart).
		SetIdempotencyKey(key).
		Exec(ctx)
	if err != nil && !ent.IsConstraintError(err) {
		return fmt.Errorf("writing phase-start checkpoint: %w", err)
	}
	return nil
}

// writePhaseComplete writes the "phase complete" checkpoint containing
// the accumulator and the set of step idempotency keys committed during
// this phase (spec §4.1 step 3).
func writePhaseComplete(ctx context.Context, client *ent.Client, runID string, phase Phase, phaseIndex int, accumulator map[string]interface{}, committedKeys []string) error {
	key := fmt.Sprintf("%s:%s:complete", runID, phase.ID)

	err := client.Checkpoint.Create().
		SetID(uuid.NewString()).
		SetRunID(runID).
		SetPhaseID(phase.ID).
		SetPhaseIndex(phaseIndex).
		SetKind(checkpoint.KindPhaseComplete).
		SetIdempotencyKey(key).
		SetAccumulator(accumulator).
		SetCommittedStepKeys(committedKeys).
		Exec(ctx)
	if err != nil && !ent.IsConstraintError(err) {
		return fmt.Errorf("writing phase-complete checkpoint: %w", err)
	}
	return nil
}

// latestCheckpoint returns the most recent checkpoint for a run (by
// phase_index, then created_at), used by crash recovery to determine where to
// resume (spec §4.1 "Crash recovery").
func latestCheckpoint(ctx context.Context, client *ent.Client, runID string) (*ent.Checkpoint, error) {
	cp, err := client.Checkpoint.Query().
		Where(checkpoint.RunIDEQ(runID)).
		Order(ent.Desc(checkpoint.FieldPhaseIndex), ent.Desc(checkpoint.FieldCreatedAt)).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading latest checkpoint for run %s: %w", runID, err)
	}
	return cp, nil
}

// committedStepKeys returns a checkpoint's committed_step_keys as a set.
// Only phase_complete checkpoints carry keys; writePhaseStart records
// none, so for a phase_start checkpoint the set is empty.
func committedStepKeys(cp *ent.Checkpoint) map[string]bool {
	set := make(map[string]bool, len(cp.CommittedStepKeys))
	for _, k := range cp.CommittedStepKeys {
		set[k] = true
	}
	return set
}
