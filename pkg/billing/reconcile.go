package billing

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/agentcore/ent"
	"github.com/codeready-toolchain/agentcore/ent/ledgerentry"
	"github.com/codeready-toolchain/agentcore/ent/tokenreconciliation"
	"github.com/codeready-toolchain/agentcore/ent/tokenrecord"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReconcileRun implements spec §4.3 "Reconciliation": after a run
// terminates, it posts a signed ledger adjustment for the difference
// between the priced cost of the run's estimated token records and the
// priced cost of actual, then clears the estimated flag on those records.
// The records' token counts are kept as recorded; they are not replaced
// with the actual usage. Returns
// immediately, without error, if the run's reconciliation already exists
// (idempotent on run_id:reconcile).
func (s *Service) ReconcileRun(ctx context.Context, orgID, runID string, actual []PostCallUsage) error {
	idemKey := fmt.Sprintf("%s:reconcile", runID)

	existing, err := s.client.TokenReconciliation.Query().
		Where(tokenreconciliation.IdempotencyKeyEQ(idemKey)).
		Exist(ctx)
	if err != nil {
		return fmt.Errorf("checking reconciliation idempotency for run %s: %w", runID, err)
	}
	if existing {
		return nil
	}

	estimated, err := s.client.TokenRecord.Query().
		Where(
			tokenrecord.EstimatedEQ(true),
			tokenrecord.HasLedgerEntryWith(ledgerentry.RunIDEQ(runID)),
		).
		All(ctx)
	if err != nil {
		return fmt.Errorf("loading estimated token records for run %s: %w", runID, err)
	}

	var estimatedTotal decimal.Decimal
	for _, rec := range estimated {
		price, ok := s.prices[rec.Model]
		if !ok {
			continue
		}
		estimatedTotal = estimatedTotal.Add(price.Cost(rec.InputTokens, rec.OutputTokens))
	}

	var actualTotal decimal.Decimal
	for _, u := range actual {
		price, ok := s.prices[u.Model]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownModel, u.Model)
		}
		actualTotal = actualTotal.Add(price.Cost(u.InputTokens, u.OutputTokens))
	}

	// Positive adjustment = credit back (actual cost less than estimated);
	// negative = additional debit (actual cost more than estimated).
	adjustment := estimatedTotal.Sub(actualTotal)

	tx, err := s.client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("starting reconciliation transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if !adjustment.IsZero() {
		direction := "credit"
		amount := adjustment
		if adjustment.IsNegative() {
			direction = "debit"
			amount = adjustment.Neg()
		}
		if _, _, err := appendLedgerEntry(ctx, tx, chargeParams{
			orgID:           orgID,
			amount:          amount,
			transactionType: "adjustment",
			idempotencyKey:  fmt.Sprintf("%s:reconcile:adjustment", runID),
			runID:           &runID,
		}, direction); err != nil {
			return err
		}
	}

	for _, rec := range estimated {
		if err := tx.TokenRecord.UpdateOneID(rec.ID).SetEstimated(false).Exec(ctx); err != nil {
			return fmt.Errorf("unmarking estimated token record %s: %w", rec.ID, err)
		}
	}

	if err := tx.TokenReconciliation.Create().
		SetID(uuid.NewString()).
		SetRunID(runID).
		SetIdempotencyKey(idemKey).
		SetAdjustmentAmount(adjustment.String()).
		Exec(ctx); err != nil {
		if ent.IsConstraintError(err) {
			return nil
		}
		return fmt.Errorf("recording reconciliation for run %s: %w", runID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing reconciliation for run %s: %w", runID, err)
	}
	return nil
}
