package billing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/codeready-toolchain/agentcore/ent"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecordUsage implements spec §4.3's post-call contract: atomically
// insert a token record, a debit ledger entry, and decrement the
// balance, retrying on retryable store failures up to max_retries. In
// disabled mode the charge is silently skipped, and so it is in
// read_only mode until recovery_interval has passed since the service
// entered it (spec §4.3 "read_only silently allows operations to proceed
// without recording charges"). After that, each call tries the ledger
// again, and a successful write returns the service to normal mode.
func (s *Service) RecordUsage(ctx context.Context, usage PostCallUsage) error {
	s.mu.Lock()
	skip := s.mode == ModeDisabled ||
		(s.mode == ModeReadOnly && time.Since(s.readOnlySince) < s.cfg.RecoveryInterval.Dur())
	s.mu.Unlock()
	if skip {
		return nil
	}

	price, ok := s.prices[usage.Model]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, usage.Model)
	}
	cost := price.Cost(usage.InputTokens, usage.OutputTokens)

	idemKey := fmt.Sprintf("%s:%s:usage", usage.RunID, usage.StepID)

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := s.writeUsage(ctx, usage, cost, idemKey)
		if err == nil {
			s.recordSuccess()
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	s.recordFailure()
	return fmt.Errorf("recording usage for run %s step %s after %d retries: %w",
		usage.RunID, usage.StepID, s.cfg.MaxRetries, lastErr)
}

// writeUsage performs the three-write commit described in spec §4.3 step
// 2 within a single transaction: token record, debit ledger entry,
// balance decrement.
func (s *Service) writeUsage(ctx context.Context, usage PostCallUsage, cost decimal.Decimal, idemKey string) error {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("starting usage transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	runID, stepID := usage.RunID, usage.StepID
	entryID, dup, err := appendLedgerEntry(ctx, tx, chargeParams{
		orgID:           usage.OrgID,
		amount:          cost,
		transactionType: "token_usage",
		idempotencyKey:  idemKey,
		runID:           &runID,
		stepID:          &stepID,
	}, "debit")
	if err != nil {
		return err
	}

	if !dup {
		if err := tx.TokenRecord.Create().
			SetID(uuid.NewString()).
			SetLedgerEntryID(entryID).
			SetInputTokens(usage.InputTokens).
			SetOutputTokens(usage.OutputTokens).
			SetModel(usage.Model).
			SetProvider(usage.Provider).
			Exec(ctx); err != nil {
			return fmt.Errorf("inserting token record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing usage transaction: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	// ent wraps the underlying driver error; treat anything that is not a
	// constraint violation as a transient store failure worth retrying.
	return !ent.IsConstraintError(err) && !ent.IsNotFound(err)
}
