package billing

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql"
	"github.com/codeready-toolchain/agentcore/ent"
	"github.com/codeready-toolchain/agentcore/ent/creditbalance"
	"github.com/codeready-toolchain/agentcore/ent/ledgerentry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// getOrCreateBalance fetches an org's CreditBalance row, creating a
// zero-balance row on first use.
func getOrCreateBalance(ctx context.Context, client *ent.Client, orgID string) (*ent.CreditBalance, error) {
	bal, err := client.CreditBalance.Query().
		Where(creditbalance.OrgIDEQ(orgID)).
		Only(ctx)
	if err == nil {
		return bal, nil
	}
	if !ent.IsNotFound(err) {
		return nil, fmt.Errorf("loading credit balance for org %s: %w", orgID, err)
	}

	bal, err = client.CreditBalance.Create().
		SetOrgID(orgID).
		Save(ctx)
	if err != nil {
		if ent.IsConstraintError(err) {
			// Lost the create race; the row now exists.
			return client.CreditBalance.Query().Where(creditbalance.OrgIDEQ(orgID)).Only(ctx)
		}
		return nil, fmt.Errorf("creating credit balance for org %s: %w", orgID, err)
	}
	return bal, nil
}

// chargeParams bundles one atomic ledger write's inputs.
type chargeParams struct {
	orgID           string
	amount          decimal.Decimal
	transactionType string
	idempotencyKey  string
	runID, agentID  *string
	taskID, stepID  *string
}

// appendLedgerEntry atomically inserts a LedgerEntry in the given
// direction and moves the org's available balance by amount (down for
// "debit", up for "credit"), within caller's transaction. Returns the
// new entry's id and whether the idempotency_key was a duplicate. A
// duplicate idempotency_key is treated as success (the write already
// committed on a prior attempt): the balance is left untouched and the
// returned id belongs to no stored entry.
func appendLedgerEntry(ctx context.Context, tx *ent.Tx, p chargeParams, direction string) (string, bool, error) {
	id := uuid.NewString()
	create := tx.LedgerEntry.Create().
		SetID(id).
		SetOrgID(p.orgID).
		SetAmount(p.amount.String()).
		SetDirection(ledgerentry.Direction(direction)).
		SetTransactionType(ledgerentry.TransactionType(p.transactionType)).
		SetIdempotencyKey(p.idempotencyKey)
	if p.runID != nil {
		create = create.SetRunID(*p.runID)
	}
	if p.agentID != nil {
		create = create.SetAgentID(*p.agentID)
	}
	if p.taskID != nil {
		create = create.SetTaskID(*p.taskID)
	}
	if p.stepID != nil {
		create = create.SetStepID(*p.stepID)
	}

	if err := create.Exec(ctx); err != nil {
		if ent.IsConstraintError(err) {
			return id, true, nil
		}
		return "", false, fmt.Errorf("inserting ledger entry: %w", err)
	}

	bal, err := tx.CreditBalance.Query().
		Where(creditbalance.OrgIDEQ(p.orgID)).
		ForUpdate(sql.WithLockAction(sql.NoKeyUpdate)).
		Only(ctx)
	if err != nil {
		return "", false, fmt.Errorf("locking credit balance for org %s: %w", p.orgID, err)
	}

	current, err := decimal.NewFromString(bal.Available)
	if err != nil {
		return "", false, fmt.Errorf("parsing available balance: %w", err)
	}

	var updated decimal.Decimal
	if direction == "debit" {
		updated = current.Sub(p.amount)
	} else {
		updated = current.Add(p.amount)
	}

	if err := bal.Update().SetAvailable(updated.String()).Exec(ctx); err != nil {
		return "", false, fmt.Errorf("updating credit balance for org %s: %w", p.orgID, err)
	}

	return id, false, nil
}
