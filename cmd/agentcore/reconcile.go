package main

import (
	"context"
	"log/slog"

	"github.com/codeready-toolchain/agentcore/ent"
	"github.com/codeready-toolchain/agentcore/ent/run"
	"github.com/codeready-toolchain/agentcore/ent/tokenreconciliation"
	"github.com/codeready-toolchain/agentcore/pkg/billing"
)

// reconciliationSweepLimit bounds how many terminal runs one sweep tick
// reconciles, so a backlog can't turn a one-minute cron tick into an
// unbounded table scan; the next tick picks up where this one left off
// since billing.Service.ReconcileRun is idempotent per run.
const reconciliationSweepLimit = 200

// runReconciliationSweep reconciles every terminal run's estimated token
// records against actual usage (spec §4.3 "Reconciliation"). Safe to
// call on a schedule: billing.Service.ReconcileRun no-ops for a run
// already reconciled.
func runReconciliationSweep(ctx context.Context, client *ent.Client, billingSvc *billing.Service) {
	reconciled, err := client.TokenReconciliation.Query().
		Select(tokenreconciliation.FieldRunID).
		Strings(ctx)
	if err != nil {
		slog.Error("billing reconciliation sweep: listing reconciled runs", "error", err)
		return
	}

	terminal, err := client.Run.Query().
		Where(
			run.StateIn(run.StateCompleted, run.StateFailed, run.StateCancelled),
			run.IDNotIn(reconciled...),
		).
		Limit(reconciliationSweepLimit).
		All(ctx)
	if err != nil {
		slog.Error("billing reconciliation sweep: listing terminal runs", "error", err)
		return
	}
	if len(terminal) == reconciliationSweepLimit {
		slog.Warn("billing reconciliation sweep: hit sweep limit, backlog may remain", "limit", reconciliationSweepLimit)
	}

	for _, r := range terminal {
		// Every post-call charge already recorded actual (non-estimated)
		// usage at call time; ReconcileRun only has adjustments to make
		// for runs carrying estimated records, and is a harmless no-op
		// otherwise beyond marking the run reconciled.
		if err := billingSvc.ReconcileRun(ctx, r.TenantID, r.ID, nil); err != nil {
			slog.Error("billing reconciliation sweep: reconciling run", "run_id", r.ID, "error", err)
		}
	}
}
