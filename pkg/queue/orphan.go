package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/agentcore/ent"
	"github.com/codeready-toolchain/agentcore/ent/job"
	"github.com/codeready-toolchain/agentcore/ent/run"
)

// orphanState tracks orphan detection metrics (thread-safe).
type orphanState struct {
	mu               sync.Mutex
	lastOrphanScan   time.Time
	orphansRecovered int
}

// runOrphanDetection periodically scans for leased jobs whose run lease
// has expired. All pods run this independently — reclaiming is
// idempotent since it is gated on the expired fencing token.
func (p *WorkerPool) runOrphanDetection(ctx context.Context) {
	ticker := time.NewTicker(p.config.OrphanDetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.detectAndRecoverOrphans(ctx); err != nil {
				slog.Error("orphan detection failed", "error", err)
			}
		}
	}
}

// detectAndRecoverOrphans finds leased jobs whose run's fencing lease
// expired more than OrphanThreshold ago and re-enqueues them so a
// healthy worker can pick them up and mint a fresh fencing token (spec
// §4.1: a new token invalidates whatever the crashed worker was doing).
func (p *WorkerPool) detectAndRecoverOrphans(ctx context.Context) error {
	threshold := time.Now().Add(-p.config.OrphanThreshold)

	orphanRuns, err := p.client.Run.Query().
		Where(
			run.LeaseOwnerNotNil(),
			run.FencingExpiresAtNotNil(),
			run.FencingExpiresAtLT(threshold),
		).
		All(ctx)
	if err != nil {
		return fmt.Errorf("failed to query orphaned runs: %w", err)
	}

	if len(orphanRuns) == 0 {
		p.orphans.mu.Lock()
		p.orphans.lastOrphanScan = time.Now()
		p.orphans.mu.Unlock()
		return nil
	}

	slog.Warn("detected orphaned runs", "count", len(orphanRuns))

	recovered := 0
	failed := 0
	for _, r := range orphanRuns {
		if err := p.recoverOrphanedRun(ctx, r); err != nil {
			slog.Error("failed to recover orphaned run", "run_id", r.ID, "error", err)
			failed++
			continue
		}
		recovered++
	}

	p.orphans.mu.Lock()
	p.orphans.lastOrphanScan = time.Now()
	p.orphans.orphansRecovered += recovered
	p.orphans.mu.Unlock()

	if failed > 0 {
		slog.Warn("orphan recovery completed with failures",
			"total_orphans", len(orphanRuns), "recovered", recovered, "failed", failed)
	}

	return nil
}

// recoverOrphanedRun clears the stale lease and re-enqueues the run's
// leased job (if any), gated on the fencing token still matching what we
// observed so a concurrent recovery by another pod is not duplicated.
func (p *WorkerPool) recoverOrphanedRun(ctx context.Context, r *ent.Run) error {
	log := slog.With("run_id", r.ID, "old_owner", valueOrUnknown(r.LeaseOwner))

	tx, err := p.client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	n, err := tx.Run.Update().
		Where(run.IDEQ(r.ID), run.FencingTokenEQ(r.FencingToken)).
		ClearLeaseOwner().
		ClearFencingExpiresAt().
		Save(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear stale lease: %w", err)
	}
	if n == 0 {
		// Already recovered by another pod.
		return tx.Commit()
	}

	if err := tx.Job.Update().
		Where(job.RunIDEQ(r.ID), job.StatusEQ(job.StatusLeased)).
		SetStatus(job.StatusEnqueued).
		ClearLeaseWorkerID().
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to re-enqueue orphaned job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit orphan recovery: %w", err)
	}

	log.Warn("orphaned run's lease cleared and job re-enqueued")
	return nil
}

// CleanupStartupOrphans performs a one-time cleanup of runs leased by
// this pod's prior incarnation when it previously crashed. Called once
// during startup, before the worker pool begins processing.
func CleanupStartupOrphans(ctx context.Context, client *ent.Client, podID string) error {
	prefix := podID + "-worker-"

	orphanRuns, err := client.Run.Query().
		Where(run.LeaseOwnerHasPrefix(prefix)).
		All(ctx)
	if err != nil {
		return fmt.Errorf("failed to query startup orphans: %w", err)
	}
	if len(orphanRuns) == 0 {
		return nil
	}

	slog.Warn("found startup orphans from previous run", "pod_id", podID, "count", len(orphanRuns))

	for _, r := range orphanRuns {
		if err := client.Run.UpdateOneID(r.ID).
			ClearLeaseOwner().
			ClearFencingExpiresAt().
			Exec(ctx); err != nil {
			slog.Error("failed to clear startup orphan lease", "run_id", r.ID, "error", err)
			continue
		}
		if err := client.Job.Update().
			Where(job.RunIDEQ(r.ID), job.StatusEQ(job.StatusLeased)).
			SetStatus(job.StatusEnqueued).
			ClearLeaseWorkerID().
			Exec(ctx); err != nil {
			slog.Error("failed to re-enqueue startup orphan job", "run_id", r.ID, "error", err)
			continue
		}
		slog.Info("startup orphan recovered", "run_id", r.ID)
	}

	return nil
}

func valueOrUnknown(s *string) string {
	if s == nil {
		return "unknown"
	}
	return *s
}
