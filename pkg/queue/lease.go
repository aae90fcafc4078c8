package queue

import (
	"context"
	"fmt"
	"time"

	"entgo.io/ent/dialect/sql"
	"github.com/codeready-toolchain/agentcore/ent"
	"github.com/codeready-toolchain/agentcore/ent/job"
	"github.com/codeready-toolchain/agentcore/ent/run"
)

// claimNextJob atomically claims the next enqueued job and issues a
// fresh fencing-token lease on its run, using FOR UPDATE SKIP LOCKED so
// concurrent workers (same pod or different pods) never race on the same
// row (spec §4.1, grounded on the teacher's claimNextSession pattern).
func claimNextJob(ctx context.Context, client *ent.Client, workerID string, leaseTTL time.Duration) (JobLease, error) {
	tx, err := client.Tx(ctx)
	if err != nil {
		return JobLease{}, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()

	j, err := tx.Job.Query().
		Where(
			job.StatusEQ(job.StatusEnqueued),
			job.Or(job.NotBeforeIsNil(), job.NotBeforeLTE(now)),
		).
		Order(ent.Asc(job.FieldPriority), ent.Asc(job.FieldEnqueuedAt)).
		Limit(1).
		ForUpdate(sql.WithLockAction(sql.SkipLocked)).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return JobLease{}, ErrNoJobsAvailable
		}
		return JobLease{}, fmt.Errorf("failed to query enqueued job: %w", err)
	}

	j, err = j.Update().
		SetStatus(job.StatusLeased).
		SetLeaseWorkerID(workerID).
		Save(ctx)
	if err != nil {
		return JobLease{}, fmt.Errorf("failed to claim job: %w", err)
	}

	// Issue a new fencing token for the run: monotonically increasing, bound
	// to this worker, expiring at now+ttl. Any writer presenting a token
	// lower than the run's current fencing_token is rejected (spec §4.1).
	r, err := tx.Run.Query().
		Where(run.IDEQ(j.RunID)).
		ForUpdate(sql.WithLockAction(sql.NoKeyUpdate)).
		Only(ctx)
	if err != nil {
		return JobLease{}, fmt.Errorf("failed to load run for lease: %w", err)
	}

	newToken := r.FencingToken + 1
	expires := now.Add(leaseTTL)
	if err := r.Update().
		SetFencingToken(newToken).
		SetLeaseOwner(workerID).
		SetFencingExpiresAt(expires).
		Exec(ctx); err != nil {
		return JobLease{}, fmt.Errorf("failed to issue run lease: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return JobLease{}, fmt.Errorf("failed to commit claim: %w", err)
	}

	return JobLease{
		JobID:        j.ID,
		RunID:        j.RunID,
		WorkerID:     workerID,
		FencingToken: newToken,
	}, nil
}

// renewLease extends fencing_expires_at for the current lease holder
// without bumping the fencing token (same owner, same token — only the
// TTL moves forward). Called by the worker's heartbeat at <= 1/3 of the
// lease TTL, per spec §4.1's renewal rule.
func renewLease(ctx context.Context, client *ent.Client, lease JobLease, leaseTTL time.Duration) error {
	n, err := client.Run.Update().
		Where(
			run.IDEQ(lease.RunID),
			run.LeaseOwnerEQ(lease.WorkerID),
			run.FencingTokenEQ(lease.FencingToken),
		).
		SetFencingExpiresAt(time.Now().Add(leaseTTL)).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("failed to renew lease: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("lease renewal rejected: fencing token %d for run %s no longer current",
			lease.FencingToken, lease.RunID)
	}
	return nil
}

// releaseLease clears the run's lease ownership fields once processing
// ends, regardless of outcome, so the run does not sit un-claimable
// until its TTL lapses. Best-effort: if the token was already superseded
// (n == 0) there is nothing to release.
func releaseLease(ctx context.Context, client *ent.Client, lease JobLease) error {
	_, err := client.Run.Update().
		Where(
			run.IDEQ(lease.RunID),
			run.LeaseOwnerEQ(lease.WorkerID),
			run.FencingTokenEQ(lease.FencingToken),
		).
		ClearLeaseOwner().
		ClearFencingExpiresAt().
		Save(ctx)
	if err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}
