// Package queue claims Jobs off the Postgres-backed queue (FOR UPDATE SKIP
// LOCKED), issues fencing-token leases on the owning Run, and drives each
// claimed Run through a RunExecutor until it reaches a terminal state.
package queue

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for queue operations.
var (
	// ErrNoJobsAvailable indicates no claimable jobs are in the queue.
	ErrNoJobsAvailable = errors.New("no jobs available")

	// ErrAtCapacity indicates the global concurrent job limit has been reached.
	ErrAtCapacity = errors.New("at capacity")
)

// JobLease describes a claimed Job together with the fencing token the
// holder must present on every guarded write to the underlying Run (spec
// §4.1 "fencing token"). A stale token is rejected by the run store,
// which prevents a reclaimed, still-running worker from clobbering state
// written by whoever holds the lease now.
type JobLease struct {
	JobID        string
	RunID        string
	WorkerID     string
	FencingToken int64
}

// RunExecutor drives a single Run to completion (or to the next
// checkpoint boundary) under the given lease. The executor owns the
// run's state-machine transitions internally (see pkg/runs); the worker
// only handles claiming, lease renewal, terminal bookkeeping, and
// capacity/orphan management.
type RunExecutor interface {
	Execute(ctx context.Context, lease JobLease) *ExecutionResult
}

// ExecutionResult is the terminal outcome of one claim-execute cycle.
// All intermediate state was already checkpointed to the database by the
// executor during processing.
type ExecutionResult struct {
	Status JobOutcome
	Error  error
}

// JobOutcome enumerates the reason a claim-execute cycle ended.
type JobOutcome string

const (
	// JobOutcomeCompleted means the run reached a terminal state.
	JobOutcomeCompleted JobOutcome = "completed"
	// JobOutcomeCheckpointed means the run hit a checkpoint boundary and
	// should be re-enqueued for a subsequent worker pickup.
	JobOutcomeCheckpointed JobOutcome = "checkpointed"
	// JobOutcomeFailed means the run failed and will not be retried.
	JobOutcomeFailed JobOutcome = "failed"
	// JobOutcomeTimedOut means the job's lease deadline elapsed mid-execution.
	JobOutcomeTimedOut JobOutcome = "timed_out"
	// JobOutcomeCancelled means an API-triggered cancellation interrupted execution.
	JobOutcomeCancelled JobOutcome = "cancelled"
	// JobOutcomePreempted means the fencing token was superseded before commit.
	JobOutcomePreempted JobOutcome = "preempted"
)

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	IsHealthy        bool           `json:"is_healthy"`
	DBReachable      bool           `json:"db_reachable"`
	DBError          string         `json:"db_error,omitempty"`
	PodID            string         `json:"pod_id"`
	ActiveWorkers    int            `json:"active_workers"`
	TotalWorkers     int            `json:"total_workers"`
	ActiveJobs       int            `json:"active_jobs"`
	MaxConcurrent    int            `json:"max_concurrent"`
	QueueDepth       int            `json:"queue_depth"`
	WorkerStats      []WorkerHealth `json:"worker_stats"`
	LastOrphanScan   time.Time      `json:"last_orphan_scan"`
	OrphansRecovered int            `json:"orphans_recovered"`
}

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"` // "idle" or "working"
	CurrentJobID   string    `json:"current_job_id,omitempty"`
	JobsProcessed  int       `json:"jobs_processed"`
	LastActivity   time.Time `json:"last_activity"`
}
