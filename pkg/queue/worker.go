package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/codeready-toolchain/agentcore/ent"
	"github.com/codeready-toolchain/agentcore/ent/job"
	"github.com/codeready-toolchain/agentcore/pkg/config"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// Worker is a single queue worker that polls for, leases, and processes jobs.
type Worker struct {
	id       string
	podID    string
	client   *ent.Client
	config   *config.QueueConfig
	executor RunExecutor
	pool     JobRegistry
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.RWMutex
	status        WorkerStatus
	currentJobID  string
	jobsProcessed int
	lastActivity  time.Time
}

// JobRegistry is the subset of WorkerPool used by Worker for cancellation registration.
type JobRegistry interface {
	RegisterJob(jobID string, cancel context.CancelFunc)
	UnregisterJob(jobID string)
}

// NewWorker creates a new queue worker.
func NewWorker(id, podID string, client *ent.Client, cfg *config.QueueConfig, executor RunExecutor, pool JobRegistry) *Worker {
	return &Worker{
		id:           id,
		podID:        podID,
		client:       client,
		config:       cfg,
		executor:     executor,
		pool:         pool,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish.
// It is safe to call Stop multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        string(w.status),
		CurrentJobID:  w.currentJobID,
		JobsProcessed: w.jobsProcessed,
		LastActivity:  w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoJobsAvailable) || errors.Is(err, ErrAtCapacity) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("error processing job", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess checks capacity, claims a job (and its run lease), and
// drives the run via the executor until it completes, checkpoints, or is
// interrupted.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	activeCount, err := w.client.Job.Query().
		Where(job.StatusEQ(job.StatusLeased)).
		Count(ctx)
	if err != nil {
		return fmt.Errorf("checking active jobs: %w", err)
	}
	if activeCount >= w.config.MaxConcurrentJobs {
		return ErrAtCapacity
	}

	lease, err := claimNextJob(ctx, w.client, w.id, w.config.JobTimeout)
	if err != nil {
		return err
	}

	log := slog.With("job_id", lease.JobID, "run_id", lease.RunID, "worker_id", w.id)
	log.Info("job claimed")

	w.setStatus(WorkerStatusWorking, lease.JobID)
	defer w.setStatus(WorkerStatusIdle, "")

	jobCtx, cancelJob := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancelJob()

	w.pool.RegisterJob(lease.JobID, cancelJob)
	defer w.pool.UnregisterJob(lease.JobID)

	renewCtx, cancelRenew := context.WithCancel(jobCtx)
	defer cancelRenew()
	go w.runLeaseRenewal(renewCtx, lease)

	result := w.executor.Execute(jobCtx, lease)

	if result == nil {
		result = w.synthesizeResult(jobCtx)
	}

	cancelRenew()

	if err := w.finalizeJob(context.Background(), lease, result); err != nil {
		log.Error("failed to finalize job", "error", err)
		return err
	}

	w.mu.Lock()
	w.jobsProcessed++
	w.mu.Unlock()

	log.Info("job processing complete", "outcome", result.Status)
	return nil
}

// synthesizeResult produces a safe result when the executor returns nil,
// inferring the outcome from the job context's cancellation cause.
func (w *Worker) synthesizeResult(jobCtx context.Context) *ExecutionResult {
	switch {
	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		return &ExecutionResult{Status: JobOutcomeTimedOut, Error: fmt.Errorf("job timed out after %v", w.config.JobTimeout)}
	case errors.Is(jobCtx.Err(), context.Canceled):
		return &ExecutionResult{Status: JobOutcomeCancelled, Error: context.Canceled}
	default:
		return &ExecutionResult{Status: JobOutcomeFailed, Error: fmt.Errorf("executor returned nil result")}
	}
}

// finalizeJob updates job status and releases the run's lease. A
// checkpointed outcome re-enqueues the job for later pickup (the run's
// state-machine progress itself is already durable via pkg/runs
// checkpoints).
func (w *Worker) finalizeJob(ctx context.Context, lease JobLease, result *ExecutionResult) error {
	update := w.client.Job.UpdateOneID(lease.JobID)

	switch result.Status {
	case JobOutcomeCompleted, JobOutcomeFailed:
		update = update.SetStatus(job.StatusCompleted)
		if result.Status == JobOutcomeFailed {
			update = update.SetStatus(job.StatusFailed)
		}
	case JobOutcomeCheckpointed:
		update = update.SetStatus(job.StatusEnqueued).ClearLeaseWorkerID()
	case JobOutcomeTimedOut, JobOutcomeCancelled:
		update = update.SetStatus(job.StatusFailed)
	case JobOutcomePreempted:
		// Another worker already holds a newer lease; leave the job's
		// status alone, it is already being driven elsewhere.
		return nil
	}

	if err := update.Exec(ctx); err != nil {
		return fmt.Errorf("updating job status: %w", err)
	}

	if err := releaseLease(ctx, w.client, lease); err != nil {
		slog.Warn("failed to release run lease", "run_id", lease.RunID, "error", err)
	}

	return nil
}

// runLeaseRenewal renews the run's fencing-token lease at <= 1/3 of the
// lease TTL (spec §4.1 renewal rule), stopping when the job context ends.
func (w *Worker) runLeaseRenewal(ctx context.Context, lease JobLease) {
	interval := w.config.JobTimeout / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := renewLease(context.Background(), w.client, lease, w.config.JobTimeout); err != nil {
				slog.Warn("lease renewal failed", "run_id", lease.RunID, "job_id", lease.JobID, "error", err)
			}
		}
	}
}

// pollInterval returns the poll duration with jitter.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *Worker) setStatus(status WorkerStatus, jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentJobID = jobID
	w.lastActivity = time.Now()
}
