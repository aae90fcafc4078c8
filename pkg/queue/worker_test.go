package queue

import (
	"context"
	"testing"
	"time"

	"github.com/codeready-toolchain/agentcore/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWorker(t *testing.T) *Worker {
	t.Helper()
	cfg := &config.QueueConfig{
		PollInterval:       1 * time.Second,
		PollIntervalJitter: 200 * time.Millisecond,
		JobTimeout:         15 * time.Minute,
	}
	return NewWorker("pod-1-worker-0", "pod-1", nil, cfg, nil, nil)
}

func TestWorker_PollInterval_WithinJitterRange(t *testing.T) {
	w := testWorker(t)
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter

	for i := 0; i < 50; i++ {
		d := w.pollInterval()
		assert.GreaterOrEqual(t, d, base-jitter)
		assert.LessOrEqual(t, d, base+jitter)
	}
}

func TestWorker_PollInterval_NoJitter(t *testing.T) {
	w := testWorker(t)
	w.config.PollIntervalJitter = 0
	assert.Equal(t, w.config.PollInterval, w.pollInterval())
}

func TestWorker_SynthesizeResult_DeadlineExceeded(t *testing.T) {
	w := testWorker(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()

	result := w.synthesizeResult(ctx)
	require.NotNil(t, result)
	assert.Equal(t, JobOutcomeTimedOut, result.Status)
}

func TestWorker_SynthesizeResult_Cancelled(t *testing.T) {
	w := testWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := w.synthesizeResult(ctx)
	require.NotNil(t, result)
	assert.Equal(t, JobOutcomeCancelled, result.Status)
}

func TestWorker_SynthesizeResult_NilExecutor(t *testing.T) {
	w := testWorker(t)
	result := w.synthesizeResult(context.Background())
	require.NotNil(t, result)
	assert.Equal(t, JobOutcomeFailed, result.Status)
}

func TestWorker_HealthReflectsStatus(t *testing.T) {
	w := testWorker(t)
	w.setStatus(WorkerStatusWorking, "job-123")

	h := w.Health()
	assert.Equal(t, "pod-1-worker-0", h.ID)
	assert.Equal(t, string(WorkerStatusWorking), h.Status)
	assert.Equal(t, "job-123", h.CurrentJobID)
}

func TestWorkerPool_RegisterAndCancelJob(t *testing.T) {
	cfg := config.DefaultQueueConfig()
	pool := NewWorkerPool("pod-1", nil, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := false
	wrapped := func() {
		cancelled = true
		cancel()
	}

	pool.RegisterJob("job-1", wrapped)
	assert.True(t, pool.CancelJob("job-1"))
	assert.True(t, cancelled)
	<-ctx.Done()

	pool.UnregisterJob("job-1")
	assert.False(t, pool.CancelJob("job-1"))
}
