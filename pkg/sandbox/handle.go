package sandbox

import (
	"context"
	"io"
	"sync"
	"time"
)

// Handle wraps one provider-managed environment with the bookkeeping
// spec §4.4 requires: creation/last-activity timestamps and cumulative
// per-run metrics, plus transparent recreation on health-check failure.
type Handle struct {
	runID  string
	limits ResourceLimits

	mu      sync.Mutex
	inner   ProviderHandle
	metrics Metrics
}

func newHandle(runID string, limits ResourceLimits, inner ProviderHandle) *Handle {
	now := time.Now()
	return &Handle{
		runID:  runID,
		limits: limits,
		inner:  inner,
		metrics: Metrics{
			CreatedAt:         now,
			LastActivityAt:    now,
			ExitCodeHistogram: make(map[int]int),
		},
	}
}

// Metrics returns a snapshot of the handle's cumulative metrics.
func (h *Handle) Metrics() Metrics {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := h.metrics
	cp.ExitCodeHistogram = make(map[int]int, len(h.metrics.ExitCodeHistogram))
	for k, v := range h.metrics.ExitCodeHistogram {
		cp.ExitCodeHistogram[k] = v
	}
	return cp
}

func (h *Handle) recordExec(res ExecResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.metrics.LastActivityAt = time.Now()
	h.metrics.TotalExecuteTime += res.Duration
	h.metrics.ExitCodeHistogram[res.ExitCode]++
}

func (h *Handle) touch() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.metrics.LastActivityAt = time.Now()
}

func (h *Handle) idleSince() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.metrics.LastActivityAt
}

// withHealthyInner runs the health check and, on failure, recreates the
// environment before returning the (possibly new) ProviderHandle to the
// caller (spec §4.4 "On health-check failure ... the manager recreates
// the environment transparently before the next operation").
func (h *Handle) withHealthyInner(ctx context.Context, provider Provider) (ProviderHandle, error) {
	h.mu.Lock()
	inner := h.inner
	h.mu.Unlock()

	if err := inner.HealthCheck(ctx); err == nil {
		h.mu.Lock()
		h.metrics.ConsecutiveHealthCheckFailures = 0
		h.mu.Unlock()
		return inner, nil
	}

	h.mu.Lock()
	h.metrics.ConsecutiveHealthCheckFailures++
	h.mu.Unlock()

	_ = provider.Destroy(ctx, inner)

	fresh, err := provider.Create(ctx, h.runID, h.limits)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.inner = fresh
	h.mu.Unlock()
	return fresh, nil
}

// ExecuteCode runs code in the environment, recreating it first if the
// health check fails.
func (h *Handle) ExecuteCode(ctx context.Context, provider Provider, language, code string, timeout time.Duration) (ExecResult, error) {
	inner, err := h.withHealthyInner(ctx, provider)
	if err != nil {
		return ExecResult{}, err
	}
	res, err := inner.ExecuteCode(ctx, language, code, timeout)
	if err == nil {
		h.recordExec(res)
	}
	return res, err
}

// ExecuteShell runs a shell command in the environment, recreating it
// first if the health check fails.
func (h *Handle) ExecuteShell(ctx context.Context, provider Provider, command string, timeout time.Duration) (ExecResult, error) {
	inner, err := h.withHealthyInner(ctx, provider)
	if err != nil {
		return ExecResult{}, err
	}
	res, err := inner.ExecuteShell(ctx, command, timeout)
	if err == nil {
		h.recordExec(res)
	}
	return res, err
}

// ReadFile reads a file from the environment.
func (h *Handle) ReadFile(ctx context.Context, provider Provider, path string) ([]byte, error) {
	inner, err := h.withHealthyInner(ctx, provider)
	if err != nil {
		return nil, err
	}
	h.touch()
	return inner.ReadFile(ctx, path)
}

// WriteFile writes a file to the environment.
func (h *Handle) WriteFile(ctx context.Context, provider Provider, path string, data []byte) error {
	inner, err := h.withHealthyInner(ctx, provider)
	if err != nil {
		return err
	}
	h.touch()
	return inner.WriteFile(ctx, path, data)
}

// ListFiles lists a directory in the environment.
func (h *Handle) ListFiles(ctx context.Context, provider Provider, path string) ([]string, error) {
	inner, err := h.withHealthyInner(ctx, provider)
	if err != nil {
		return nil, err
	}
	h.touch()
	return inner.ListFiles(ctx, path)
}

// DownloadFile streams a file from the environment.
func (h *Handle) DownloadFile(ctx context.Context, provider Provider, path string) (io.ReadCloser, error) {
	inner, err := h.withHealthyInner(ctx, provider)
	if err != nil {
		return nil, err
	}
	h.touch()
	return inner.DownloadFile(ctx, path)
}
