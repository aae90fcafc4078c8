package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codeready-toolchain/agentcore/pkg/config"
)

// Manager is the sandbox manager of spec §4.4: get_or_create/
// execute_code/execute_shell/read_file/write_file/list_files/
// download_file/metrics/cleanup, keyed by run id, enforcing a
// process-wide cap on concurrent environments.
type Manager struct {
	provider Provider
	cfg      *config.SandboxConfig

	mu       sync.Mutex
	handles  map[string]*Handle
}

// NewManager constructs a Manager backed by provider.
func NewManager(provider Provider, cfg *config.SandboxConfig) *Manager {
	return &Manager{
		provider: provider,
		cfg:      cfg,
		handles:  make(map[string]*Handle),
	}
}

func (m *Manager) resolveLimits(tier string) (ResourceLimits, error) {
	t, ok := m.cfg.Tiers[tier]
	if !ok {
		return ResourceLimits{}, fmt.Errorf("%w: %s", ErrUnknownTier, tier)
	}
	return ResourceLimits{
		CPUMillicores:  t.CPUMillicores,
		MemoryBytes:    t.MemoryBytes,
		DiskBytes:      t.DiskBytes,
		NetworkBpsCap:  t.NetworkBpsCap,
		MaxProcesses:   t.MaxProcesses,
		MaxFileHandles: t.MaxFileHandles,
		IOBpsCap:       t.IOBpsCap,
		IOPSCap:        t.IOPSCap,
	}, nil
}

// GetOrCreate returns the existing environment for runID, or creates
// one if none exists, rejecting with ErrAtCapacity if the process-wide
// concurrent-environment cap is already reached (spec §4.4).
func (m *Manager) GetOrCreate(ctx context.Context, runID string, cfg EnvConfig) (*Handle, error) {
	m.mu.Lock()
	if h, ok := m.handles[runID]; ok {
		m.mu.Unlock()
		return h, nil
	}
	if m.cfg.MaxConcurrentEnvironments > 0 && len(m.handles) >= m.cfg.MaxConcurrentEnvironments {
		m.mu.Unlock()
		return nil, ErrAtCapacity
	}
	m.mu.Unlock()

	limits, err := m.resolveLimits(cfg.Tier)
	if err != nil {
		return nil, err
	}

	inner, err := m.provider.Create(ctx, runID, limits)
	if err != nil {
		return nil, fmt.Errorf("creating sandbox for run %s: %w", runID, err)
	}
	h := newHandle(runID, limits, inner)

	m.mu.Lock()
	defer m.mu.Unlock()
	// Lost the create race against a concurrent GetOrCreate for the same
	// run: destroy ours, keep theirs.
	if existing, ok := m.handles[runID]; ok {
		go func() { _ = m.provider.Destroy(context.Background(), inner) }()
		return existing, nil
	}
	m.handles[runID] = h
	return h, nil
}

// Get returns the existing environment for runID, or ErrNotFound.
func (m *Manager) Get(runID string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return h, nil
}

// Metrics returns the current-run cumulative metrics for a handle.
func (m *Manager) Metrics(runID string) (Metrics, error) {
	h, err := m.Get(runID)
	if err != nil {
		return Metrics{}, err
	}
	return h.Metrics(), nil
}

// Cleanup destroys and forgets the environment for a run, if any. Safe
// to call on a run with no environment.
func (m *Manager) Cleanup(ctx context.Context, runID string) error {
	m.mu.Lock()
	h, ok := m.handles[runID]
	if ok {
		delete(m.handles, runID)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}

	h.mu.Lock()
	inner := h.inner
	h.mu.Unlock()

	if err := m.provider.Destroy(ctx, inner); err != nil {
		return fmt.Errorf("destroying sandbox for run %s: %w", runID, err)
	}
	slog.Info("sandbox cleaned up", "run_id", runID)
	return nil
}

// ActiveCount returns the number of environments currently tracked.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}
