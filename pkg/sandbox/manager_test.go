package sandbox

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/codeready-toolchain/agentcore/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	id      string
	healthy bool
}

func (h *fakeHandle) ID() string { return h.id }
func (h *fakeHandle) ExecuteCode(ctx context.Context, language, code string, timeout time.Duration) (ExecResult, error) {
	return ExecResult{ExitCode: 0}, nil
}
func (h *fakeHandle) ExecuteShell(ctx context.Context, command string, timeout time.Duration) (ExecResult, error) {
	return ExecResult{ExitCode: 0}, nil
}
func (h *fakeHandle) ReadFile(ctx context.Context, path string) ([]byte, error)   { return nil, nil }
func (h *fakeHandle) WriteFile(ctx context.Context, path string, data []byte) error { return nil }
func (h *fakeHandle) ListFiles(ctx context.Context, path string) ([]string, error) { return nil, nil }
func (h *fakeHandle) DownloadFile(ctx context.Context, path string) (io.ReadCloser, error) {
	return nil, nil
}
func (h *fakeHandle) HealthCheck(ctx context.Context) error {
	if h.healthy {
		return nil
	}
	return assert.AnError
}

type fakeProvider struct {
	created   int
	destroyed int
	nextHealthy bool
}

func (p *fakeProvider) Create(ctx context.Context, runID string, limits ResourceLimits) (ProviderHandle, error) {
	p.created++
	return &fakeHandle{id: runID, healthy: p.nextHealthy}, nil
}

func (p *fakeProvider) Destroy(ctx context.Context, handle ProviderHandle) error {
	p.destroyed++
	return nil
}

func testConfig() *config.SandboxConfig {
	return &config.SandboxConfig{
		MaxConcurrentEnvironments: 2,
		IdleTTL:                   config.Duration(10 * time.Millisecond),
		SweepInterval:             config.Duration(5 * time.Millisecond),
		Tiers: map[string]config.Tier{
			"standard": {CPUMillicores: 500, MemoryBytes: 1 << 30},
		},
	}
}

func TestGetOrCreate_ReturnsExistingHandle(t *testing.T) {
	p := &fakeProvider{nextHealthy: true}
	m := NewManager(p, testConfig())

	h1, err := m.GetOrCreate(context.Background(), "run-1", EnvConfig{Tier: "standard"})
	require.NoError(t, err)
	h2, err := m.GetOrCreate(context.Background(), "run-1", EnvConfig{Tier: "standard"})
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Equal(t, 1, p.created)
}

func TestGetOrCreate_UnknownTier(t *testing.T) {
	p := &fakeProvider{nextHealthy: true}
	m := NewManager(p, testConfig())
	_, err := m.GetOrCreate(context.Background(), "run-1", EnvConfig{Tier: "ultra"})
	require.ErrorIs(t, err, ErrUnknownTier)
}

func TestGetOrCreate_AtCapacity(t *testing.T) {
	p := &fakeProvider{nextHealthy: true}
	m := NewManager(p, testConfig())

	_, err := m.GetOrCreate(context.Background(), "run-1", EnvConfig{Tier: "standard"})
	require.NoError(t, err)
	_, err = m.GetOrCreate(context.Background(), "run-2", EnvConfig{Tier: "standard"})
	require.NoError(t, err)

	_, err = m.GetOrCreate(context.Background(), "run-3", EnvConfig{Tier: "standard"})
	require.ErrorIs(t, err, ErrAtCapacity)
}

func TestExecuteCode_RecreatesOnUnhealthy(t *testing.T) {
	p := &fakeProvider{nextHealthy: false}
	m := NewManager(p, testConfig())

	h, err := m.GetOrCreate(context.Background(), "run-1", EnvConfig{Tier: "standard"})
	require.NoError(t, err)

	_, err = h.ExecuteCode(context.Background(), p, "python", "print(1)", time.Second)
	require.NoError(t, err)

	assert.Equal(t, 2, p.created, "should have recreated the unhealthy environment")
	assert.Equal(t, 1, p.destroyed)
}

func TestCleanup_RemovesHandle(t *testing.T) {
	p := &fakeProvider{nextHealthy: true}
	m := NewManager(p, testConfig())

	_, err := m.GetOrCreate(context.Background(), "run-1", EnvConfig{Tier: "standard"})
	require.NoError(t, err)

	require.NoError(t, m.Cleanup(context.Background(), "run-1"))
	assert.Equal(t, 0, m.ActiveCount())
	assert.Equal(t, 1, p.destroyed)

	_, err = m.Get("run-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSweepIdle_DestroysPastTTL(t *testing.T) {
	p := &fakeProvider{nextHealthy: true}
	m := NewManager(p, testConfig())

	_, err := m.GetOrCreate(context.Background(), "run-1", EnvConfig{Tier: "standard"})
	require.NoError(t, err)

	time.Sleep(15 * time.Millisecond)
	m.sweepIdle(context.Background())

	assert.Equal(t, 0, m.ActiveCount())
}
