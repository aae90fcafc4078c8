// Package sandbox manages isolated code-execution environments keyed by
// run id (spec §4.4). It is a consumer of an external sandbox provider
// API: it specifies the operations and bookkeeping shape below and
// leaves the actual provider protocol to a Provider implementation.
package sandbox

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrAtCapacity is returned by GetOrCreate when the process-wide
	// concurrent-environment cap is already reached.
	ErrAtCapacity = errors.New("sandbox: at concurrent-environment capacity")
	// ErrUnknownTier is returned when a requested tier has no preset.
	ErrUnknownTier = errors.New("sandbox: unknown tier")
	// ErrNotFound is returned by operations against a run with no handle.
	ErrNotFound = errors.New("sandbox: no environment for run")
)

// ResourceLimits describes the resource ceilings for one environment
// (spec §4.4 "Configuration describes resource limits").
type ResourceLimits struct {
	CPUMillicores  int
	MemoryBytes    int64
	DiskBytes      int64
	NetworkBpsCap  int64
	MaxProcesses   int
	MaxFileHandles int
	IOBpsCap       int64
	IOPSCap        int
}

// EnvConfig is the configuration passed to GetOrCreate.
type EnvConfig struct {
	Tier   string
	Limits ResourceLimits
}

// ExecResult is the outcome of an execute_code/execute_shell call.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

// Metrics is a handle's current-run cumulative metrics (spec §4.4 "Each
// handle carries ... current-run cumulative metrics").
type Metrics struct {
	CreatedAt                      time.Time
	LastActivityAt                 time.Time
	ExitCodeHistogram              map[int]int
	TotalExecuteTime                time.Duration
	ConsecutiveHealthCheckFailures int
}

// Provider is the external sandbox backend pkg/sandbox consumes. It
// specifies only the shape the manager needs; the wire protocol to an
// actual provider (container runtime, microVM pool, remote execution
// service) is out of scope (spec §4.4 "does not dictate the provider
// protocol").
type Provider interface {
	Create(ctx context.Context, runID string, limits ResourceLimits) (ProviderHandle, error)
	Destroy(ctx context.Context, handle ProviderHandle) error
}

// ProviderHandle identifies one provider-managed environment and
// exposes its operations.
type ProviderHandle interface {
	ID() string
	ExecuteCode(ctx context.Context, language, code string, timeout time.Duration) (ExecResult, error)
	ExecuteShell(ctx context.Context, command string, timeout time.Duration) (ExecResult, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error
	ListFiles(ctx context.Context, path string) ([]string, error)
	DownloadFile(ctx context.Context, path string) (io.ReadCloser, error)
	// HealthCheck runs the trivial filesystem+shell probe (spec §4.4).
	HealthCheck(ctx context.Context) error
}
