// Package core composes the agent run core's services into a single
// value built once at startup and threaded through the control plane
// and worker pool, instead of the package-level singletons the original
// design used for billing, health, metrics, diagnostics, and
// collaboration (spec §9 "Globals / singletons").
package core

import (
	"context"
	"time"

	"github.com/codeready-toolchain/agentcore/pkg/billing"
	"github.com/codeready-toolchain/agentcore/pkg/collab"
	"github.com/codeready-toolchain/agentcore/pkg/database"
	"github.com/codeready-toolchain/agentcore/pkg/llmgateway"
	"github.com/codeready-toolchain/agentcore/pkg/queue"
	"github.com/codeready-toolchain/agentcore/pkg/runs"
	"github.com/codeready-toolchain/agentcore/pkg/sandbox"
)

// Core holds every long-lived service the composition root builds:
// the ledger, billing service, sandbox manager, LLM gateway, job
// queue, run orchestrator, and (once SetCollab is called) the OT
// collaboration gateway. cmd/agentcore/main.go is the only constructor
// call site; everything else receives a *Core or the narrower piece it
// needs from it.
type Core struct {
	DB      *database.Client
	Machine *runs.Machine
	Billing *billing.Service
	Sandbox *sandbox.Manager
	LLM     *llmgateway.Gateway
	Queue   *queue.WorkerPool
	Collab  *collab.Gateway // nil until SetCollab is called
}

// New constructs a Core from its already-wired components.
func New(db *database.Client, machine *runs.Machine, billingSvc *billing.Service, sandboxMgr *sandbox.Manager, llmGW *llmgateway.Gateway, workerPool *queue.WorkerPool) *Core {
	return &Core{
		DB:      db,
		Machine: machine,
		Billing: billingSvc,
		Sandbox: sandboxMgr,
		LLM:     llmGW,
		Queue:   workerPool,
	}
}

// SetCollab wires the collaboration gateway once it's constructed,
// mirroring the gateway's own optional-dependency pattern for its
// fan-out and persister (pkg/collab's SetPersister).
func (c *Core) SetCollab(gw *collab.Gateway) {
	if c == nil {
		return
	}
	c.Collab = gw
}

// HealthCheckStatus is the closed set of per-component health states.
type HealthCheckStatus string

const (
	HealthHealthy   HealthCheckStatus = "healthy"
	HealthDegraded  HealthCheckStatus = "degraded"
	HealthUnhealthy HealthCheckStatus = "unhealthy"
)

// HealthCheck is one component's contribution to a HealthReport.
type HealthCheck struct {
	Status  HealthCheckStatus
	Message string
}

// HealthReport is the aggregated view across every component Core
// owns (spec §6 "health (aggregated)"); pkg/api renders it as JSON.
// Only this core's own components are checked — external dependencies
// (LLM providers, sandbox backends) are excluded so a flaky upstream
// never trips this pod's own restart/alerting.
type HealthReport struct {
	Status HealthCheckStatus
	Checks map[string]HealthCheck
}

// Health aggregates database, worker pool, billing mode, and
// collaboration breaker state into one report.
func (c *Core) Health(ctx context.Context) HealthReport {
	checks := make(map[string]HealthCheck)
	status := HealthHealthy
	if c == nil {
		return HealthReport{Status: status, Checks: checks}
	}

	if c.DB != nil {
		if _, err := database.Health(ctx, c.DB.DB()); err != nil {
			status = HealthUnhealthy
			checks["database"] = HealthCheck{Status: HealthUnhealthy, Message: err.Error()}
		} else {
			checks["database"] = HealthCheck{Status: HealthHealthy}
		}
	}

	if c.Queue != nil {
		if h := c.Queue.Health(); h != nil && !h.IsHealthy {
			if status == HealthHealthy {
				status = HealthDegraded
			}
			msg := string(HealthUnhealthy)
			if h.DBError != "" {
				msg = h.DBError
			}
			checks["worker_pool"] = HealthCheck{Status: HealthDegraded, Message: msg}
		} else {
			checks["worker_pool"] = HealthCheck{Status: HealthHealthy}
		}
	}

	if c.Billing != nil {
		switch c.Billing.Mode() {
		case billing.ModeReadOnly:
			checks["billing"] = HealthCheck{Status: HealthDegraded, Message: "ledger in read_only mode"}
			if status == HealthHealthy {
				status = HealthDegraded
			}
		case billing.ModeDisabled:
			checks["billing"] = HealthCheck{Status: HealthDegraded, Message: "ledger disabled by operator"}
			if status == HealthHealthy {
				status = HealthDegraded
			}
		default:
			checks["billing"] = HealthCheck{Status: HealthHealthy}
		}
	}

	if c.Collab != nil && c.Collab.Breaker().State() != collab.StateClosed {
		if status == HealthHealthy {
			status = HealthDegraded
		}
		checks["collab_breaker"] = HealthCheck{Status: HealthDegraded, Message: string(c.Collab.Breaker().State())}
	}

	return HealthReport{Status: status, Checks: checks}
}

// MetricSample is one named measurement at scrape time — the
// transport-agnostic shape pkg/api's Prometheus handler renders into
// the wire format (spec §6 "metrics").
type MetricSample struct {
	Name   string
	Value  float64
	Labels map[string]string
}

// Metrics snapshots every gauge-worthy piece of owned component state.
func (c *Core) Metrics() []MetricSample {
	if c == nil {
		return nil
	}
	var out []MetricSample

	if c.Queue != nil {
		if h := c.Queue.Health(); h != nil {
			out = append(out,
				MetricSample{Name: "worker_pool_queue_depth", Value: float64(h.QueueDepth)},
				MetricSample{Name: "worker_pool_active_jobs", Value: float64(h.ActiveJobs)},
			)
		}
	}

	if c.Billing != nil {
		out = append(out, MetricSample{
			Name:   "billing_mode",
			Value:  1,
			Labels: map[string]string{"mode": string(c.Billing.Mode())},
		})
	}

	if c.Collab != nil {
		out = append(out,
			MetricSample{Name: "collab_active_connections", Value: float64(c.Collab.ActiveConnections())},
			MetricSample{
				Name:   "collab_breaker_state",
				Value:  1,
				Labels: map[string]string{"state": string(c.Collab.Breaker().State())},
			},
		)
	}

	return out
}

// DiagnosticsReport is a structured operator-facing snapshot of
// breaker, queue, and ledger state, carried from
// original_source/agent-api/app/collaboration/diagnostics.py since
// spec.md's §6 under-specifies an equivalent without excluding it.
type DiagnosticsReport struct {
	GeneratedAt   time.Time
	BillingMode   string
	QueueDepth    int
	ActiveJobs    int
	ActiveWorkers int
	BreakerState  string
	ActiveConns   int
}

// Diagnostics builds a DiagnosticsReport from current component state.
func (c *Core) Diagnostics() DiagnosticsReport {
	report := DiagnosticsReport{GeneratedAt: time.Now()}
	if c == nil {
		return report
	}

	if c.Billing != nil {
		report.BillingMode = string(c.Billing.Mode())
	}
	if c.Queue != nil {
		if h := c.Queue.Health(); h != nil {
			report.QueueDepth = h.QueueDepth
			report.ActiveJobs = h.ActiveJobs
			report.ActiveWorkers = h.ActiveWorkers
		}
	}
	if c.Collab != nil {
		report.BreakerState = string(c.Collab.Breaker().State())
		report.ActiveConns = c.Collab.ActiveConnections()
	}

	return report
}
