package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/agentcore/pkg/core"
	"github.com/codeready-toolchain/agentcore/pkg/database"
	"github.com/codeready-toolchain/agentcore/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// livenessHandler handles GET /liveness: a process-is-running check with no
// dependency probing, for the orchestrator's restart decision (spec §6
// "liveness"). It always returns 200 once the HTTP server has started.
func (s *Server) livenessHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &HealthResponse{
		Status:  healthStatusHealthy,
		Version: version.Full(),
	})
}

// readinessHandler handles GET /readiness: whether this pod should receive
// traffic (spec §6 "readiness"). Unlike health, a degraded billing mode does
// not fail readiness — the service still serves requests in read_only mode
// — but a database outage does.
func (s *Server) readinessHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if s.core == nil || s.core.DB == nil {
		return c.JSON(http.StatusOK, &HealthResponse{Status: healthStatusHealthy, Version: version.Full()})
	}

	if _, err := database.Health(reqCtx, s.core.DB.DB()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, &HealthResponse{
			Status:  healthStatusUnhealthy,
			Version: version.Full(),
			Checks: map[string]HealthCheck{
				"database": {Status: healthStatusUnhealthy, Message: err.Error()},
			},
		})
	}

	return c.JSON(http.StatusOK, &HealthResponse{
		Status:  healthStatusHealthy,
		Version: version.Full(),
	})
}

// healthHandler handles GET /health: the aggregated view across database,
// worker pool, and billing mode, for operator dashboards (spec §6 "health
// (aggregated)"). The aggregation itself lives on *core.Core, composed once
// at startup (spec §9 "Globals / singletons"); this handler only translates
// its HealthReport into the HTTP response shape.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	report := s.core.Health(reqCtx)

	checks := make(map[string]HealthCheck, len(report.Checks))
	for name, chk := range report.Checks {
		checks[name] = HealthCheck{Status: string(chk.Status), Message: chk.Message}
	}

	httpStatus := http.StatusOK
	if report.Status == core.HealthUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &HealthResponse{
		Status:  string(report.Status),
		Version: version.Full(),
		Checks:  checks,
	})
}

// diagnosticsHandler handles GET /api/v1/diagnostics: an operator-facing
// structured snapshot of breaker, queue, and ledger state (carried from
// original_source/agent-api/app/collaboration/diagnostics.py).
func (s *Server) diagnosticsHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.core.Diagnostics())
}
