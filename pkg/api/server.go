// Package api provides the control-plane HTTP server for the agent core.
package api

import (
	"context"
	"net"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/codeready-toolchain/agentcore/pkg/collab"
	"github.com/codeready-toolchain/agentcore/pkg/config"
	"github.com/codeready-toolchain/agentcore/pkg/core"
)

// Server is the control-plane HTTP server (spec §6): `execute`,
// `runs/{id}`, and the liveness/readiness/health/metrics endpoints. The
// collaboration WebSocket is also served here, since it shares the same
// listener and TLS termination, even though its message protocol is
// data-plane rather than control-plane. Server is a thin Echo wrapper
// around a single *core.Core — it owns no component state itself.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	cfg        *config.Config
	core       *core.Core
	runs       *runService
	gateway    *collab.Gateway // nil until SetGateway is called
}

// NewServer wires the control-plane routes around an already-composed
// Core. The collaboration gateway is optional and set afterward via
// SetGateway, since a pod may run the orchestrator without collaboration
// enabled.
func NewServer(cfg *config.Config, cr *core.Core) *Server {
	e := echo.New()

	s := &Server{
		echo: e,
		cfg:  cfg,
		core: cr,
		runs: newRunServiceFromCore(cr),
	}

	s.setupRoutes()
	return s
}

// SetGateway wires the real-time collaboration gateway, enabling the
// WebSocket endpoint and its breaker-state health/metrics contribution.
func (s *Server) SetGateway(gw *collab.Gateway) {
	s.gateway = gw
	s.core.SetCollab(gw)
}

// setupRoutes registers all control-plane and data-plane routes.
func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.echo.Use(securityHeaders())

	s.echo.GET("/liveness", s.livenessHandler)
	s.echo.GET("/readiness", s.readinessHandler)
	s.echo.GET("/health", s.healthHandler)
	s.echo.GET("/metrics", s.metricsHandler)

	v1 := s.echo.Group("/api/v1", bearerAuth(s.cfg.API.BearerToken))
	v1.POST("/execute", s.executeHandler)
	v1.GET("/runs/:id", s.getRunHandler)
	v1.GET("/ws", s.wsHandler)
	v1.GET("/diagnostics", s.diagnosticsHandler)
}

// Start starts the HTTP server on the given address. It blocks until the
// server stops, returning http.ErrServerClosed after Shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.echo,
	}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener.
// Used by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
