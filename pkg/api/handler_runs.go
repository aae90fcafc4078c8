package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// executeHandler handles POST /api/v1/execute (spec §6).
func (s *Server) executeHandler(c *echo.Context) error {
	var req ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	resp, err := s.runs.Execute(c.Request().Context(), req)
	if err != nil {
		executeRequestsTotal.WithLabelValues(req.Action, "error").Inc()
		return mapServiceError(err)
	}
	executeRequestsTotal.WithLabelValues(req.Action, "ok").Inc()
	return c.JSON(http.StatusOK, resp)
}

// getRunHandler handles GET /api/v1/runs/:id (spec §6).
func (s *Server) getRunHandler(c *echo.Context) error {
	runID := c.Param("id")
	if runID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "run id is required")
	}

	resp, err := s.runs.Get(c.Request().Context(), runID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, resp)
}
