package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/agentcore/ent"
	"github.com/codeready-toolchain/agentcore/pkg/billing"
	"github.com/codeready-toolchain/agentcore/pkg/runs"
)

// mapServiceError maps a run-service error to an HTTP error response,
// per spec §6's status taxonomy for `execute`: 400 on invalid
// action/state, 402 on insufficient credits, 404 on unknown run.
func mapServiceError(err error) *echo.HTTPError {
	var rejected *billing.RejectedError
	if errors.As(err, &rejected) {
		return echo.NewHTTPError(http.StatusPaymentRequired, rejected.Error())
	}
	if ent.IsNotFound(err) {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	if errors.Is(err, runs.ErrInvalidTransition) ||
		errors.Is(err, runs.ErrStateVersionMismatch) ||
		errors.Is(err, runs.ErrLeaseSuperseded) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if errors.Is(err, errInvalidAction) || errors.Is(err, errMissingField) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	slog.Error("unexpected run-service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
