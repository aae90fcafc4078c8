package api

import (
	"fmt"
	"net/http"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/agentcore/pkg/billing"
	"github.com/codeready-toolchain/agentcore/pkg/runs"
)

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		expectCode int
		expectMsg  string
	}{
		{
			name:       "rejected call maps to 402",
			err:        &billing.RejectedError{Reason: billing.RejectInsufficientCredits, Detail: "no available balance"},
			expectCode: http.StatusPaymentRequired,
			expectMsg:  "no available balance",
		},
		{
			name:       "invalid transition maps to 400",
			err:        fmt.Errorf("wrapped: %w", runs.ErrInvalidTransition),
			expectCode: http.StatusBadRequest,
		},
		{
			name:       "stale state version maps to 400",
			err:        fmt.Errorf("wrapped: %w", runs.ErrStateVersionMismatch),
			expectCode: http.StatusBadRequest,
		},
		{
			name:       "superseded lease maps to 400",
			err:        runs.ErrLeaseSuperseded,
			expectCode: http.StatusBadRequest,
		},
		{
			name:       "invalid action maps to 400",
			err:        fmt.Errorf("%w: %q", errInvalidAction, "frobnicate"),
			expectCode: http.StatusBadRequest,
			expectMsg:  "invalid action",
		},
		{
			name:       "missing field maps to 400",
			err:        fmt.Errorf("%w: run_id", errMissingField),
			expectCode: http.StatusBadRequest,
			expectMsg:  "missing required field",
		},
		{
			name:       "unknown error maps to 500",
			err:        fmt.Errorf("something unexpected happened"),
			expectCode: http.StatusInternalServerError,
			expectMsg:  "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he := mapServiceError(tt.err)
			assert.IsType(t, &echo.HTTPError{}, he)
			assert.Equal(t, tt.expectCode, he.Code)
			if tt.expectMsg != "" {
				assert.Contains(t, he.Error(), tt.expectMsg)
			}
		})
	}
}
