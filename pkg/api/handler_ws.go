package api

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"
)

// wsHandler upgrades HTTP connections to WebSocket and delegates to the
// collaboration gateway (spec §6 "Data-plane WebSocket"). The connecting
// user is identified by the `user_id` query parameter — the bearer token
// on this endpoint authenticates the connection, not the individual user,
// so the gateway needs a separate per-connection identity for presence
// and per-user rate limiting.
func (s *Server) wsHandler(c *echo.Context) error {
	if s.gateway == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "collaboration gateway not available")
	}

	userID := c.QueryParam("user_id")
	if userID == "" {
		userID = uuid.NewString()
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: s.cfg.API.WSOriginPatterns,
	})
	if err != nil {
		return err
	}

	// HandleConnection blocks until the WebSocket closes.
	s.gateway.HandleConnection(c.Request().Context(), conn, userID)
	return nil
}
