package api

import (
	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/strym-io/strym/pkg/stream"
)

// streamHandler handles GET /stream: upgrades to WebSocket and delegates
// to the session Registry.
//
// Authentication happens after the upgrade, via the api_key query
// parameter. Rejecting before the upgrade would surface as an opaque
// handshake failure in browser clients; closing with 4001 lets them
// distinguish auth failure from a network error.
func (s *Server) streamHandler(c *echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// Origin validation is delegated to the API key check below.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	if !s.validAPIKey(c.QueryParam("api_key")) {
		_ = conn.Close(stream.CloseStatusAuthFailure, "missing or invalid api_key")
		return nil
	}

	// HandleConnection blocks until the WebSocket closes.
	s.registry.HandleConnection(c.Request().Context(), conn)
	return nil
}
