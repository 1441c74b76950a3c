package api

import (
	"crypto/subtle"
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// apiKeyHeader carries the shared-secret key on HTTP requests. The
// WebSocket endpoint authenticates via the api_key query parameter
// instead, because browser WebSocket clients cannot set headers.
const apiKeyHeader = "X-API-Key"

// apiKeyAuth returns middleware enforcing the shared-secret API key.
// /health stays open for orchestrator probes; /stream authenticates
// after the upgrade so the client receives a proper close code.
func (s *Server) apiKeyAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			path := c.Request().URL.Path
			if path == "/health" || path == "/stream" {
				return next(c)
			}
			if !s.validAPIKey(c.Request().Header.Get(apiKeyHeader)) {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid API key")
			}
			return next(c)
		}
	}
}

func (s *Server) validAPIKey(key string) bool {
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.APIKey)) == 1
}
