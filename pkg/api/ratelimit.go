package api

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"
)

const (
	// rateLimitMax requests per rateLimitWindow, counted per client IP.
	rateLimitMax    = 100
	rateLimitWindow = 60 * time.Second

	rateLimitKeyRoot = "strym:ratelimit:"
)

// rateLimit returns middleware enforcing the per-IP fixed window via a
// Redis counter. Limit headers are set on every counted response, not
// just rejections. When Redis is unreachable the limiter fails open:
// losing rate limiting is cheaper than refusing all traffic.
func (s *Server) rateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			if c.Request().URL.Path == "/health" {
				return next(c)
			}

			ip := c.RealIP()
			count, ttl, err := s.cache.IncrWithTTL(c.Request().Context(), rateLimitKeyRoot+ip, rateLimitWindow)
			if err != nil {
				slog.Warn("Rate limiter backend unavailable, failing open",
					"remote_ip", ip, "error", err)
				return next(c)
			}

			remaining := int64(rateLimitMax) - count
			if remaining < 0 {
				remaining = 0
			}
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(rateLimitMax))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))

			if count > rateLimitMax {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(ttl.Seconds()))))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
