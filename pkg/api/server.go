// Package api exposes the HTTP surface: ingestion, query, search, stats,
// health, and the WebSocket stream endpoint.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/strym-io/strym/pkg/cache"
	"github.com/strym-io/strym/pkg/config"
	"github.com/strym-io/strym/pkg/database"
	"github.com/strym-io/strym/pkg/services"
	"github.com/strym-io/strym/pkg/stream"
)

// Server wires the service layer to the HTTP routes.
type Server struct {
	cfg      *config.Config
	dbClient *database.Client
	cache    *cache.Cache

	ingestService *services.IngestionService
	queryService  *services.QueryService
	statsService  *services.StatsService
	registry      *stream.Registry

	echo       *echo.Echo
	httpServer *http.Server
}

// NewServer creates the API server with all routes and middleware
// registered. Middleware order is request logging, then rate limiting,
// then authentication, so rejected requests are still logged and counted.
func NewServer(
	cfg *config.Config,
	dbClient *database.Client,
	c *cache.Cache,
	ingestService *services.IngestionService,
	queryService *services.QueryService,
	statsService *services.StatsService,
	registry *stream.Registry,
) *Server {
	s := &Server{
		cfg:           cfg,
		dbClient:      dbClient,
		cache:         c,
		ingestService: ingestService,
		queryService:  queryService,
		statsService:  statsService,
		registry:      registry,
	}

	e := echo.New()
	e.HTTPErrorHandler = s.errorHandler
	e.Use(requestLogger())
	e.Use(securityHeaders())
	e.Use(s.rateLimit())
	e.Use(s.apiKeyAuth())

	e.GET("/health", s.healthHandler)
	e.POST("/logs", s.ingestHandler)
	e.POST("/logs/bulk", s.ingestBulkHandler)
	e.GET("/logs", s.listLogsHandler)
	e.GET("/logs/search", s.searchLogsHandler)
	e.GET("/logs/:id", s.getLogHandler)
	e.GET("/stats/summary", s.statsSummaryHandler)
	e.GET("/stats/timeseries", s.statsTimeseriesHandler)
	e.GET("/stream", s.streamHandler)

	s.echo = e
	return s
}

// Start begins serving on addr. Blocks until the listener fails or
// Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// errorHandler renders every error as the JSON envelope
// {"error": {"message", "type", "timestamp"}}.
func (s *Server) errorHandler(c *echo.Context, err error) {
	if res, resErr := echo.UnwrapResponse(c.Response()); resErr == nil && res.Committed {
		return
	}

	he := &echo.HTTPError{}
	if !errors.As(err, &he) {
		slog.Error("Unhandled request error", "path", c.Request().URL.Path, "error", err)
		he = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	body := ErrorResponse{Error: ErrorDetail{
		Message:   fmt.Sprintf("%v", he.Message),
		Type:      errorTypeFor(he.Code),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}}

	// The rate limiter sets Retry-After before rejecting; mirror it into
	// the envelope so clients get the backoff without parsing headers.
	if he.Code == http.StatusTooManyRequests {
		if secs, convErr := strconv.Atoi(c.Response().Header().Get("Retry-After")); convErr == nil {
			body.Error.RetryAfter = secs
		}
	}

	if writeErr := c.JSON(he.Code, body); writeErr != nil {
		slog.Error("Failed to write error response", "error", writeErr)
	}
}
