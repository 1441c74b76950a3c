package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/strym-io/strym/pkg/models"
)

// maxBulkSize caps POST /logs/bulk batches. Larger batches should be
// split by the client.
const maxBulkSize = 1000

// ingestHandler handles POST /logs.
func (s *Server) ingestHandler(c *echo.Context) error {
	var req models.LogCreate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "request body is not valid JSON")
	}

	resp, err := s.ingestService.Ingest(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusCreated, resp)
}

// ingestBulkHandler handles POST /logs/bulk. The batch is processed
// per record; individual failures never reject the whole batch.
func (s *Server) ingestBulkHandler(c *echo.Context) error {
	var req []models.LogCreate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "request body must be a JSON array of log events")
	}
	if len(req) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "batch must contain at least one log event")
	}
	if len(req) > maxBulkSize {
		return echo.NewHTTPError(http.StatusBadRequest, "batch exceeds maximum size of 1000")
	}

	result := s.ingestService.IngestBulk(c.Request().Context(), req)
	return c.JSON(http.StatusAccepted, result)
}
