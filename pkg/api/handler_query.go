package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/strym-io/strym/pkg/models"
	"github.com/strym-io/strym/pkg/repository"
)

// listLogsHandler handles GET /logs.
func (s *Server) listLogsHandler(c *echo.Context) error {
	params := repository.QueryParams{
		Limit: 100,
		Sort:  "desc",
	}

	// Parse pagination.
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit: must be between 1 and 1000")
		}
		params.Limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid offset: must be >= 0")
		}
		params.Offset = n
	}
	if v := c.QueryParam("sort"); v != "" {
		switch v {
		case "asc", "desc":
			params.Sort = v
		default:
			return echo.NewHTTPError(http.StatusBadRequest, "invalid sort: must be asc or desc")
		}
	}

	// Parse filters.
	if v := c.QueryParam("severity"); v != "" {
		for _, sev := range strings.Split(v, ",") {
			sev = strings.TrimSpace(sev)
			if _, ok := models.SeverityOrdinal[sev]; !ok {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid severity: "+sev)
			}
		}
		params.Severity = v
	}
	params.SourceApp = c.QueryParam("source_app")
	params.Search = c.QueryParam("search")
	params.TraceID = c.QueryParam("trace_id")

	start := time.Now()
	result, err := s.queryService.Query(c.Request().Context(), params)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &QueryResponse{
		QueryResult: result,
		QueryTimeMS: elapsedMS(start),
	})
}

// searchLogsHandler handles GET /logs/search.
func (s *Server) searchLogsHandler(c *echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}

	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit: must be between 1 and 1000")
		}
		limit = n
	}

	start := time.Now()
	results, total, err := s.queryService.Search(c.Request().Context(), q, c.QueryParam("source_app"), limit)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &SearchResponse{
		Results:      results,
		Total:        total,
		Query:        q,
		SearchTimeMS: elapsedMS(start),
	})
}

// getLogHandler handles GET /logs/:id.
func (s *Server) getLogHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "log id is required")
	}

	entry, err := s.queryService.GetByID(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, entry)
}

// elapsedMS reports milliseconds since start with microsecond resolution.
func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
