package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
)

// statsSummaryHandler handles GET /stats/summary.
func (s *Server) statsSummaryHandler(c *echo.Context) error {
	start, end, err := parseWindow(c)
	if err != nil {
		return err
	}

	summary, svcErr := s.statsService.Summary(c.Request().Context(), start, end, c.QueryParam("source_app"))
	if svcErr != nil {
		return mapServiceError(svcErr)
	}

	return c.JSON(http.StatusOK, summary)
}

// statsTimeseriesHandler handles GET /stats/timeseries.
func (s *Server) statsTimeseriesHandler(c *echo.Context) error {
	start, end, err := parseWindow(c)
	if err != nil {
		return err
	}

	series, svcErr := s.statsService.Timeseries(
		c.Request().Context(),
		start, end,
		c.QueryParam("interval"),
		c.QueryParam("group_by"),
		c.QueryParam("source_app"),
	)
	if svcErr != nil {
		return mapServiceError(svcErr)
	}

	return c.JSON(http.StatusOK, series)
}

// parseWindow parses the optional start/end query parameters as RFC3339.
func parseWindow(c *echo.Context) (start, end *time.Time, err error) {
	if v := c.QueryParam("start"); v != "" {
		t, parseErr := time.Parse(time.RFC3339, v)
		if parseErr != nil {
			return nil, nil, echo.NewHTTPError(http.StatusBadRequest, "invalid start: must be RFC3339")
		}
		start = &t
	}
	if v := c.QueryParam("end"); v != "" {
		t, parseErr := time.Parse(time.RFC3339, v)
		if parseErr != nil {
			return nil, nil, echo.NewHTTPError(http.StatusBadRequest, "invalid end: must be RFC3339")
		}
		end = &t
	}
	return start, end, nil
}
