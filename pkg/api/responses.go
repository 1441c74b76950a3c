package api

import (
	"github.com/strym-io/strym/pkg/models"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// HealthCheck is one component entry in HealthResponse.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// QueryResponse is returned by GET /logs.
type QueryResponse struct {
	models.QueryResult
	QueryTimeMS float64 `json:"query_time_ms"`
}

// SearchResponse is returned by GET /logs/search.
type SearchResponse struct {
	Results      []models.ScoredEntry `json:"results"`
	Total        int                  `json:"total"`
	Query        string               `json:"query"`
	SearchTimeMS float64              `json:"search_time_ms"`
}

// ErrorResponse is the envelope every error response is wrapped in.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the error message, class, and time of occurrence.
// RetryAfter is set only on rate-limit rejections.
type ErrorDetail struct {
	Message    string `json:"message"`
	Type       string `json:"type"`
	Timestamp  string `json:"timestamp"`
	RetryAfter int    `json:"retry_after,omitempty"`
}
