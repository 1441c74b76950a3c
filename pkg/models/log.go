// Package models defines the API-facing data structures shared by the
// repository, service, and HTTP layers.
package models

import "time"

// Severity levels, in ascending order of importance.
const (
	SeverityDebug = "debug"
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
	SeverityFatal = "fatal"
)

// SeverityOrdinal maps each severity to its rank for min_severity
// comparisons. Unknown severities rank as 0 (debug).
var SeverityOrdinal = map[string]int{
	SeverityDebug: 0,
	SeverityInfo:  1,
	SeverityWarn:  2,
	SeverityError: 3,
	SeverityFatal: 4,
}

// Severities lists the valid severity values in ordinal order.
var Severities = []string{SeverityDebug, SeverityInfo, SeverityWarn, SeverityError, SeverityFatal}

// LogSource identifies the application that emitted a log event.
type LogSource struct {
	AppID      string `json:"app_id" validate:"required,min=1,max=128"`
	Host       string `json:"host,omitempty" validate:"max=256"`
	InstanceID string `json:"instance_id,omitempty" validate:"max=256"`
}

// LogCreate is the body of POST /logs — a log event as submitted by a client.
// Timestamp is optional; the server defaults it to the time of receipt.
type LogCreate struct {
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	Source    LogSource      `json:"source" validate:"required"`
	Severity  string         `json:"severity" validate:"required,oneof=debug info warn error fatal"`
	Message   string         `json:"message" validate:"required"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	TraceID   string         `json:"trace_id,omitempty" validate:"max=256"`
	SpanID    string         `json:"span_id,omitempty" validate:"max=256"`
}

// LogResponse is returned by POST /logs after a successful insert.
type LogResponse struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
}

// LogEntry is a persisted log event, as returned by queries and delivered
// to stream subscribers.
type LogEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Source    LogSource      `json:"source"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
	SpanID    string         `json:"span_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Pagination describes the window of a query result.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// QueryResult is the payload of GET /logs (and the unit stored in the
// query cache).
type QueryResult struct {
	Logs       []LogEntry `json:"logs"`
	Pagination Pagination `json:"pagination"`
}

// ScoredEntry pairs a log entry with its full-text relevance score.
type ScoredEntry struct {
	Log   LogEntry `json:"log"`
	Score float64  `json:"score"`
}

// BulkError reports a single rejected record in a bulk ingest.
type BulkError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// BulkResult is returned by POST /logs/bulk. The batch is never rejected
// as a whole; failures are reported per index.
type BulkResult struct {
	Accepted int         `json:"accepted"`
	Rejected int         `json:"rejected"`
	Errors   []BulkError `json:"errors"`
	BatchID  string      `json:"batch_id"`
}
