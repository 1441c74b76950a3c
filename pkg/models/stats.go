package models

import "time"

// TimeRange is the window [Start, End] over event timestamps.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// LogsPerSecond carries throughput figures for a summary window.
// P95/P99 have no producer yet and are reported as 0.
type LogsPerSecond struct {
	Avg float64 `json:"avg"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// StatsSummary is returned by GET /stats/summary. BySeverity always
// contains all five severities, zero-filled.
type StatsSummary struct {
	TimeRange     TimeRange      `json:"time_range"`
	TotalLogs     int            `json:"total_logs"`
	BySeverity    map[string]int `json:"by_severity"`
	ErrorRate     float64        `json:"error_rate"`
	LogsPerSecond LogsPerSecond  `json:"logs_per_second"`
}

// TimeSeriesPoint is one bucket of a timeseries: the bucket start plus a
// count per group key (severity or source_app).
type TimeSeriesPoint struct {
	Timestamp time.Time      `json:"timestamp"`
	Values    map[string]int `json:"values"`
}

// TimeSeries is returned by GET /stats/timeseries.
type TimeSeries struct {
	Interval string            `json:"interval"`
	Series   []TimeSeriesPoint `json:"series"`
}

// BucketIntervals maps the recognized timeseries intervals to their
// PostgreSQL interval literals.
var BucketIntervals = map[string]string{
	"1m":  "1 minute",
	"5m":  "5 minutes",
	"15m": "15 minutes",
	"1h":  "1 hour",
	"1d":  "1 day",
}
