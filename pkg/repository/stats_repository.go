package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/strym-io/strym/pkg/models"
)

// groupByColumns whitelists the GROUP BY targets for timeseries queries.
// User input is resolved through this map, never interpolated.
var groupByColumns = map[string]string{
	"severity":   "severity",
	"source_app": "source_app",
}

// StatsRepository computes aggregates over the logs table.
type StatsRepository struct {
	db *sql.DB
}

// NewStatsRepository creates a StatsRepository on the shared connection pool.
func NewStatsRepository(db *sql.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// TimeseriesParams configure a bucketed aggregation. Interval must be one
// of the models.BucketIntervals keys; GroupBy one of severity/source_app.
type TimeseriesParams struct {
	Range     models.TimeRange
	Interval  string
	GroupBy   string
	SourceApp string
}

// Summary aggregates total and per-severity counts over the window, with
// derived error_rate and average throughput. All five severities are
// present in the result, zero-filled.
func (r *StatsRepository) Summary(ctx context.Context, tr models.TimeRange, sourceApp string) (models.StatsSummary, error) {
	where := "timestamp >= $1 AND timestamp <= $2"
	args := []any{tr.Start, tr.End}
	if sourceApp != "" {
		where += " AND source_app = $3"
		args = append(args, sourceApp)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT severity, COUNT(*) FROM logs WHERE `+where+` GROUP BY severity`, args...)
	if err != nil {
		return models.StatsSummary{}, fmt.Errorf("failed to aggregate summary: %w", err)
	}
	defer rows.Close()

	bySeverity := make(map[string]int, len(models.Severities))
	for _, sev := range models.Severities {
		bySeverity[sev] = 0
	}

	total := 0
	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return models.StatsSummary{}, fmt.Errorf("failed to scan summary row: %w", err)
		}
		bySeverity[severity] = count
		total += count
	}
	if err := rows.Err(); err != nil {
		return models.StatsSummary{}, fmt.Errorf("failed to iterate summary rows: %w", err)
	}

	errorRate := 0.0
	if total > 0 {
		errorRate = float64(bySeverity[models.SeverityError]+bySeverity[models.SeverityFatal]) / float64(total)
	}

	avgPerSecond := 0.0
	if duration := tr.End.Sub(tr.Start).Seconds(); duration > 0 {
		avgPerSecond = float64(total) / duration
	}

	return models.StatsSummary{
		TimeRange:  tr,
		TotalLogs:  total,
		BySeverity: bySeverity,
		ErrorRate:  round(errorRate, 4),
		LogsPerSecond: models.LogsPerSecond{
			Avg: round(avgPerSecond, 2),
		},
	}, nil
}

// Timeseries buckets events with date_bin and counts them per group key.
// Buckets are returned in ascending order of bucket start.
func (r *StatsRepository) Timeseries(ctx context.Context, p TimeseriesParams) ([]models.TimeSeriesPoint, error) {
	interval, ok := models.BucketIntervals[p.Interval]
	if !ok {
		return nil, fmt.Errorf("unrecognized interval: %q", p.Interval)
	}
	groupCol, ok := groupByColumns[p.GroupBy]
	if !ok {
		return nil, fmt.Errorf("unrecognized group_by: %q", p.GroupBy)
	}

	where := "timestamp >= $2 AND timestamp <= $3"
	args := []any{interval, p.Range.Start, p.Range.End}
	if p.SourceApp != "" {
		where += " AND source_app = $4"
		args = append(args, p.SourceApp)
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT date_bin($1::interval, timestamp, TIMESTAMPTZ 'epoch') AS bucket, %s, COUNT(*)
		FROM logs WHERE %s
		GROUP BY bucket, %s
		ORDER BY bucket`, groupCol, where, groupCol), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate timeseries: %w", err)
	}
	defer rows.Close()

	var series []models.TimeSeriesPoint
	bucketIdx := make(map[time.Time]int)
	for rows.Next() {
		var bucket time.Time
		var group string
		var count int
		if err := rows.Scan(&bucket, &group, &count); err != nil {
			return nil, fmt.Errorf("failed to scan timeseries row: %w", err)
		}

		idx, ok := bucketIdx[bucket]
		if !ok {
			idx = len(series)
			bucketIdx[bucket] = idx
			series = append(series, models.TimeSeriesPoint{
				Timestamp: bucket,
				Values:    make(map[string]int),
			})
		}
		series[idx].Values[group] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate timeseries rows: %w", err)
	}

	return series, nil
}

func round(v float64, decimals int) float64 {
	factor := math.Pow10(decimals)
	return math.Round(v*factor) / factor
}
