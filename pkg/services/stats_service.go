package services

import (
	"context"
	"fmt"
	"time"

	"github.com/strym-io/strym/pkg/models"
	"github.com/strym-io/strym/pkg/repository"
)

// StatsReader computes aggregates over persisted events. Implemented by
// repository.StatsRepository.
type StatsReader interface {
	Summary(ctx context.Context, tr models.TimeRange, sourceApp string) (models.StatsSummary, error)
	Timeseries(ctx context.Context, p repository.TimeseriesParams) ([]models.TimeSeriesPoint, error)
}

// StatsService resolves time windows and serves aggregate statistics.
type StatsService struct {
	repo StatsReader

	// now is swapped in tests to pin the default window.
	now func() time.Time
}

// NewStatsService creates a StatsService.
func NewStatsService(repo StatsReader) *StatsService {
	return &StatsService{repo: repo, now: time.Now}
}

// Summary aggregates the window into totals, per-severity counts, error
// rate, and throughput. Nil start/end default to UTC midnight today and
// now respectively.
func (s *StatsService) Summary(ctx context.Context, start, end *time.Time, sourceApp string) (models.StatsSummary, error) {
	tr, err := s.resolveRange(start, end)
	if err != nil {
		return models.StatsSummary{}, err
	}

	summary, err := s.repo.Summary(ctx, tr, sourceApp)
	if err != nil {
		return models.StatsSummary{}, fmt.Errorf("failed to compute summary: %w", err)
	}
	return summary, nil
}

// Timeseries buckets the window by the requested interval, grouped by
// severity or source_app. Interval and group_by are validated here so the
// repository only ever sees whitelisted values.
func (s *StatsService) Timeseries(ctx context.Context, start, end *time.Time, interval, groupBy, sourceApp string) (models.TimeSeries, error) {
	if interval == "" {
		interval = "1h"
	}
	if _, ok := models.BucketIntervals[interval]; !ok {
		return models.TimeSeries{}, NewValidationError("interval",
			"must be one of: 1m, 5m, 15m, 1h, 1d")
	}

	if groupBy == "" {
		groupBy = "severity"
	}
	if groupBy != "severity" && groupBy != "source_app" {
		return models.TimeSeries{}, NewValidationError("group_by",
			"must be one of: severity, source_app")
	}

	tr, err := s.resolveRange(start, end)
	if err != nil {
		return models.TimeSeries{}, err
	}

	series, err := s.repo.Timeseries(ctx, repository.TimeseriesParams{
		Range:     tr,
		Interval:  interval,
		GroupBy:   groupBy,
		SourceApp: sourceApp,
	})
	if err != nil {
		return models.TimeSeries{}, fmt.Errorf("failed to compute timeseries: %w", err)
	}

	return models.TimeSeries{Interval: interval, Series: series}, nil
}

// resolveRange applies the window defaults and rejects inverted windows.
func (s *StatsService) resolveRange(start, end *time.Time) (models.TimeRange, error) {
	now := s.now().UTC()
	tr := models.TimeRange{
		Start: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		End:   now,
	}
	if start != nil {
		tr.Start = start.UTC()
	}
	if end != nil {
		tr.End = end.UTC()
	}
	if tr.End.Before(tr.Start) {
		return models.TimeRange{}, NewValidationError("end", "must not be before start")
	}
	return tr, nil
}
