package services

import (
	"context"
	"fmt"
	"time"

	"github.com/strym-io/strym/pkg/models"
	"github.com/strym-io/strym/pkg/repository"
)

// LogReader reads persisted log events. Implemented by
// repository.LogRepository.
type LogReader interface {
	GetByID(ctx context.Context, id string) (*models.LogEntry, error)
	Query(ctx context.Context, p repository.QueryParams) ([]models.LogEntry, int, error)
	Search(ctx context.Context, q, sourceApp string, limit int) ([]models.ScoredEntry, int, error)
}

// QueryCache caches JSON-serializable results under namespaced keys.
// Implemented by cache.Cache.
type QueryCache interface {
	GetJSON(ctx context.Context, namespace string, params map[string]any, dest any) bool
	SetJSON(ctx context.Context, namespace string, params map[string]any, value any, ttl time.Duration)
}

// QueryService serves filtered queries, full-text search, and single-event
// lookups, with a read-through cache on the list query.
type QueryService struct {
	repo  LogReader
	cache QueryCache
}

// NewQueryService creates a QueryService.
func NewQueryService(repo LogReader, cache QueryCache) *QueryService {
	return &QueryService{repo: repo, cache: cache}
}

// Query returns one page of events matching the filters, newest first by
// default. Results are cached under the logs namespace keyed on the full
// parameter set; ingestion invalidates the namespace, so a hit is never
// staler than the last accepted write.
func (s *QueryService) Query(ctx context.Context, p repository.QueryParams) (models.QueryResult, error) {
	params := map[string]any{
		"source_app": p.SourceApp,
		"severity":   p.Severity,
		"search":     p.Search,
		"trace_id":   p.TraceID,
		"limit":      p.Limit,
		"offset":     p.Offset,
		"sort":       p.Sort,
	}

	var cached models.QueryResult
	if s.cache.GetJSON(ctx, CacheNamespaceLogs, params, &cached) {
		return cached, nil
	}

	logs, total, err := s.repo.Query(ctx, p)
	if err != nil {
		return models.QueryResult{}, fmt.Errorf("failed to query logs: %w", err)
	}

	result := models.QueryResult{
		Logs: logs,
		Pagination: models.Pagination{
			Total:   total,
			Limit:   p.Limit,
			Offset:  p.Offset,
			HasMore: p.Offset+p.Limit < total,
		},
	}

	s.cache.SetJSON(ctx, CacheNamespaceLogs, params, result, 0)
	return result, nil
}

// Search ranks events whose message matches the full-text query. Not
// cached: ranked results are cheap to recompute relative to their hit
// rate under a write-invalidated namespace.
func (s *QueryService) Search(ctx context.Context, q, sourceApp string, limit int) ([]models.ScoredEntry, int, error) {
	results, total, err := s.repo.Search(ctx, q, sourceApp, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search logs: %w", err)
	}
	return results, total, nil
}

// GetByID returns one event, or ErrNotFound for an unknown or malformed id.
func (s *QueryService) GetByID(ctx context.Context, id string) (*models.LogEntry, error) {
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get log %s: %w", id, err)
	}
	if entry == nil {
		return nil, ErrNotFound
	}
	return entry, nil
}
