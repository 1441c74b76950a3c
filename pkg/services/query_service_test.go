package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strym-io/strym/pkg/models"
	"github.com/strym-io/strym/pkg/repository"
)

type fakeReader struct {
	entries []models.LogEntry
	total   int
	scored  []models.ScoredEntry
	byID    *models.LogEntry
	err     error

	queryCalls int
}

func (f *fakeReader) GetByID(_ context.Context, _ string) (*models.LogEntry, error) {
	return f.byID, f.err
}

func (f *fakeReader) Query(_ context.Context, _ repository.QueryParams) ([]models.LogEntry, int, error) {
	f.queryCalls++
	return f.entries, f.total, f.err
}

func (f *fakeReader) Search(_ context.Context, _, _ string, _ int) ([]models.ScoredEntry, int, error) {
	return f.scored, len(f.scored), f.err
}

// fakeQueryCache primes at most one stored value, keyed loosely by the
// serialized param bag.
type fakeQueryCache struct {
	storedKey string
	stored    []byte
	sets      int
}

func (f *fakeQueryCache) key(namespace string, params map[string]any) string {
	b, _ := json.Marshal(params)
	return namespace + ":" + string(b)
}

func (f *fakeQueryCache) GetJSON(_ context.Context, namespace string, params map[string]any, dest any) bool {
	if f.stored == nil || f.key(namespace, params) != f.storedKey {
		return false
	}
	return json.Unmarshal(f.stored, dest) == nil
}

func (f *fakeQueryCache) SetJSON(_ context.Context, namespace string, params map[string]any, value any, _ time.Duration) {
	f.sets++
	f.storedKey = f.key(namespace, params)
	f.stored, _ = json.Marshal(value)
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	entries := []models.LogEntry{
		{ID: "1", Severity: "info", Message: "a"},
		{ID: "2", Severity: "warn", Message: "b"},
	}

	t.Run("miss hits the repository and caches", func(t *testing.T) {
		repo := &fakeReader{entries: entries, total: 10}
		qc := &fakeQueryCache{}
		svc := NewQueryService(repo, qc)

		result, err := svc.Query(ctx, repository.QueryParams{Limit: 2, Offset: 0, Sort: "desc"})
		require.NoError(t, err)
		assert.Len(t, result.Logs, 2)
		assert.Equal(t, 10, result.Pagination.Total)
		assert.True(t, result.Pagination.HasMore)
		assert.Equal(t, 1, repo.queryCalls)
		assert.Equal(t, 1, qc.sets)
	})

	t.Run("hit skips the repository", func(t *testing.T) {
		repo := &fakeReader{entries: entries, total: 10}
		qc := &fakeQueryCache{}
		svc := NewQueryService(repo, qc)

		params := repository.QueryParams{Limit: 2, Sort: "desc"}
		first, err := svc.Query(ctx, params)
		require.NoError(t, err)
		second, err := svc.Query(ctx, params)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, repo.queryCalls)
	})

	t.Run("has_more false on the last page", func(t *testing.T) {
		repo := &fakeReader{entries: entries[:1], total: 5}
		svc := NewQueryService(repo, &fakeQueryCache{})

		result, err := svc.Query(ctx, repository.QueryParams{Limit: 2, Offset: 4, Sort: "desc"})
		require.NoError(t, err)
		assert.False(t, result.Pagination.HasMore)
	})

	t.Run("repository error propagates", func(t *testing.T) {
		svc := NewQueryService(&fakeReader{err: errors.New("down")}, &fakeQueryCache{})
		_, err := svc.Query(ctx, repository.QueryParams{Limit: 10, Sort: "desc"})
		assert.Error(t, err)
	})
}

func TestGetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		entry := &models.LogEntry{ID: "7", Message: "hello"}
		svc := NewQueryService(&fakeReader{byID: entry}, &fakeQueryCache{})

		got, err := svc.GetByID(ctx, "7")
		require.NoError(t, err)
		assert.Equal(t, entry, got)
	})

	t.Run("unknown id maps to ErrNotFound", func(t *testing.T) {
		svc := NewQueryService(&fakeReader{}, &fakeQueryCache{})
		_, err := svc.GetByID(ctx, "99999")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("repository error propagates", func(t *testing.T) {
		svc := NewQueryService(&fakeReader{err: errors.New("down")}, &fakeQueryCache{})
		_, err := svc.GetByID(ctx, "1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

func TestSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("passes results through", func(t *testing.T) {
		scored := []models.ScoredEntry{
			{Log: models.LogEntry{ID: "1"}, Score: 0.9},
			{Log: models.LogEntry{ID: "2"}, Score: 0.4},
		}
		svc := NewQueryService(&fakeReader{scored: scored}, &fakeQueryCache{})

		results, total, err := svc.Search(ctx, "timeout", "", 50)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Equal(t, scored, results)
	})
}
