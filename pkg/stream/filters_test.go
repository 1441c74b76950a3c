package stream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strym-io/strym/pkg/models"
)

func entryWith(app, severity string) models.LogEntry {
	return models.LogEntry{
		Source:   models.LogSource{AppID: app},
		Severity: severity,
		Message:  "m",
	}
}

func TestParseFilters(t *testing.T) {
	t.Run("empty input matches everything", func(t *testing.T) {
		f, err := ParseFilters(nil)
		require.NoError(t, err)
		assert.True(t, f.Matches(entryWith("any-app", "debug")))
	})

	t.Run("scalar and array forms are equivalent", func(t *testing.T) {
		scalar, err := ParseFilters(json.RawMessage(`{"source_app": "api"}`))
		require.NoError(t, err)
		array, err := ParseFilters(json.RawMessage(`{"source_app": ["api"]}`))
		require.NoError(t, err)

		for _, f := range []Filters{scalar, array} {
			assert.True(t, f.Matches(entryWith("api", "info")))
			assert.False(t, f.Matches(entryWith("worker", "info")))
		}
	})

	t.Run("unknown keys are dropped", func(t *testing.T) {
		f, err := ParseFilters(json.RawMessage(`{"bogus": "x", "min_severity": "warn"}`))
		require.NoError(t, err)
		assert.Equal(t, "warn", f.MinSeverity)
		assert.True(t, f.Matches(entryWith("a", "error")))
		assert.False(t, f.Matches(entryWith("a", "info")))
	})

	t.Run("malformed filter value errors", func(t *testing.T) {
		_, err := ParseFilters(json.RawMessage(`{"source_app": 42}`))
		assert.Error(t, err)
	})
}

func TestFiltersMatches(t *testing.T) {
	t.Run("severity set is a disjunction", func(t *testing.T) {
		f := Filters{Severity: StringSet{"error", "fatal"}}
		assert.True(t, f.Matches(entryWith("a", "error")))
		assert.True(t, f.Matches(entryWith("a", "fatal")))
		assert.False(t, f.Matches(entryWith("a", "warn")))
	})

	t.Run("min_severity cuts below threshold", func(t *testing.T) {
		f := Filters{MinSeverity: "info"}
		assert.False(t, f.Matches(entryWith("a", "debug")))
		for _, sev := range []string{"info", "warn", "error", "fatal"} {
			assert.True(t, f.Matches(entryWith("a", sev)), sev)
		}
	})

	t.Run("unknown event severity ranks as debug", func(t *testing.T) {
		f := Filters{MinSeverity: "info"}
		assert.False(t, f.Matches(entryWith("a", "verbose")))

		// No threshold: unknown severity passes.
		assert.True(t, Filters{}.Matches(entryWith("a", "verbose")))
	})

	t.Run("clauses are conjunctive", func(t *testing.T) {
		f := Filters{
			SourceApp:   StringSet{"api"},
			MinSeverity: "warn",
		}
		assert.True(t, f.Matches(entryWith("api", "error")))
		assert.False(t, f.Matches(entryWith("api", "info")))
		assert.False(t, f.Matches(entryWith("worker", "error")))
	})
}
