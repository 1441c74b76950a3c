package stream

import (
	"encoding/json"
	"fmt"

	"github.com/strym-io/strym/pkg/models"
)

// StringSet is a filter value that clients may send either as a single
// string or as an array of strings.
type StringSet []string

// UnmarshalJSON accepts "value" and ["a", "b"] alike.
func (s *StringSet) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StringSet{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or array of strings: %w", err)
	}
	*s = many
	return nil
}

// Contains reports whether v is a member of the set.
func (s StringSet) Contains(v string) bool {
	for _, item := range s {
		if item == v {
			return true
		}
	}
	return false
}

// Filters is the recognized filter set of a subscription. Unknown keys in
// the client's filter object are dropped at parse time; an empty Filters
// matches every event. All clauses are conjunctive.
type Filters struct {
	SourceApp   StringSet `json:"source_app,omitempty"`
	Severity    StringSet `json:"severity,omitempty"`
	MinSeverity string    `json:"min_severity,omitempty"`
}

// ParseFilters decodes a client-supplied filter object. A missing or null
// object yields the match-everything filter.
func ParseFilters(raw json.RawMessage) (Filters, error) {
	var f Filters
	if len(raw) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		return Filters{}, fmt.Errorf("invalid filters: %w", err)
	}
	return f, nil
}

// Matches reports whether the event satisfies every filter clause.
// min_severity compares ordinals (debug<info<warn<error<fatal); an unknown
// event severity ranks as debug.
func (f Filters) Matches(entry models.LogEntry) bool {
	if len(f.SourceApp) > 0 && !f.SourceApp.Contains(entry.Source.AppID) {
		return false
	}
	if len(f.Severity) > 0 && !f.Severity.Contains(entry.Severity) {
		return false
	}
	if f.MinSeverity != "" {
		if models.SeverityOrdinal[entry.Severity] < models.SeverityOrdinal[f.MinSeverity] {
			return false
		}
	}
	return true
}
