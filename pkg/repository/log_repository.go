// Package repository implements persistence for log events on PostgreSQL.
//
// Queries are written directly against database/sql with the pgx driver.
// The logs table is append-only: rows are inserted once and never updated.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/strym-io/strym/pkg/models"
)

// logColumns is the canonical SELECT list for log rows. message_search is
// deliberately excluded — it only exists for the full-text index.
const logColumns = `id, timestamp, source_app, source_host, source_instance,
	severity, message, metadata, trace_id, span_id, created_at`

// LogRepository provides access to the append-only logs table.
type LogRepository struct {
	db *sql.DB
}

// NewLogRepository creates a LogRepository on the shared connection pool.
func NewLogRepository(db *sql.DB) *LogRepository {
	return &LogRepository{db: db}
}

// QueryParams are the recognized filters for Query. Severity is a
// comma-separated list; Sort is "asc" or "desc".
type QueryParams struct {
	SourceApp string
	Severity  string
	Search    string
	TraceID   string
	Limit     int
	Offset    int
	Sort      string
}

// Insert persists a single log event and returns the assigned id plus the
// resolved timestamp and created_at. A missing timestamp defaults to the
// time of receipt.
func (r *LogRepository) Insert(ctx context.Context, log models.LogCreate) (models.LogResponse, error) {
	now := time.Now().UTC()
	timestamp := now
	if log.Timestamp != nil {
		timestamp = log.Timestamp.UTC()
	}

	metadata, err := marshalMetadata(log.Metadata)
	if err != nil {
		return models.LogResponse{}, err
	}

	var (
		id        int64
		ts        time.Time
		createdAt time.Time
	)
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO logs (
			timestamp, source_app, source_host, source_instance,
			severity, message, metadata, trace_id, span_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, timestamp, created_at`,
		timestamp,
		log.Source.AppID,
		nullString(log.Source.Host),
		nullString(log.Source.InstanceID),
		log.Severity,
		log.Message,
		metadata,
		nullString(log.TraceID),
		nullString(log.SpanID),
		now,
	).Scan(&id, &ts, &createdAt)
	if err != nil {
		return models.LogResponse{}, fmt.Errorf("failed to insert log: %w", err)
	}

	return models.LogResponse{
		ID:        strconv.FormatInt(id, 10),
		Timestamp: ts,
		CreatedAt: createdAt,
	}, nil
}

// GetByID fetches a single log by id. Returns (nil, nil) when the id does
// not exist or is not a valid identifier.
func (r *LogRepository) GetByID(ctx context.Context, id string) (*models.LogEntry, error) {
	numericID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, nil
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT `+logColumns+` FROM logs WHERE id = $1`, numericID)

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get log %s: %w", id, err)
	}
	return entry, nil
}

// Query returns the filtered page of logs plus the total count of rows
// matching the same predicate without pagination. Ordering is by timestamp
// with id as tie-breaker.
func (r *LogRepository) Query(ctx context.Context, p QueryParams) ([]models.LogEntry, int, error) {
	where, args := buildConditions(p)

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM logs WHERE `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count logs: %w", err)
	}

	order := "DESC"
	if p.Sort == "asc" {
		order = "ASC"
	}

	limitPos := len(args) + 1
	args = append(args, p.Limit, p.Offset)

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM logs WHERE %s ORDER BY timestamp %s, id %s LIMIT $%d OFFSET $%d`,
		logColumns, where, order, order, limitPos, limitPos+1), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	entries := make([]models.LogEntry, 0, p.Limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan log row: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate log rows: %w", err)
	}

	return entries, total, nil
}

// Search runs a ranked full-text query against the message column and
// returns matches with their ts_rank scores, best first.
func (r *LogRepository) Search(ctx context.Context, q, sourceApp string, limit int) ([]models.ScoredEntry, int, error) {
	conditions := []string{`message_search @@ plainto_tsquery('english', $1)`}
	args := []any{q}
	if sourceApp != "" {
		conditions = append(conditions, fmt.Sprintf("source_app = $%d", len(args)+1))
		args = append(args, sourceApp)
	}
	where := strings.Join(conditions, " AND ")

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM logs WHERE `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count search results: %w", err)
	}

	limitPos := len(args) + 1
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s, ts_rank(message_search, plainto_tsquery('english', $1)) AS score
		FROM logs WHERE %s ORDER BY score DESC, id DESC LIMIT $%d`,
		logColumns, where, limitPos), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search logs: %w", err)
	}
	defer rows.Close()

	results := make([]models.ScoredEntry, 0, limit)
	for rows.Next() {
		entry, score, err := scanScoredEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan search row: %w", err)
		}
		results = append(results, models.ScoredEntry{Log: *entry, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate search rows: %w", err)
	}

	return results, total, nil
}

// buildConditions translates QueryParams into a WHERE clause with
// positional arguments. An empty parameter set yields the predicate TRUE.
func buildConditions(p QueryParams) (string, []any) {
	var conditions []string
	var args []any

	if p.SourceApp != "" {
		args = append(args, p.SourceApp)
		conditions = append(conditions, fmt.Sprintf("source_app = $%d", len(args)))
	}

	if p.Severity != "" {
		severities := strings.Split(p.Severity, ",")
		placeholders := make([]string, 0, len(severities))
		for _, sev := range severities {
			args = append(args, strings.TrimSpace(sev))
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		conditions = append(conditions, fmt.Sprintf("severity IN (%s)", strings.Join(placeholders, ", ")))
	}

	if p.Search != "" {
		args = append(args, p.Search)
		conditions = append(conditions, fmt.Sprintf("message_search @@ plainto_tsquery('english', $%d)", len(args)))
	}

	if p.TraceID != "" {
		args = append(args, p.TraceID)
		conditions = append(conditions, fmt.Sprintf("trace_id = $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "TRUE", nil
	}
	return strings.Join(conditions, " AND "), args
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.LogEntry, error) {
	var (
		id                        int64
		timestamp, createdAt      time.Time
		sourceApp, severity, msg  string
		host, instance            sql.NullString
		traceID, spanID           sql.NullString
		metadata                  []byte
	)
	err := row.Scan(&id, &timestamp, &sourceApp, &host, &instance,
		&severity, &msg, &metadata, &traceID, &spanID, &createdAt)
	if err != nil {
		return nil, err
	}
	return buildEntry(id, timestamp, sourceApp, host, instance, severity, msg, metadata, traceID, spanID, createdAt)
}

func scanScoredEntry(row rowScanner) (*models.LogEntry, float64, error) {
	var (
		id                        int64
		timestamp, createdAt      time.Time
		sourceApp, severity, msg  string
		host, instance            sql.NullString
		traceID, spanID           sql.NullString
		metadata                  []byte
		score                     float64
	)
	err := row.Scan(&id, &timestamp, &sourceApp, &host, &instance,
		&severity, &msg, &metadata, &traceID, &spanID, &createdAt, &score)
	if err != nil {
		return nil, 0, err
	}
	entry, err := buildEntry(id, timestamp, sourceApp, host, instance, severity, msg, metadata, traceID, spanID, createdAt)
	if err != nil {
		return nil, 0, err
	}
	return entry, score, nil
}

func buildEntry(id int64, timestamp time.Time, sourceApp string, host, instance sql.NullString,
	severity, msg string, metadata []byte, traceID, spanID sql.NullString, createdAt time.Time) (*models.LogEntry, error) {

	entry := &models.LogEntry{
		ID:        strconv.FormatInt(id, 10),
		Timestamp: timestamp,
		Source: models.LogSource{
			AppID:      sourceApp,
			Host:       host.String,
			InstanceID: instance.String,
		},
		Severity:  severity,
		Message:   msg,
		TraceID:   traceID.String,
		SpanID:    spanID.String,
		CreatedAt: createdAt,
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for log %d: %w", id, err)
		}
	}
	return entry, nil
}

func marshalMetadata(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return data, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
