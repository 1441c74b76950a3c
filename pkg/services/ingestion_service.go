package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/strym-io/strym/pkg/models"
)

// CacheNamespaceLogs is the query-cache namespace invalidated on every
// successful ingest.
const CacheNamespaceLogs = "logs"

// LogInserter persists a single log event. Implemented by
// repository.LogRepository.
type LogInserter interface {
	Insert(ctx context.Context, log models.LogCreate) (models.LogResponse, error)
}

// CacheInvalidator drops every cache entry under a namespace. Implemented
// by cache.Cache.
type CacheInvalidator interface {
	InvalidatePrefix(ctx context.Context, namespace string) int
}

// EventPublisher hands an accepted event to the cross-instance bus.
// Implemented by stream.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, entry models.LogEntry)
}

// IngestionService validates and persists submitted events, invalidates
// the query cache, and publishes each accepted event to the bus.
type IngestionService struct {
	repo      LogInserter
	cache     CacheInvalidator
	publisher EventPublisher
	validate  *validator.Validate
}

// NewIngestionService creates an IngestionService.
func NewIngestionService(repo LogInserter, cache CacheInvalidator, publisher EventPublisher) *IngestionService {
	return &IngestionService{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Ingest validates and persists one event, then invalidates the logs
// cache namespace and publishes the canonicalized event. The invalidation
// runs after persistence and before publish, so a reader prompted by the
// delivery observes the new row on its next uncached lookup.
func (s *IngestionService) Ingest(ctx context.Context, log models.LogCreate) (models.LogResponse, error) {
	if err := s.validateLog(log); err != nil {
		return models.LogResponse{}, err
	}

	resp, err := s.repo.Insert(ctx, log)
	if err != nil {
		return models.LogResponse{}, fmt.Errorf("ingest failed: %w", err)
	}

	s.cache.InvalidatePrefix(ctx, CacheNamespaceLogs)
	s.publisher.Publish(ctx, canonicalEntry(log, resp))

	return resp, nil
}

// IngestBulk persists each event independently, accumulating per-index
// errors. The batch never fails as a whole. The cache is invalidated once
// if anything was accepted; every accepted event is published.
func (s *IngestionService) IngestBulk(ctx context.Context, logs []models.LogCreate) models.BulkResult {
	result := models.BulkResult{
		Errors:  []models.BulkError{},
		BatchID: uuid.New().String(),
	}

	accepted := make([]models.LogEntry, 0, len(logs))
	for i, log := range logs {
		if err := s.validateLog(log); err != nil {
			result.Errors = append(result.Errors, models.BulkError{Index: i, Error: err.Error()})
			continue
		}
		resp, err := s.repo.Insert(ctx, log)
		if err != nil {
			result.Errors = append(result.Errors, models.BulkError{Index: i, Error: err.Error()})
			continue
		}
		accepted = append(accepted, canonicalEntry(log, resp))
	}

	result.Accepted = len(accepted)
	result.Rejected = len(result.Errors)

	if len(accepted) > 0 {
		s.cache.InvalidatePrefix(ctx, CacheNamespaceLogs)
		for _, entry := range accepted {
			s.publisher.Publish(ctx, entry)
		}
	}

	return result
}

// validateLog enforces the severity enum, required fields, and length
// bounds before anything touches storage.
func (s *IngestionService) validateLog(log models.LogCreate) error {
	err := s.validate.Struct(log)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		return NewValidationError(fieldName(first), fieldMessage(first))
	}
	return NewValidationError("", err.Error())
}

// canonicalEntry builds the event as delivered to subscribers: the
// submitted fields plus the assigned id, resolved timestamp, and
// created_at.
func canonicalEntry(log models.LogCreate, resp models.LogResponse) models.LogEntry {
	return models.LogEntry{
		ID:        resp.ID,
		Timestamp: resp.Timestamp,
		Source:    log.Source,
		Severity:  log.Severity,
		Message:   log.Message,
		Metadata:  log.Metadata,
		TraceID:   log.TraceID,
		SpanID:    log.SpanID,
		CreatedAt: resp.CreatedAt,
	}
}

// fieldName renders a validator namespace like "LogCreate.Source.AppID"
// as the JSON-ish path "source.app_id".
func fieldName(fe validator.FieldError) string {
	parts := strings.Split(fe.Namespace(), ".")
	if len(parts) > 1 {
		parts = parts[1:] // drop the struct name
	}
	for i, p := range parts {
		parts[i] = toSnake(p)
	}
	return strings.Join(parts, ".")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			// Split on lower→upper boundaries only, so "AppID" → "app_id".
			if i > 0 && (s[i-1] < 'A' || s[i-1] > 'Z') {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
