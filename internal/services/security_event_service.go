package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/alumnigate/internal/clock"
	"github.com/BradenHooton/alumnigate/internal/models"
	"github.com/BradenHooton/alumnigate/internal/observability"
	"github.com/BradenHooton/alumnigate/pkg/logger"
	"github.com/google/uuid"
)

const (
	DefaultEventPageSize = 50
	MaxEventPageSize     = 100
	MaxPage              = 10000
)

// SecurityEventStore defines the persistence the event log needs
type SecurityEventStore interface {
	Create(ctx context.Context, e *models.SecurityEvent) error
	Query(ctx context.Context, filter models.EventFilter, limit, offset int) ([]*models.SecurityEvent, error)
	Count(ctx context.Context, filter models.EventFilter) (int64, error)
}

// EventPublisher streams persisted events to external consumers
type EventPublisher interface {
	Publish(ctx context.Context, event *models.SecurityEvent) error
}

// SecurityEventService is the append-only security event log. Every event is
// dual-written: a structured audit line and a database row.
type SecurityEventService struct {
	repo      SecurityEventStore
	audit     *logger.AuditLogger
	publisher EventPublisher
	clock     clock.Clock
	logger    *slog.Logger
}

// NewSecurityEventService creates a new SecurityEventService. publisher may be nil.
func NewSecurityEventService(repo SecurityEventStore, audit *logger.AuditLogger, publisher EventPublisher, clk clock.Clock, logger *slog.Logger) *SecurityEventService {
	return &SecurityEventService{
		repo:      repo,
		audit:     audit,
		publisher: publisher,
		clock:     clk,
		logger:    logger,
	}
}

func toAuditEvent(e *models.SecurityEvent) logger.AuditEvent {
	return logger.AuditEvent{
		EventID:     e.ID.String(),
		EventType:   string(e.EventType),
		Severity:    string(e.Severity),
		Identity:    deref(e.Identity),
		IPAddress:   deref(e.IPAddress),
		UserAgent:   deref(e.UserAgent),
		Description: e.Description,
		OccurredAt:  e.CreatedAt,
		Metadata:    e.Metadata,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Record appends one event stamped with the current time. When the store
// rejects it the event is written to the fallback log and a *models.LogError
// is returned.
func (s *SecurityEventService) Record(ctx context.Context, in models.SecurityEventInput) error {
	severity := in.Severity
	if !severity.Valid() {
		severity = in.EventType.DefaultSeverity()
	}

	event := &models.SecurityEvent{
		ID:          uuid.New(),
		Identity:    optional(in.Identity),
		EventType:   in.EventType,
		Description: in.Description,
		Severity:    severity,
		IPAddress:   optional(in.IPAddress),
		UserAgent:   optional(in.UserAgent),
		Metadata:    in.Metadata,
		CreatedAt:   s.clock.Now(),
	}
	if event.Metadata == nil {
		event.Metadata = models.EventMetadata{}
	}

	if err := s.repo.Create(ctx, event); err != nil {
		s.audit.LogPersistenceFailure(ctx, toAuditEvent(event), err)
		observability.EventsRecordedTotal.WithLabelValues(string(event.EventType), "false").Inc()
		observability.StoreFailuresTotal.WithLabelValues("event_log").Inc()
		return &models.LogError{EventType: event.EventType, Err: err}
	}

	s.audit.LogSecurityEvent(ctx, toAuditEvent(event))
	observability.EventsRecordedTotal.WithLabelValues(string(event.EventType), "true").Inc()

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.WarnContext(ctx, "failed to publish security event",
				slog.String("event_id", event.ID.String()),
				slog.Any("error", err),
			)
		}
	}

	return nil
}

// NormalizePage clamps page to 1..MaxPage and pageSize to 1..MaxEventPageSize
// so the resulting offset cannot overflow.
func NormalizePage(page, pageSize int) (int, int) {
	switch {
	case page < 1:
		page = 1
	case page > MaxPage:
		page = MaxPage
	}
	switch {
	case pageSize <= 0:
		pageSize = DefaultEventPageSize
	case pageSize > MaxEventPageSize:
		pageSize = MaxEventPageSize
	}
	return page, pageSize
}

// Query returns one page of events, newest first
func (s *SecurityEventService) Query(ctx context.Context, filter models.EventFilter, page, pageSize int) (*models.EventPage, error) {
	if filter.EventType != "" && !filter.EventType.Valid() {
		return nil, fmt.Errorf("unknown event type %q: %w", filter.EventType, models.ErrBadRequest)
	}
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateTo.Before(*filter.DateFrom) {
		return nil, fmt.Errorf("date_to before date_from: %w", models.ErrBadRequest)
	}

	page, pageSize = NormalizePage(page, pageSize)

	events, err := s.repo.Query(ctx, filter, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}

	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count security events: %w", err)
	}

	return &models.EventPage{
		Events:   events,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// recordOrLog is for the outermost callers that cannot act on a lost event.
// The event log has already written the fallback line.
func recordOrLog(ctx context.Context, events EventRecorder, log *slog.Logger, in models.SecurityEventInput) {
	if err := events.Record(ctx, in); err != nil {
		log.WarnContext(ctx, "security event not persisted",
			slog.String("event_type", string(in.EventType)),
			slog.Any("error", err),
		)
	}
}

// EventRecorder is the write side of the security event log
type EventRecorder interface {
	Record(ctx context.Context, in models.SecurityEventInput) error
}
