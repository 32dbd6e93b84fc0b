package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/alumnigate/internal/clock"
	"github.com/BradenHooton/alumnigate/internal/models"
	"github.com/BradenHooton/alumnigate/internal/observability"
	"github.com/google/uuid"
)

// AlertStore defines the persistence the alert lifecycle needs
type AlertStore interface {
	Create(ctx context.Context, a *models.SecurityAlert) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.SecurityAlert, error)
	List(ctx context.Context, status models.AlertStatus, limit, offset int) ([]*models.SecurityAlert, error)
	Count(ctx context.Context, status models.AlertStatus) (int64, error)
	HasOpen(ctx context.Context, kind models.CheckKind, atLeast models.Severity) (bool, error)
	Transition(ctx context.Context, id uuid.UUID, from []models.AlertStatus, to models.AlertStatus, actor string, at time.Time) (*models.SecurityAlert, error)
}

// AlertService owns the new -> acknowledged -> resolved lifecycle
type AlertService struct {
	store  AlertStore
	events EventRecorder
	clock  clock.Clock
	logger *slog.Logger
}

// NewAlertService creates a new AlertService
func NewAlertService(store AlertStore, events EventRecorder, clk clock.Clock, logger *slog.Logger) *AlertService {
	return &AlertService{
		store:  store,
		events: events,
		clock:  clk,
		logger: logger,
	}
}

// Raise creates a new alert unless an unresolved alert of the same kind at
// the same or higher severity is already open. created is false when the
// existing alert covers the condition.
func (s *AlertService) Raise(ctx context.Context, check models.AlertCheck, severity models.Severity, value float64, assessment *models.ThreatAssessment) (alert *models.SecurityAlert, created bool, err error) {
	open, err := s.store.HasOpen(ctx, check.Kind, severity)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check open alerts: %w", err)
	}
	if open {
		return nil, false, nil
	}

	alert = &models.SecurityAlert{
		ID:        uuid.New(),
		CheckKind: check.Kind,
		Severity:  severity,
		Title:     check.Kind.Title(),
		Message: fmt.Sprintf("%s measured %s over the last %s (threat level %s, score %d)",
			check.Kind, formatValue(value), assessment.Lookback, assessment.Level, assessment.Score),
		Value:     value,
		Status:    models.AlertStatusNew,
		CreatedAt: s.clock.Now(),
		Metrics: models.EventMetadata{
			"failed_logins":  assessment.Indicators.FailedLogins,
			"suspicious_ips": assessment.Indicators.SuspiciousIPs,
			"error_events":   assessment.Indicators.ErrorEvents,
			"blocked_ips":    assessment.Indicators.BlockedIPs,
			"csrf_failures":  assessment.Indicators.CSRFFailures,
			"lockouts":       assessment.Indicators.Lockouts,
			"threat_score":   assessment.Score,
		},
	}

	if err := s.store.Create(ctx, alert); err != nil {
		return nil, false, fmt.Errorf("failed to create alert: %w", err)
	}

	observability.AlertsCreatedTotal.WithLabelValues(string(alert.CheckKind), string(alert.Severity)).Inc()
	recordOrLog(ctx, s.events, s.logger, models.SecurityEventInput{
		EventType:   models.EventAlertCreated,
		Description: alert.Title,
		Metadata: models.EventMetadata{
			"alert_id":   alert.ID.String(),
			"check_kind": string(alert.CheckKind),
			"severity":   string(alert.Severity),
			"value":      value,
		},
	})

	return alert, true, nil
}

func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}

// List returns one page of alerts. An empty status lists every alert.
func (s *AlertService) List(ctx context.Context, status models.AlertStatus, page, pageSize int) (*models.AlertPage, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("unknown alert status %q: %w", status, models.ErrBadRequest)
	}

	page, pageSize = NormalizePage(page, pageSize)

	alerts, err := s.store.List(ctx, status, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}

	total, err := s.store.Count(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}

	return &models.AlertPage{Alerts: alerts, Total: total, Page: page, PageSize: pageSize}, nil
}

// Acknowledge moves a new alert to acknowledged
func (s *AlertService) Acknowledge(ctx context.Context, id uuid.UUID, actor string) (*models.SecurityAlert, error) {
	return s.transition(ctx, id, models.AlertStatusAcknowledged, actor)
}

// Resolve moves a new or acknowledged alert to resolved
func (s *AlertService) Resolve(ctx context.Context, id uuid.UUID, actor string) (*models.SecurityAlert, error) {
	return s.transition(ctx, id, models.AlertStatusResolved, actor)
}

func (s *AlertService) transition(ctx context.Context, id uuid.UUID, to models.AlertStatus, actor string) (*models.SecurityAlert, error) {
	alert, err := s.store.Transition(ctx, id, models.TransitionSources(to), to, actor, s.clock.Now())
	if errors.Is(err, models.ErrNotFound) {
		return nil, s.explainRefusal(ctx, id, to)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to transition alert: %w", err)
	}

	s.logger.InfoContext(ctx, "security alert transitioned",
		slog.String("alert_id", id.String()),
		slog.String("status", string(to)),
		slog.String("actor", actor),
	)
	recordOrLog(ctx, s.events, s.logger, models.SecurityEventInput{
		Identity:    actor,
		EventType:   models.EventAlertTransition,
		Description: fmt.Sprintf("Alert %s", to),
		Metadata: models.EventMetadata{
			"alert_id": id.String(),
			"status":   string(to),
		},
	})

	return alert, nil
}

// explainRefusal turns a guarded update that matched nothing into the
// reason: unknown alert, already resolved, or a disallowed transition.
func (s *AlertService) explainRefusal(ctx context.Context, id uuid.UUID, to models.AlertStatus) error {
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return fmt.Errorf("failed to load alert: %w", err)
	}

	if err := current.CheckTransition(to); err != nil {
		return err
	}
	// A concurrent actor moved it between the two reads.
	return models.ErrInvalidTransition
}
