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
	"github.com/BradenHooton/alumnigate/pkg/logger"
)

// ThreatMetricsStore supplies the trailing counts the scorer aggregates
type ThreatMetricsStore interface {
	CountByTypeSince(ctx context.Context, eventType models.EventType, since time.Time) (int, error)
	CountErrorsSince(ctx context.Context, since time.Time) (int, error)
	CountIPsAboveSince(ctx context.Context, eventType models.EventType, since time.Time, minEvents int) (int, error)
}

// ThreatConfig holds configuration for threat evaluation
type ThreatConfig struct {
	Lookback time.Duration
	// SuspiciousIPThreshold: an IP with more failed logins than this in the
	// lookback counts as suspicious.
	SuspiciousIPThreshold int
	AdminRecipients       []string
	Checks                []models.AlertCheck
}

func DefaultThreatConfig() ThreatConfig {
	return ThreatConfig{
		Lookback:              time.Hour,
		SuspiciousIPThreshold: 10,
		Checks:                models.DefaultAlertChecks(),
	}
}

// AlertCycle summarises one CheckAndAlert run
type AlertCycle struct {
	Assessment       *models.ThreatAssessment
	Created          []*models.SecurityAlert
	DispatchFailures int
}

// ThreatService scores recent security activity and raises alerts
type ThreatService struct {
	metrics    ThreatMetricsStore
	alerts     *AlertService
	dispatcher AlertDispatcher
	config     ThreatConfig
	clock      clock.Clock
	logger     *slog.Logger
}

// NewThreatService creates a new ThreatService
func NewThreatService(metrics ThreatMetricsStore, alerts *AlertService, dispatcher AlertDispatcher, config ThreatConfig, clk clock.Clock, logger *slog.Logger) *ThreatService {
	if config.Checks == nil {
		config.Checks = models.DefaultAlertChecks()
	}
	return &ThreatService{
		metrics:    metrics,
		alerts:     alerts,
		dispatcher: dispatcher,
		config:     config,
		clock:      clk,
		logger:     logger,
	}
}

// Evaluate gathers the trailing counts and scores them. It has no side
// effects.
func (s *ThreatService) Evaluate(ctx context.Context) (*models.ThreatAssessment, error) {
	now := s.clock.Now()
	since := now.Add(-s.config.Lookback)

	var (
		ind models.ThreatIndicators
		err error
	)

	if ind.FailedLogins, err = s.metrics.CountByTypeSince(ctx, models.EventLoginFailed, since); err != nil {
		return nil, fmt.Errorf("count failed logins: %w", err)
	}
	if ind.SuspiciousIPs, err = s.metrics.CountIPsAboveSince(ctx, models.EventLoginFailed, since, s.config.SuspiciousIPThreshold); err != nil {
		return nil, fmt.Errorf("count suspicious IPs: %w", err)
	}
	if ind.ErrorEvents, err = s.metrics.CountErrorsSince(ctx, since); err != nil {
		return nil, fmt.Errorf("count error events: %w", err)
	}
	if ind.BlockedIPs, err = s.metrics.CountIPsAboveSince(ctx, models.EventRateLimitExceeded, since, 0); err != nil {
		return nil, fmt.Errorf("count blocked IPs: %w", err)
	}
	if ind.CSRFFailures, err = s.metrics.CountByTypeSince(ctx, models.EventCSRFFailure, since); err != nil {
		return nil, fmt.Errorf("count csrf failures: %w", err)
	}
	if ind.Lockouts, err = s.metrics.CountByTypeSince(ctx, models.EventLoginLockout, since); err != nil {
		return nil, fmt.Errorf("count lockouts: %w", err)
	}

	return models.NewThreatAssessment(ind, s.config.Lookback, now), nil
}

// CheckAndAlert evaluates every configured check and raises an alert for
// each one crossing a threshold. High and critical alerts are sent to every
// admin recipient; a failed send is logged and the remaining recipients are
// still tried. A gathering failure aborts the cycle before any alert is
// touched.
func (s *ThreatService) CheckAndAlert(ctx context.Context) (*AlertCycle, error) {
	assessment, err := s.Evaluate(ctx)
	if err != nil {
		observability.StoreFailuresTotal.WithLabelValues("threat_scorer").Inc()
		s.logger.ErrorContext(ctx, "threat evaluation aborted", slog.Any("error", err))
		return nil, fmt.Errorf("threat evaluation aborted: %w", err)
	}

	observability.ThreatScore.Set(float64(assessment.Score))
	s.logger.InfoContext(ctx, "threat evaluated",
		slog.String("level", string(assessment.Level)),
		slog.Int("score", assessment.Score),
		slog.Int("failed_logins", assessment.Indicators.FailedLogins),
		slog.Int("suspicious_ips", assessment.Indicators.SuspiciousIPs),
		slog.Int("error_events", assessment.Indicators.ErrorEvents),
	)

	cycle := &AlertCycle{Assessment: assessment}
	var errs []error

	for _, check := range s.config.Checks {
		severity, value, crossed, err := check.Evaluate(assessment)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !crossed {
			continue
		}

		alert, created, err := s.alerts.Raise(ctx, check, severity, value, assessment)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to raise alert",
				slog.String("check_kind", string(check.Kind)),
				slog.Any("error", err),
			)
			errs = append(errs, err)
			continue
		}
		if !created {
			continue
		}

		cycle.Created = append(cycle.Created, alert)
		if alert.Severity.Rank() >= models.SeverityHigh.Rank() {
			cycle.DispatchFailures += s.dispatch(ctx, alert, assessment)
		}
	}

	return cycle, errors.Join(errs...)
}

// dispatch sends alert to each recipient and returns the number of failures
func (s *ThreatService) dispatch(ctx context.Context, alert *models.SecurityAlert, assessment *models.ThreatAssessment) int {
	subject := alertSubject(alert)
	body := renderAlertEmail(alert, assessment)

	failures := 0
	for _, recipient := range s.config.AdminRecipients {
		if err := s.dispatcher.Send(ctx, recipient, subject, body); err != nil {
			failures++
			observability.AlertDispatchFailuresTotal.Inc()
			s.logger.ErrorContext(ctx, "failed to dispatch alert",
				slog.String("alert_id", alert.ID.String()),
				slog.String("recipient", logger.MaskIdentity(recipient)),
				slog.Any("error", err),
			)
		}
	}
	return failures
}
