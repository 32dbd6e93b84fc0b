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

// LoginAttemptStore defines the login attempt persistence the throttle needs
type LoginAttemptStore interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
	CountFailedSince(ctx context.Context, identity string, since time.Time) (int, error)
	LatestFailureSince(ctx context.Context, identity string, since time.Time) (*time.Time, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// LockoutSignalStore answers whether a lockout was already recorded
type LockoutSignalStore interface {
	ExistsForIdentitySince(ctx context.Context, identity string, eventType models.EventType, since time.Time) (bool, error)
}

// ThrottleConfig holds configuration for login throttling
type ThrottleConfig struct {
	MaxFailedAttempts int
	Window            time.Duration
	// Retention is how long attempt records are kept for audit. Zero means
	// the window; it is never shorter than the window.
	Retention time.Duration
}

func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{MaxFailedAttempts: 5, Window: 15 * time.Minute}
}

// LoginThrottle blocks an identity once it reaches MaxFailedAttempts
// failures within the trailing Window. A success does not clear earlier
// failures; only their ageing out of the window lifts the lock.
type LoginThrottle struct {
	attempts LoginAttemptStore
	signals  LockoutSignalStore
	events   EventRecorder
	config   ThrottleConfig
	clock    clock.Clock
	logger   *slog.Logger
}

// NewLoginThrottle creates a new LoginThrottle
func NewLoginThrottle(attempts LoginAttemptStore, signals LockoutSignalStore, events EventRecorder, config ThrottleConfig, clk clock.Clock, logger *slog.Logger) *LoginThrottle {
	if config.Retention < config.Window {
		config.Retention = config.Window
	}
	return &LoginThrottle{
		attempts: attempts,
		signals:  signals,
		events:   events,
		config:   config,
		clock:    clk,
		logger:   logger,
	}
}

// CheckAllowed must be called before credentials are verified. It returns
// models.ErrTooManyAttempts when the identity is locked out and
// models.ErrStoreUnavailable when the attempt store cannot be read.
func (t *LoginThrottle) CheckAllowed(ctx context.Context, identity, clientIP, userAgent string) error {
	now := t.clock.Now()
	windowStart := now.Add(-t.config.Window)

	if _, err := t.attempts.DeleteBefore(ctx, now.Add(-t.config.Retention)); err != nil {
		return t.failClosed(ctx, "purge login attempts", err)
	}

	failed, err := t.attempts.CountFailedSince(ctx, identity, windowStart)
	if err != nil {
		return t.failClosed(ctx, "count failed attempts", err)
	}

	if failed < t.config.MaxFailedAttempts {
		return nil
	}

	observability.ThrottleBlocksTotal.Inc()
	t.logger.WarnContext(ctx, "login throttled",
		slog.String("identity", logger.MaskIdentity(identity)),
		slog.Int("failed_attempts", failed),
		slog.Duration("window", t.config.Window),
	)

	t.signalLockout(ctx, identity, clientIP, userAgent, failed, windowStart)
	return models.ErrTooManyAttempts
}

// signalLockout records one login_lockout per episode. An episode is keyed by
// the newest failure: checks against the same lock find the earlier signal.
func (t *LoginThrottle) signalLockout(ctx context.Context, identity, clientIP, userAgent string, failed int, windowStart time.Time) {
	latest, err := t.attempts.LatestFailureSince(ctx, identity, windowStart)
	if err != nil || latest == nil {
		t.logger.WarnContext(ctx, "failed to resolve lockout episode", slog.Any("error", err))
		return
	}

	seen, err := t.signals.ExistsForIdentitySince(ctx, identity, models.EventLoginLockout, *latest)
	if err != nil {
		t.logger.WarnContext(ctx, "failed to check lockout signal", slog.Any("error", err))
		return
	}
	if seen {
		return
	}

	recordOrLog(ctx, t.events, t.logger, models.SecurityEventInput{
		Identity:    identity,
		EventType:   models.EventLoginLockout,
		Description: fmt.Sprintf("Login locked after %d failed attempts", failed),
		IPAddress:   clientIP,
		UserAgent:   userAgent,
		Metadata: models.EventMetadata{
			"failed_attempts": failed,
			"window_seconds":  int(t.config.Window.Seconds()),
			"locked_until":    latest.Add(t.config.Window).UTC().Format(time.RFC3339),
		},
	})
}

func (t *LoginThrottle) failClosed(ctx context.Context, op string, err error) error {
	observability.StoreFailuresTotal.WithLabelValues("login_throttle").Inc()
	t.logger.ErrorContext(ctx, "login throttle store failure",
		slog.String("op", op),
		slog.Any("error", err),
	)
	if errors.Is(err, models.ErrStoreUnavailable) {
		return err
	}
	return errors.Join(models.ErrStoreUnavailable, err)
}

// RecordAttempt appends the attempt and its security event. It never fails:
// losing an attempt record must not block the login response.
func (t *LoginThrottle) RecordAttempt(ctx context.Context, identity string, success bool, clientIP, userAgent string) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	observability.LoginAttemptsTotal.WithLabelValues(outcome).Inc()

	attempt := &models.LoginAttempt{
		Identity:    identity,
		IPAddress:   clientIP,
		UserAgent:   userAgent,
		Success:     success,
		AttemptTime: t.clock.Now(),
	}
	if err := t.attempts.RecordAttempt(ctx, attempt); err != nil {
		observability.StoreFailuresTotal.WithLabelValues("login_throttle").Inc()
		t.logger.ErrorContext(ctx, "failed to record login attempt",
			slog.String("identity", logger.MaskIdentity(identity)),
			slog.Bool("success", success),
			slog.Any("error", err),
		)
	}

	in := models.SecurityEventInput{
		Identity:    identity,
		EventType:   models.EventLoginFailed,
		Description: "Login failed",
		IPAddress:   clientIP,
		UserAgent:   userAgent,
	}
	if success {
		in.EventType = models.EventLoginSuccess
		in.Description = "Login succeeded"
	}
	recordOrLog(ctx, t.events, t.logger, in)
}
