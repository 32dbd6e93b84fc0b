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
)

// RateLimitStore is an atomic per-key window counter. Consume must admit or
// refuse in a single store operation.
type RateLimitStore interface {
	Consume(ctx context.Context, key string, now time.Time, window time.Duration, max int) (*models.RateLimitDecision, error)
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// RateLimiterConfig holds configuration for request rate limiting
type RateLimiterConfig struct {
	MaxRequests int
	Window      time.Duration
}

func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{MaxRequests: 100, Window: time.Minute}
}

// RateLimiter admits at most MaxRequests per key in each Window
type RateLimiter struct {
	store  RateLimitStore
	events EventRecorder
	config RateLimiterConfig
	clock  clock.Clock
	logger *slog.Logger
}

// NewRateLimiter creates a new RateLimiter
func NewRateLimiter(store RateLimitStore, events EventRecorder, config RateLimiterConfig, clk clock.Clock, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		store:  store,
		events: events,
		config: config,
		clock:  clk,
		logger: logger,
	}
}

func (l *RateLimiter) Config() RateLimiterConfig {
	return l.config
}

// CheckAndConsume takes one request from key's window. It returns a
// *models.RateLimitExceededError when the window is full, and an error
// wrapping models.ErrStoreUnavailable when the store cannot be reached.
func (l *RateLimiter) CheckAndConsume(ctx context.Context, key, clientIP, userAgent string) (*models.RateLimitWindow, error) {
	now := l.clock.Now()

	if _, err := l.store.Purge(ctx, now.Add(-l.config.Window)); err != nil {
		return nil, l.failClosed(ctx, "purge", err)
	}

	decision, err := l.store.Consume(ctx, key, now, l.config.Window, l.config.MaxRequests)
	if err != nil {
		return nil, l.failClosed(ctx, "consume", err)
	}
	if decision.Allowed {
		return &decision.Window, nil
	}

	retryAfter := decision.Window.RetryAfter(now, l.config.Window)
	if retryAfter <= 0 {
		// The window closed between the guarded update and the read back;
		// the next consume opens a fresh one.
		decision, err = l.store.Consume(ctx, key, now, l.config.Window, l.config.MaxRequests)
		if err != nil {
			return nil, l.failClosed(ctx, "consume", err)
		}
		if decision.Allowed {
			return &decision.Window, nil
		}
		retryAfter = max(decision.Window.RetryAfter(now, l.config.Window), time.Second)
	}

	observability.RateLimitRejectionsTotal.Inc()
	recordOrLog(ctx, l.events, l.logger, models.SecurityEventInput{
		EventType:   models.EventRateLimitExceeded,
		Description: fmt.Sprintf("Rate limit exceeded for %s", key),
		IPAddress:   clientIP,
		UserAgent:   userAgent,
		Metadata: models.EventMetadata{
			"key":                 key,
			"request_count":       decision.Window.RequestCount,
			"retry_after_seconds": int(retryAfter.Seconds()),
		},
	})

	return &decision.Window, &models.RateLimitExceededError{RetryAfter: retryAfter}
}

func (l *RateLimiter) failClosed(ctx context.Context, op string, err error) error {
	observability.StoreFailuresTotal.WithLabelValues("rate_limiter").Inc()
	l.logger.ErrorContext(ctx, "rate limit store failure",
		slog.String("op", op),
		slog.Any("error", err),
	)
	if errors.Is(err, models.ErrStoreUnavailable) {
		return err
	}
	return errors.Join(models.ErrStoreUnavailable, err)
}
