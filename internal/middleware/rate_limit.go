package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/BradenHooton/alumnigate/internal/auth"
	"github.com/BradenHooton/alumnigate/internal/models"
	"github.com/BradenHooton/alumnigate/internal/services"
	pkghttp "github.com/BradenHooton/alumnigate/pkg/http"
)

// RequestLimiter is the store-backed window limiter
type RequestLimiter interface {
	CheckAndConsume(ctx context.Context, key, clientIP, userAgent string) (*models.RateLimitWindow, error)
	Config() services.RateLimiterConfig
}

// KeyFunc derives the rate-limit key for a request
type KeyFunc func(r *http.Request, clientIP string) string

// KeyByIP limits each client address across all routes
func KeyByIP(r *http.Request, clientIP string) string {
	return "ip:" + clientIP
}

// KeyByRoute gives a route group its own budget per client address
func KeyByRoute(route string) KeyFunc {
	return func(r *http.Request, clientIP string) string {
		return "route:" + route + ":" + clientIP
	}
}

// RateLimit enforces the shared-store limiter. Rejections carry Retry-After
// in whole seconds. When the store cannot be reached the request is refused
// with a full-window Retry-After.
func RateLimit(limiter RequestLimiter, keyFunc KeyFunc, ips *pkghttp.IPResolver, timing *auth.TimingDelay, logger *slog.Logger) func(http.Handler) http.Handler {
	if keyFunc == nil {
		keyFunc = KeyByIP
	}
	config := limiter.Config()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			clientIP := ips.ClientIP(r)

			window, err := limiter.CheckAndConsume(r.Context(), keyFunc(r, clientIP), clientIP, pkghttp.UserAgent(r))
			if err == nil {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.MaxRequests))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(config.MaxRequests-window.RequestCount, 0)))
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := int(config.Window.Seconds())
			var limited *models.RateLimitExceededError
			if errors.As(err, &limited) {
				retryAfter = limited.RetryAfterSeconds()
			} else {
				logger.ErrorContext(r.Context(), "rate limiter unavailable, refusing request",
					slog.String("path", r.URL.Path),
					slog.Any("error", err),
				)
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.MaxRequests))
			w.Header().Set("X-RateLimit-Remaining", "0")
			timing.WaitFrom(r.Context(), start)
			pkghttp.WriteRateLimited(w, retryAfter)
		})
	}
}

// LoginBurstLimit is an in-process per-address cap in front of the login
// handler. It sheds floods before they reach the store.
func LoginBurstLimit(perMinute int, ips *pkghttp.IPResolver) func(http.Handler) http.Handler {
	return httprate.Limit(
		perMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return ips.ClientIP(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteRateLimited(w, 60)
		}),
	)
}
