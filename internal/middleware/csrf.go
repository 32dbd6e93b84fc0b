package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/alumnigate/internal/auth"
	"github.com/BradenHooton/alumnigate/internal/models"
	"github.com/BradenHooton/alumnigate/internal/observability"
	pkghttp "github.com/BradenHooton/alumnigate/pkg/http"
)

const (
	CSRFFormField  = "csrf_token"
	CSRFHeaderName = "X-CSRF-Token"
)

// TokenVerifier checks a submitted anti-forgery token against the session
type TokenVerifier interface {
	VerifyToken(ctx context.Context, session *models.Session, submitted, clientIP, userAgent string) error
}

// CSRFConfig holds CSRF middleware configuration
type CSRFConfig struct {
	ExemptPaths []string
}

func DefaultCSRFConfig() CSRFConfig {
	return CSRFConfig{ExemptPaths: []string{"/health", "/metrics"}}
}

// CSRFProtection validates the session-bound token on every state-changing
// request. The token is read from the csrf_token form field, then the
// X-CSRF-Token header. Must run after the session middleware.
func CSRFProtection(verifier TokenVerifier, ips *pkghttp.IPResolver, timing *auth.TimingDelay, config CSRFConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	exempt := make(map[string]bool, len(config.ExemptPaths))
	for _, p := range config.ExemptPaths {
		exempt[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isStateChangingMethod(r.Method) || exempt[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			session := auth.SessionFromContext(r.Context())

			err := verifier.VerifyToken(r.Context(), session, submittedCSRFToken(r), ips.ClientIP(r), pkghttp.UserAgent(r))
			if err != nil {
				observability.CSRFFailuresTotal.Inc()
				logger.WarnContext(r.Context(), "CSRF token validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				timing.WaitFrom(r.Context(), start)
				pkghttp.WriteRequestRejected(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func submittedCSRFToken(r *http.Request) string {
	if token := r.PostFormValue(CSRFFormField); token != "" {
		return token
	}
	return r.Header.Get(CSRFHeaderName)
}

// isStateChangingMethod checks if the HTTP method modifies state
func isStateChangingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	default:
		return false
	}
}
