package auth

import (
	"context"
	"net/http"

	"github.com/BradenHooton/alumnigate/internal/models"
	pkghttp "github.com/BradenHooton/alumnigate/pkg/http"
)

type contextKey string

const SessionContextKey contextKey = "session"

// WithSession stores the session in ctx
func WithSession(ctx context.Context, s *models.Session) context.Context {
	return context.WithValue(ctx, SessionContextKey, s)
}

// SessionFromContext returns the request's session, or nil outside the
// session middleware.
func SessionFromContext(ctx context.Context) *models.Session {
	s, _ := ctx.Value(SessionContextKey).(*models.Session)
	return s
}

// RequireAuthenticated rejects anonymous sessions
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !SessionFromContext(r.Context()).Authenticated() {
			pkghttp.WriteUnauthorized(w, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole enforces that the signed-in operator holds role. The role is
// fixed on the session at login and changes only through a session reset.
func RequireRole(role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := SessionFromContext(r.Context())
			if !session.Authenticated() {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}
			if session.Role != role {
				pkghttp.WriteForbidden(w, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
