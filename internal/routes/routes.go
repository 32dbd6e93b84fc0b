package routes

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BradenHooton/alumnigate/internal/auth"
	"github.com/BradenHooton/alumnigate/internal/handlers"
	"github.com/BradenHooton/alumnigate/internal/middleware"
	"github.com/BradenHooton/alumnigate/internal/models"
	pkghttp "github.com/BradenHooton/alumnigate/pkg/http"
)

// HealthChecker is a dependency probed by /health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies are the wired components the router needs
type Dependencies struct {
	Env           string
	LoginBurstMax int

	Sessions *auth.SessionManager
	CSRF     middleware.TokenVerifier
	Limiter  middleware.RequestLimiter
	IPs      *pkghttp.IPResolver
	Timing   *auth.TimingDelay

	AuthHandler     *handlers.AuthHandler
	SecurityHandler *handlers.SecurityHandler

	HealthChecks map[string]HealthChecker
	Logger       *slog.Logger
}

// NewRouter builds the application router. Every request under the session
// group passes the store-backed rate limiter, then gets a session, then has
// its CSRF token checked if it changes state.
func NewRouter(d Dependencies) http.Handler {
	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: d.Env}))
	router.Use(middleware.SecureLogger(d.Logger, d.IPs))
	router.Use(middleware.Metrics())
	router.Use(chimw.Recoverer)
	router.Use(chimw.Timeout(60 * time.Second))

	router.Get("/health", healthHandler(d.HealthChecks))
	router.Handle("/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(d.Limiter, middleware.KeyByIP, d.IPs, d.Timing, d.Logger))
		r.Use(d.Sessions.Middleware)
		r.Use(middleware.CSRFProtection(d.CSRF, d.IPs, d.Timing, middleware.DefaultCSRFConfig(), d.Logger))

		r.Get("/csrf-token", d.AuthHandler.CSRFToken)
		r.With(middleware.LoginBurstLimit(d.LoginBurstMax, d.IPs)).Post("/auth/login", d.AuthHandler.Login)
		r.With(auth.RequireAuthenticated).Post("/auth/logout", d.AuthHandler.Logout)

		r.Route("/admin/security", func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin))
			r.Get("/events", d.SecurityHandler.ListEvents)
			r.Get("/threat", d.SecurityHandler.Threat)
			r.Get("/alerts", d.SecurityHandler.ListAlerts)
			r.Post("/alerts/{id}/acknowledge", d.SecurityHandler.AcknowledgeAlert)
			r.Post("/alerts/{id}/resolve", d.SecurityHandler.ResolveAlert)
		})
	})

	return router
}

func healthHandler(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"status": "healthy"}
		for name, check := range checks {
			if err := check.HealthCheck(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "unhealthy"
				body[name] = "down"
				continue
			}
			body[name] = "up"
		}

		pkghttp.WriteJSON(w, status, body)
	}
}
