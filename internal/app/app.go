package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/alumnigate/internal/auth"
	"github.com/BradenHooton/alumnigate/internal/background"
	"github.com/BradenHooton/alumnigate/internal/clock"
	"github.com/BradenHooton/alumnigate/internal/config"
	"github.com/BradenHooton/alumnigate/internal/database"
	"github.com/BradenHooton/alumnigate/internal/handlers"
	"github.com/BradenHooton/alumnigate/internal/repositories"
	"github.com/BradenHooton/alumnigate/internal/routes"
	"github.com/BradenHooton/alumnigate/internal/services"
	"github.com/BradenHooton/alumnigate/internal/streaming"
	pkghttp "github.com/BradenHooton/alumnigate/pkg/http"
	pkglogger "github.com/BradenHooton/alumnigate/pkg/logger"
)

// App holds every wired component. The HTTP server and the admin CLI both
// build one.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *database.DB
	Redis  *database.Redis

	Events      *services.SecurityEventService
	Throttle    *services.LoginThrottle
	RateLimiter *services.RateLimiter
	Alerts      *services.AlertService
	Threat      *services.ThreatService
	Auth        *services.AuthService

	Sessions *auth.SessionManager
	CSRF     *auth.CSRFGuard

	Cleanup *background.CleanupManager
	Monitor *background.ThreatMonitor

	publisher *streaming.EventPublisher
}

// New connects to the stores and wires the services. Callers must Close.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	a := &App{Config: cfg, Logger: logger, DB: db}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg, logger, clk := a.Config, a.Logger, clock.System{}
	sec := cfg.Security

	userRepo := repositories.NewUserRepository(a.DB)
	sessionRepo := repositories.NewSessionRepository(a.DB)
	attemptRepo := repositories.NewLoginAttemptRepository(a.DB)
	eventRepo := repositories.NewSecurityEventRepository(a.DB)
	alertRepo := repositories.NewAlertRepository(a.DB)

	var rateStore services.RateLimitStore
	switch sec.RateLimit.Backend {
	case "redis":
		rdb, err := database.NewRedis(&cfg.Redis)
		if err != nil {
			return err
		}
		a.Redis = rdb
		rateStore = repositories.NewRedisRateLimitStore(rdb.Client)
	default:
		rateStore = repositories.NewRateLimitRepository(a.DB)
	}

	a.publisher = streaming.NewEventPublisher(cfg.Kafka, logger)
	a.Events = services.NewSecurityEventService(eventRepo, pkglogger.NewAuditLogger(logger), a.publisher, clk, logger)

	a.Throttle = services.NewLoginThrottle(attemptRepo, eventRepo, a.Events, services.ThrottleConfig{
		MaxFailedAttempts: sec.Throttle.MaxFailedAttempts,
		Window:            sec.Throttle.Window,
		Retention:         sec.Retention.LoginAttempts,
	}, clk, logger)

	a.RateLimiter = services.NewRateLimiter(rateStore, a.Events, services.RateLimiterConfig{
		MaxRequests: sec.RateLimit.MaxRequests,
		Window:      sec.RateLimit.Window,
	}, clk, logger)

	dispatcher, err := newDispatcher(ctx, cfg.Email, logger)
	if err != nil {
		return err
	}

	a.Alerts = services.NewAlertService(alertRepo, a.Events, clk, logger)
	threatConfig := services.DefaultThreatConfig()
	threatConfig.Lookback = sec.Threat.Lookback
	threatConfig.SuspiciousIPThreshold = sec.Threat.SuspiciousIPThreshold
	threatConfig.AdminRecipients = cfg.Email.AdminRecipients
	a.Threat = services.NewThreatService(eventRepo, a.Alerts, dispatcher, threatConfig, clk, logger)

	a.Auth = services.NewAuthService(userRepo, a.Throttle, a.Events, logger)

	a.Sessions = auth.NewSessionManager(sessionRepo, clk, auth.SessionConfig{
		TTL: sec.Session.TTL,
		Cookie: auth.CookieConfig{
			Secure:   sec.Session.CookieSecure,
			SameSite: sec.Session.SameSite,
		},
	}, logger)
	a.CSRF = auth.NewCSRFGuard(sessionRepo, a.Events, logger)

	a.Cleanup = background.NewCleanupManager([]background.CleanupTask{
		background.RetentionTask("login_attempts", attemptRepo, sec.Retention.LoginAttempts),
		background.RetentionTask("security_events", eventRepo, sec.Retention.SecurityEvents),
		{
			Name: "rate_limit_windows",
			Run: func(ctx context.Context, now time.Time) (int64, error) {
				return rateStore.Purge(ctx, now.Add(-sec.RateLimit.Window))
			},
		},
		{
			Name: "sessions",
			Run:  sessionRepo.DeleteExpired,
		},
	}, clk, logger, sec.Retention.CleanupInterval)

	a.Monitor = background.NewThreatMonitor(a.Threat, logger, sec.Threat.MonitorInterval)
	return nil
}

func newDispatcher(ctx context.Context, cfg config.EmailConfig, logger *slog.Logger) (services.AlertDispatcher, error) {
	if !cfg.Enabled {
		logger.Info("alert email disabled, alerts will be logged only")
		return services.NewLogAlertDispatcher(logger), nil
	}
	d, err := services.NewSESAlertDispatcher(ctx, cfg.AWSRegion, cfg.FromAddress, cfg.FromName, cfg.SendsPerSecond, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise alert email: %w", err)
	}
	return d, nil
}

// Router builds the HTTP handler for the API server
func (a *App) Router() (http.Handler, error) {
	ips, err := pkghttp.NewIPResolver(a.Config.Server.TrustedProxies)
	if err != nil {
		return nil, err
	}
	timing := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   a.Config.Security.Timing.BaseDelayMs,
		RandomDelayMs: a.Config.Security.Timing.RandomDelayMs,
	})

	checks := map[string]routes.HealthChecker{"database": a.DB}
	if a.Redis != nil {
		checks["redis"] = a.Redis
	}

	return routes.NewRouter(routes.Dependencies{
		Env:             a.Config.Server.Env,
		LoginBurstMax:   a.Config.Security.RateLimit.LoginBurstMax,
		Sessions:        a.Sessions,
		CSRF:            a.CSRF,
		Limiter:         a.RateLimiter,
		IPs:             ips,
		Timing:          timing,
		AuthHandler:     handlers.NewAuthHandler(a.Auth, a.Sessions, a.CSRF, ips, timing, a.Logger),
		SecurityHandler: handlers.NewSecurityHandler(a.Events, a.Threat, a.Alerts, a.Logger),
		HealthChecks:    checks,
		Logger:          a.Logger,
	}), nil
}

// Close releases the stores and flushes the event stream
func (a *App) Close() {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if err := errors.Join(errs...); err != nil {
		a.Logger.Warn("error while closing", slog.Any("error", err))
	}
}
