package repositories_test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/BradenHooton/alumnigate/internal/clock"
	"github.com/BradenHooton/alumnigate/internal/database"
	"github.com/BradenHooton/alumnigate/internal/models"
	"github.com/BradenHooton/alumnigate/internal/repositories"
	"github.com/BradenHooton/alumnigate/internal/services"
	pkglogger "github.com/BradenHooton/alumnigate/pkg/logger"
)

var testDB *database.DB

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("alumnigate"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		log.Fatalf("failed to start postgres container: %v", err)
	}

	code, err := runWithDatabase(ctx, container, m)
	_ = container.Terminate(ctx)
	if err != nil {
		log.Fatal(err)
	}
	os.Exit(code)
}

func runWithDatabase(ctx context.Context, container *postgres.PostgresContainer, m *testing.M) (int, error) {
	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return 0, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return 0, fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	testDB = database.NewFromPool(pool, discardLogger())
	if err := testDB.Migrate(ctx, database.MigrateUp, false); err != nil {
		return 0, err
	}

	return m.Run(), nil
}

// requireDB skips under -short and otherwise returns an emptied database
func requireDB(t *testing.T) *database.DB {
	t.Helper()
	if testDB == nil {
		t.Skip("integration test; run without -short")
	}
	_, err := testDB.Pool.Exec(context.Background(),
		`TRUNCATE users, sessions, login_attempts, rate_limit_windows, security_events, security_alerts`)
	require.NoError(t, err)
	return testDB
}

// dbNow is a start time at the microsecond precision PostgreSQL stores
func dbNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func newEventService(db *database.DB, clk clock.Clock) (*services.SecurityEventService, *repositories.SecurityEventRepository) {
	repo := repositories.NewSecurityEventRepository(db)
	return services.NewSecurityEventService(repo, pkglogger.NewAuditLogger(discardLogger()), nil, clk, discardLogger()), repo
}

func TestIntegration_LoginThrottleLocksOutAndSignalsOnce(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	clk := clock.NewFake(dbNow())

	events, eventRepo := newEventService(db, clk)
	throttle := services.NewLoginThrottle(
		repositories.NewLoginAttemptRepository(db), eventRepo, events,
		services.DefaultThrottleConfig(), clk, discardLogger(),
	)

	const alice = "alice@alumni.edu"
	for i := 0; i < 5; i++ {
		require.NoError(t, throttle.CheckAllowed(ctx, alice, "203.0.113.9", "test"))
		throttle.RecordAttempt(ctx, alice, false, "203.0.113.9", "test")
		clk.Advance(time.Second)
	}

	assert.ErrorIs(t, throttle.CheckAllowed(ctx, alice, "203.0.113.9", "test"), models.ErrTooManyAttempts)
	assert.ErrorIs(t, throttle.CheckAllowed(ctx, alice, "203.0.113.9", "test"), models.ErrTooManyAttempts)
	assert.NoError(t, throttle.CheckAllowed(ctx, "bob@alumni.edu", "203.0.113.9", "test"))

	lockouts, err := eventRepo.Count(ctx, models.EventFilter{Identity: alice, EventType: models.EventLoginLockout})
	require.NoError(t, err)
	assert.Equal(t, int64(1), lockouts)

	failures, err := eventRepo.Count(ctx, models.EventFilter{Identity: alice, EventType: models.EventLoginFailed})
	require.NoError(t, err)
	assert.Equal(t, int64(5), failures)

	clk.Advance(15 * time.Minute)
	assert.NoError(t, throttle.CheckAllowed(ctx, alice, "203.0.113.9", "test"))
}

func TestIntegration_RateLimitAdmitsExactlyMaxUnderConcurrency(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	clk := clock.NewFake(dbNow())

	events, _ := newEventService(db, clk)
	limiter := services.NewRateLimiter(
		repositories.NewRateLimitRepository(db), events,
		services.RateLimiterConfig{MaxRequests: 100, Window: time.Minute}, clk, discardLogger(),
	)

	var allowed, limited atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 250; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := limiter.CheckAndConsume(ctx, "ip:198.51.100.7", "198.51.100.7", "test")
			var rle *models.RateLimitExceededError
			switch {
			case err == nil:
				allowed.Add(1)
			case errors.As(err, &rle):
				limited.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(100), allowed.Load())
	assert.Equal(t, int32(150), limited.Load())

	clk.Advance(time.Minute)
	_, err := limiter.CheckAndConsume(ctx, "ip:198.51.100.7", "198.51.100.7", "test")
	assert.NoError(t, err, "a new window opens once the old one elapses")
}

func TestIntegration_SessionTokenFirstWriterWins(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	repo := repositories.NewSessionRepository(db)
	now := dbNow()

	session := &models.Session{ID: "s-1", LastRegeneratedAt: now, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, repo.Create(ctx, session))

	first, err := repo.SetCSRFToken(ctx, "s-1", "token-a")
	require.NoError(t, err)
	second, err := repo.SetCSRFToken(ctx, "s-1", "token-b")
	require.NoError(t, err)
	assert.Equal(t, "token-a", first)
	assert.Equal(t, "token-a", second)

	identity := "ops@alumni.edu"
	next := &models.Session{ID: "s-2", Identity: &identity, Role: models.RoleAdmin, LastRegeneratedAt: now, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, repo.Replace(ctx, "s-1", next))

	_, err = repo.GetActive(ctx, "s-1", now)
	assert.ErrorIs(t, err, models.ErrNotFound)
	got, err := repo.GetActive(ctx, "s-2", now)
	require.NoError(t, err)
	assert.Empty(t, got.CSRFToken)
	assert.Equal(t, identity, got.IdentityOrEmpty())

	deleted, err := repo.DeleteExpired(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestIntegration_AlertLifecycle(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	clk := clock.NewFake(dbNow())

	events, _ := newEventService(db, clk)
	alerts := services.NewAlertService(repositories.NewAlertRepository(db), events, clk, discardLogger())

	check := models.DefaultAlertChecks()[0]
	assessment := models.NewThreatAssessment(models.ThreatIndicators{FailedLogins: 120}, time.Hour, clk.Now())

	alert, created, err := alerts.Raise(ctx, check, models.SeverityHigh, 120, assessment)
	require.NoError(t, err)
	require.True(t, created)

	_, created, err = alerts.Raise(ctx, check, models.SeverityHigh, 130, assessment)
	require.NoError(t, err)
	assert.False(t, created, "an open alert of the same kind and severity suppresses a duplicate")

	acked, err := alerts.Acknowledge(ctx, alert.ID, "ops@alumni.edu")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusAcknowledged, acked.Status)

	_, err = alerts.Acknowledge(ctx, alert.ID, "ops@alumni.edu")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	resolved, err := alerts.Resolve(ctx, alert.ID, "ops@alumni.edu")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, "ops@alumni.edu", *resolved.ResolvedBy)

	_, err = alerts.Resolve(ctx, alert.ID, "ops@alumni.edu")
	assert.ErrorIs(t, err, models.ErrAlreadyResolved)

	_, created, err = alerts.Raise(ctx, check, models.SeverityHigh, 140, assessment)
	require.NoError(t, err)
	assert.True(t, created, "recurrence after resolution opens a new alert")
}

func TestIntegration_ThreatMetricsOverTrailingWindow(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	start := dbNow()
	clk := clock.NewFake(start.Add(-2 * time.Hour))

	events, eventRepo := newEventService(db, clk)
	record := func(ip string, n int) {
		for i := 0; i < n; i++ {
			require.NoError(t, events.Record(ctx, models.SecurityEventInput{
				EventType: models.EventLoginFailed,
				IPAddress: ip,
			}))
		}
	}

	// outside the trailing hour
	record("192.0.2.1", 20)

	clk.Set(start)
	record("192.0.2.2", 11)
	record("192.0.2.3", 10)
	require.NoError(t, events.Record(ctx, models.SecurityEventInput{EventType: models.EventSystemError, Description: "db timeout"}))

	since := start.Add(-time.Hour)

	failed, err := eventRepo.CountByTypeSince(ctx, models.EventLoginFailed, since)
	require.NoError(t, err)
	assert.Equal(t, 21, failed)

	suspicious, err := eventRepo.CountIPsAboveSince(ctx, models.EventLoginFailed, since, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, suspicious)

	errs, err := eventRepo.CountErrorsSince(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, 1, errs)

	page, err := events.Query(ctx, models.EventFilter{EventType: models.EventLoginFailed}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(41), page.Total)
	assert.Len(t, page.Events, 10)
	assert.False(t, page.Events[0].CreatedAt.Before(page.Events[9].CreatedAt), "newest first")

	deleted, err := eventRepo.DeleteBefore(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, int64(20), deleted)
}
