package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/alumnigate/internal/database"
	"github.com/BradenHooton/alumnigate/internal/models"
	"github.com/jackc/pgx/v5"
)

// RateLimitRepository keeps one fixed window per key in PostgreSQL
type RateLimitRepository struct {
	db *database.DB
}

func NewRateLimitRepository(db *database.DB) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// Consume atomically takes one request from key's window. The upsert only
// touches the row when the window has elapsed or is below max, so a
// returned row means the request was admitted. Concurrent callers serialize
// on the row lock taken by ON CONFLICT.
func (r *RateLimitRepository) Consume(ctx context.Context, key string, now time.Time, window time.Duration, max int) (*models.RateLimitDecision, error) {
	query := `
		INSERT INTO rate_limit_windows AS w (key, request_count, window_start)
		VALUES ($1, 1, $2)
		ON CONFLICT (key) DO UPDATE SET
			request_count = CASE WHEN w.window_start <= $3 THEN 1 ELSE w.request_count + 1 END,
			window_start  = CASE WHEN w.window_start <= $3 THEN EXCLUDED.window_start ELSE w.window_start END
		WHERE w.window_start <= $3 OR w.request_count < $4
		RETURNING request_count, window_start
	`

	decision := &models.RateLimitDecision{Window: models.RateLimitWindow{Key: key}}
	elapsedBefore := now.Add(-window)

	err := r.db.Pool.QueryRow(ctx, query, key, now, elapsedBefore, max).
		Scan(&decision.Window.RequestCount, &decision.Window.WindowStart)
	if err == nil {
		decision.Allowed = true
		return decision, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("consume rate limit window: %w", database.MapPostgresError(err))
	}

	// Denied: read the window back so the caller can compute Retry-After.
	err = r.db.Pool.QueryRow(ctx,
		`SELECT request_count, window_start FROM rate_limit_windows WHERE key = $1`, key,
	).Scan(&decision.Window.RequestCount, &decision.Window.WindowStart)
	if errors.Is(err, pgx.ErrNoRows) {
		// purged between the two statements; the window is over
		decision.Window.WindowStart = elapsedBefore
		return decision, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rate limit window: %w", database.MapPostgresError(err))
	}

	return decision, nil
}

// Purge deletes windows that started before cutoff
func (r *RateLimitRepository) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM rate_limit_windows WHERE window_start < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge rate limit windows: %w", database.MapPostgresError(err))
	}
	return result.RowsAffected(), nil
}
