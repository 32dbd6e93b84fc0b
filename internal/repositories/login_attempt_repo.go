package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/BradenHooton/alumnigate/internal/database"
	"github.com/BradenHooton/alumnigate/internal/models"
	"github.com/jackc/pgx/v5"
)

// LoginAttemptRepository handles database operations for login attempts
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// RecordAttempt appends a login attempt stamped with attempt.AttemptTime
func (r *LoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (identity, ip_address, user_agent, success, attempt_time)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.Identity,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.Success,
		attempt.AttemptTime,
	)

	return database.MapPostgresError(err)
}

// CountFailedSince returns the number of failed attempts for an identity at or after since
func (r *LoginAttemptRepository) CountFailedSince(ctx context.Context, identity string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE identity = $1 AND success = false AND attempt_time >= $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, identity, since).Scan(&count)
	return count, database.MapPostgresError(err)
}

// LatestFailureSince returns the newest failed attempt time for an identity, or nil
func (r *LoginAttemptRepository) LatestFailureSince(ctx context.Context, identity string, since time.Time) (*time.Time, error) {
	query := `
		SELECT attempt_time FROM login_attempts
		WHERE identity = $1 AND success = false AND attempt_time >= $2
		ORDER BY attempt_time DESC
		LIMIT 1
	`

	var failureTime time.Time
	err := r.db.Pool.QueryRow(ctx, query, identity, since).Scan(&failureTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &failureTime, nil
}

// DeleteBefore removes attempts older than cutoff
func (r *LoginAttemptRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM login_attempts WHERE attempt_time < $1`

	result, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
