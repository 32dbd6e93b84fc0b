package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/alumnigate/internal/database"
	"github.com/BradenHooton/alumnigate/internal/models"
	"github.com/jackc/pgx/v5"
)

const sessionColumns = `id, identity, role, csrf_token, last_regenerated_at, created_at, expires_at`

// SessionRepository persists server-side sessions
type SessionRepository struct {
	db *database.DB
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func scanSessionRow(row rowScanner) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.Identity, &s.Role, &s.CSRFToken, &s.LastRegeneratedAt, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}

func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	query := `INSERT INTO sessions (` + sessionColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Pool.Exec(ctx, query,
		s.ID, s.Identity, s.Role, s.CSRFToken, s.LastRegeneratedAt, s.CreatedAt, s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", database.MapPostgresError(err))
	}
	return nil
}

// GetActive returns the session if it exists and has not expired at now
func (r *SessionRepository) GetActive(ctx context.Context, id string, now time.Time) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 AND expires_at > $2`
	return scanSessionRow(r.db.Pool.QueryRow(ctx, query, id, now))
}

// SetCSRFToken stores a token only if the session has none yet and returns
// whichever token ended up stored.
func (r *SessionRepository) SetCSRFToken(ctx context.Context, id, token string) (string, error) {
	query := `
		UPDATE sessions
		SET csrf_token = CASE WHEN csrf_token = '' THEN $2 ELSE csrf_token END
		WHERE id = $1
		RETURNING csrf_token
	`

	var stored string
	if err := r.db.Pool.QueryRow(ctx, query, id, token).Scan(&stored); err != nil {
		return "", database.MapPostgresError(err)
	}
	return stored, nil
}

// Replace swaps oldID for next in one transaction so the old identifier
// stops resolving the moment the new one exists.
func (r *SessionRepository) Replace(ctx context.Context, oldID string, next *models.Session) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, oldID); err != nil {
			return database.MapPostgresError(err)
		}
		query := `INSERT INTO sessions (` + sessionColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
		_, err := tx.Exec(ctx, query,
			next.ID, next.Identity, next.Role, next.CSRFToken, next.LastRegeneratedAt, next.CreatedAt, next.ExpiresAt,
		)
		return database.MapPostgresError(err)
	})
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return database.MapPostgresError(err)
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
