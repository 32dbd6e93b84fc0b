package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/alumnigate/internal/database"
	"github.com/BradenHooton/alumnigate/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const alertColumns = `id, check_kind, severity, title, message, value, status, metrics, created_at, resolved_by, resolved_at`

// AlertRepository handles security alert data access
type AlertRepository struct {
	pool *pgxpool.Pool
}

func NewAlertRepository(db *database.DB) *AlertRepository {
	return &AlertRepository{pool: db.Pool}
}

func scanAlertRow(row rowScanner) (*models.SecurityAlert, error) {
	var a models.SecurityAlert

	err := row.Scan(
		&a.ID, &a.CheckKind, &a.Severity, &a.Title, &a.Message, &a.Value,
		&a.Status, &a.Metrics, &a.CreatedAt, &a.ResolvedBy, &a.ResolvedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &a, nil
}

func scanAlertRows(rows pgx.Rows) ([]*models.SecurityAlert, error) {
	defer rows.Close()

	alerts := make([]*models.SecurityAlert, 0)
	for rows.Next() {
		a, err := scanAlertRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security alert: %w", err)
		}
		alerts = append(alerts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security alert rows: %w", err)
	}

	return alerts, nil
}

func (r *AlertRepository) Create(ctx context.Context, a *models.SecurityAlert) error {
	query := `
		INSERT INTO security_alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	metrics := a.Metrics
	if metrics == nil {
		metrics = models.EventMetadata{}
	}

	_, err := r.pool.Exec(ctx, query,
		a.ID, string(a.CheckKind), string(a.Severity), a.Title, a.Message, a.Value,
		string(a.Status), metrics, a.CreatedAt, a.ResolvedBy, a.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create security alert: %w", database.MapPostgresError(err))
	}
	return nil
}

func (r *AlertRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SecurityAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM security_alerts WHERE id = $1`
	return scanAlertRow(r.pool.QueryRow(ctx, query, id))
}

// List returns alerts newest first, optionally restricted to one status
func (r *AlertRepository) List(ctx context.Context, status models.AlertStatus, limit, offset int) ([]*models.SecurityAlert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM security_alerts
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query security alerts: %w", database.MapPostgresError(err))
	}
	return scanAlertRows(rows)
}

func (r *AlertRepository) Count(ctx context.Context, status models.AlertStatus) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM security_alerts WHERE ($1 = '' OR status = $1)`, string(status),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count security alerts: %w", database.MapPostgresError(err))
	}
	return count, nil
}

// HasOpen reports whether an unresolved alert of kind exists at or above severity
func (r *AlertRepository) HasOpen(ctx context.Context, kind models.CheckKind, atLeast models.Severity) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM security_alerts
			WHERE check_kind = $1
			  AND status <> 'resolved'
			  AND array_position(ARRAY['low', 'medium', 'high', 'critical'], severity)
			      >= array_position(ARRAY['low', 'medium', 'high', 'critical'], $2::text)
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, string(kind), string(atLeast)).Scan(&exists); err != nil {
		return false, database.MapPostgresError(err)
	}
	return exists, nil
}

// Transition moves an alert to `to` only if it is currently in one of
// `from`. Returns models.ErrNotFound when no row matched the guard.
func (r *AlertRepository) Transition(ctx context.Context, id uuid.UUID, from []models.AlertStatus, to models.AlertStatus, actor string, at time.Time) (*models.SecurityAlert, error) {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	query := `
		UPDATE security_alerts
		SET status = $2, resolved_by = $3, resolved_at = $4
		WHERE id = $1 AND status = ANY($5)
		RETURNING ` + alertColumns

	return scanAlertRow(r.pool.QueryRow(ctx, query, id, string(to), actor, at, allowed))
}
