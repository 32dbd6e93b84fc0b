package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/alumnigate/internal/database"
	"github.com/BradenHooton/alumnigate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const securityEventColumns = `id, identity, event_type, description, severity, ip_address, user_agent, metadata, created_at`

// SecurityEventRepository handles security event data access
type SecurityEventRepository struct {
	pool *pgxpool.Pool
}

// NewSecurityEventRepository creates a new SecurityEventRepository
func NewSecurityEventRepository(db *database.DB) *SecurityEventRepository {
	return &SecurityEventRepository{pool: db.Pool}
}

func scanSecurityEventRow(row rowScanner) (*models.SecurityEvent, error) {
	var e models.SecurityEvent

	err := row.Scan(
		&e.ID, &e.Identity, &e.EventType, &e.Description, &e.Severity,
		&e.IPAddress, &e.UserAgent, &e.Metadata, &e.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &e, nil
}

func scanSecurityEventRows(rows pgx.Rows) ([]*models.SecurityEvent, error) {
	defer rows.Close()

	events := make([]*models.SecurityEvent, 0)

	for rows.Next() {
		e, err := scanSecurityEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security event rows: %w", err)
	}

	return events, nil
}

// Create appends an event. ID and CreatedAt are set by the caller.
func (r *SecurityEventRepository) Create(ctx context.Context, e *models.SecurityEvent) error {
	query := `
		INSERT INTO security_events (` + securityEventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	metadata := e.Metadata
	if metadata == nil {
		metadata = models.EventMetadata{}
	}

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.Identity, e.EventType, e.Description, e.Severity,
		e.IPAddress, e.UserAgent, metadata, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create security event: %w", database.MapPostgresError(err))
	}
	return nil
}

// buildEventWhere renders the filter as a WHERE clause with positional args
func buildEventWhere(filter models.EventFilter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Identity != "" {
		add("identity = $%d", filter.Identity)
	}
	if filter.EventType != "" {
		add("event_type = $%d", string(filter.EventType))
	}
	if filter.DateFrom != nil {
		add("created_at >= $%d", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		add("created_at <= $%d", *filter.DateTo)
	}

	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// Query returns one page of matching events, newest first
func (r *SecurityEventRepository) Query(ctx context.Context, filter models.EventFilter, limit, offset int) ([]*models.SecurityEvent, error) {
	where, args := buildEventWhere(filter)
	args = append(args, limit, offset)

	query := fmt.Sprintf(`
		SELECT %s
		FROM security_events
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, securityEventColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", database.MapPostgresError(err))
	}

	return scanSecurityEventRows(rows)
}

// Count returns the number of events matching the filter
func (r *SecurityEventRepository) Count(ctx context.Context, filter models.EventFilter) (int64, error) {
	where, args := buildEventWhere(filter)
	query := `SELECT COUNT(*) FROM security_events ` + where

	var count int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count security events: %w", database.MapPostgresError(err))
	}
	return count, nil
}

// CountByTypeSince counts events of one type at or after since
func (r *SecurityEventRepository) CountByTypeSince(ctx context.Context, eventType models.EventType, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM security_events
		WHERE event_type = $1 AND created_at >= $2
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, string(eventType), since).Scan(&count); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

// CountErrorsSince counts high/critical events plus system errors
func (r *SecurityEventRepository) CountErrorsSince(ctx context.Context, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM security_events
		WHERE created_at >= $1
		  AND (severity IN ('high', 'critical') OR event_type = $2)
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, since, string(models.EventSystemError)).Scan(&count); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

// CountIPsAboveSince counts source addresses with more than minEvents events of a type
func (r *SecurityEventRepository) CountIPsAboveSince(ctx context.Context, eventType models.EventType, since time.Time, minEvents int) (int, error) {
	query := `
		SELECT COUNT(*) FROM (
			SELECT ip_address
			FROM security_events
			WHERE event_type = $1 AND created_at >= $2 AND ip_address IS NOT NULL
			GROUP BY ip_address
			HAVING COUNT(*) > $3
		) AS offenders
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, string(eventType), since, minEvents).Scan(&count); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

// ExistsForIdentitySince reports whether an identity has an event of a type at or after since
func (r *SecurityEventRepository) ExistsForIdentitySince(ctx context.Context, identity string, eventType models.EventType, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM security_events
			WHERE identity = $1 AND event_type = $2 AND created_at >= $3
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, identity, string(eventType), since).Scan(&exists); err != nil {
		return false, database.MapPostgresError(err)
	}
	return exists, nil
}

// DeleteBefore removes events older than cutoff
func (r *SecurityEventRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM security_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup security events: %w", database.MapPostgresError(err))
	}
	return result.RowsAffected(), nil
}
