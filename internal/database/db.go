package database

import (
	"context"
	"errors"
	"strings"

	"github.com/BradenHooton/alumnigate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505": // unique_violation
			return models.ErrConflict
		case pgErr.Code == "23503", pgErr.Code == "23502", pgErr.Code == "22P02":
			return models.ErrBadRequest
		case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "57P01", pgErr.Code == "53300":
			// connection exceptions, admin shutdown, too many connections
			return errors.Join(models.ErrStoreUnavailable, err)
		}
	}

	return err
}

// WithTransaction runs fn in a transaction, committing when fn returns nil.
func (db *DB) WithTransaction(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return errors.Join(models.ErrStoreUnavailable, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = fn(tx)
	return err
}
