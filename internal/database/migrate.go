package database

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/BradenHooton/alumnigate/migrations"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type MigrateDirection string

const (
	MigrateUp     MigrateDirection = "up"
	MigrateDown   MigrateDirection = "down"
	MigrateStatus MigrateDirection = "status"
)

// Migrate applies the embedded goose migrations through a database/sql
// handle borrowed from the pool.
func (db *DB) Migrate(ctx context.Context, direction MigrateDirection, verbose bool) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if !verbose {
		goose.SetLogger(log.New(io.Discard, "", 0))
	}

	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	defer sqlDB.Close()

	var err error
	switch direction {
	case MigrateUp:
		err = goose.UpContext(ctx, sqlDB, ".")
	case MigrateDown:
		err = goose.DownContext(ctx, sqlDB, ".")
	case MigrateStatus:
		err = goose.StatusContext(ctx, sqlDB, ".")
	default:
		return fmt.Errorf("unknown migration direction %q", direction)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", direction, err)
	}

	return nil
}
