// Package migrate applies the embedded item schema migrations with Goose.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"

	"github.com/BobSilent/aggregator-cli/migrations"
	"github.com/BobSilent/aggregator-cli/pkg/logger"
)

// Migrator runs the migrations against one database.
type Migrator struct {
	db  *sql.DB
	log *slog.Logger
}

// NewMigrator creates a Migrator for db. A nil log discards output.
func NewMigrator(db *bun.DB, log *slog.Logger) *Migrator {
	if log == nil {
		log = logger.Discard()
	}
	return &Migrator{db: db.DB, log: log.With(logger.Scope("migrate"))}
}

func setup() error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	return nil
}

// Up runs all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	if err := setup(); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, m.db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	version, err := m.Version(ctx)
	if err != nil {
		return err
	}
	m.log.Info("migrations completed", slog.Int64("version", version))
	return nil
}

// Down rolls back the last migration.
func (m *Migrator) Down(ctx context.Context) error {
	if err := setup(); err != nil {
		return err
	}
	if err := goose.DownContext(ctx, m.db, "."); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}
	m.log.Info("rolled back last migration")
	return nil
}

// Version returns the current schema version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	if err := setup(); err != nil {
		return 0, err
	}
	version, err := goose.GetDBVersionContext(ctx, m.db)
	if err != nil {
		return 0, fmt.Errorf("failed to get version: %w", err)
	}
	return version, nil
}

// Latest returns the highest version among the embedded migrations.
func Latest() (int64, error) {
	if err := setup(); err != nil {
		return 0, err
	}
	all, err := goose.CollectMigrations(".", 0, goose.MaxVersion)
	if err != nil {
		return 0, fmt.Errorf("failed to collect migrations: %w", err)
	}
	last, err := all.Last()
	if err != nil {
		return 0, fmt.Errorf("failed to collect migrations: %w", err)
	}
	return last.Version, nil
}
