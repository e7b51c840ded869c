package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/toiletmap/toiletmap-api/migrations"
)

// Migrator runs goose migrations from an fs.FS against a database/sql handle
type Migrator struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewMigrator uses the embedded migrations when fsys is nil
func NewMigrator(db *sql.DB, fsys fs.FS, logger *slog.Logger) (*Migrator, error) {
	if fsys == nil {
		fsys = migrations.FS
	}
	goose.SetBaseFS(fsys)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("goose set dialect: %w", err)
	}
	return &Migrator{db: db, logger: logger}, nil
}

// Up applies every pending migration
func (m *Migrator) Up(ctx context.Context) error {
	if err := goose.UpContext(ctx, m.db, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	m.logVersion(ctx, "database migrations applied")
	return nil
}

// Down rolls back the latest steps migrations (at least one)
func (m *Migrator) Down(ctx context.Context, steps int) error {
	if steps < 1 {
		steps = 1
	}
	for i := 0; i < steps; i++ {
		if err := goose.DownContext(ctx, m.db, "."); err != nil {
			return fmt.Errorf("goose down (step %d): %w", i+1, err)
		}
	}
	m.logVersion(ctx, "database migrations rolled back")
	return nil
}

// Status logs the applied state of every migration
func (m *Migrator) Status(ctx context.Context) error {
	if err := goose.StatusContext(ctx, m.db, "."); err != nil {
		return fmt.Errorf("goose status: %w", err)
	}
	return nil
}

// Version returns the current schema version
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	return goose.GetDBVersionContext(ctx, m.db)
}

func (m *Migrator) logVersion(ctx context.Context, msg string) {
	if m.logger == nil {
		return
	}
	version, err := m.Version(ctx)
	if err != nil {
		m.logger.Warn("could not read schema version", slog.Any("error", err))
		return
	}
	m.logger.Info(msg, slog.Int64("version", version))
}

// Migrate runs the embedded migrations over the pool through pgx's
// database/sql adapter
func (db *DB) Migrate(ctx context.Context) error {
	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	defer sqlDB.Close()

	m, err := NewMigrator(sqlDB, nil, db.logger)
	if err != nil {
		return err
	}
	return m.Up(ctx)
}
