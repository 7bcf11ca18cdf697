package repository

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"entgo.io/ent/dialect"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

func provider(db *DB) (*goose.Provider, error) {
	var (
		gd  goose.Dialect
		dir string
	)
	switch db.Dialect {
	case dialect.Postgres:
		gd, dir = goose.DialectPostgres, "migrations/postgres"
	case dialect.SQLite:
		gd, dir = goose.DialectSQLite3, "migrations/sqlite"
	default:
		return nil, fmt.Errorf("no migrations for dialect %q", db.Dialect)
	}
	fsys, err := fs.Sub(migrations, dir)
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(gd, db.SQL(), fsys)
}

// Migrate applies every pending migration and returns the resulting version.
func Migrate(ctx context.Context, db *DB, logger *slog.Logger) (int64, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p, err := provider(db)
	if err != nil {
		return 0, fmt.Errorf("migrations: %w", err)
	}
	results, err := p.Up(ctx)
	if err != nil {
		logger.Error("repository.migrate.failed", "error", err)
		return 0, fmt.Errorf("migrate up: %w", err)
	}
	for _, r := range results {
		logger.Info("repository.migrate.applied",
			"version", r.Source.Version,
			"path", r.Source.Path,
			"elapsed_ms", r.Duration.Milliseconds(),
		)
	}
	version, err := p.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("migration version: %w", err)
	}
	return version, nil
}
