package db

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies pending embedded migrations. It is idempotent and
// safe to call on every startup; only pending migrations execute.
func RunMigrations(databaseURL string, logger *slog.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, pgxURL(databaseURL))
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("failed to close migration source", "error", srcErr)
		}
		if dbErr != nil {
			logger.Warn("failed to close migration database", "error", dbErr)
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no migrations to apply, database up-to-date")
			return nil
		}
		return fmt.Errorf("running migrations: %w", err)
	}

	version, _, _ := m.Version()
	logger.Info("applied migrations", "version", version)
	return nil
}

// pgxURL rewrites a postgres:// connection URL to the pgx5:// scheme the
// golang-migrate pgx/v5 driver registers.
func pgxURL(url string) string {
	switch {
	case strings.HasPrefix(url, "postgresql://"):
		return "pgx5://" + strings.TrimPrefix(url, "postgresql://")
	case strings.HasPrefix(url, "postgres://"):
		return "pgx5://" + strings.TrimPrefix(url, "postgres://")
	default:
		return url
	}
}
