// Package db provides PostgreSQL-backed repository implementations for the
// Backburner service. All repositories accept a DBTX interface that is
// satisfied by both *pgxpool.Pool (for normal queries) and pgx.Tx (for
// transactional execution), enabling clean transaction support.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"backburner/internal/config"
	"backburner/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
// Repositories accept this so the same code works inside or outside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool creates a pgx connection pool from the database configuration and
// verifies connectivity before returning.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Reveal())
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}

	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// PostgreSQL error codes of interest.
const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

// isForeignKeyViolation checks if the error is a PostgreSQL foreign-key
// constraint violation. This is the storage-level shape of a referential
// race: the referenced note was deleted between read and write.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgForeignKeyViolation
	}
	return false
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint
// violation (duplicate key).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}

// wrapWriteError translates a storage error into the application taxonomy:
// foreign-key violations become the narrowly-recoverable referential race
// code, everything else becomes an internal database error.
func wrapWriteError(err error, msg string) error {
	if isForeignKeyViolation(err) {
		return types.NewAppError(types.ErrCodeReferentialRace, msg+": note no longer exists", err)
	}
	return types.NewAppError(types.ErrCodeInternalDB, msg, err)
}

// beginner is satisfied by both *pgxpool.Pool (Begin starts a transaction)
// and pgx.Tx (Begin creates a savepoint).
type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// execGuarded runs fn inside a nested transaction. When db is already a
// transaction this is a savepoint, so a statement that fails with a
// constraint violation can be swallowed by the caller without poisoning the
// enclosing transaction. When db is a pool, fn runs in its own short
// transaction.
func execGuarded(ctx context.Context, db DBTX, fn func(DBTX) error) error {
	b, ok := db.(beginner)
	if !ok {
		// Mocks and test doubles may not support Begin; run directly.
		return fn(db)
	}

	tx, err := b.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin nested transaction", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}
