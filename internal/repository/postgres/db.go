// Package postgres provides PostgreSQL database utilities.
package postgres

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pergamon-io/pergamon/internal/config"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// DB wraps a pgx connection pool with additional functionality.
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewDB creates a new database connection pool.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// Configure pool settings
	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime

	// Configure connection settings
	poolConfig.ConnConfig.ConnectTimeout = 10 * time.Second

	// Add query tracer for debugging (optional)
	if logger.GetLevel() <= zerolog.DebugLevel {
		poolConfig.ConnConfig.Tracer = &queryTracer{logger: logger}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Int("max_conns", cfg.MaxOpenConns).
		Msg("connected to PostgreSQL")

	return &DB{
		Pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	db.Pool.Close()
	db.logger.Info().Msg("database connection pool closed")
	return nil
}

// Ping checks the database connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Stats returns connection pool statistics.
func (db *DB) Stats() *pgxpool.Stat {
	return db.Pool.Stat()
}

// Migrate applies embedded migrations in order, tracking applied versions
// in a schema_migrations table.
func (db *DB) Migrate(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || len(name) < 7 || name[len(name)-7:] != ".up.sql" {
			continue
		}
		version := name[:len(name)-7]

		var count int
		err := db.Pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM schema_migrations WHERE version = $1`, version,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to check migration %s: %w", version, err)
		}
		if count > 0 {
			continue
		}

		sqlBytes, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		if err := db.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
				return fmt.Errorf("failed to apply migration %s: %w", version, err)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO schema_migrations (version) VALUES ($1)`, version,
			); err != nil {
				return fmt.Errorf("failed to record migration %s: %w", version, err)
			}
			return nil
		}); err != nil {
			return err
		}

		db.logger.Info().Str("version", version).Msg("applied migration")
	}

	return nil
}

// WithTx executes a function within a transaction.
// If the function returns an error, the transaction is rolled back.
// Otherwise, the transaction is committed.
func (db *DB) WithTx(ctx context.Context, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	tx, err := db.Pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// queryTracer implements pgx.QueryTracer for debug logging.
type queryTracer struct {
	logger zerolog.Logger
}

type traceQueryCtxKey struct{}

type traceQueryData struct {
	sql       string
	args      []any
	startTime time.Time
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, traceQueryCtxKey{}, &traceQueryData{
		sql:       data.SQL,
		args:      data.Args,
		startTime: time.Now(),
	})
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	queryData, ok := ctx.Value(traceQueryCtxKey{}).(*traceQueryData)
	if !ok {
		return
	}

	duration := time.Since(queryData.startTime)

	event := t.logger.Debug().
		Str("sql", queryData.sql).
		Dur("duration", duration).
		Str("command_tag", data.CommandTag.String())

	if data.Err != nil {
		event.Err(data.Err)
	}

	event.Msg("query executed")
}
