// Package postgres provides PostgreSQL database adapters.
//
// It implements the repository ports for catalog guarantees, stored policy
// texts, per-guarantee extractions and cross-company comparisons, with
// connection pooling and per-query tracing.
package postgres

import (
	"context"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxPool is a minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// NewPool creates a pgx connection pool from the provided DSN and returns it.
// The pool is configured with sane defaults for this application and traces
// every query through OpenTelemetry.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.ConnConfig.Tracer = otelpgx.NewTracer()
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// EnsureSchema creates the tables this service needs when they do not exist
// yet. Deployments run a single service instance, so idempotent DDL at boot
// replaces a separate migration step.
func EnsureSchema(ctx context.Context, pool PgxPool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS guarantees (
			id TEXT PRIMARY KEY,
			insurance_type TEXT NOT NULL,
			section TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (insurance_type, section, title)
		)`,
		`CREATE TABLE IF NOT EXISTS policies (
			id TEXT PRIMARY KEY,
			company_name TEXT NOT NULL,
			insurance_type TEXT NOT NULL,
			text TEXT NOT NULL,
			filename TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (company_name, insurance_type)
		)`,
		`CREATE TABLE IF NOT EXISTS extractions (
			company_name TEXT NOT NULL,
			guarantee_title TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			ref_number TEXT,
			title TEXT,
			content TEXT,
			confidence DOUBLE PRECISION NOT NULL,
			found BOOLEAN NOT NULL,
			analysis_time_seconds DOUBLE PRECISION NOT NULL,
			raw_response TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (company_name, guarantee_title)
		)`,
		`CREATE TABLE IF NOT EXISTS comparisons (
			guarantee_name TEXT PRIMARY KEY,
			companies_analyzed TEXT[] NOT NULL,
			common_points TEXT[] NOT NULL,
			detailed_comparison JSONB NOT NULL,
			main_differences TEXT[] NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			analysis_time_seconds DOUBLE PRECISION NOT NULL,
			raw_response TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := pool.Exec(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
