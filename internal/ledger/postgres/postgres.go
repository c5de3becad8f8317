// Package postgres registers the "postgres" ledger engine on a pgx pool.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"csvsift/internal/ledger"
	"csvsift/internal/ledger/sqlrepo"
)

const Engine = "postgres"

const (
	createTable = `CREATE TABLE IF NOT EXISTS ` + ledger.Table + ` (
	id            TEXT PRIMARY KEY,
	input         TEXT NOT NULL,
	output        TEXT NOT NULL,
	processed     BIGINT NOT NULL,
	skipped       BIGINT NOT NULL,
	status        TEXT NOT NULL,
	fingerprint   TEXT NOT NULL,
	started_at_ms BIGINT NOT NULL,
	duration_ms   BIGINT NOT NULL,
	error         TEXT NOT NULL DEFAULT ''
)`
	insertRun  = `INSERT INTO ` + ledger.Table + ` (` + sqlrepo.Columns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	recentRuns = `SELECT ` + sqlrepo.Columns + ` FROM ` + ledger.Table + ` ORDER BY started_at_ms DESC, id DESC LIMIT $1`
)

func init() {
	ledger.Register(Engine, func(ctx context.Context, cfg ledger.Config) (ledger.Repository, error) {
		return New(ctx, cfg)
	})
}

// Repository is the pgx-backed ledger.
type Repository struct {
	pool *pgxpool.Pool
}

var _ ledger.Repository = (*Repository)(nil)

// ParseConfig validates dsn without connecting.
func ParseConfig(dsn string) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse DSN: %w", err)
	}
	return pc, nil
}

// New connects to cfg.DSN and waits until the server answers.
func New(ctx context.Context, cfg ledger.Config) (*Repository, error) {
	pc, err := ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres: pgxpool: %w", err)
	}
	if err := ledger.WaitReady(ctx, cfg, pool.Ping); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("postgres: create %s: %w", ledger.Table, err)
	}
	return nil
}

func (r *Repository) Record(ctx context.Context, e ledger.Entry) error {
	_, err := r.pool.Exec(ctx, insertRun,
		e.ID, e.Input, e.Output, e.Processed, e.Skipped, e.Status, e.Fingerprint,
		e.StartedAt.UnixMilli(), e.Duration.Milliseconds(), e.Error,
	)
	if err != nil {
		return fmt.Errorf("postgres: record run %s: %w", e.ID, err)
	}
	return nil
}

func (r *Repository) Recent(ctx context.Context, limit int) ([]ledger.Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, recentRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.Entry, error) {
		return sqlrepo.Scan(row.Scan)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	return entries, nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}
