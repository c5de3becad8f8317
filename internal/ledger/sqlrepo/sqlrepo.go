// Package sqlrepo is the database/sql implementation shared by the SQLite,
// MySQL and SQL Server ledger backends. Engines differ only in their Dialect.
package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"csvsift/internal/ledger"
)

// Dialect holds the engine-specific statements. Insert takes the ten entry
// columns in Columns order; Recent takes the row limit as its only argument.
type Dialect struct {
	Engine      string
	Driver      string // database/sql driver name
	CreateTable string
	Insert      string
	Recent      string
}

// Columns is the column order used by Insert and Recent.
const Columns = "id, input, output, processed, skipped, status, fingerprint, started_at_ms, duration_ms, error"

// Repository implements ledger.Repository over *sql.DB.
type Repository struct {
	db *sql.DB
	d  Dialect
}

var _ ledger.Repository = (*Repository)(nil)

// Open connects with d.Driver and waits until the database answers.
func Open(ctx context.Context, d Dialect, cfg ledger.Config) (*Repository, error) {
	db, err := sql.Open(d.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", d.Engine, err)
	}
	if err := ledger.WaitReady(ctx, cfg, db.PingContext); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", d.Engine, err)
	}
	return &Repository{db: db, d: d}, nil
}

// DB exposes the pool for engine-specific tuning.
func (r *Repository) DB() *sql.DB { return r.db }

func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, r.d.CreateTable); err != nil {
		return fmt.Errorf("%s: create %s: %w", r.d.Engine, ledger.Table, err)
	}
	return nil
}

func (r *Repository) Record(ctx context.Context, e ledger.Entry) error {
	_, err := r.db.ExecContext(ctx, r.d.Insert,
		e.ID, e.Input, e.Output, e.Processed, e.Skipped, e.Status, e.Fingerprint,
		e.StartedAt.UnixMilli(), e.Duration.Milliseconds(), e.Error,
	)
	if err != nil {
		return fmt.Errorf("%s: record run %s: %w", r.d.Engine, e.ID, err)
	}
	return nil
}

func (r *Repository) Recent(ctx context.Context, limit int) (entries []ledger.Entry, err error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, r.d.Recent, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: list runs: %w", r.d.Engine, err)
	}
	defer func() { err = errors.Join(err, rows.Close()) }()

	for rows.Next() {
		e, err := Scan(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("%s: scan run: %w", r.d.Engine, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: list runs: %w", r.d.Engine, err)
	}
	return entries, nil
}

func (r *Repository) Close() error { return r.db.Close() }

// Scan reads one row in Columns order through scan. It is shared with
// backends that do not use database/sql.
func Scan(scan func(dest ...any) error) (ledger.Entry, error) {
	var (
		e                     ledger.Entry
		startedMs, durationMs int64
	)
	if err := scan(&e.ID, &e.Input, &e.Output, &e.Processed, &e.Skipped, &e.Status,
		&e.Fingerprint, &startedMs, &durationMs, &e.Error); err != nil {
		return ledger.Entry{}, err
	}
	e.StartedAt = time.UnixMilli(startedMs).UTC()
	e.Duration = time.Duration(durationMs) * time.Millisecond
	return e, nil
}
