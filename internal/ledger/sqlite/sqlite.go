// Package sqlite registers the "sqlite" ledger engine (modernc.org/sqlite,
// no cgo). The DSN is a file path or a file: URI.
package sqlite

import (
	"context"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"csvsift/internal/ledger"
	"csvsift/internal/ledger/sqlrepo"
)

const Engine = "sqlite"

var dialect = sqlrepo.Dialect{
	Engine: Engine,
	Driver: "sqlite",
	CreateTable: `CREATE TABLE IF NOT EXISTS ` + ledger.Table + ` (
	id            TEXT PRIMARY KEY,
	input         TEXT NOT NULL,
	output        TEXT NOT NULL,
	processed     INTEGER NOT NULL,
	skipped       INTEGER NOT NULL,
	status        TEXT NOT NULL,
	fingerprint   TEXT NOT NULL,
	started_at_ms INTEGER NOT NULL,
	duration_ms   INTEGER NOT NULL,
	error         TEXT NOT NULL DEFAULT ''
)`,
	Insert: `INSERT INTO ` + ledger.Table + ` (` + sqlrepo.Columns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	Recent: `SELECT ` + sqlrepo.Columns + ` FROM ` + ledger.Table + ` ORDER BY started_at_ms DESC, id DESC LIMIT ?`,
}

func init() {
	ledger.Register(Engine, New)
}

// New opens the database at cfg.DSN. SQLite allows a single writer, so the
// pool is capped at one connection.
func New(ctx context.Context, cfg ledger.Config) (ledger.Repository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	repo, err := sqlrepo.Open(ctx, dialect, cfg)
	if err != nil {
		return nil, err
	}
	repo.DB().SetMaxOpenConns(1)
	return repo, nil
}
