// Package mysql registers the "mysql" ledger engine (go-sql-driver/mysql).
//
// The DSN uses the driver's format, e.g.
// "csvsift:secret@tcp(localhost:3306)/runs".
package mysql

import (
	"context"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"csvsift/internal/ledger"
	"csvsift/internal/ledger/sqlrepo"
)

const Engine = "mysql"

var dialect = sqlrepo.Dialect{
	Engine: Engine,
	Driver: "mysql",
	CreateTable: `CREATE TABLE IF NOT EXISTS ` + ledger.Table + ` (
	id            CHAR(26) NOT NULL PRIMARY KEY,
	input         VARCHAR(1024) NOT NULL,
	output        VARCHAR(1024) NOT NULL,
	processed     BIGINT NOT NULL,
	skipped       BIGINT NOT NULL,
	status        VARCHAR(32) NOT NULL,
	fingerprint   VARCHAR(64) NOT NULL,
	started_at_ms BIGINT NOT NULL,
	duration_ms   BIGINT NOT NULL,
	error         TEXT NOT NULL,
	INDEX idx_started (started_at_ms)
)`,
	Insert: `INSERT INTO ` + ledger.Table + ` (` + sqlrepo.Columns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	Recent: `SELECT ` + sqlrepo.Columns + ` FROM ` + ledger.Table + ` ORDER BY started_at_ms DESC, id DESC LIMIT ?`,
}

func init() {
	ledger.Register(Engine, New)
}

// NormalizeDSN parses dsn and fills in the settings the ledger relies on.
func NormalizeDSN(dsn string) (string, error) {
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql: parse DSN: %w", err)
	}
	if mc.DBName == "" {
		return "", fmt.Errorf("mysql: DSN names no database")
	}
	if mc.Timeout == 0 {
		mc.Timeout = 5 * time.Second
	}
	mc.ParseTime = true
	return mc.FormatDSN(), nil
}

// New connects to the database named in cfg.DSN.
func New(ctx context.Context, cfg ledger.Config) (ledger.Repository, error) {
	dsn, err := NormalizeDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	cfg.DSN = dsn
	repo, err := sqlrepo.Open(ctx, dialect, cfg)
	if err != nil {
		return nil, err
	}
	repo.DB().SetConnMaxLifetime(3 * time.Minute)
	return repo, nil
}
