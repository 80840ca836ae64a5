package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite"
)

// Config holds connection settings shared by both backends.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// IsPostgres reports whether the DSN selects the Postgres backend; anything
// else is treated as an SQLite database path.
func (c Config) IsPostgres() bool {
	return strings.HasPrefix(c.DSN, "postgres://") || strings.HasPrefix(c.DSN, "postgresql://")
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS shipments (
	id            TEXT PRIMARY KEY,
	ingested_at   INTEGER NOT NULL,
	transfer_ts   INTEGER NOT NULL,
	source_ref    TEXT    NOT NULL,
	seq_number    INTEGER NOT NULL,
	package_id    TEXT    NOT NULL,
	weight_kg     REAL    NOT NULL,
	order_id      TEXT    NOT NULL,
	submitted_by  TEXT    NOT NULL DEFAULT '',
	weight_approx INTEGER NOT NULL DEFAULT 0,
	synced        INTEGER NOT NULL DEFAULT 0,
	synced_at     INTEGER,
	UNIQUE (package_id, order_id)
);
CREATE INDEX IF NOT EXISTS idx_shipments_synced ON shipments (synced);
`

// OpenSQLite opens (and if needed creates) the SQLite store with WAL and a
// busy timeout, then ensures the schema. The (package_id, order_id) unique
// constraint is the storage half of the ingestion dedup contract.
func OpenSQLite(path string, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}

	logger.Info("sqlite store ready", "path", path)
	return db, nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS shipments (
	id            TEXT PRIMARY KEY,
	ingested_at   TIMESTAMPTZ NOT NULL,
	transfer_ts   TIMESTAMPTZ NOT NULL,
	source_ref    TEXT NOT NULL,
	seq_number    INTEGER NOT NULL,
	package_id    TEXT NOT NULL,
	weight_kg     DOUBLE PRECISION NOT NULL,
	order_id      TEXT NOT NULL,
	submitted_by  TEXT NOT NULL DEFAULT '',
	weight_approx BOOLEAN NOT NULL DEFAULT FALSE,
	synced        BOOLEAN NOT NULL DEFAULT FALSE,
	synced_at     TIMESTAMPTZ,
	UNIQUE (package_id, order_id)
)`

// OpenPostgres creates a pgx pool, pings it, and ensures the schema.
func OpenPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("connecting to database", "dsn", cfg.DSN)
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "manifestd"

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}

	logger.Info("successfully connected to database")
	return pool, nil
}
