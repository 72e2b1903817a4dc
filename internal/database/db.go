// Package database is the Postgres store for records, alert rules and alert
// meta.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps a Postgres connection pool.
type DB struct {
	conn *sql.DB
}

// NewDB opens and pings a connection pool for dsn.
func NewDB(dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Successfully connected to PostgreSQL database")
	return &DB{conn: conn}, nil
}

// Close closes the pool.
func (db *DB) Close() error {
	if db.conn != nil {
		slog.Info("Closing database connection")
		return db.conn.Close()
	}
	return nil
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS alerts (
	id         BIGSERIAL PRIMARY KEY,
	date       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	author     TEXT NOT NULL DEFAULT '',
	alert_type TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS alert_meta (
	alert_id   BIGINT NOT NULL REFERENCES alerts (id) ON DELETE CASCADE,
	meta_key   TEXT NOT NULL,
	meta_value TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (alert_id, meta_key)
);

CREATE TABLE IF NOT EXISTS records (
	id        BIGSERIAL PRIMARY KEY,
	created   TIMESTAMPTZ NOT NULL,
	actor     TEXT NOT NULL DEFAULT '',
	context   TEXT NOT NULL,
	action    TEXT NOT NULL,
	object_id TEXT NOT NULL DEFAULT '',
	summary   TEXT NOT NULL DEFAULT '',
	ip        TEXT NOT NULL DEFAULT '',
	metadata  JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS records_context_action_idx ON records (context, action);
CREATE INDEX IF NOT EXISTS records_created_idx ON records (created DESC);
`

// Migrate creates the tables if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	slog.Info("Database schema is up to date")
	return nil
}
