// Package postgres provides sqlx-backed implementations of the store
// interfaces. Each entity is a single-row table replaced in place, matching
// the replace-wholesale semantics of the domain.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const defaultTimeout = 5 * time.Second

// Open connects to Postgres and verifies the connection.
func Open(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// Migrate creates the scanner tables if they do not exist.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS broker_credentials (
			id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			client_id TEXT NOT NULL,
			secret TEXT NOT NULL,
			redirect_url TEXT NOT NULL,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL DEFAULT '',
			expiry BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS symbol_universe (
			id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			symbols TEXT[] NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS scan_results (
			id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			snapshot JSONB NOT NULL,
			scanned_at BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
