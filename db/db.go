// Package db provides the Postgres connection helpers, schema migration and the
// append-only event journal.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// connectTries bounds startup pings while the database container comes up.
const connectTries = 6

// Connect opens a Postgres pool for dsn and waits until it answers a ping.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ping := func() (struct{}, error) {
		err := database.PingContext(ctx)
		if err != nil {
			slog.Warn("postgres not ready", slog.String("component", "db"), slog.Any("err", err))
		}
		return struct{}{}, err
	}
	if _, err := backoff.Retry(ctx, ping,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(connectTries),
	); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return database, nil
}

// Migrate applies idempotent schema changes for the journal.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS room_events (
			id BIGSERIAL PRIMARY KEY,
			room TEXT NOT NULL,
			kind TEXT NOT NULL,
			user_id TEXT,
			payload JSONB NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`ALTER TABLE room_events ADD COLUMN IF NOT EXISTS user_id TEXT`,
		`CREATE INDEX IF NOT EXISTS idx_room_events_room_id ON room_events(room, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_room_events_user ON room_events(user_id) WHERE user_id IS NOT NULL`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}
