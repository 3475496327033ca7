package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate ensures the schema exists. Statements are idempotent so the API and
// the seeder can both call this at startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			name TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			registered_events UUID[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			organizer TEXT NOT NULL,
			location TEXT NOT NULL,
			date_time TIMESTAMPTZ NOT NULL,
			description TEXT NOT NULL,
			capacity INT NOT NULL CHECK (capacity >= 1),
			registered_count INT NOT NULL DEFAULT 0
				CHECK (registered_count >= 0 AND registered_count <= capacity),
			category TEXT NOT NULL,
			created_by UUID NOT NULL REFERENCES users(id),
			registered_users UUID[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS registrations (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			event_id UUID NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL,
			CONSTRAINT registrations_user_event_uniq UNIQUE (user_id, event_id)
		)`,
		`CREATE INDEX IF NOT EXISTS events_date_time_idx ON events (date_time, id)`,
		`CREATE INDEX IF NOT EXISTS events_category_idx ON events (category)`,
		`CREATE INDEX IF NOT EXISTS events_location_idx ON events (location)`,
		`CREATE INDEX IF NOT EXISTS registrations_event_idx ON registrations (event_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS registrations_user_idx ON registrations (user_id, created_at DESC)`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}
