package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all schema migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					email VARCHAR(255) NOT NULL,
					password_hash VARCHAR(255) NOT NULL,
					tier VARCHAR(32) NOT NULL DEFAULT 'standard',
					avatar_key VARCHAR(512),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE UNIQUE INDEX idx_users_email ON users (LOWER(email));
				CREATE INDEX idx_users_tier ON users (tier);
			`,
		},
		{
			Version:     2,
			Description: "Create sessions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS sessions (
					token_hash CHAR(64) PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					issued_at TIMESTAMPTZ NOT NULL,
					expires_at TIMESTAMPTZ NOT NULL,
					revoked BOOLEAN NOT NULL DEFAULT FALSE
				);

				CREATE INDEX idx_sessions_user_id ON sessions (user_id);
				CREATE INDEX idx_sessions_expires_at ON sessions (expires_at);
			`,
		},
		{
			Version:     3,
			Description: "Create products table",
			SQL: `
				CREATE TABLE IF NOT EXISTS products (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					price_cents BIGINT NOT NULL DEFAULT 0,
					category VARCHAR(100) NOT NULL DEFAULT '',
					status VARCHAR(32) NOT NULL DEFAULT 'active',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_products_category ON products (category);
				CREATE INDEX idx_products_status ON products (status);
			`,
		},
	}
}

// RunMigrations applies pending migrations inside transactions
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
