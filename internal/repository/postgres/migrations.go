package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations contains all database migrations in order
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		SQL: `
			-- Guilds that ran /configure
			CREATE TABLE IF NOT EXISTS guilds (
				id BIGINT PRIMARY KEY,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);

			-- Per-guild configuration overrides, one row per dotted key
			CREATE TABLE IF NOT EXISTS config_entries (
				guild_id BIGINT NOT NULL REFERENCES guilds(id) ON DELETE CASCADE,
				key VARCHAR(255) NOT NULL,
				value VARCHAR(255) NOT NULL,
				PRIMARY KEY (guild_id, key)
			);

			-- Moderation ledger
			CREATE TABLE IF NOT EXISTS infractions (
				id BIGSERIAL PRIMARY KEY,
				guild_id BIGINT NOT NULL REFERENCES guilds(id) ON DELETE CASCADE,
				user_id BIGINT NOT NULL,
				moderator_id BIGINT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				duration_seconds BIGINT,
				reason TEXT,
				type VARCHAR(20) NOT NULL,
				cancelled BOOLEAN NOT NULL DEFAULT FALSE,
				dm_sent BOOLEAN,

				CHECK (type IN ('note', 'warning', 'mute', 'kick', 'ban'))
			);

			CREATE INDEX IF NOT EXISTS idx_infractions_guild_user_type
			ON infractions(guild_id, user_id, type);
		`,
	},
	{
		Version: 2,
		Name:    "role_pickers",
		SQL: `
			CREATE TABLE IF NOT EXISTS role_pickers (
				id BIGSERIAL PRIMARY KEY,
				guild_id BIGINT NOT NULL REFERENCES guilds(id) ON DELETE CASCADE,
				channel_id BIGINT NOT NULL,
				message_id BIGINT,
				title VARCHAR(100) NOT NULL
			);

			CREATE TABLE IF NOT EXISTS role_picker_entries (
				id BIGSERIAL PRIMARY KEY,
				picker_id BIGINT NOT NULL REFERENCES role_pickers(id) ON DELETE CASCADE,
				role_id BIGINT NOT NULL,
				message VARCHAR(100) NOT NULL,

				UNIQUE(picker_id, role_id)
			);
		`,
	},
}

// RunMigrations executes all pending database migrations
func RunMigrations(db *sql.DB, logger *slog.Logger) error {
	logger.Info("Running database migrations...")

	// Create migrations table
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	logger.Info("Current migration version", "version", currentVersion)

	// Apply pending migrations
	applied := 0
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		logger.Info("Applying migration",
			"version", migration.Version,
			"name", migration.Name,
		)

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec(migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Name, err)
		}

		if _, err := tx.Exec("INSERT INTO migrations (version, name) VALUES ($1, $2)",
			migration.Version, migration.Name); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		applied++
		logger.Info("Migration applied successfully", "version", migration.Version)
	}

	if applied == 0 {
		logger.Info("No migrations to apply - database is up to date")
	} else {
		logger.Info("Database migrations completed", "applied", applied)
	}

	return nil
}

// GetMigrationStatus returns the current migration status
func GetMigrationStatus(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get migration status: %w", err)
	}
	return version, nil
}

// ResetDatabase drops all tables (for testing)
func ResetDatabase(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	logger.Warn("Resetting database - all data will be lost")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Drop tables in reverse dependency order
	dropSQL := []string{
		"DROP TABLE IF EXISTS role_picker_entries CASCADE",
		"DROP TABLE IF EXISTS role_pickers CASCADE",
		"DROP TABLE IF EXISTS infractions CASCADE",
		"DROP TABLE IF EXISTS config_entries CASCADE",
		"DROP TABLE IF EXISTS guilds CASCADE",
		"DROP TABLE IF EXISTS migrations CASCADE",
	}

	for _, sql := range dropSQL {
		if _, err := tx.ExecContext(ctx, sql); err != nil {
			return fmt.Errorf("failed to execute drop statement: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset transaction: %w", err)
	}

	logger.Info("Database reset completed")
	return nil
}
