package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ConfigRepository implements the domain.ConfigRepository interface
// using PostgreSQL. It is the override store: raw string values keyed
// by (guild, dotted path).
type ConfigRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewConfigRepository creates a new PostgreSQL config repository
func NewConfigRepository(db *sql.DB, logger *slog.Logger) *ConfigRepository {
	return &ConfigRepository{
		db:     db,
		logger: logger,
	}
}

// GetOverrides returns every override of a guild as a key→value map
func (r *ConfigRepository) GetOverrides(ctx context.Context, guildID int64) (map[string]string, error) {
	query := `
		SELECT key, value
		FROM config_entries
		WHERE guild_id = $1`

	rows, err := r.db.QueryContext(ctx, query, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to query overrides: %w", err)
	}
	defer rows.Close()

	overrides := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		overrides[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate overrides: %w", err)
	}

	r.logger.Debug("Overrides loaded", "guild_id", guildID, "count", len(overrides))
	return overrides, nil
}

// Upsert inserts or replaces a single override
func (r *ConfigRepository) Upsert(ctx context.Context, guildID int64, key, value string) error {
	query := `
		INSERT INTO config_entries (guild_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id, key) DO UPDATE SET value = EXCLUDED.value`

	if _, err := r.db.ExecContext(ctx, query, guildID, key, value); err != nil {
		return fmt.Errorf("failed to upsert override: %w", err)
	}

	r.logger.Debug("Override stored", "guild_id", guildID, "key", key)
	return nil
}

// Delete removes an override and returns the number of rows removed
func (r *ConfigRepository) Delete(ctx context.Context, guildID int64, key string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM config_entries WHERE guild_id = $1 AND key = $2", guildID, key)
	if err != nil {
		return 0, fmt.Errorf("failed to delete override: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted overrides: %w", err)
	}

	r.logger.Debug("Override deleted", "guild_id", guildID, "key", key, "rows", affected)
	return affected, nil
}

// DeleteAll clears every override of a guild
func (r *ConfigRepository) DeleteAll(ctx context.Context, guildID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM config_entries WHERE guild_id = $1", guildID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear overrides: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleared overrides: %w", err)
	}

	return affected, nil
}
