package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"warden/internal/domain"
)

// GuildRepository implements the domain.GuildRepository interface using PostgreSQL
type GuildRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewGuildRepository creates a new PostgreSQL guild repository
func NewGuildRepository(db *sql.DB, logger *slog.Logger) *GuildRepository {
	return &GuildRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves a guild by its Discord ID
func (r *GuildRepository) GetByID(ctx context.Context, id int64) (*domain.Guild, error) {
	query := `
		SELECT id, created_at
		FROM guilds
		WHERE id = $1`

	guild := &domain.Guild{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&guild.ID, &guild.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Debug("Guild not found", "guild_id", id)
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to query guild: %w", err)
	}

	return guild, nil
}

// Create registers a guild
func (r *GuildRepository) Create(ctx context.Context, guild *domain.Guild) error {
	if guild.CreatedAt.IsZero() {
		guild.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO guilds (id, created_at)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, guild.ID, guild.CreatedAt); err != nil {
		return fmt.Errorf("failed to create guild: %w", err)
	}

	r.logger.Debug("Guild registered", "guild_id", guild.ID)
	return nil
}

// Exists reports whether the guild has been configured
func (r *GuildRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM guilds WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check guild existence: %w", err)
	}
	return exists, nil
}
