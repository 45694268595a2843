package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"warden/internal/domain"
)

// InfractionRepository implements the domain.InfractionRepository
// interface using PostgreSQL
type InfractionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewInfractionRepository creates a new PostgreSQL infraction repository
func NewInfractionRepository(db *sql.DB, logger *slog.Logger) *InfractionRepository {
	return &InfractionRepository{
		db:     db,
		logger: logger,
	}
}

const infractionColumns = `id, guild_id, user_id, moderator_id, created_at, duration_seconds, reason, type, cancelled, dm_sent`

// Create inserts a new infraction and fills in its assigned ID
func (r *InfractionRepository) Create(ctx context.Context, infraction *domain.Infraction) error {
	query := `
		INSERT INTO infractions
			(guild_id, user_id, moderator_id, created_at, duration_seconds, reason, type, cancelled, dm_sent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	var durationSeconds sql.NullInt64
	if infraction.Duration != nil {
		durationSeconds = sql.NullInt64{Int64: int64(infraction.Duration.Seconds()), Valid: true}
	}

	var reason sql.NullString
	if infraction.Reason != "" {
		reason = sql.NullString{String: infraction.Reason, Valid: true}
	}

	var dmSent sql.NullBool
	if infraction.DMSent != nil {
		dmSent = sql.NullBool{Bool: *infraction.DMSent, Valid: true}
	}

	err := r.db.QueryRowContext(ctx, query,
		infraction.GuildID,
		infraction.UserID,
		infraction.ModeratorID,
		infraction.CreatedAt,
		durationSeconds,
		reason,
		string(infraction.Type),
		infraction.Cancelled,
		dmSent,
	).Scan(&infraction.ID)
	if err != nil {
		return fmt.Errorf("failed to insert infraction: %w", err)
	}

	r.logger.Debug("Infraction created",
		"infraction_id", infraction.ID,
		"guild_id", infraction.GuildID,
		"user_id", infraction.UserID,
		"type", infraction.Type,
	)
	return nil
}

// GetByID retrieves an infraction by its ledger ID
func (r *InfractionRepository) GetByID(ctx context.Context, id int64) (*domain.Infraction, error) {
	query := `SELECT ` + infractionColumns + ` FROM infractions WHERE id = $1`

	infraction, err := scanInfraction(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Debug("Infraction not found", "infraction_id", id)
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to query infraction: %w", err)
	}

	return infraction, nil
}

// ListByUserAndType returns all infractions for a (guild, user, type)
// tuple, oldest first
func (r *InfractionRepository) ListByUserAndType(ctx context.Context, guildID, userID int64, infractionType domain.InfractionType) ([]*domain.Infraction, error) {
	query := `
		SELECT ` + infractionColumns + `
		FROM infractions
		WHERE guild_id = $1 AND user_id = $2 AND type = $3
		ORDER BY id`

	return r.list(ctx, query, guildID, userID, string(infractionType))
}

// ListByUser returns all infractions for a user in a guild, newest first
func (r *InfractionRepository) ListByUser(ctx context.Context, guildID, userID int64) ([]*domain.Infraction, error) {
	query := `
		SELECT ` + infractionColumns + `
		FROM infractions
		WHERE guild_id = $1 AND user_id = $2
		ORDER BY id DESC`

	return r.list(ctx, query, guildID, userID)
}

// MarkCancelled sets cancelled=true on an infraction
func (r *InfractionRepository) MarkCancelled(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE infractions SET cancelled = TRUE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to cancel infraction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count cancelled infractions: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	r.logger.Debug("Infraction cancelled", "infraction_id", id)
	return nil
}

func (r *InfractionRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Infraction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query infractions: %w", err)
	}
	defer rows.Close()

	var infractions []*domain.Infraction
	for rows.Next() {
		infraction, err := scanInfraction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan infraction: %w", err)
		}
		infractions = append(infractions, infraction)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate infractions: %w", err)
	}

	return infractions, nil
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanInfraction(row scanner) (*domain.Infraction, error) {
	infraction := &domain.Infraction{}
	var durationSeconds sql.NullInt64
	var reason sql.NullString
	var infractionType string
	var dmSent sql.NullBool

	err := row.Scan(
		&infraction.ID,
		&infraction.GuildID,
		&infraction.UserID,
		&infraction.ModeratorID,
		&infraction.CreatedAt,
		&durationSeconds,
		&reason,
		&infractionType,
		&infraction.Cancelled,
		&dmSent,
	)
	if err != nil {
		return nil, err
	}

	if durationSeconds.Valid {
		duration := time.Duration(durationSeconds.Int64) * time.Second
		infraction.Duration = &duration
	}
	if reason.Valid {
		infraction.Reason = reason.String
	}
	infraction.Type = domain.InfractionType(infractionType)
	if dmSent.Valid {
		infraction.DMSent = &dmSent.Bool
	}

	return infraction, nil
}
