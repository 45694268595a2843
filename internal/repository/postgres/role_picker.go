package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"warden/internal/domain"
)

// RolePickerRepository implements the domain.RolePickerRepository
// interface using PostgreSQL
type RolePickerRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRolePickerRepository creates a new PostgreSQL role picker repository
func NewRolePickerRepository(db *sql.DB, logger *slog.Logger) *RolePickerRepository {
	return &RolePickerRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a picker and fills in its assigned ID
func (r *RolePickerRepository) Create(ctx context.Context, picker *domain.RolePicker) error {
	query := `
		INSERT INTO role_pickers (guild_id, channel_id, title)
		VALUES ($1, $2, $3)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		picker.GuildID, picker.ChannelID, picker.Title).Scan(&picker.ID)
	if err != nil {
		return fmt.Errorf("failed to insert role picker: %w", err)
	}

	r.logger.Debug("Role picker created", "picker_id", picker.ID, "guild_id", picker.GuildID)
	return nil
}

// GetByID retrieves a picker with its entries
func (r *RolePickerRepository) GetByID(ctx context.Context, id int64) (*domain.RolePicker, error) {
	query := `
		SELECT id, guild_id, channel_id, COALESCE(message_id, 0), title
		FROM role_pickers
		WHERE id = $1`

	picker := &domain.RolePicker{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&picker.ID, &picker.GuildID, &picker.ChannelID, &picker.MessageID, &picker.Title)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to query role picker: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT id, picker_id, role_id, message FROM role_picker_entries WHERE picker_id = $1 ORDER BY id", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query role picker entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		entry := &domain.RolePickerEntry{}
		if err := rows.Scan(&entry.ID, &entry.PickerID, &entry.RoleID, &entry.Message); err != nil {
			return nil, fmt.Errorf("failed to scan role picker entry: %w", err)
		}
		picker.Entries = append(picker.Entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate role picker entries: %w", err)
	}

	return picker, nil
}

// SetMessageID records the Discord message the picker was posted as
func (r *RolePickerRepository) SetMessageID(ctx context.Context, id, messageID int64) error {
	if _, err := r.db.ExecContext(ctx,
		"UPDATE role_pickers SET message_id = $2 WHERE id = $1", id, messageID); err != nil {
		return fmt.Errorf("failed to set role picker message: %w", err)
	}
	return nil
}

// Delete removes a picker and its entries
func (r *RolePickerRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM role_pickers WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete role picker: %w", err)
	}
	return nil
}

// AddEntry appends a role to a picker
func (r *RolePickerRepository) AddEntry(ctx context.Context, entry *domain.RolePickerEntry) error {
	query := `
		INSERT INTO role_picker_entries (picker_id, role_id, message)
		VALUES ($1, $2, $3)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		entry.PickerID, entry.RoleID, entry.Message).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to insert role picker entry: %w", err)
	}
	return nil
}

// RemoveEntry removes a role from a picker and returns rows removed
func (r *RolePickerRepository) RemoveEntry(ctx context.Context, pickerID, roleID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM role_picker_entries WHERE picker_id = $1 AND role_id = $2", pickerID, roleID)
	if err != nil {
		return 0, fmt.Errorf("failed to remove role picker entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count removed entries: %w", err)
	}
	return affected, nil
}
