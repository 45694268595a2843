package domain

import (
	"context"
	"time"
)

// GuildRepository defines the interface for guild registration data
type GuildRepository interface {
	// GetByID retrieves a guild by its Discord ID
	GetByID(ctx context.Context, id int64) (*Guild, error)

	// Create registers a guild
	Create(ctx context.Context, guild *Guild) error

	// Exists reports whether the guild has been configured
	Exists(ctx context.Context, id int64) (bool, error)
}

// ConfigRepository is the override store: per-guild raw string values
// keyed by dotted configuration path.
type ConfigRepository interface {
	// GetOverrides returns every override of a guild as a key→value map
	GetOverrides(ctx context.Context, guildID int64) (map[string]string, error)

	// Upsert inserts or replaces a single override
	Upsert(ctx context.Context, guildID int64, key, value string) error

	// Delete removes an override and returns the number of rows removed
	Delete(ctx context.Context, guildID int64, key string) (int64, error)

	// DeleteAll clears every override of a guild
	DeleteAll(ctx context.Context, guildID int64) (int64, error)
}

// InfractionRepository defines the interface for the infraction ledger
type InfractionRepository interface {
	// Create inserts a new infraction and fills in its assigned ID
	Create(ctx context.Context, infraction *Infraction) error

	// GetByID retrieves an infraction by its ledger ID
	GetByID(ctx context.Context, id int64) (*Infraction, error)

	// ListByUserAndType returns all infractions for a (guild, user, type)
	// tuple, oldest first
	ListByUserAndType(ctx context.Context, guildID, userID int64, infractionType InfractionType) ([]*Infraction, error)

	// ListByUser returns all infractions for a user in a guild, newest first
	ListByUser(ctx context.Context, guildID, userID int64) ([]*Infraction, error)

	// MarkCancelled sets cancelled=true on an infraction
	MarkCancelled(ctx context.Context, id int64) error
}

// RolePickerRepository defines the interface for role picker persistence
type RolePickerRepository interface {
	// Create inserts a picker and fills in its assigned ID
	Create(ctx context.Context, picker *RolePicker) error

	// GetByID retrieves a picker with its entries
	GetByID(ctx context.Context, id int64) (*RolePicker, error)

	// SetMessageID records the Discord message the picker was posted as
	SetMessageID(ctx context.Context, id, messageID int64) error

	// Delete removes a picker and its entries
	Delete(ctx context.Context, id int64) error

	// AddEntry appends a role to a picker
	AddEntry(ctx context.Context, entry *RolePickerEntry) error

	// RemoveEntry removes a role from a picker and returns rows removed
	RemoveEntry(ctx context.Context, pickerID, roleID int64) (int64, error)
}

// BlocklistRepository is the shared phishing domain set. The live feed
// mutates it while message scanning checks membership.
type BlocklistRepository interface {
	// Add inserts domains into the set
	Add(ctx context.Context, domains ...string) error

	// Remove deletes domains from the set
	Remove(ctx context.Context, domains ...string) error

	// Contains reports whether a domain is blocklisted
	Contains(ctx context.Context, domain string) (bool, error)

	// Replace swaps the whole set for the given domains
	Replace(ctx context.Context, domains []string) error

	// Count returns the size of the set
	Count(ctx context.Context) (int64, error)
}

// Clock abstracts the current time so active-status checks are
// testable; production code passes time.Now.
type Clock func() time.Time
