package domain

import (
	"errors"
	"time"
)

// ErrGuildNotConfigured is returned when a guild never ran /configure.
var ErrGuildNotConfigured = errors.New("guild is not configured")

// Guild is a Discord guild that ran /configure and can use the bot.
type Guild struct {
	ID        int64 // Discord guild snowflake
	CreatedAt time.Time
}

// ConfigEntry is a single per-guild configuration override. A key
// starts absent (the schema default applies), becomes present on set
// and absent again on reset.
type ConfigEntry struct {
	GuildID int64
	Key     string
	Value   string
}
