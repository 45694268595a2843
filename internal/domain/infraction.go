package domain

import "time"

// InfractionType identifies the kind of moderation action recorded.
type InfractionType string

const (
	InfractionNote    InfractionType = "note"
	InfractionWarning InfractionType = "warning"
	InfractionMute    InfractionType = "mute"
	InfractionKick    InfractionType = "kick"
	InfractionBan     InfractionType = "ban"
)

// InfractionsWithDurations are the kinds that require a duration.
var InfractionsWithDurations = map[InfractionType]bool{
	InfractionMute: true,
}

// UniqueInfractions are the kinds allowing at most one active record
// per (guild, user, type).
var UniqueInfractions = map[InfractionType]bool{
	InfractionMute: true,
	InfractionBan:  true,
}

// HiddenInfractions are moderator-only: no DM, ephemeral confirmation.
var HiddenInfractions = map[InfractionType]bool{
	InfractionNote: true,
}

// CancellableInfractions are the kinds that can be lifted early.
var CancellableInfractions = map[InfractionType]bool{
	InfractionMute: true,
	InfractionBan:  true,
}

// InfractionNames maps a kind to the word used in user-facing messages.
var InfractionNames = map[InfractionType]string{
	InfractionNote:    "note",
	InfractionWarning: "warn",
	InfractionMute:    "mute",
	InfractionKick:    "kick",
	InfractionBan:     "ban",
}

// Infraction is a recorded moderation action against a user.
type Infraction struct {
	ID          int64 // ledger-assigned, monotonically unique
	GuildID     int64
	UserID      int64
	ModeratorID int64

	CreatedAt time.Time
	Duration  *time.Duration // only set for duration-bearing kinds
	Reason    string
	Type      InfractionType
	Cancelled bool

	// DMSent is nil when no notification was attempted (hidden kinds).
	DMSent *bool
}

// ActiveAt reports whether the infraction is active at the given
// time: not cancelled and either open-ended or not yet expired.
func (i *Infraction) ActiveAt(now time.Time) bool {
	if i.Cancelled {
		return false
	}
	if i.Duration == nil {
		return true
	}
	return now.Before(i.CreatedAt.Add(*i.Duration))
}
