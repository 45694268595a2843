package bot

import (
	"strings"
	"testing"
	"time"

	"warden/internal/domain"
)

func TestFormatInfraction(t *testing.T) {
	service := &BotService{}
	duration := time.Hour
	dmSent := true
	infraction := &domain.Infraction{
		ID:          42,
		GuildID:     1000,
		UserID:      555,
		ModeratorID: 666,
		CreatedAt:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Duration:    &duration,
		Reason:      "spamming",
		Type:        domain.InfractionMute,
		Cancelled:   true,
		DMSent:      &dmSent,
	}

	withID := service.formatInfraction(infraction, true)
	for _, want := range []string{
		"(`42`)",
		"**Mute**",
		"**Reason**: spamming",
		"<@555>",
		"<@666>",
		"**Duration**: 1 hour",
		"**DM sent**: true",
		"*Cancelled early*",
	} {
		if !strings.Contains(withID, want) {
			t.Errorf("formatInfraction(includeID) missing %q in:\n%s", want, withID)
		}
	}

	withoutID := service.formatInfraction(infraction, false)
	if strings.Contains(withoutID, "`42`") {
		t.Errorf("formatInfraction() leaked the ID:\n%s", withoutID)
	}
}

func TestFormatInfractionStatus(t *testing.T) {
	service := &BotService{}

	tests := []struct {
		name       string
		infraction *domain.Infraction
		emoji      string
	}{
		{
			name: "active ban",
			infraction: &domain.Infraction{
				CreatedAt: time.Now(),
				Type:      domain.InfractionBan,
			},
			emoji: greenCircle,
		},
		{
			name: "cancelled mute",
			infraction: &domain.Infraction{
				CreatedAt: time.Now(),
				Type:      domain.InfractionMute,
				Cancelled: true,
			},
			emoji: redCircle,
		},
		{
			name: "note",
			infraction: &domain.Infraction{
				CreatedAt: time.Now(),
				Type:      domain.InfractionNote,
			},
			emoji: yellowCircle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := service.formatInfraction(tt.infraction, true)
			if !strings.HasPrefix(got, tt.emoji) {
				t.Errorf("formatInfraction() = %q, want prefix %q", got, tt.emoji)
			}
		})
	}
}
