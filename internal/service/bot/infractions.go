package bot

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"warden/internal/domain"
	"warden/internal/guildconfig"
	"warden/internal/pkg/durations"
)

const (
	redCircle    = "\U0001F534"
	greenCircle  = "\U0001F7E2"
	yellowCircle = "\U0001F7E1"
)

func (s *BotService) handleInfraction(logger *slog.Logger, interaction *discordgo.InteractionCreate) {
	view, err := s.guildView(s.ctx, interaction.GuildID)
	if err != nil {
		logger.Error("Failed to load guild configuration", "error", err)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}

	allowed, err := s.memberHasConfiguredPermission(view, interaction.Member, "moderation.perms.role", "moderation.perms.discord")
	if err != nil {
		logger.Error("Failed to evaluate moderation permission", "error", err)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}
	if !allowed {
		s.respondEphemeral(interaction, ":x: You are not allowed to look up infractions.")
		return
	}

	name, options := subcommand(interaction)
	switch name {
	case "get":
		s.infractionGet(logger, interaction, view, options)
	case "list":
		s.infractionList(logger, interaction, view, options)
	default:
		s.respondEphemeral(interaction, ":x: Unknown subcommand.")
	}
}

func (s *BotService) infractionGet(
	logger *slog.Logger,
	interaction *discordgo.InteractionCreate,
	view *guildconfig.View,
	options map[string]*discordgo.ApplicationCommandInteractionDataOption,
) {
	id := options["id"].IntValue()
	infraction, err := s.ledger.Get(s.ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.respondEphemeral(interaction, fmt.Sprintf(":x: No infraction found with that ID (%d).", id))
			return
		}
		logger.Error("Failed to fetch infraction", "error", err, "infraction_id", id)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}

	if infraction.GuildID != view.GuildID() {
		s.respondEphemeral(interaction, ":x: That infraction doesn't belong to this server.")
		return
	}

	color, err := view.Int("colors.info")
	if err != nil {
		logger.Error("Failed to read embed color", "error", err)
	}

	s.respondEmbed(interaction, &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Infraction %d", infraction.ID),
		Description: s.formatInfraction(infraction, false),
		Color:       int(color),
	})
}

// infractionListLimit caps the embed at the newest entries so the
// description stays under Discord's 4096 character limit.
const infractionListLimit = 10

func (s *BotService) infractionList(
	logger *slog.Logger,
	interaction *discordgo.InteractionCreate,
	view *guildconfig.View,
	options map[string]*discordgo.ApplicationCommandInteractionDataOption,
) {
	user := options["user"].UserValue(s.session)
	userID, err := parseSnowflake(user.ID)
	if err != nil {
		logger.Error("Malformed user ID", "error", err)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}

	infractions, err := s.ledger.History(s.ctx, view.GuildID(), userID)
	if err != nil {
		logger.Error("Failed to fetch infraction history", "error", err, "user_id", userID)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}

	if len(infractions) == 0 {
		s.respondEphemeral(interaction, fmt.Sprintf("%s has no infractions.", user.Mention()))
		return
	}

	total := len(infractions)
	if len(infractions) > infractionListLimit {
		infractions = infractions[:infractionListLimit]
	}

	blocks := make([]string, 0, len(infractions))
	for _, infraction := range infractions {
		blocks = append(blocks, s.formatInfraction(infraction, true))
	}

	title := fmt.Sprintf("Infractions of %s (%d)", user.Username, total)
	if total > len(infractions) {
		title = fmt.Sprintf("Infractions of %s (newest %d of %d)", user.Username, len(infractions), total)
	}

	color, err := view.Int("colors.info")
	if err != nil {
		logger.Error("Failed to read embed color", "error", err)
	}

	s.respondEmbed(interaction, &discordgo.MessageEmbed{
		Title:       title,
		Description: strings.Join(blocks, "\n\n"),
		Color:       int(color),
	})
}

// formatInfraction renders an infraction into a human readable block.
func (s *BotService) formatInfraction(infraction *domain.Infraction, includeID bool) string {
	var emoji string
	if domain.CancellableInfractions[infraction.Type] {
		if infraction.ActiveAt(time.Now()) {
			emoji = greenCircle
		} else {
			emoji = redCircle
		}
	} else {
		emoji = yellowCircle
	}

	var b strings.Builder
	if includeID {
		fmt.Fprintf(&b, "%s **%s** (`%d`)\n", emoji, titleCase(domain.InfractionNames[infraction.Type]), infraction.ID)
	} else {
		fmt.Fprintf(&b, "%s **%s**\n", emoji, titleCase(domain.InfractionNames[infraction.Type]))
	}

	fmt.Fprintf(&b, "**Reason**: %s\n", orNone(infraction.Reason))
	fmt.Fprintf(&b, "**User**: %s\n", userMention(infraction.UserID))
	fmt.Fprintf(&b, "**Moderator**: %s\n", userMention(infraction.ModeratorID))
	fmt.Fprintf(&b, "**Created at**: %s\n", discordTimestamp(infraction.CreatedAt, 'f'))
	if infraction.Duration != nil {
		fmt.Fprintf(&b, "**Duration**: %s\n", durations.Humanize(*infraction.Duration))
	}
	if infraction.DMSent != nil {
		fmt.Fprintf(&b, "**DM sent**: %t", *infraction.DMSent)
	} else {
		b.WriteString("**DM sent**: n/a")
	}
	if infraction.Cancelled {
		b.WriteString("\n*Cancelled early*")
	}

	return b.String()
}

func orNone(text string) string {
	if text == "" {
		return "None"
	}
	return text
}
