package bot

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"warden/internal/guildconfig"
)

// respond sends the initial interaction response.
func (s *BotService) respond(interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}

	err := s.session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	})
	if err != nil {
		s.logger.Error("Failed to respond to interaction", "error", err)
	}
}

func (s *BotService) respondEphemeral(interaction *discordgo.InteractionCreate, content string) {
	s.respond(interaction, content, true)
}

// respondEmbed sends an embed as the interaction response.
func (s *BotService) respondEmbed(interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	err := s.session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	})
	if err != nil {
		s.logger.Error("Failed to respond to interaction", "error", err)
	}
}

// interactionUserID returns the invoking user's ID for guild and DM
// interactions alike.
func interactionUserID(interaction *discordgo.InteractionCreate) string {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User.ID
	}
	if interaction.User != nil {
		return interaction.User.ID
	}
	return ""
}

// subcommand unpacks a subcommand invocation into its name and an
// option lookup map.
func subcommand(interaction *discordgo.InteractionCreate) (string, map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	data := interaction.ApplicationCommandData()
	if len(data.Options) == 0 {
		return "", nil
	}

	sub := data.Options[0]
	options := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(sub.Options))
	for _, option := range sub.Options {
		options[option.Name] = option
	}
	return sub.Name, options
}

// commandOptions builds an option lookup map for a plain command.
func commandOptions(interaction *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	data := interaction.ApplicationCommandData()
	options := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(data.Options))
	for _, option := range data.Options {
		options[option.Name] = option
	}
	return options
}

func parseSnowflake(id string) (int64, error) {
	parsed, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed snowflake %q: %w", id, err)
	}
	return parsed, nil
}

// snowflakeTime extracts the creation time embedded in a Discord ID.
func snowflakeTime(id string) (time.Time, error) {
	parsed, err := parseSnowflake(id)
	if err != nil {
		return time.Time{}, err
	}
	const discordEpochMillis = 1420070400000
	return time.UnixMilli((parsed >> 22) + discordEpochMillis), nil
}

// discordTimestamp formats a time as Discord-flavored Markdown, e.g.
// <t:0:R> renders as "52 years ago".
func discordTimestamp(t time.Time, style byte) string {
	return fmt.Sprintf("<t:%d:%c>", t.Unix(), style)
}

// userMention renders a mention plus the raw ID for the audit trail.
func userMention(userID int64) string {
	return fmt.Sprintf("<@%d> (`%d`)", userID, userID)
}

// memberHasConfiguredPermission implements the configurable moderation
// gate: the member passes with the configured role or the configured
// permission flag. Administrators always pass.
func (s *BotService) memberHasConfiguredPermission(view *guildconfig.View, member *discordgo.Member, rolePath, permPath string) (bool, error) {
	if member.Permissions&discordgo.PermissionAdministrator != 0 {
		return true, nil
	}

	roleID, err := view.Snowflake(rolePath)
	if err != nil {
		return false, err
	}
	if roleID != "" {
		for _, role := range member.Roles {
			if role == roleID {
				return true, nil
			}
		}
	}

	flag, err := view.Permission(permPath)
	if err != nil {
		return false, err
	}
	if flag != 0 && member.Permissions&flag == flag {
		return true, nil
	}

	return false, nil
}

// botGuildPermissions computes the bot's guild-wide permissions by
// folding its role permissions together.
func (s *BotService) botGuildPermissions(guildID string) (int64, error) {
	member, err := s.session.State.Member(guildID, s.session.State.User.ID)
	if err != nil {
		member, err = s.session.GuildMember(guildID, s.session.State.User.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to fetch bot member: %w", err)
		}
	}

	roles, err := s.session.GuildRoles(guildID)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch guild roles: %w", err)
	}

	var permissions int64
	for _, role := range roles {
		// The @everyone role carries the guild's base permissions.
		if role.ID == guildID {
			permissions |= role.Permissions
			continue
		}
		for _, assigned := range member.Roles {
			if assigned == role.ID {
				permissions |= role.Permissions
				break
			}
		}
	}

	return permissions, nil
}

// sendDM tries to DM a user and reports whether it was delivered.
func (s *BotService) sendDM(userID, content string) bool {
	channel, err := s.session.UserChannelCreate(userID)
	if err != nil {
		return false
	}
	if _, err := s.session.ChannelMessageSend(channel.ID, content); err != nil {
		return false
	}
	return true
}
