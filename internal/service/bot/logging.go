package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"warden/internal/domain"
	"warden/internal/guildconfig"
)

// Extra field keys rendered in a stable order; anything else comes
// after, in whatever order the map yields.
var logFieldOrder = []string{"reason", "moderator", "duration", "expires"}

// sendLogMessage posts an audit embed to the channel configured at
// channelPath. An unset channel silently disables that log category.
func (s *BotService) sendLogMessage(
	logger *slog.Logger,
	view *guildconfig.View,
	channelPath string,
	title string,
	description string,
	colorPath string,
	user *discordgo.User,
	extras map[string]string,
) {
	channelID, err := view.Snowflake(channelPath)
	if err != nil {
		logger.Error("Failed to resolve log channel", "error", err, "entry", channelPath)
		return
	}
	if channelID == "" {
		return
	}

	color, err := view.Int(colorPath)
	if err != nil {
		logger.Error("Failed to resolve embed color", "error", err, "entry", colorPath)
	}

	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       int(color),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if user != nil {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: user.AvatarURL("")}
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("%s (%s)", user.Username, user.ID),
		}
	}

	seen := make(map[string]bool, len(extras))
	addField := func(name string) {
		value, ok := extras[name]
		if !ok || seen[name] {
			return
		}
		seen[name] = true
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  titleCase(name),
			Value: value,
		})
	}
	for _, name := range logFieldOrder {
		addField(name)
	}
	for name := range extras {
		addField(name)
	}

	if _, err := s.session.ChannelMessageSendEmbed(channelID, embed); err != nil {
		logger.Error("Failed to send log message", "error", err, "channel_id", channelID)
	}
}

// logModerationEvent reports an applied or cancelled infraction to the
// moderation log channel.
func (s *BotService) logModerationEvent(
	logger *slog.Logger,
	view *guildconfig.View,
	title string,
	colorPath string,
	user *discordgo.User,
	extras map[string]string,
) {
	description := ""
	if user != nil {
		description = user.Mention()
	}
	s.sendLogMessage(logger, view, "logging.channels.moderation", title, description, colorPath, user, extras)
}

// guildViewForEvent loads a view for gateway events, where an
// unconfigured guild just means the event is skipped.
func (s *BotService) guildViewForEvent(guildID string) (*guildconfig.View, bool) {
	view, err := s.guildView(s.ctx, guildID)
	if err != nil {
		if !errors.Is(err, domain.ErrGuildNotConfigured) {
			s.logger.Error("Failed to load guild configuration for event", "error", err, "guild_id", guildID)
		}
		return nil, false
	}
	return view, true
}

func (s *BotService) onGuildMemberAdd(session *discordgo.Session, event *discordgo.GuildMemberAdd) {
	view, ok := s.guildViewForEvent(event.GuildID)
	if !ok {
		return
	}

	// Guilds without membership screening never fire the pending
	// transition, so the join is the only chance to hand out the role.
	if !event.Pending {
		s.assignAutoRole(view, event.GuildID, event.User.ID)
	}

	extras := map[string]string{}
	if created, err := snowflakeTime(event.User.ID); err == nil {
		extras["account created"] = discordTimestamp(created, 'R')
	}
	s.sendLogMessage(s.logger, view, "logging.channels.joins",
		"Member joined", event.User.Mention(), "colors.success", event.User, extras)
}

func (s *BotService) onGuildMemberRemove(session *discordgo.Session, event *discordgo.GuildMemberRemove) {
	// Kicks and bans already produce a moderation log entry.
	if s.leaveIgnored(event.User.ID) {
		return
	}

	view, ok := s.guildViewForEvent(event.GuildID)
	if !ok {
		return
	}

	extras := map[string]string{}
	if len(event.Roles) > 0 {
		mentions := make([]string, 0, len(event.Roles))
		for _, roleID := range event.Roles {
			mentions = append(mentions, fmt.Sprintf("<@&%s>", roleID))
		}
		extras["roles"] = strings.Join(mentions, " ")
	}
	if !event.JoinedAt.IsZero() {
		extras["joined"] = fmt.Sprintf("<t:%d:R>", event.JoinedAt.Unix())
	}

	s.sendLogMessage(s.logger, view, "logging.channels.joins",
		"Member left", event.User.Mention(), "colors.warning", event.User, extras)
}

func (s *BotService) onGuildMemberUpdate(session *discordgo.Session, event *discordgo.GuildMemberUpdate) {
	view, ok := s.guildViewForEvent(event.GuildID)
	if !ok {
		return
	}

	s.applyAutoRole(view, event)

	if event.BeforeUpdate == nil || event.BeforeUpdate.Nick == event.Nick {
		return
	}

	extras := map[string]string{
		"before": orNone(event.BeforeUpdate.Nick),
		"after":  orNone(event.Nick),
	}
	s.sendLogMessage(s.logger, view, "logging.channels.members",
		"Nickname changed", event.User.Mention(), "colors.info", event.User, extras)
}

func (s *BotService) onMessageDelete(session *discordgo.Session, event *discordgo.MessageDelete) {
	if event.GuildID == "" {
		return
	}

	view, ok := s.guildViewForEvent(event.GuildID)
	if !ok {
		return
	}

	// The cached copy carries author and content; without it the best
	// we can report is that something vanished.
	cached := event.BeforeDelete
	if cached != nil && cached.Author != nil && cached.Author.Bot {
		return
	}

	var user *discordgo.User
	description := fmt.Sprintf("Message `%s` deleted in <#%s>.", event.ID, event.ChannelID)
	extras := map[string]string{}
	if cached != nil && cached.Author != nil {
		user = cached.Author
		description = fmt.Sprintf("Message by %s deleted in <#%s>.", cached.Author.Mention(), event.ChannelID)
		extras["content"] = truncate(orNone(cached.Content), 1024)
	}

	s.sendLogMessage(s.logger, view, "logging.channels.messages",
		"Message deleted", description, "colors.warning", user, extras)
}

func (s *BotService) onMessageUpdate(session *discordgo.Session, event *discordgo.MessageUpdate) {
	if event.GuildID == "" || event.Author == nil || event.Author.Bot {
		return
	}

	view, ok := s.guildViewForEvent(event.GuildID)
	if !ok {
		return
	}

	enabled, err := view.Bool("logging.log.messages")
	if err != nil {
		s.logger.Error("Failed to read message log toggle", "error", err)
		return
	}
	if !enabled {
		return
	}

	extras := map[string]string{}
	if event.BeforeUpdate != nil {
		extras["before"] = truncate(orNone(event.BeforeUpdate.Content), 1024)
	}
	extras["after"] = truncate(orNone(event.Content), 1024)

	s.sendLogMessage(s.logger, view, "logging.channels.messages",
		"Message edited",
		fmt.Sprintf("Message by %s edited in <#%s>.", event.Author.Mention(), event.ChannelID),
		"colors.info", event.Author, extras)
}

// truncate shortens text to at most limit bytes without splitting a
// UTF-8 sequence, ending in an ellipsis when anything was cut.
func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}

	cut := limit - len("…")
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "…"
}
