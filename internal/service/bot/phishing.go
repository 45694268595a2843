package bot

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/bwmarrin/discordgo"

	"warden/internal/domain"
	"warden/internal/guildconfig"
	"warden/internal/service/ledger"
)

const phishingReactEmoji = "⚠️"

// onMessageCreate scans guild messages against the phishing blocklist
// and applies the configured response.
func (s *BotService) onMessageCreate(session *discordgo.Session, event *discordgo.MessageCreate) {
	if event.Author == nil || event.Author.Bot || event.GuildID == "" {
		return
	}
	if !s.phishing.Ready() {
		return
	}
	if len(s.phishing.ExtractDomains(event.Content)) == 0 {
		return
	}

	view, ok := s.guildViewForEvent(event.GuildID)
	if !ok {
		return
	}

	enabled, err := view.Bool("phishing.enabled")
	if err != nil {
		s.logger.Error("Failed to read phishing toggle", "error", err)
		return
	}
	if !enabled {
		return
	}

	blocked, err := s.phishing.FindBlocked(s.ctx, event.Content)
	if err != nil {
		s.logger.Error("Failed to check phishing blocklist", "error", err)
		return
	}
	if blocked == "" {
		return
	}

	logger := s.logger.With(
		"guild_id", event.GuildID,
		"user_id", event.Author.ID,
		"domain", blocked,
	)
	logger.Info("Blocked domain posted")

	bypassed, err := s.phishingBypassed(view, event.GuildID, event.Member)
	if err != nil {
		logger.Error("Failed to evaluate phishing bypass", "error", err)
	}
	if bypassed {
		// Trusted members keep their message; the reaction marks it as
		// a known bad link for everyone else.
		if err := session.MessageReactionAdd(event.ChannelID, event.ID, phishingReactEmoji); err != nil {
			logger.Error("Failed to mark bypassed message", "error", err)
		}
		return
	}

	if err := session.ChannelMessageDelete(event.ChannelID, event.ID); err != nil {
		logger.Error("Failed to delete phishing message", "error", err)
	}

	action, err := view.String("phishing.action")
	if err != nil {
		logger.Error("Failed to read phishing action", "error", err)
		action = "ignore"
	}

	dmSent := s.sendPhishingDM(logger, view, event.Author.ID, action)

	switch action {
	case "ban":
		s.punishPhisher(logger, event, domain.InfractionBan, dmSent)
	case "kick":
		s.punishPhisher(logger, event, domain.InfractionKick, dmSent)
	}

	s.sendLogMessage(logger, view, "logging.channels.moderation",
		"Phishing message removed",
		fmt.Sprintf("%s posted a blocked domain in <#%s>.", event.Author.Mention(), event.ChannelID),
		"colors.warning", event.Author,
		map[string]string{"domain": fmt.Sprintf("`%s`", blocked), "action": action})
}

// phishingBypassed checks the configured bypass permission, which lets
// e.g. moderators discuss a scam link without losing the message.
func (s *BotService) phishingBypassed(view *guildconfig.View, guildID string, member *discordgo.Member) (bool, error) {
	flag, err := view.Permission("phishing.bypass_permission")
	if err != nil {
		return false, err
	}
	if flag == 0 || member == nil {
		return false, nil
	}

	permissions := int64(0)
	for _, roleID := range member.Roles {
		role, err := s.session.State.Role(guildID, roleID)
		if err != nil {
			continue
		}
		permissions |= role.Permissions
	}
	if role, err := s.session.State.Role(guildID, guildID); err == nil {
		permissions |= role.Permissions
	}

	if permissions&discordgo.PermissionAdministrator != 0 {
		return true, nil
	}
	return permissions&flag != 0, nil
}

// sendPhishingDM expands the configured template and delivers it
// before any kick or ban cuts the shared-server DM channel. It reports
// whether the user actually received the message.
func (s *BotService) sendPhishingDM(logger *slog.Logger, view *guildconfig.View, userID, action string) bool {
	template, err := view.String("phishing.dm")
	if err != nil {
		logger.Error("Failed to read phishing DM template", "error", err)
		return false
	}
	if template == "" {
		return false
	}

	content := os.Expand(template, func(name string) string {
		switch name {
		case "user":
			return fmt.Sprintf("<@%s>", userID)
		case "action":
			return action
		case "LINK_PASSWORD":
			return "<https://www.google.com/search?q=how+to+change+discord+password>"
		case "LINK_2FA":
			return "<https://www.google.com/search?q=how+to+enable+discord+2fa>"
		}
		return ""
	})

	delivered := s.sendDM(userID, content)
	if !delivered {
		logger.Debug("Phishing DM not delivered", "user_id", userID)
	}
	return delivered
}

// punishPhisher records a ledger entry and applies the platform action
// with the bot itself as the moderator.
func (s *BotService) punishPhisher(
	logger *slog.Logger,
	event *discordgo.MessageCreate,
	infractionType domain.InfractionType,
	dmSent bool,
) {
	guildID, err := parseSnowflake(event.GuildID)
	if err != nil {
		logger.Error("Malformed guild ID", "error", err)
		return
	}
	userID, err := parseSnowflake(event.Author.ID)
	if err != nil {
		logger.Error("Malformed user ID", "error", err)
		return
	}
	botID, err := parseSnowflake(s.session.State.User.ID)
	if err != nil {
		logger.Error("Malformed bot user ID", "error", err)
		return
	}

	infraction, err := s.ledger.Apply(s.ctx, ledger.ApplyRequest{
		GuildID:     guildID,
		UserID:      userID,
		ModeratorID: botID,
		Type:        infractionType,
		Reason:      "Posted a phishing domain",
		DMSent:      &dmSent,
	})
	if err != nil {
		logger.Error("Failed to record phishing infraction", "error", err)
		return
	}

	switch infractionType {
	case domain.InfractionKick:
		s.ignoreNextLeave(event.Author.ID)
		err = s.session.GuildMemberDeleteWithReason(event.GuildID, event.Author.ID, "Posted a phishing domain")
	case domain.InfractionBan:
		s.ignoreNextLeave(event.Author.ID)
		err = s.session.GuildBanCreateWithReason(event.GuildID, event.Author.ID, "Posted a phishing domain", 0)
	}
	if err != nil {
		logger.Error("Failed to apply phishing action", "error", err, "infraction_id", infraction.ID)
		return
	}

	logger.Info("Phishing action applied",
		"action", domain.InfractionNames[infractionType], "infraction_id", infraction.ID)
}
