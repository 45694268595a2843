package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"warden/internal/domain"
	"warden/internal/guildconfig"
	"warden/internal/pkg/durations"
	"warden/internal/service/ledger"
)

const (
	emojiApplied   = "\U0001F528" // hammer
	emojiCancelled = "\U0001F6E0" // hammer and wrench
	emojiDMSuccess = "\U0001F4E9" // envelope with arrow
)

// maxTimeoutDuration is a limitation of the Discord timeout API.
const maxTimeoutDuration = 28 * 24 * time.Hour

func (s *BotService) handleNote(logger *slog.Logger, interaction *discordgo.InteractionCreate) {
	options := commandOptions(interaction)
	user := options["user"].UserValue(s.session)
	s.infract(logger, interaction, domain.InfractionNote, user, options["message"].StringValue(), nil)
}

func (s *BotService) handleWarn(logger *slog.Logger, interaction *discordgo.InteractionCreate) {
	options := commandOptions(interaction)
	user := options["user"].UserValue(s.session)
	s.infract(logger, interaction, domain.InfractionWarning, user, options["reason"].StringValue(), nil)
}

func (s *BotService) handleMute(logger *slog.Logger, interaction *discordgo.InteractionCreate) {
	options := commandOptions(interaction)
	user := options["user"].UserValue(s.session)

	duration, err := durations.Parse(options["duration"].StringValue())
	if err != nil {
		s.respondEphemeral(interaction, fmt.Sprintf(":x: Invalid duration: %s.", options["duration"].StringValue()))
		return
	}

	reason := ""
	if option, ok := options["reason"]; ok {
		reason = option.StringValue()
	}

	s.infract(logger, interaction, domain.InfractionMute, user, reason, &duration)
}

func (s *BotService) handleKick(logger *slog.Logger, interaction *discordgo.InteractionCreate) {
	options := commandOptions(interaction)
	user := options["user"].UserValue(s.session)

	reason := ""
	if option, ok := options["reason"]; ok {
		reason = option.StringValue()
	}

	s.infract(logger, interaction, domain.InfractionKick, user, reason, nil)
}

func (s *BotService) handleBan(logger *slog.Logger, interaction *discordgo.InteractionCreate) {
	options := commandOptions(interaction)
	user := options["user"].UserValue(s.session)

	reason := ""
	if option, ok := options["reason"]; ok {
		reason = option.StringValue()
	}

	s.infract(logger, interaction, domain.InfractionBan, user, reason, nil)
}

func (s *BotService) handleUnmute(logger *slog.Logger, interaction *discordgo.InteractionCreate) {
	options := commandOptions(interaction)
	user := options["user"].UserValue(s.session)
	s.cancelInfraction(logger, interaction, domain.InfractionMute, user)
}

func (s *BotService) handleUnban(logger *slog.Logger, interaction *discordgo.InteractionCreate) {
	options := commandOptions(interaction)
	user := options["user"].UserValue(s.session)
	s.cancelInfraction(logger, interaction, domain.InfractionBan, user)
}

// moderationGate loads the view and enforces the configured moderator
// permission. A nil view means the interaction was already answered.
func (s *BotService) moderationGate(logger *slog.Logger, interaction *discordgo.InteractionCreate) *guildconfig.View {
	view, err := s.guildView(s.ctx, interaction.GuildID)
	if err != nil {
		logger.Error("Failed to load guild configuration", "error", err)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return nil
	}

	allowed, err := s.memberHasConfiguredPermission(view, interaction.Member, "moderation.perms.role", "moderation.perms.discord")
	if err != nil {
		logger.Error("Failed to evaluate moderation permission", "error", err)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return nil
	}
	if !allowed {
		s.respondEphemeral(interaction, ":x: You are not allowed to use moderation commands.")
		return nil
	}

	return view
}

// infract runs the full moderation pipeline: permission gate, early
// rejection, subject DM, platform action, ledger record, announcement
// and audit log entry.
func (s *BotService) infract(logger *slog.Logger, interaction *discordgo.InteractionCreate, infractionType domain.InfractionType, user *discordgo.User, reason string, duration *time.Duration) {
	view := s.moderationGate(logger, interaction)
	if view == nil {
		return
	}

	guildID := view.GuildID()
	userID, err := parseSnowflake(user.ID)
	if err != nil {
		logger.Error("Malformed user id", "error", err)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}
	moderatorID, err := parseSnowflake(interactionUserID(interaction))
	if err != nil {
		logger.Error("Malformed moderator id", "error", err)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}

	request := ledger.ApplyRequest{
		GuildID:     guildID,
		UserID:      userID,
		ModeratorID: moderatorID,
		Type:        infractionType,
		Reason:      reason,
		Duration:    duration,
	}

	// Reject before we DM anyone or touch the platform.
	if err := s.checkApply(logger, interaction, request); err != nil {
		return
	}

	hidden := domain.HiddenInfractions[infractionType]

	var dmSent *bool
	if !hidden {
		// Check early whether the bot can apply the infraction at all,
		// so the subject is not notified about an action that then
		// fails.
		if ok := s.precheckBotPermission(logger, interaction, infractionType); !ok {
			return
		}

		if infractionType == domain.InfractionMute && *duration > maxTimeoutDuration {
			s.respondEphemeral(interaction, fmt.Sprintf(
				":x: Mute duration cannot exceed %d days due to Discord API limitations.",
				int(maxTimeoutDuration.Hours()/24)))
			return
		}

		sent := s.sendDM(user.ID, s.infractionDM(interaction, view, infractionType, reason, duration))
		dmSent = &sent
	}
	request.DMSent = dmSent

	if !s.applyPlatformAction(logger, interaction, infractionType, user, reason, duration) {
		return
	}

	infraction, err := s.ledger.Apply(s.ctx, request)
	if err != nil {
		// The early check passed, so anything here besides a lost race
		// is a storage failure.
		var active *ledger.ActiveInfractionError
		if errors.As(err, &active) {
			s.respondEphemeral(interaction, fmt.Sprintf(
				":x: That user already has an active infraction. See #%d.", active.ExistingID))
			return
		}
		logger.Error("Failed to record infraction", "error", err)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}

	// Announce the action.
	emojiText := ""
	if !hidden && dmSent != nil && *dmSent {
		emojiText = emojiDMSuccess + " "
	}
	durationText := ""
	if duration != nil {
		durationText = " until " + discordTimestamp(infraction.CreatedAt.Add(*duration), 'f')
	}
	reasonText := ""
	if reason != "" {
		reasonText = ": " + reason
	}

	s.respond(interaction, fmt.Sprintf("%s%s Applied %s to %s%s%s (#%d).",
		emojiText, emojiApplied, domain.InfractionNames[infractionType], user.Mention(),
		durationText, reasonText, infraction.ID), hidden)

	extras := map[string]string{}
	if duration != nil {
		extras["duration"] = durations.Humanize(*duration)
		extras["expires"] = discordTimestamp(infraction.CreatedAt.Add(*duration), 'f')
	}
	if reason != "" {
		extras["reason"] = reason
	}
	extras["moderator"] = userMention(moderatorID)

	s.logModerationEvent(logger, view,
		fmt.Sprintf("%s applied", titleCase(domain.InfractionNames[infractionType])),
		"colors.warning", user, extras)
}

// cancelInfraction lifts an active mute or ban.
func (s *BotService) cancelInfraction(logger *slog.Logger, interaction *discordgo.InteractionCreate, infractionType domain.InfractionType, user *discordgo.User) {
	view := s.moderationGate(logger, interaction)
	if view == nil {
		return
	}

	userID, err := parseSnowflake(user.ID)
	if err != nil {
		logger.Error("Malformed user id", "error", err)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}
	moderatorID, err := parseSnowflake(interactionUserID(interaction))
	if err != nil {
		logger.Error("Malformed moderator id", "error", err)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}

	// Undo the platform action first; cancelling the record for a user
	// still muted on Discord would be a lie.
	var actionErr error
	switch infractionType {
	case domain.InfractionMute:
		actionErr = s.session.GuildMemberTimeout(interaction.GuildID, user.ID, nil)
	case domain.InfractionBan:
		actionErr = s.session.GuildBanDelete(interaction.GuildID, user.ID)
	}
	if actionErr != nil {
		logger.Warn("Failed to lift platform action", "error", actionErr, "type", infractionType)
		s.respondEphemeral(interaction, ":x: The bot doesn't have the permission to cancel this infraction.")
		return
	}

	infraction, err := s.ledger.Cancel(s.ctx, view.GuildID(), userID, infractionType)
	if err != nil {
		var noActive *ledger.NoActiveInfractionError
		if errors.As(err, &noActive) {
			s.respondEphemeral(interaction, fmt.Sprintf(
				":x: The user %s does not have an active infraction.", user.Mention()))
			return
		}
		logger.Error("Failed to cancel infraction", "error", err)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}

	dmSent := s.sendDM(user.ID, fmt.Sprintf("Your %s in this server has been cancelled.",
		domain.InfractionNames[infractionType]))

	emojiText := ""
	if dmSent {
		emojiText = emojiDMSuccess + " "
	}
	s.respond(interaction, fmt.Sprintf("%s%s %s cancelled for %s (#%d).",
		emojiText, emojiCancelled, titleCase(domain.InfractionNames[infractionType]),
		user.Mention(), infraction.ID), false)

	s.logModerationEvent(logger, view,
		fmt.Sprintf("%s cancelled", titleCase(domain.InfractionNames[infractionType])),
		"colors.success", user, map[string]string{"moderator": userMention(moderatorID)})
}

func (s *BotService) checkApply(logger *slog.Logger, interaction *discordgo.InteractionCreate, request ledger.ApplyRequest) error {
	err := s.ledger.CheckApply(s.ctx, request)
	if err == nil {
		return nil
	}

	var active *ledger.ActiveInfractionError
	var invalidDuration *ledger.InvalidDurationError
	switch {
	case errors.As(err, &active):
		s.respondEphemeral(interaction, fmt.Sprintf(
			":x: That user already has an active infraction. See #%d.", active.ExistingID))
	case errors.As(err, &invalidDuration):
		s.respondEphemeral(interaction, ":x: "+err.Error()+".")
	default:
		logger.Error("Failed to validate infraction", "error", err)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
	}
	return err
}

// precheckBotPermission verifies the bot itself holds the permission
// the infraction needs.
func (s *BotService) precheckBotPermission(logger *slog.Logger, interaction *discordgo.InteractionCreate, infractionType domain.InfractionType) bool {
	var needed int64
	switch infractionType {
	case domain.InfractionMute:
		needed = discordgo.PermissionModerateMembers
	case domain.InfractionKick:
		needed = discordgo.PermissionKickMembers
	case domain.InfractionBan:
		needed = discordgo.PermissionBanMembers
	default:
		return true
	}

	permissions, err := s.botGuildPermissions(interaction.GuildID)
	if err != nil {
		logger.Warn("Failed to compute bot permissions", "error", err)
		// Fall through to the action itself, which reports Forbidden.
		return true
	}

	if permissions&discordgo.PermissionAdministrator != 0 || permissions&needed != 0 {
		return true
	}

	s.respondEphemeral(interaction, ":x: The bot doesn't have the permission to apply this infraction.")
	return false
}

func (s *BotService) applyPlatformAction(logger *slog.Logger, interaction *discordgo.InteractionCreate, infractionType domain.InfractionType, user *discordgo.User, reason string, duration *time.Duration) bool {
	var err error
	switch infractionType {
	case domain.InfractionNote, domain.InfractionWarning:
		// Ledger-only kinds.
	case domain.InfractionMute:
		until := time.Now().Add(*duration)
		err = s.session.GuildMemberTimeout(interaction.GuildID, user.ID, &until)
	case domain.InfractionKick:
		s.ignoreNextLeave(user.ID)
		err = s.session.GuildMemberDeleteWithReason(interaction.GuildID, user.ID, reason)
	case domain.InfractionBan:
		s.ignoreNextLeave(user.ID)
		err = s.session.GuildBanCreateWithReason(interaction.GuildID, user.ID, reason, 0)
	}

	if err != nil {
		logger.Warn("Failed to apply platform action", "error", err, "type", infractionType)
		s.respondEphemeral(interaction, ":x: The bot doesn't have the permission to apply this infraction.")
		return false
	}
	return true
}

// infractionDM builds the notification sent to the subject.
func (s *BotService) infractionDM(interaction *discordgo.InteractionCreate, view *guildconfig.View, infractionType domain.InfractionType, reason string, duration *time.Duration) string {
	guildName := interaction.GuildID
	if guild, err := s.session.State.Guild(interaction.GuildID); err == nil {
		guildName = guild.Name
	}

	message := fmt.Sprintf("**You have received a %s in %s**",
		domain.InfractionNames[infractionType], guildName)
	if reason != "" {
		message += " for the following reason: " + reason
	}
	if duration != nil {
		message += "\n\nThis infraction expires " + discordTimestamp(time.Now().Add(*duration), 'R')
	}

	if description, err := view.String("moderation.messages.dm_description"); err == nil && description != "" {
		message += "\n\n" + description
	} else {
		message += "."
	}

	return message
}

func titleCase(word string) string {
	if word == "" {
		return word
	}
	return strings.ToUpper(word[:1]) + word[1:]
}
