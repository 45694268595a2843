package bot

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"warden/internal/domain"
	"warden/internal/guildconfig"
)

const (
	rolePickerCustomIDPrefix = "warden_role_picker_"
	rolePickerSelectIDPrefix = "warden_role_select_"
)

func (s *BotService) handleRolePicker(logger *slog.Logger, interaction *discordgo.InteractionCreate) {
	view, err := s.guildView(s.ctx, interaction.GuildID)
	if err != nil {
		logger.Error("Failed to load guild configuration", "error", err)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}

	allowed, err := s.memberHasConfiguredPermission(view, interaction.Member, "config.perms.role", "config.perms.discord")
	if err != nil {
		logger.Error("Failed to evaluate configuration permission", "error", err)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}
	if !allowed {
		s.respondEphemeral(interaction, ":x: You are not allowed to manage role pickers.")
		return
	}

	name, options := subcommand(interaction)
	switch name {
	case "create":
		s.rolePickerCreate(logger, interaction, options)
	case "add":
		s.rolePickerAdd(logger, interaction, options)
	case "remove":
		s.rolePickerRemove(logger, interaction, options)
	default:
		s.respondEphemeral(interaction, ":x: Unknown subcommand.")
	}
}

func (s *BotService) rolePickerCreate(
	logger *slog.Logger,
	interaction *discordgo.InteractionCreate,
	options map[string]*discordgo.ApplicationCommandInteractionDataOption,
) {
	channel := options["channel"].ChannelValue(s.session)
	title := options["title"].StringValue()

	guildID, err := parseSnowflake(interaction.GuildID)
	if err != nil {
		logger.Error("Malformed guild ID", "error", err)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}
	channelID, err := parseSnowflake(channel.ID)
	if err != nil {
		logger.Error("Malformed channel ID", "error", err)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}

	picker := &domain.RolePicker{
		GuildID:   guildID,
		ChannelID: channelID,
		Title:     title,
	}
	if err := s.pickerRepo.Create(s.ctx, picker); err != nil {
		logger.Error("Failed to create role picker", "error", err)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}

	message, err := s.session.ChannelMessageSendComplex(channel.ID, &discordgo.MessageSend{
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    title,
						Style:    discordgo.PrimaryButton,
						CustomID: fmt.Sprintf("%s%d", rolePickerCustomIDPrefix, picker.ID),
					},
				},
			},
		},
	})
	if err != nil {
		// Keep the database consistent with what actually got posted.
		if deleteErr := s.pickerRepo.Delete(s.ctx, picker.ID); deleteErr != nil {
			logger.Error("Failed to clean up unposted picker", "error", deleteErr, "picker_id", picker.ID)
		}
		logger.Error("Failed to post role picker", "error", err, "channel_id", channel.ID)
		s.respondEphemeral(interaction,
			fmt.Sprintf(":x: Couldn't post the picker in <#%s>. Do I have permission to send messages there?", channel.ID))
		return
	}

	messageID, err := parseSnowflake(message.ID)
	if err == nil {
		err = s.pickerRepo.SetMessageID(s.ctx, picker.ID, messageID)
	}
	if err != nil {
		logger.Error("Failed to record picker message", "error", err, "picker_id", picker.ID)
	}

	logger.Info("Role picker created", "picker_id", picker.ID, "channel_id", channel.ID)
	s.respondEphemeral(interaction,
		fmt.Sprintf(":white_check_mark: Picker `%d` posted in <#%s>. Add roles with `/role-picker add`.", picker.ID, channel.ID))
}

func (s *BotService) rolePickerAdd(
	logger *slog.Logger,
	interaction *discordgo.InteractionCreate,
	options map[string]*discordgo.ApplicationCommandInteractionDataOption,
) {
	pickerID := options["picker"].IntValue()
	role := options["role"].RoleValue(s.session, interaction.GuildID)
	label := ""
	if option, ok := options["message"]; ok {
		label = option.StringValue()
	}

	picker, ok := s.pickerForGuild(logger, interaction, pickerID)
	if !ok {
		return
	}

	roleID, err := parseSnowflake(role.ID)
	if err != nil {
		logger.Error("Malformed role ID", "error", err)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}

	for _, entry := range picker.Entries {
		if entry.RoleID == roleID {
			s.respondEphemeral(interaction, fmt.Sprintf(":x: <@&%s> is already in picker `%d`.", role.ID, pickerID))
			return
		}
	}

	if err := s.pickerRepo.AddEntry(s.ctx, &domain.RolePickerEntry{
		PickerID: pickerID,
		RoleID:   roleID,
		Message:  label,
	}); err != nil {
		logger.Error("Failed to add picker entry", "error", err, "picker_id", pickerID)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}

	response := fmt.Sprintf(":white_check_mark: Added <@&%s> to picker `%d`.", role.ID, pickerID)
	for _, warning := range s.roleAssignWarnings(logger, interaction.GuildID, role) {
		response += "\n:warning: " + warning
	}

	logger.Info("Picker entry added", "picker_id", pickerID, "role_id", role.ID)
	s.respondEphemeral(interaction, response)
}

func (s *BotService) rolePickerRemove(
	logger *slog.Logger,
	interaction *discordgo.InteractionCreate,
	options map[string]*discordgo.ApplicationCommandInteractionDataOption,
) {
	pickerID := options["picker"].IntValue()
	role := options["role"].RoleValue(s.session, interaction.GuildID)

	if _, ok := s.pickerForGuild(logger, interaction, pickerID); !ok {
		return
	}

	roleID, err := parseSnowflake(role.ID)
	if err != nil {
		logger.Error("Malformed role ID", "error", err)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}

	affected, err := s.pickerRepo.RemoveEntry(s.ctx, pickerID, roleID)
	if err != nil {
		logger.Error("Failed to remove picker entry", "error", err, "picker_id", pickerID)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}
	if affected == 0 {
		s.respondEphemeral(interaction, fmt.Sprintf(":x: <@&%s> is not in picker `%d`.", role.ID, pickerID))
		return
	}

	logger.Info("Picker entry removed", "picker_id", pickerID, "role_id", role.ID)
	s.respondEphemeral(interaction, fmt.Sprintf(":white_check_mark: Removed <@&%s> from picker `%d`.", role.ID, pickerID))
}

// pickerForGuild loads a picker and refuses cross-guild access.
func (s *BotService) pickerForGuild(
	logger *slog.Logger,
	interaction *discordgo.InteractionCreate,
	pickerID int64,
) (*domain.RolePicker, bool) {
	picker, err := s.pickerRepo.GetByID(s.ctx, pickerID)
	if err != nil {
		logger.Error("Failed to fetch role picker", "error", err, "picker_id", pickerID)
		s.respondEphemeral(interaction, fmt.Sprintf(":x: No picker found with ID `%d`.", pickerID))
		return nil, false
	}

	guildID, err := parseSnowflake(interaction.GuildID)
	if err != nil || picker.GuildID != guildID {
		s.respondEphemeral(interaction, fmt.Sprintf(":x: No picker found with ID `%d`.", pickerID))
		return nil, false
	}

	return picker, true
}

// roleAssignWarnings reports setup problems that would make the picker
// silently fail when a member uses it.
func (s *BotService) roleAssignWarnings(logger *slog.Logger, guildID string, role *discordgo.Role) []string {
	var warnings []string

	permissions, err := s.botGuildPermissions(guildID)
	if err != nil {
		logger.Error("Failed to compute bot permissions", "error", err)
		return warnings
	}
	if permissions&discordgo.PermissionManageRoles == 0 {
		warnings = append(warnings, "I don't have the **Manage Roles** permission, so I can't assign this role.")
	}

	if top, ok := s.botTopRolePosition(guildID); ok && role.Position >= top {
		warnings = append(warnings,
			fmt.Sprintf("<@&%s> is above my highest role, so Discord won't let me assign it.", role.ID))
	}

	return warnings
}

// botTopRolePosition returns the position of the bot's highest role.
func (s *BotService) botTopRolePosition(guildID string) (int, bool) {
	member, err := s.session.State.Member(guildID, s.session.State.User.ID)
	if err != nil {
		member, err = s.session.GuildMember(guildID, s.session.State.User.ID)
		if err != nil {
			return 0, false
		}
	}

	top := 0
	found := false
	for _, roleID := range member.Roles {
		role, err := s.session.State.Role(guildID, roleID)
		if err != nil {
			continue
		}
		if !found || role.Position > top {
			top = role.Position
			found = true
		}
	}
	return top, found
}

// handleRolePickerComponent serves the two component stages: the
// public button opens an ephemeral role menu, and submitting the menu
// reconciles the member's roles with the selection.
func (s *BotService) handleRolePickerComponent(logger *slog.Logger, interaction *discordgo.InteractionCreate) {
	customID := interaction.MessageComponentData().CustomID

	switch {
	case strings.HasPrefix(customID, rolePickerCustomIDPrefix):
		s.openRoleMenu(logger, interaction, strings.TrimPrefix(customID, rolePickerCustomIDPrefix))
	case strings.HasPrefix(customID, rolePickerSelectIDPrefix):
		s.applyRoleSelection(logger, interaction, strings.TrimPrefix(customID, rolePickerSelectIDPrefix))
	}
}

func (s *BotService) openRoleMenu(logger *slog.Logger, interaction *discordgo.InteractionCreate, rawPickerID string) {
	pickerID, err := strconv.ParseInt(rawPickerID, 10, 64)
	if err != nil {
		logger.Error("Malformed picker component ID", "custom_id", rawPickerID)
		return
	}

	picker, err := s.pickerRepo.GetByID(s.ctx, pickerID)
	if err != nil {
		logger.Error("Failed to fetch role picker", "error", err, "picker_id", pickerID)
		s.respondEphemeral(interaction, ":x: This picker no longer exists.")
		return
	}
	if len(picker.Entries) == 0 {
		s.respondEphemeral(interaction, ":x: This picker has no roles yet.")
		return
	}

	memberRoles := make(map[string]bool, len(interaction.Member.Roles))
	for _, roleID := range interaction.Member.Roles {
		memberRoles[roleID] = true
	}

	options := make([]discordgo.SelectMenuOption, 0, len(picker.Entries))
	for _, entry := range picker.Entries {
		roleID := strconv.FormatInt(entry.RoleID, 10)
		label := entry.Message
		if label == "" {
			label = s.roleName(interaction.GuildID, roleID)
		}
		options = append(options, discordgo.SelectMenuOption{
			Label:   label,
			Value:   roleID,
			Default: memberRoles[roleID],
		})
	}

	minValues := 0
	err = s.session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: "Pick your roles:",
			Flags:   discordgo.MessageFlagsEphemeral,
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.SelectMenu{
							CustomID:  fmt.Sprintf("%s%d", rolePickerSelectIDPrefix, picker.ID),
							MinValues: &minValues,
							MaxValues: len(options),
							Options:   options,
						},
					},
				},
			},
		},
	})
	if err != nil {
		logger.Error("Failed to open role menu", "error", err, "picker_id", pickerID)
	}
}

func (s *BotService) applyRoleSelection(logger *slog.Logger, interaction *discordgo.InteractionCreate, rawPickerID string) {
	pickerID, err := strconv.ParseInt(rawPickerID, 10, 64)
	if err != nil {
		logger.Error("Malformed picker component ID", "custom_id", rawPickerID)
		return
	}

	picker, err := s.pickerRepo.GetByID(s.ctx, pickerID)
	if err != nil {
		logger.Error("Failed to fetch role picker", "error", err, "picker_id", pickerID)
		s.respondEphemeral(interaction, ":x: This picker no longer exists.")
		return
	}

	selected := make(map[string]bool)
	for _, value := range interaction.MessageComponentData().Values {
		selected[value] = true
	}
	memberRoles := make(map[string]bool, len(interaction.Member.Roles))
	for _, roleID := range interaction.Member.Roles {
		memberRoles[roleID] = true
	}

	userID := interactionUserID(interaction)
	var added, removed, failed int
	for _, entry := range picker.Entries {
		roleID := strconv.FormatInt(entry.RoleID, 10)
		switch {
		case selected[roleID] && !memberRoles[roleID]:
			if err := s.session.GuildMemberRoleAdd(interaction.GuildID, userID, roleID); err != nil {
				logger.Error("Failed to add role", "error", err, "role_id", roleID, "user_id", userID)
				failed++
			} else {
				added++
			}
		case !selected[roleID] && memberRoles[roleID]:
			if err := s.session.GuildMemberRoleRemove(interaction.GuildID, userID, roleID); err != nil {
				logger.Error("Failed to remove role", "error", err, "role_id", roleID, "user_id", userID)
				failed++
			} else {
				removed++
			}
		}
	}

	logger.Info("Role selection applied",
		"picker_id", pickerID, "user_id", userID,
		"added", added, "removed", removed, "failed", failed)

	response := fmt.Sprintf(":white_check_mark: Roles updated: %d added, %d removed.", added, removed)
	if failed > 0 {
		response = fmt.Sprintf(":warning: Roles partially updated (%d added, %d removed, %d failed). "+
			"I may be missing the **Manage Roles** permission.", added, removed, failed)
	}

	err = s.session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    response,
			Components: []discordgo.MessageComponent{},
		},
	})
	if err != nil {
		logger.Error("Failed to acknowledge role selection", "error", err)
	}
}

func (s *BotService) roleName(guildID, roleID string) string {
	if role, err := s.session.State.Role(guildID, roleID); err == nil {
		return role.Name
	}
	return "role " + roleID
}

// applyAutoRole hands new members the configured role once they clear
// membership screening.
func (s *BotService) applyAutoRole(view *guildconfig.View, event *discordgo.GuildMemberUpdate) {
	if event.BeforeUpdate == nil || !event.BeforeUpdate.Pending || event.Pending {
		return
	}
	s.assignAutoRole(view, event.GuildID, event.User.ID)
}

func (s *BotService) assignAutoRole(view *guildconfig.View, guildID, userID string) {
	roleID, err := view.Snowflake("utilities.auto_role")
	if err != nil {
		s.logger.Error("Failed to resolve auto role", "error", err)
		return
	}
	if roleID == "" {
		return
	}

	if err := s.session.GuildMemberRoleAdd(guildID, userID, roleID); err != nil {
		s.logger.Error("Failed to assign auto role",
			"error", err, "guild_id", guildID, "user_id", userID, "role_id", roleID)
		return
	}
	s.logger.Debug("Auto role assigned", "guild_id", guildID, "user_id", userID, "role_id", roleID)
}
