package bot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"

	"warden/internal/domain"
	"warden/internal/guildconfig"
)

// handleConfigure registers the guild. It is the only command that
// works before the guild exists in the database.
func (s *BotService) handleConfigure(logger *slog.Logger, interaction *discordgo.InteractionCreate) {
	guildID, err := parseSnowflake(interaction.GuildID)
	if err != nil {
		logger.Error("Malformed guild id", "error", err)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}

	exists, err := s.guildRepo.Exists(s.ctx, guildID)
	if err != nil {
		logger.Error("Failed to check guild registration", "error", err)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}
	if exists {
		s.respondEphemeral(interaction, ":x: This server is already configured.")
		return
	}

	if err := s.guildRepo.Create(s.ctx, &domain.Guild{ID: guildID}); err != nil {
		logger.Error("Failed to register guild", "error", err)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}

	logger.Info("Guild configured")
	s.respond(interaction,
		":white_check_mark: This server has been configured! "+
			"You can now use the `/config` command to adjust the configuration.", false)
}

// handleConfig dispatches the /config subcommands.
func (s *BotService) handleConfig(logger *slog.Logger, interaction *discordgo.InteractionCreate) {
	view, err := s.guildView(s.ctx, interaction.GuildID)
	if err != nil {
		logger.Error("Failed to load guild configuration", "error", err)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}

	allowed, err := s.memberHasConfiguredPermission(view, interaction.Member, "config.perms.role", "config.perms.discord")
	if err != nil {
		logger.Error("Failed to evaluate config permission", "error", err)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}
	if !allowed {
		s.respondEphemeral(interaction, ":x: You are not allowed to manage the configuration.")
		return
	}

	name, options := subcommand(interaction)
	switch name {
	case "get":
		s.configGet(logger, interaction, view, options["key"].StringValue())
	case "set":
		s.configSet(logger, interaction, view, options["key"].StringValue(), options["value"].StringValue())
	case "reset":
		s.configReset(logger, interaction, view, options["key"].StringValue())
	case "export":
		includeDefaults := false
		if option, ok := options["include_defaults"]; ok {
			includeDefaults = option.BoolValue()
		}
		s.configExport(logger, interaction, view, includeDefaults)
	case "import":
		s.configImport(logger, interaction, view, options["json"].StringValue())
	default:
		s.respondEphemeral(interaction, ":x: Unknown subcommand.")
	}
}

func (s *BotService) configGet(logger *slog.Logger, interaction *discordgo.InteractionCreate, view *guildconfig.View, key string) {
	value, err := view.Get(key)
	if err != nil {
		s.respondConfigError(logger, interaction, err)
		return
	}

	// A namespace: list what lives under it.
	if child, ok := value.(*guildconfig.View); ok {
		tree, err := child.ToTree(true)
		if err != nil {
			s.respondConfigError(logger, interaction, err)
			return
		}

		keys := make([]string, 0, len(tree))
		for k := range tree {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		s.respondEphemeral(interaction, fmt.Sprintf(
			"`%s` is a section containing: `%s`.", key, strings.Join(keys, "`, `")))
		return
	}

	status := "default"
	if view.IsOverridden(key) {
		status = "override"
	}

	if value == nil {
		s.respondEphemeral(interaction, fmt.Sprintf("`%s` is unset (%s).", key, status))
		return
	}
	s.respondEphemeral(interaction, fmt.Sprintf("`%s` = `%v` (%s).", key, value, status))
}

func (s *BotService) configSet(logger *slog.Logger, interaction *discordgo.InteractionCreate, view *guildconfig.View, key, value string) {
	if _, err := view.Validate(key, value); err != nil {
		s.respondConfigError(logger, interaction, err)
		return
	}

	if err := s.configRepo.Upsert(s.ctx, view.GuildID(), key, value); err != nil {
		logger.Error("Failed to store override", "error", err, "key", key)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}

	logger.Info("Configuration entry set", "key", key)
	s.respond(interaction, fmt.Sprintf(":white_check_mark: `%s` set to `%s`.", key, value), false)
}

func (s *BotService) configReset(logger *slog.Logger, interaction *discordgo.InteractionCreate, view *guildconfig.View, key string) {
	// Resolve first so resetting a bogus key is still reported as such.
	if _, err := view.Default(key); err != nil {
		s.respondConfigError(logger, interaction, err)
		return
	}

	affected, err := s.configRepo.Delete(s.ctx, view.GuildID(), key)
	if err != nil {
		logger.Error("Failed to delete override", "error", err, "key", key)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}

	if affected == 0 {
		s.respondEphemeral(interaction, fmt.Sprintf("`%s` is already at its default.", key))
		return
	}

	logger.Info("Configuration entry reset", "key", key)
	s.respond(interaction, fmt.Sprintf(":white_check_mark: `%s` reset to its default.", key), false)
}

func (s *BotService) configExport(logger *slog.Logger, interaction *discordgo.InteractionCreate, view *guildconfig.View, includeDefaults bool) {
	tree, err := view.ToTree(includeDefaults)
	if err != nil {
		s.respondConfigError(logger, interaction, err)
		return
	}

	encoded, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		logger.Error("Failed to encode configuration export", "error", err)
		s.respondEphemeral(interaction, ":x: Something went wrong.")
		return
	}

	// Discord caps message content; ship bigger exports as a file.
	if len(encoded) <= 1900 {
		s.respondEphemeral(interaction, "```json\n"+string(encoded)+"\n```")
		return
	}

	err = s.session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
			Files: []*discordgo.File{
				{
					Name:        "config.json",
					ContentType: "application/json",
					Reader:      bytes.NewReader(encoded),
				},
			},
		},
	})
	if err != nil {
		logger.Error("Failed to send configuration export", "error", err)
	}
}

func (s *BotService) configImport(logger *slog.Logger, interaction *discordgo.InteractionCreate, view *guildconfig.View, payload string) {
	var tree map[string]any
	if err := json.Unmarshal([]byte(payload), &tree); err != nil {
		s.respondEphemeral(interaction, ":x: That is not a valid JSON object.")
		return
	}

	report := view.ImportTree(tree)

	for key, value := range report.Overrides {
		if err := s.configRepo.Upsert(s.ctx, view.GuildID(), key, value); err != nil {
			logger.Error("Failed to store imported override", "error", err, "key", key)
			s.respondEphemeral(interaction, ":x: Something went wrong while saving the import.")
			return
		}
	}

	logger.Info("Configuration imported",
		"added", len(report.Added),
		"ignored", len(report.Ignored),
		"invalid", len(report.Invalid),
	)

	message := fmt.Sprintf(
		":white_check_mark: Import finished: %d added, %d ignored (already the default), %d invalid.",
		len(report.Added), len(report.Ignored), len(report.Invalid))
	if len(report.Invalid) > 0 {
		message += fmt.Sprintf("\nInvalid keys: `%s`.", strings.Join(report.Invalid, "`, `"))
	}
	s.respond(interaction, message, false)
}

// respondConfigError renders recoverable configuration errors verbatim
// and hides schema bugs behind a generic failure.
func (s *BotService) respondConfigError(logger *slog.Logger, interaction *discordgo.InteractionCreate, err error) {
	if guildconfig.IsRecoverable(err) {
		s.respondEphemeral(interaction, ":x: "+err.Error()+".")
		return
	}

	logger.Error("Configuration failure", "error", err)
	s.respondEphemeral(interaction, ":x: Something went wrong.")
}
