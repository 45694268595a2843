package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"warden/internal/domain"
)

// commandSpec pairs a slash command definition with its handler. The
// BypassesConfigCheck capability is set at registration time; only
// commands that must work before a guild is configured carry it.
type commandSpec struct {
	Command             *discordgo.ApplicationCommand
	Handler             func(s *BotService, logger *slog.Logger, i *discordgo.InteractionCreate)
	BypassesConfigCheck bool
}

func commandSpecs() []commandSpec {
	stringOption := func(name, description string, required bool) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        name,
			Description: description,
			Required:    required,
		}
	}
	userOption := func(description string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "user",
			Description: description,
			Required:    true,
		}
	}

	return []commandSpec{
		{
			Command: &discordgo.ApplicationCommand{
				Name:        "configure",
				Description: "Register this server so the bot can be used",
			},
			Handler:             (*BotService).handleConfigure,
			BypassesConfigCheck: true,
		},
		{
			Command: &discordgo.ApplicationCommand{
				Name:        "config",
				Description: "Inspect and adjust the server configuration",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "get",
						Description: "Show the value of a configuration entry",
						Options: []*discordgo.ApplicationCommandOption{
							stringOption("key", "Dotted configuration key", true),
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "set",
						Description: "Set a configuration entry",
						Options: []*discordgo.ApplicationCommandOption{
							stringOption("key", "Dotted configuration key", true),
							stringOption("value", "New value", true),
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "reset",
						Description: "Reset a configuration entry to its default",
						Options: []*discordgo.ApplicationCommandOption{
							stringOption("key", "Dotted configuration key", true),
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "export",
						Description: "Export the server configuration as JSON",
						Options: []*discordgo.ApplicationCommandOption{
							{
								Type:        discordgo.ApplicationCommandOptionBoolean,
								Name:        "include_defaults",
								Description: "Include entries still at their default",
							},
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "import",
						Description: "Import configuration entries from JSON",
						Options: []*discordgo.ApplicationCommandOption{
							stringOption("json", "JSON object as produced by /config export", true),
						},
					},
				},
			},
			Handler: (*BotService).handleConfig,
		},
		{
			Command: &discordgo.ApplicationCommand{
				Name:        "note",
				Description: "Put a moderator-only note on a user",
				Options: []*discordgo.ApplicationCommandOption{
					userOption("User to annotate"),
					stringOption("message", "Note content", true),
				},
			},
			Handler: (*BotService).handleNote,
		},
		{
			Command: &discordgo.ApplicationCommand{
				Name:        "warn",
				Description: "Warn a user",
				Options: []*discordgo.ApplicationCommandOption{
					userOption("User to warn"),
					stringOption("reason", "Reason for the warning", true),
				},
			},
			Handler: (*BotService).handleWarn,
		},
		{
			Command: &discordgo.ApplicationCommand{
				Name:        "mute",
				Description: "Mute a user for a duration",
				Options: []*discordgo.ApplicationCommandOption{
					userOption("User to mute"),
					stringOption("duration", "Duration such as 1d12h", true),
					stringOption("reason", "Reason for the mute", false),
				},
			},
			Handler: (*BotService).handleMute,
		},
		{
			Command: &discordgo.ApplicationCommand{
				Name:        "kick",
				Description: "Kick a user",
				Options: []*discordgo.ApplicationCommandOption{
					userOption("User to kick"),
					stringOption("reason", "Reason for the kick", false),
				},
			},
			Handler: (*BotService).handleKick,
		},
		{
			Command: &discordgo.ApplicationCommand{
				Name:        "ban",
				Description: "Ban a user",
				Options: []*discordgo.ApplicationCommandOption{
					userOption("User to ban"),
					stringOption("reason", "Reason for the ban", false),
				},
			},
			Handler: (*BotService).handleBan,
		},
		{
			Command: &discordgo.ApplicationCommand{
				Name:        "unmute",
				Description: "Lift a user's mute early",
				Options: []*discordgo.ApplicationCommandOption{
					userOption("User to unmute"),
				},
			},
			Handler: (*BotService).handleUnmute,
		},
		{
			Command: &discordgo.ApplicationCommand{
				Name:        "unban",
				Description: "Lift a user's ban",
				Options: []*discordgo.ApplicationCommandOption{
					userOption("User to unban"),
				},
			},
			Handler: (*BotService).handleUnban,
		},
		{
			Command: &discordgo.ApplicationCommand{
				Name:        "infraction",
				Description: "Look up infractions",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "get",
						Description: "Get an infraction by its ID",
						Options: []*discordgo.ApplicationCommandOption{
							{
								Type:        discordgo.ApplicationCommandOptionInteger,
								Name:        "id",
								Description: "Infraction ID",
								Required:    true,
							},
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "list",
						Description: "List a user's infractions",
						Options: []*discordgo.ApplicationCommandOption{
							userOption("User to look up"),
						},
					},
				},
			},
			Handler: (*BotService).handleInfraction,
		},
		{
			Command: &discordgo.ApplicationCommand{
				Name:        "role-picker",
				Description: "Manage role pickers",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "create",
						Description: "Create a role picker in a channel",
						Options: []*discordgo.ApplicationCommandOption{
							{
								Type:        discordgo.ApplicationCommandOptionChannel,
								Name:        "channel",
								Description: "Channel to post the picker in",
								Required:    true,
							},
							stringOption("title", "Button label", true),
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "add",
						Description: "Add a role to a picker",
						Options: []*discordgo.ApplicationCommandOption{
							{
								Type:        discordgo.ApplicationCommandOptionInteger,
								Name:        "picker",
								Description: "Picker ID",
								Required:    true,
							},
							{
								Type:        discordgo.ApplicationCommandOptionRole,
								Name:        "role",
								Description: "Role to offer",
								Required:    true,
							},
							stringOption("message", "Label shown in the menu", false),
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "remove",
						Description: "Remove a role from a picker",
						Options: []*discordgo.ApplicationCommandOption{
							{
								Type:        discordgo.ApplicationCommandOptionInteger,
								Name:        "picker",
								Description: "Picker ID",
								Required:    true,
							},
							{
								Type:        discordgo.ApplicationCommandOptionRole,
								Name:        "role",
								Description: "Role to remove",
								Required:    true,
							},
						},
					},
				},
			},
			Handler: (*BotService).handleRolePicker,
		},
	}
}

// registerCommands registers slash commands with Discord
func (s *BotService) registerCommands() error {
	s.logger.Info("Registering slash commands...")

	specs := commandSpecs()
	commands := make([]*discordgo.ApplicationCommand, len(specs))
	for i, spec := range specs {
		commands[i] = spec.Command
	}

	_, err := s.session.ApplicationCommandBulkOverwrite(s.session.State.User.ID, "", commands)
	if err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	s.logger.Info("Slash commands registered successfully", "count", len(commands))
	return nil
}

// onInteractionCreate dispatches slash commands and message components
func (s *BotService) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	logger := s.logger.With("correlation_id", uuid.NewString())

	switch interaction.Type {
	case discordgo.InteractionMessageComponent:
		customID := interaction.MessageComponentData().CustomID
		if strings.HasPrefix(customID, rolePickerCustomIDPrefix) || strings.HasPrefix(customID, rolePickerSelectIDPrefix) {
			s.handleRolePickerComponent(logger, interaction)
		}
		return

	case discordgo.InteractionApplicationCommand:
		// Handled below.

	default:
		return
	}

	if interaction.GuildID == "" {
		s.respondEphemeral(interaction, ":x: This bot only works inside servers.")
		return
	}

	commandName := interaction.ApplicationCommandData().Name
	logger = logger.With(
		"command", commandName,
		"guild_id", interaction.GuildID,
		"user_id", interactionUserID(interaction),
	)
	logger.Debug("Received slash command")

	var spec *commandSpec
	for _, candidate := range commandSpecs() {
		if candidate.Command.Name == commandName {
			spec = &candidate
			break
		}
	}
	if spec == nil {
		s.respondEphemeral(interaction, ":x: Unknown command.")
		return
	}

	if !spec.BypassesConfigCheck {
		if _, err := s.guildView(s.ctx, interaction.GuildID); err != nil {
			if errors.Is(err, domain.ErrGuildNotConfigured) {
				s.respondEphemeral(interaction,
					":x: This server is not configured yet. Ask the server owner to run `/configure`.")
				return
			}
			logger.Error("Failed to load guild configuration", "error", err)
			s.respondEphemeral(interaction, ":x: Something went wrong.")
			return
		}
	}

	spec.Handler(s, logger, interaction)
}
