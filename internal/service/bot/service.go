package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/bwmarrin/discordgo"

	"warden/internal/config"
	"warden/internal/domain"
	"warden/internal/guildconfig"
	"warden/internal/schema"
	"warden/internal/service/ledger"
	"warden/internal/service/phishing"
)

// BotService wires the Discord gateway to the configuration core, the
// infraction ledger and the phishing filter.
type BotService struct {
	config   *config.Config
	logger   *slog.Logger
	session  *discordgo.Session
	registry *schema.Registry

	guildRepo  domain.GuildRepository
	configRepo domain.ConfigRepository
	pickerRepo domain.RolePickerRepository

	ledger   *ledger.Service
	phishing *phishing.Service

	// Users whose upcoming leave event is a kick or ban we caused, so
	// the audit log does not double-report it.
	ignoredLeavesMu sync.Mutex
	ignoredLeaves   map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new bot service
func New(
	cfg *config.Config,
	logger *slog.Logger,
	registry *schema.Registry,
	guildRepo domain.GuildRepository,
	configRepo domain.ConfigRepository,
	pickerRepo domain.RolePickerRepository,
	ledgerService *ledger.Service,
	phishingService *phishing.Service,
) (*BotService, error) {
	ctx, cancel := context.WithCancel(context.Background())

	botService := &BotService{
		config:        cfg,
		logger:        logger,
		registry:      registry,
		guildRepo:     guildRepo,
		configRepo:    configRepo,
		pickerRepo:    pickerRepo,
		ledger:        ledgerService,
		phishing:      phishingService,
		ignoredLeaves: make(map[string]struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}

	// Create Discord session
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		cancel()
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildBans |
		discordgo.IntentMessageContent

	botService.session = session
	botService.registerHandlers()

	return botService, nil
}

// Start opens the gateway connection, kicks off the phishing
// blocklist lifecycle and blocks until Stop is called.
func (s *BotService) Start() error {
	s.logger.Info("Starting Discord bot...")

	if err := s.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	s.logger.Info("Discord bot connected successfully")

	// Blocklist bootstrap and feed run for the lifetime of the bot.
	go func() {
		if s.config.Debug {
			if err := s.phishing.SeedDebug(s.ctx); err != nil {
				s.logger.Error("Failed to seed debug blocklist", "error", err)
			}
			return
		}

		if err := s.phishing.Bootstrap(s.ctx); err != nil {
			s.logger.Error("Failed to bootstrap phishing blocklist", "error", err)
		}
	}()
	if !s.config.Debug {
		go s.phishing.ConsumeFeed(s.ctx)
	}

	s.logger.Info("Bot is running")
	<-s.ctx.Done()
	return nil
}

// Stop cancels background work and closes the gateway connection.
func (s *BotService) Stop() error {
	s.cancel()

	if s.session != nil {
		s.logger.Info("Closing Discord connection...")
		if err := s.session.Close(); err != nil {
			s.logger.Error("Error closing Discord connection", "error", err)
			return err
		}
	}

	s.logger.Info("Discord bot stopped")
	return nil
}

func (s *BotService) registerHandlers() {
	s.session.AddHandler(s.onReady)
	s.session.AddHandler(s.onInteractionCreate)
	s.session.AddHandler(s.onMessageCreate)
	s.session.AddHandler(s.onGuildMemberAdd)
	s.session.AddHandler(s.onGuildMemberRemove)
	s.session.AddHandler(s.onGuildMemberUpdate)
	s.session.AddHandler(s.onMessageDelete)
	s.session.AddHandler(s.onMessageUpdate)
}

// onReady is called when the bot successfully connects to Discord
func (s *BotService) onReady(session *discordgo.Session, ready *discordgo.Ready) {
	s.logger.Info("Bot is ready",
		"username", ready.User.Username,
		"guilds", len(ready.Guilds),
	)

	// Register commands now that bot is connected
	if err := s.registerCommands(); err != nil {
		s.logger.Error("Failed to register slash commands", "error", err)
	}

	if err := session.UpdateGameStatus(0, "over this server"); err != nil {
		s.logger.Error("Failed to set bot status", "error", err)
	}
}

// guildView builds the per-request configuration view for a guild
// from its current override set. Guilds that never ran /configure get
// domain.ErrGuildNotConfigured.
func (s *BotService) guildView(ctx context.Context, guildID string) (*guildconfig.View, error) {
	id, err := strconv.ParseInt(guildID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed guild id %q: %w", guildID, err)
	}

	exists, err := s.guildRepo.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrGuildNotConfigured
	}

	overrides, err := s.configRepo.GetOverrides(ctx, id)
	if err != nil {
		return nil, err
	}

	return guildconfig.NewView(s.registry, id, overrides), nil
}

// ignoreNextLeave suppresses the audit log entry for a leave we are
// about to cause through a kick or ban.
func (s *BotService) ignoreNextLeave(userID string) {
	s.ignoredLeavesMu.Lock()
	defer s.ignoredLeavesMu.Unlock()
	s.ignoredLeaves[userID] = struct{}{}
}

// leaveIgnored consumes a pending suppression for the user.
func (s *BotService) leaveIgnored(userID string) bool {
	s.ignoredLeavesMu.Lock()
	defer s.ignoredLeavesMu.Unlock()

	if _, ok := s.ignoredLeaves[userID]; ok {
		delete(s.ignoredLeaves, userID)
		return true
	}
	return false
}
