package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"warden/internal/config"
	"warden/internal/pkg/logger"
	"warden/internal/repository/postgres"
	"warden/internal/repository/redis"
	"warden/internal/schema"
	"warden/internal/service/bot"
	"warden/internal/service/ledger"
	"warden/internal/service/phishing"

	_ "github.com/lib/pq"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Validate bot-specific configuration
	if err := cfg.ValidateForBot(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Setup logging
	log := logger.New(cfg.LogLevel)
	log.Info("Starting Discord bot service...")

	// The configuration schema is compiled in; a broken definition is
	// a build defect, not a runtime condition.
	registry, err := schema.Load()
	if err != nil {
		log.Error("Failed to load configuration schema", "error", err)
		os.Exit(1)
	}

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Test database connection
	if err := db.Ping(); err != nil {
		log.Error("Failed to ping database", "error", err)
		os.Exit(1)
	}

	// Run database migrations
	if err := postgres.RunMigrations(db, log); err != nil {
		log.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	// Connect to Redis
	redisClient, err := redis.NewClient(cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// Test Redis connection
	if err := redis.HealthCheck(context.Background(), redisClient); err != nil {
		log.Error("Failed to ping Redis", "error", err)
		os.Exit(1)
	}

	// Create repositories
	guildRepo := postgres.NewGuildRepository(db, log)
	configRepo := postgres.NewConfigRepository(db, log)
	infractionRepo := postgres.NewInfractionRepository(db, log)
	pickerRepo := postgres.NewRolePickerRepository(db, log)
	blocklistRepo := redis.NewBlocklistRepository(redisClient, log)

	// Create domain services
	ledgerService := ledger.New(infractionRepo, log)
	phishingService := phishing.New(blocklistRepo, log, cfg.PhishingIdentity)

	// Create bot service
	botService, err := bot.New(cfg, log, registry, guildRepo, configRepo, pickerRepo, ledgerService, phishingService)
	if err != nil {
		log.Error("Failed to create bot service", "error", err)
		os.Exit(1)
	}

	// Create a channel to track shutdown completion
	done := make(chan struct{})

	// Start bot service in a goroutine
	go func() {
		defer close(done)
		if err := botService.Start(); err != nil {
			log.Error("Bot service failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for either shutdown signal or service completion
	select {
	case <-quit:
		log.Info("Shutdown signal received, stopping bot service...")
	case <-done:
		log.Info("Bot service completed")
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stopped := make(chan error, 1)
	go func() {
		stopped <- botService.Stop()
	}()

	select {
	case err := <-stopped:
		if err != nil {
			log.Error("Error stopping bot service", "error", err)
		}
		log.Info("Bot service shutdown complete")
	case <-ctx.Done():
		log.Error("Timed out stopping bot service")
	}
}
