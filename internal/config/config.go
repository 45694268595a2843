package config

import (
	"flag"
	"fmt"
	"log"
	"os"
)

type Config struct {
	DiscordToken string
	DatabaseURL  string
	RedisURL     string
	LogLevel     string

	// PhishingIdentity is the identity string sent to the blocklist
	// API, which asks consumers to identify themselves.
	PhishingIdentity string

	// Debug disables the phishing blocklist bootstrap and seeds a
	// single test domain instead.
	Debug bool
}

func Load() *Config {
	config := &Config{
		LogLevel: getEnvWithDefault("LOG_LEVEL", "info"),
		Debug:    os.Getenv("DEBUG") != "",
	}

	// Required environment variables (for database/redis services)
	config.DatabaseURL = mustGetEnv("DATABASE_URL")
	config.RedisURL = mustGetEnv("REDIS_URL")

	// Optional Discord token (only required for the bot binary)
	config.DiscordToken = getEnvWithDefault("DISCORD_TOKEN", "")
	config.PhishingIdentity = getEnvWithDefault("PHISHING_IDENTITY", "warden")

	// Command line flags override environment
	flag.StringVar(&config.LogLevel, "log-level", config.LogLevel, "Log level")
	flag.BoolVar(&config.Debug, "debug", config.Debug, "Debug mode")
	flag.Parse()

	return config
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustGetEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("Environment variable %s is required", key)
	}
	return value
}

// ValidateForBot ensures all required fields for the bot binary are present
func (c *Config) ValidateForBot() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("environment variable DISCORD_TOKEN is required for the bot")
	}
	return nil
}
