package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	DatabasePath     string
	DiscordBotToken  string
	DiscordChannelId string
	HealthAddr       string
	RolloverInterval time.Duration
	ImportAccount    string
}

func Load() (*Config, error) {
	interval, err := time.ParseDuration(getEnv("ROLLOVER_INTERVAL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid ROLLOVER_INTERVAL: %w", err)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("ROLLOVER_INTERVAL must be positive, got %s", interval)
	}

	return &Config{
		DatabasePath:     getEnv("DATABASE_PATH", "budget.db"),
		DiscordBotToken:  os.Getenv("DISCORD_BOT_TOKEN"),
		DiscordChannelId: os.Getenv("DISCORD_CHANNEL_ID"),
		HealthAddr:       getEnv("HEALTH_ADDR", ":8080"),
		RolloverInterval: interval,
		ImportAccount:    getEnv("IMPORT_ACCOUNT", "M-PESA"),
	}, nil
}

// RequireDiscord checks the settings only the bot needs.
func (c *Config) RequireDiscord() error {
	if c.DiscordBotToken == "" {
		return fmt.Errorf("Bot token is not set")
	}
	if c.DiscordChannelId == "" {
		return fmt.Errorf("Channel ID is not set")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultVal
}
