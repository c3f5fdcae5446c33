package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/KirkDiggler/pinball-core/internal/errors"
)

// Config holds all configuration for the application
type Config struct {
	Machine MachineConfig
	Redis   RedisConfig
	Discord DiscordConfig
	Forward ForwardConfig
}

// MachineConfig holds tick loop and mode loading configuration
type MachineConfig struct {
	TickHz         int
	ModesPath      string
	Debug          bool
	StallWarnAfter time.Duration
}

// RedisConfig holds Redis forwarding configuration. Forwarding to Redis is
// disabled when URL is empty.
type RedisConfig struct {
	URL     string
	Channel string
}

// DiscordConfig holds Discord announcement configuration. Announcements are
// disabled when Token is empty.
type DiscordConfig struct {
	Token     string
	ChannelID string
}

// ForwardConfig selects which events are forwarded
type ForwardConfig struct {
	Events     []string
	MonitorAll bool
	BufferSize int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Machine: MachineConfig{
			TickHz:         getEnvAsIntOrDefault("MACHINE_TICK_HZ", 30),
			ModesPath:      getEnvOrDefault("MACHINE_MODES_PATH", "modes"),
			Debug:          getEnvAsBoolOrDefault("MACHINE_DEBUG", false),
			StallWarnAfter: time.Duration(getEnvAsIntOrDefault("MACHINE_STALL_WARN_MS", 10000)) * time.Millisecond,
		},
		Redis: RedisConfig{
			URL:     os.Getenv("REDIS_URL"),
			Channel: getEnvOrDefault("REDIS_CHANNEL", "pinball:events"),
		},
		Discord: DiscordConfig{
			Token:     os.Getenv("DISCORD_TOKEN"),
			ChannelID: os.Getenv("DISCORD_CHANNEL_ID"),
		},
		Forward: ForwardConfig{
			Events:     getEnvAsListOrDefault("FORWARD_EVENTS", nil),
			MonitorAll: getEnvAsBoolOrDefault("FORWARD_MONITOR_ALL", false),
			BufferSize: getEnvAsIntOrDefault("FORWARD_BUFFER_SIZE", 256),
		},
	}

	// Validate
	if cfg.Machine.TickHz <= 0 || cfg.Machine.TickHz > 1000 {
		return nil, errors.Validationf("MACHINE_TICK_HZ must be between 1 and 1000, got %d", cfg.Machine.TickHz)
	}
	if cfg.Machine.StallWarnAfter <= 0 {
		return nil, errors.Validation("MACHINE_STALL_WARN_MS must be positive")
	}
	if cfg.Discord.Token != "" && cfg.Discord.ChannelID == "" {
		return nil, errors.Validation("DISCORD_CHANNEL_ID is required when DISCORD_TOKEN is set")
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var list []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
