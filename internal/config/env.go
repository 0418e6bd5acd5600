package config

import (
	"os"
	"strconv"
	"time"
)

// LoadFromEnv overlays LOGLENS_* environment variables onto cfg. Every
// lookup goes through GetEnvOrDefault so an unset variable leaves cfg's
// existing value (its file or built-in default) untouched.
func LoadFromEnv(cfg *Config) {
	if port, err := strconv.Atoi(GetEnvOrDefault("LOGLENS_PORT", strconv.Itoa(cfg.Server.Port))); err == nil {
		cfg.Server.Port = port
	}

	cfg.Server.LogLevel = GetEnvOrDefault("LOGLENS_LOG_LEVEL", cfg.Server.LogLevel)

	if backfill, err := strconv.Atoi(GetEnvOrDefault("LOGLENS_BACKFILL_LINES", strconv.Itoa(cfg.Tail.BackfillLines))); err == nil {
		cfg.Tail.BackfillLines = backfill
	}

	cfg.Watch.Mode = GetEnvOrDefault("LOGLENS_WATCH_MODE", cfg.Watch.Mode)

	if interval, err := time.ParseDuration(GetEnvOrDefault("LOGLENS_WATCH_POLL_INTERVAL", cfg.Watch.PollInterval.String())); err == nil {
		cfg.Watch.PollInterval = interval
	}
}

// GetEnvOrDefault returns the environment variable's value, or defaultValue
// if it is unset or empty.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
