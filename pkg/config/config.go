// Package config loads caldrift configuration from the environment.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv   string
	LogLevel string

	// Database
	DBPath string

	// Scheduler
	AutoSyncEnabled bool
	SyncInterval    time.Duration

	// Queue processor
	RetryCeiling int

	// Sync window
	WindowPastDays   int
	WindowFutureDays int

	// OAuth (Google provider)
	OAuthClientID     string
	OAuthClientSecret string
	OAuthTokenURL     string

	// CalDAV provider
	CalDAVEndpoint string
	CalDAVUsername string
	CalDAVPassword string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:   getEnv("CALDRIFT_ENV", "development"),
		LogLevel: getEnv("CALDRIFT_LOG_LEVEL", "info"),

		DBPath: getEnv("CALDRIFT_DB_PATH", defaultDBPath()),

		AutoSyncEnabled: getBoolEnv("CALDRIFT_AUTO_SYNC", true),
		SyncInterval:    getDurationEnv("CALDRIFT_SYNC_INTERVAL", 5*time.Minute),

		RetryCeiling: getIntEnv("CALDRIFT_RETRY_CEILING", 3),

		WindowPastDays:   getIntEnv("CALDRIFT_WINDOW_PAST_DAYS", 45),
		WindowFutureDays: getIntEnv("CALDRIFT_WINDOW_FUTURE_DAYS", 45),

		OAuthClientID:     getEnv("CALDRIFT_OAUTH_CLIENT_ID", ""),
		OAuthClientSecret: getEnv("CALDRIFT_OAUTH_CLIENT_SECRET", ""),
		OAuthTokenURL:     getEnv("CALDRIFT_OAUTH_TOKEN_URL", "https://oauth2.googleapis.com/token"),

		CalDAVEndpoint: getEnv("CALDRIFT_CALDAV_ENDPOINT", ""),
		CalDAVUsername: getEnv("CALDRIFT_CALDAV_USERNAME", ""),
		CalDAVPassword: getEnv("CALDRIFT_CALDAV_PASSWORD", ""),
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "caldrift.db"
	}
	return filepath.Join(home, ".caldrift", "caldrift.db")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
