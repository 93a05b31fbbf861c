// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port             string
	FrontendURL      string
	APISecret        string
	SingleSessionKey string
	SessionTimeout   time.Duration
	BotRuntimeAddr   string
	DBPath           string
	LogFile          string
	RateLimit        RateLimitConfig
	Archive          ArchiveConfig
}

// RateLimitConfig controls throttling of authentication attempts.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// ArchiveConfig controls the asynchronous event archive.
type ArchiveConfig struct {
	Enabled   bool
	QueueSize int
	Retention time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("ARCHIVE_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		FrontendURL:      getEnv("FRONTEND_URL", ""),
		APISecret:        getEnv("API_SECRET", ""),
		SingleSessionKey: getEnv("SINGLE_SESSION_KEY", "single"),
		SessionTimeout:   getEnvDuration("SESSION_TIMEOUT", 180*time.Second),
		BotRuntimeAddr:   getEnv("BOT_RUNTIME_ADDR", ""),
		DBPath:           getEnv("DB_PATH", "./data/botgate.db"),
		LogFile:          getEnv("LOG_FILE", ""),
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("AUTH_RATE_LIMIT", 10),
			WindowDuration:    getEnvDuration("AUTH_RATE_WINDOW", time.Minute),
		},
		Archive: ArchiveConfig{
			Enabled:   getEnvBool("ARCHIVE_ENABLED", true),
			QueueSize: queueSize,
			Retention: getEnvDuration("ARCHIVE_RETENTION", 7*24*time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.APISecret == "" {
		return fmt.Errorf("API_SECRET cannot be empty")
	}
	if c.SingleSessionKey == "" {
		return fmt.Errorf("SINGLE_SESSION_KEY cannot be empty")
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT must be > 0")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("AUTH_RATE_LIMIT must be > 0")
	}
	if c.Archive.QueueSize <= 0 {
		return fmt.Errorf("ARCHIVE_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	s := strings.TrimSpace(value)
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	// Bare integers are treated as seconds for operator convenience.
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
