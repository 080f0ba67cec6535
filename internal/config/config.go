// internal/config/config.go
// Centralized configuration management
// Defaults, then an optional TOML file (CONFIG_FILE), then environment variables

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const defaultJWTSecret = "change-this-secret-in-production"

// Config holds all application configuration
type Config struct {
	// Server
	Port            string        `toml:"port"`
	Environment     string        `toml:"environment"`
	LogLevel        string        `toml:"log_level"`
	AllowedOrigins  []string      `toml:"allowed_origins"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`

	// Database
	DatabaseDriver string `toml:"database_driver"`
	DatabaseURL    string `toml:"database_url"`
	RedisURL       string `toml:"redis_url"`

	// Security
	JWTSecret        string        `toml:"jwt_secret"`
	GuestTokenSecret string        `toml:"guest_token_secret"`
	GuestTokenTTL    time.Duration `toml:"guest_token_ttl"`
	ElevatedRoles    []string      `toml:"elevated_roles"`

	// Realtime
	PresenceGracePeriod       time.Duration `toml:"presence_grace_period"`
	TypingTimeout             time.Duration `toml:"typing_timeout"`
	TypingRebroadcastInterval time.Duration `toml:"typing_rebroadcast_interval"`

	// Messaging
	MaxMessageLength int `toml:"max_message_length"`

	// Rate Limiting
	GuestAccessRateLimit  int           `toml:"guest_access_rate_limit"`
	GuestAccessRateWindow time.Duration `toml:"guest_access_rate_window"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Port:            "8080",
		Environment:     "development",
		LogLevel:        "info",
		AllowedOrigins:  []string{"*"},
		ShutdownTimeout: 15 * time.Second,

		DatabaseDriver: "sqlite3",
		DatabaseURL:    "ewers.db",

		JWTSecret:     defaultJWTSecret,
		GuestTokenTTL: 24 * time.Hour,
		ElevatedRoles: []string{"admin", "supervisor"},

		PresenceGracePeriod:       10 * time.Second,
		TypingTimeout:             6 * time.Second,
		TypingRebroadcastInterval: 3 * time.Second,

		MaxMessageLength: 4000,

		GuestAccessRateLimit:  10,
		GuestAccessRateWindow: time.Minute,
	}
}

// Load reads configuration from CONFIG_FILE (if set) and environment variables
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	// Server
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	// Database
	cfg.DatabaseDriver = getEnv("DATABASE_DRIVER", cfg.DatabaseDriver)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)

	// Security
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.GuestTokenSecret = getEnv("GUEST_TOKEN_SECRET", cfg.GuestTokenSecret)
	cfg.GuestTokenTTL = getEnvDuration("GUEST_TOKEN_TTL", cfg.GuestTokenTTL)
	cfg.ElevatedRoles = getEnvList("ELEVATED_ROLES", cfg.ElevatedRoles)

	// Realtime
	cfg.PresenceGracePeriod = getEnvDuration("PRESENCE_GRACE_PERIOD", cfg.PresenceGracePeriod)
	cfg.TypingTimeout = getEnvDuration("TYPING_TIMEOUT", cfg.TypingTimeout)
	cfg.TypingRebroadcastInterval = getEnvDuration("TYPING_REBROADCAST_INTERVAL", cfg.TypingRebroadcastInterval)

	// Messaging
	cfg.MaxMessageLength = getEnvInt("MAX_MESSAGE_LENGTH", cfg.MaxMessageLength)

	// Rate Limiting
	cfg.GuestAccessRateLimit = getEnvInt("GUEST_ACCESS_RATE_LIMIT", cfg.GuestAccessRateLimit)
	cfg.GuestAccessRateWindow = getEnvDuration("GUEST_ACCESS_RATE_WINDOW", cfg.GuestAccessRateWindow)

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("JWT secret must be changed for production")
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT secret must be at least 32 bytes in production")
		}
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	switch c.DatabaseDriver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("invalid database driver: %s", c.DatabaseDriver)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database URL is required")
	}

	if c.GuestTokenTTL <= 0 {
		return fmt.Errorf("guest token TTL must be positive")
	}
	if c.PresenceGracePeriod < 0 {
		return fmt.Errorf("presence grace period cannot be negative")
	}
	if c.TypingTimeout <= 0 || c.TypingRebroadcastInterval <= 0 {
		return fmt.Errorf("typing timeout and rebroadcast interval must be positive")
	}
	if c.TypingRebroadcastInterval >= c.TypingTimeout {
		return fmt.Errorf("typing rebroadcast interval must be shorter than the typing timeout")
	}

	if c.MaxMessageLength < 1 {
		return fmt.Errorf("max message length must be positive")
	}
	if c.GuestAccessRateLimit < 1 || c.GuestAccessRateWindow <= 0 {
		return fmt.Errorf("rate limiting values must be positive")
	}

	return nil
}

// IsProduction returns true if running in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Helper functions

// getEnv gets a string value from environment with a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment with a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration value from environment with a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList gets a comma-separated list from environment with a default
func getEnvList(key string, defaultValue []string) []string {
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
