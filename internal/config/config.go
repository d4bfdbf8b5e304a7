// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/robfig/cron/v3"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL    string `env:"DATABASE_URL,required"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"true"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Passwords
	PasswordHashAlgorithm string `env:"PASSWORD_HASH_ALGORITHM" envDefault:"bcrypt"`
	BcryptCost            int    `env:"BCRYPT_COST" envDefault:"10"`

	// API key expiry sweeping
	KeySweepEnabled  bool          `env:"KEY_SWEEP_ENABLED" envDefault:"true"`
	KeySweepSchedule string        `env:"KEY_SWEEP_SCHEDULE" envDefault:"@every 1m"`
	KeySweepTimeout  time.Duration `env:"KEY_SWEEP_TIMEOUT" envDefault:"30s"`
	SweepOnLogout    bool          `env:"SWEEP_ON_LOGOUT" envDefault:"true"`

	// Audit events on a Redis stream
	AuditStreamEnabled bool  `env:"AUDIT_STREAM_ENABLED" envDefault:"true"`
	AuditStreamMaxLen  int64 `env:"AUDIT_STREAM_MAX_LEN" envDefault:"100000"`

	// Default accounts created when the users table is empty
	SeedDefaultUsers bool   `env:"SEED_DEFAULT_USERS" envDefault:"true"`
	SeedPassword     string `env:"SEED_PASSWORD" envDefault:"TestPass1"`

	// Rate limiting
	RateLimitLoginEnabled   bool `env:"RATE_LIMIT_LOGIN_ENABLED" envDefault:"true"`
	RateLimitLoginPerMinute int  `env:"RATE_LIMIT_LOGIN_PER_MINUTE" envDefault:"10"`
	RateLimitLoginBurst     int  `env:"RATE_LIMIT_LOGIN_BURST" envDefault:"5"`
	RateLimitAPIEnabled     bool `env:"RATE_LIMIT_API_ENABLED" envDefault:"true"`
	RateLimitAPIPerMinute   int  `env:"RATE_LIMIT_API_PER_MINUTE" envDefault:"120"`
	RateLimitAPIBurst       int  `env:"RATE_LIMIT_API_BURST" envDefault:"30"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// SlogLevel maps LOG_LEVEL to a slog level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks values that parse but cannot work together.
func (c *Config) Validate() error {
	var errs []error

	if c.AppPort <= 0 || c.AppPort > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT %d out of range", c.AppPort))
	}
	switch c.PasswordHashAlgorithm {
	case "bcrypt", "argon2id":
	default:
		errs = append(errs, fmt.Errorf("PASSWORD_HASH_ALGORITHM must be bcrypt or argon2id, got %q", c.PasswordHashAlgorithm))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost))
	}
	if c.KeySweepEnabled {
		if _, err := cron.ParseStandard(c.KeySweepSchedule); err != nil {
			errs = append(errs, fmt.Errorf("KEY_SWEEP_SCHEDULE: %w", err))
		}
	}
	if c.AuditStreamEnabled && c.AuditStreamMaxLen <= 0 {
		errs = append(errs, fmt.Errorf("AUDIT_STREAM_MAX_LEN must be positive, got %d", c.AuditStreamMaxLen))
	}
	if c.SeedDefaultUsers && c.SeedPassword == "" {
		errs = append(errs, errors.New("SEED_PASSWORD is required when SEED_DEFAULT_USERS is set"))
	}
	if c.MaxRequestBodySize <= 0 {
		errs = append(errs, fmt.Errorf("MAX_REQUEST_BODY_SIZE must be positive, got %d", c.MaxRequestBodySize))
	}

	return errors.Join(errs...)
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing or invalid.
func Load() (*Config, error) {
	return load(env.Options{})
}

// LoadFrom is Load over an explicit environment instead of the process one.
func LoadFrom(environ map[string]string) (*Config, error) {
	return load(env.Options{Environment: environ})
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
