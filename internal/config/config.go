// Package config loads server configuration from the environment.
//
// An optional .env file in the working directory is read first (handy for
// local development), then the process environment is parsed into Config
// using struct tags. Real environment variables always win over .env values
// because godotenv.Load never overrides variables that are already set.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/blockful/backoffice/internal/auth"
)

// Provisioning policies for users that verify with Google but have no row yet.
const (
	ProvisionAuto       = "auto"
	ProvisionRegistered = "registered"
)

// Config holds every recognised option. Defaults live in the envDefault tags
// so `go doc` shows them next to the variable names.
type Config struct {
	Port   int    `env:"PORT" envDefault:"4000"`
	DBPath string `env:"DB_PATH" envDefault:"data/backoffice.db"`

	AllowedDomain      string `env:"ALLOWED_DOMAIN" envDefault:"blockful.io"`
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string `env:"GOOGLE_REDIRECT_URI" envDefault:"http://localhost:4000/auth/google/callback"`

	SessionSecret string        `env:"SESSION_SECRET"`
	SessionMaxAge time.Duration `env:"SESSION_MAX_AGE" envDefault:"24h"`
	SecureCookies bool          `env:"SECURE_COOKIES" envDefault:"false"`

	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	UploadDir      string `env:"UPLOAD_DIR" envDefault:"uploads"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`

	Provisioning   string        `env:"AUTH_PROVISIONING" envDefault:"auto"`
	ReconcileGrace time.Duration `env:"RECONCILE_GRACE" envDefault:"5s"`

	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

// Load reads .env (if present) and parses the environment.
func Load() (Config, error) {
	// A missing .env is the normal case in production.
	_ = godotenv.Load()
	return Parse()
}

// Parse parses the process environment without touching .env. Tests use it
// together with t.Setenv.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that struct tags can't express.
func (c *Config) Validate() error {
	var errs []error

	if len(c.SessionSecret) < 16 {
		errs = append(errs, errors.New("SESSION_SECRET must be at least 16 characters"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if c.SessionMaxAge <= 0 {
		errs = append(errs, errors.New("SESSION_MAX_AGE must be positive"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	switch c.Provisioning {
	case ProvisionAuto, ProvisionRegistered:
	default:
		errs = append(errs, fmt.Errorf("AUTH_PROVISIONING must be %q or %q, got %q",
			ProvisionAuto, ProvisionRegistered, c.Provisioning))
	}

	c.AllowedDomain = strings.TrimPrefix(strings.TrimSpace(c.AllowedDomain), "@")
	if c.AllowedDomain == "" {
		c.AllowedDomain = auth.DefaultAllowedDomain
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// GoogleConfigured reports whether the OAuth client credentials are present.
// Without them the browser login routes are not registered.
func (c *Config) GoogleConfigured() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// SlogLevel maps LOG_LEVEL to a slog.Level, defaulting to Info.
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
