package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockful/backoffice/internal/auth"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "test-secret-at-least-16-chars!!")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, auth.DefaultAllowedDomain, cfg.AllowedDomain)
	assert.Equal(t, 24*time.Hour, cfg.SessionMaxAge)
	assert.Equal(t, 5*time.Second, cfg.ReconcileGrace)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxUploadBytes)
	assert.Equal(t, ProvisionAuto, cfg.Provisioning)
	assert.Equal(t, "http://localhost:3000", cfg.FrontendURL)
	assert.False(t, cfg.GoogleConfigured())
}

func TestParse_Overrides(t *testing.T) {
	t.Setenv("SESSION_SECRET", "test-secret-at-least-16-chars!!")
	t.Setenv("PORT", "8081")
	t.Setenv("ALLOWED_DOMAIN", "@example.org")
	t.Setenv("SESSION_MAX_AGE", "2h")
	t.Setenv("AUTH_PROVISIONING", "registered")
	t.Setenv("GOOGLE_CLIENT_ID", "id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, "example.org", cfg.AllowedDomain, "leading @ is stripped")
	assert.Equal(t, 2*time.Hour, cfg.SessionMaxAge)
	assert.Equal(t, ProvisionRegistered, cfg.Provisioning)
	assert.True(t, cfg.GoogleConfigured())
}

func TestParse_MissingSessionSecret(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_SECRET")
}

func TestParse_BadProvisioning(t *testing.T) {
	t.Setenv("SESSION_SECRET", "test-secret-at-least-16-chars!!")
	t.Setenv("AUTH_PROVISIONING", "sometimes")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_PROVISIONING")
}

func TestParse_BadPort(t *testing.T) {
	t.Setenv("SESSION_SECRET", "test-secret-at-least-16-chars!!")
	t.Setenv("PORT", "not-an-int")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: parse env")
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		cfg := Config{LogLevel: in}
		assert.Equal(t, want, cfg.SlogLevel(), "LOG_LEVEL=%q", in)
	}
}
