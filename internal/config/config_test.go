package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SERVER_PORT", "")
	t.Setenv("CACHE_SIZE", "")
	t.Setenv("TOKEN_TTL", "")
	t.Setenv("LOG_FORMAT", "")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 512, cfg.CacheSize)
	assert.Equal(t, 7, cfg.ReminderLeadDays)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "gpt-4o", cfg.OpenAIModel)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("CACHE_SIZE", "64")
	t.Setenv("TOKEN_TTL", "30m")
	t.Setenv("REMINDER_LEAD_DAYS", "3")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 64, cfg.CacheSize)
	assert.Equal(t, 30*time.Minute, cfg.TokenTTL)
	assert.Equal(t, 3, cfg.ReminderLeadDays)
}

func TestFromEnv_BadInteger(t *testing.T) {
	t.Setenv("CACHE_SIZE", "lots")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CACHE_SIZE")
}

func TestValidate(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("CACHE_SIZE", "")
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("REMINDER_AT", "")

	cfg, err := FromEnv()
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "JWT_SECRET")

	cfg.DatabaseURL = "postgres://localhost/books"
	cfg.JWTSecret = "secret"
	assert.NoError(t, cfg.Validate())

	cfg.ReminderAt = "8am"
	assert.Error(t, cfg.Validate())
}
