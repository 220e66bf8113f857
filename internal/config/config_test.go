package config_test

import (
	"anonchat/backend/internal/config"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = strings.Repeat("s", config.MinJWTSecretLength)

func TestDefaultPolicyIsValid(t *testing.T) {
	p := config.DefaultPolicy()

	require.NoError(t, p.Validate())
	assert.Equal(t, 2*time.Minute, p.SearchTimeout)
	assert.Equal(t, 10*time.Minute, p.ChatDuration)
	assert.Equal(t, 3, p.MaxWarnings)
	assert.Equal(t, int64(100), p.UnbanCost)
	assert.False(t, p.EndAfterReveal, "chats continue after a reveal by default")
}

func TestPolicyValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *config.Policy)
	}{
		{"zero chat duration", func(p *config.Policy) { p.ChatDuration = 0 }},
		{"negative reveal window", func(p *config.Policy) { p.RevealWindow = -time.Second }},
		{"no warnings allowed", func(p *config.Policy) { p.MaxWarnings = 0 }},
		{"negative unban cost", func(p *config.Policy) { p.UnbanCost = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := config.DefaultPolicy()
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestLoad_EnvironmentOverridesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHAT_DURATION", "5m")
	t.Setenv("MAX_WARNINGS", "5")
	t.Setenv("END_AFTER_REVEAL", "true")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := config.Load()

	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Policy.ChatDuration)
	assert.Equal(t, 5, cfg.Policy.MaxWarnings)
	assert.True(t, cfg.Policy.EndAfterReveal)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 2*time.Minute, cfg.Policy.SearchTimeout, "unset keys keep their defaults")
}

func TestLoad_InvalidPolicy(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MAX_WARNINGS", "0")
	t.Setenv("JWT_SECRET", testSecret)

	_, err := config.Load()

	assert.Error(t, err)
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
	}{
		{"unset", ""},
		{"too short", "secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv("JWT_SECRET", tt.secret)

			_, err := config.Load()

			require.Error(t, err)
			assert.Contains(t, err.Error(), "jwt_secret")
		})
	}
}

func TestConfigValidate_SecretOnlyNeededForHTTP(t *testing.T) {
	cfg := config.Config{Policy: config.DefaultPolicy()}
	assert.NoError(t, cfg.Validate(), "no HTTP API, no tokens")

	cfg.HTTPAddr = ":8080"
	assert.Error(t, cfg.Validate())

	cfg.JWTSecret = testSecret
	assert.NoError(t, cfg.Validate())
}
