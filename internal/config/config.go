// Package config loads runtime settings from the environment, an optional
// .env file and an optional config.yaml.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds every setting of the service.
type Config struct {
	TelegramBotToken string `mapstructure:"telegram_bot_token"`
	DatabaseURL      string `mapstructure:"database_url"`
	RedisAddr        string `mapstructure:"redis_addr"`
	HTTPAddr         string `mapstructure:"http_addr"`
	AdminPassword    string `mapstructure:"admin_password"`
	JWTSecret        string `mapstructure:"jwt_secret"`
	LogLevel         string `mapstructure:"log_level"`
	LogFormat        string `mapstructure:"log_format"`
	DefaultLanguage  string `mapstructure:"default_language"`

	Policy `mapstructure:",squash"`
}

// Policy are the engine's timing, moderation and economy knobs.
type Policy struct {
	SearchTimeout  time.Duration `mapstructure:"search_timeout"`
	ChatDuration   time.Duration `mapstructure:"chat_duration"`
	RevealWindow   time.Duration `mapstructure:"reveal_window"`
	EndAfterReveal bool          `mapstructure:"end_after_reveal"`
	MaxWarnings    int           `mapstructure:"max_warnings"`
	UnbanCost      int64         `mapstructure:"unban_cost"`
	PremiumCost    int64         `mapstructure:"premium_cost"`
	PhotoCost      int64         `mapstructure:"photo_cost"`
	ReferralReward int64         `mapstructure:"referral_reward"`
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() Policy {
	return Policy{
		SearchTimeout:  DefaultSearchTimeout,
		ChatDuration:   DefaultChatDuration,
		RevealWindow:   DefaultRevealWindow,
		MaxWarnings:    DefaultMaxWarnings,
		UnbanCost:      DefaultUnbanCost,
		PremiumCost:    DefaultPremiumCost,
		PhotoCost:      DefaultPhotoCost,
		ReferralReward: DefaultReferralReward,
	}
}

// Validate rejects settings the engine cannot run with.
func (p Policy) Validate() error {
	if p.SearchTimeout <= 0 || p.ChatDuration <= 0 || p.RevealWindow <= 0 {
		return errors.New("search_timeout, chat_duration and reveal_window must be positive")
	}
	if p.MaxWarnings < 1 {
		return fmt.Errorf("max_warnings must be at least 1, got %d", p.MaxWarnings)
	}
	if p.UnbanCost < 0 || p.PremiumCost < 0 || p.PhotoCost < 0 || p.ReferralReward < 0 {
		return errors.New("costs and rewards must not be negative")
	}
	return nil
}

// MinJWTSecretLength is the shortest accepted HMAC secret for API tokens.
const MinJWTSecretLength = 32

// Validate rejects a configuration the service cannot run safely with.
// The HTTP API signs tokens with jwt_secret, so it needs a real one.
func (c *Config) Validate() error {
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	if c.HTTPAddr != "" && len(c.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("jwt_secret must be at least %d bytes while the HTTP API is enabled", MinJWTSecretLength)
	}
	return nil
}

// Load reads .env (if present), config.yaml (if present) and the environment.
// Environment variables win, e.g. CHAT_DURATION=5m.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Str("module", "config").Msg("no .env file, using process environment")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		log.Info().Str("module", "config").Str("file", v.ConfigFileUsed()).Msg("loaded config file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	p := DefaultPolicy()

	// AutomaticEnv only resolves keys viper already knows about, so every key
	// gets a default here, even the empty ones.
	v.SetDefault("telegram_bot_token", "")
	v.SetDefault("database_url", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("admin_password", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("default_language", "ru")

	v.SetDefault("search_timeout", p.SearchTimeout)
	v.SetDefault("chat_duration", p.ChatDuration)
	v.SetDefault("reveal_window", p.RevealWindow)
	v.SetDefault("end_after_reveal", p.EndAfterReveal)
	v.SetDefault("max_warnings", p.MaxWarnings)
	v.SetDefault("unban_cost", p.UnbanCost)
	v.SetDefault("premium_cost", p.PremiumCost)
	v.SetDefault("photo_cost", p.PhotoCost)
	v.SetDefault("referral_reward", p.ReferralReward)
}
