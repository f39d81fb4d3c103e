package config

import (
	"fmt"
	"time"

	apperrors "github.com/huduma/answer-service/internal/errors"
)

// Config is built once at startup and passed explicitly to every
// component. Nothing reads the environment after Load returns.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Deadline  DeadlineConfig  `mapstructure:"deadline"`
	Retriever RetrieverConfig `mapstructure:"retriever"`
	Generator GeneratorConfig `mapstructure:"generator"`
	WhatsApp  WhatsAppConfig  `mapstructure:"whatsapp"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Addr               string        `mapstructure:"addr"`
	MaxBodyBytes       int64         `mapstructure:"max_body_bytes"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute"`
	RateLimitBurst     int           `mapstructure:"rate_limit_burst"`
	AllowedOrigin      string        `mapstructure:"allowed_origin"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
}

// DeadlineConfig bounds the whole answer cascade.
type DeadlineConfig struct {
	Request          time.Duration `mapstructure:"request"`
	SafetyMargin     time.Duration `mapstructure:"safety_margin"`
	MinCall          time.Duration `mapstructure:"min_call"`
	RetrieveFraction float64       `mapstructure:"retrieve_fraction"`
}

type RetrieverConfig struct {
	URL           string        `mapstructure:"url"`
	HealthURL     string        `mapstructure:"health_url"`
	HealthCheck   bool          `mapstructure:"health_check"`
	HealthTimeout time.Duration `mapstructure:"health_timeout"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type GeneratorConfig struct {
	URL                 string        `mapstructure:"url"`
	APIKey              string        `mapstructure:"api_key"`
	Model               string        `mapstructure:"model"`
	SiteURL             string        `mapstructure:"site_url"`
	SiteName            string        `mapstructure:"site_name"`
	GroundedTimeout     time.Duration `mapstructure:"grounded_timeout"`
	UngroundedTimeout   time.Duration `mapstructure:"ungrounded_timeout"`
	MaxAttempts         int           `mapstructure:"max_attempts"`
	BackoffBase         time.Duration `mapstructure:"backoff_base"`
	EstimatedCall       time.Duration `mapstructure:"estimated_call"`
	UngroundedWithFacts bool          `mapstructure:"ungrounded_with_facts"`
	MaxHistoryTurns     int           `mapstructure:"max_history_turns"`
}

type WhatsAppConfig struct {
	VerifyToken     string `mapstructure:"verify_token"`
	AccessToken     string `mapstructure:"access_token"`
	PhoneNumberID   string `mapstructure:"phone_number_id"`
	APIVersion      string `mapstructure:"api_version"`
	BaseURL         string `mapstructure:"base_url"`
	DisplayNumber   string `mapstructure:"display_number"`
	SenderPerMinute int    `mapstructure:"sender_per_minute"`
	SenderBurst     int    `mapstructure:"sender_burst"`
}

// Enabled reports whether the webhook should be mounted.
func (w WhatsAppConfig) Enabled() bool {
	return w.VerifyToken != ""
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
}

type DatabaseConfig struct {
	URL           string        `mapstructure:"url"`
	MaxConns      int32         `mapstructure:"max_conns"`
	MinConns      int32         `mapstructure:"min_conns"`
	RecordTimeout time.Duration `mapstructure:"record_timeout"`
}

type AdminConfig struct {
	Username     string        `mapstructure:"username"`
	PasswordHash string        `mapstructure:"password_hash"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
}

// Enabled reports whether admin routes should be mounted.
func (a AdminConfig) Enabled() bool {
	return a.Username != "" && a.PasswordHash != ""
}

type RulesConfig struct {
	File string `mapstructure:"file"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate reports the first setting that would make the service unable
// to answer.
func (c *Config) Validate() error {
	if c.Generator.URL == "" {
		return apperrors.NewConfigurationError("generator url is required")
	}
	if c.Generator.APIKey == "" {
		return apperrors.NewConfigurationError("OPENROUTER_API_KEY is required")
	}
	if c.Deadline.Request <= 0 {
		return apperrors.NewConfigurationError("request deadline must be positive")
	}
	if c.Deadline.SafetyMargin < 0 || c.Deadline.MinCall < 0 {
		return apperrors.NewConfigurationError("safety margin and minimum call budget must not be negative")
	}
	if c.Deadline.RetrieveFraction <= 0 || c.Deadline.RetrieveFraction > 1 {
		return apperrors.NewConfigurationError("retrieve fraction must be in (0, 1]")
	}
	stages := map[string]time.Duration{
		"retriever.timeout":            c.Retriever.Timeout,
		"generator.grounded_timeout":   c.Generator.GroundedTimeout,
		"generator.ungrounded_timeout": c.Generator.UngroundedTimeout,
	}
	for name, d := range stages {
		if d <= 0 {
			return apperrors.NewConfigurationError(name + " must be positive")
		}
		if d > c.Deadline.Request {
			return apperrors.NewConfigurationError(fmt.Sprintf("%s (%s) exceeds request deadline (%s)", name, d, c.Deadline.Request))
		}
	}
	if c.Generator.MaxAttempts < 1 {
		return apperrors.NewConfigurationError("generator.max_attempts must be at least 1")
	}
	if c.Generator.BackoffBase <= 0 {
		return apperrors.NewConfigurationError("generator.backoff_base must be positive")
	}
	if c.WhatsApp.Enabled() && (c.WhatsApp.AccessToken == "" || c.WhatsApp.PhoneNumberID == "") {
		return apperrors.NewConfigurationError("WHATSAPP_ACCESS_TOKEN and WHATSAPP_PHONE_NUMBER_ID are required when WHATSAPP_VERIFY_TOKEN is set")
	}
	if c.Admin.Enabled() && c.Admin.JWTSecret == "" {
		return apperrors.NewConfigurationError("JWT_SECRET is required when admin credentials are set")
	}
	return nil
}
