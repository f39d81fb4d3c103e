package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envAliases maps config keys to the variable names used by existing
// deployments. The first non-empty variable wins.
var envAliases = map[string][]string{
	"retriever.url":                   {"RETRIEVER_URL", "RAG_SERVER_URL"},
	"generator.api_key":               {"GENERATOR_API_KEY", "OPENROUTER_API_KEY"},
	"whatsapp.verify_token":           {"WHATSAPP_VERIFY_TOKEN"},
	"whatsapp.access_token":           {"WHATSAPP_ACCESS_TOKEN"},
	"whatsapp.phone_number_id":        {"WHATSAPP_PHONE_NUMBER_ID"},
	"telegram.bot_token":              {"TELEGRAM_BOT_TOKEN"},
	"database.url":                    {"DATABASE_URL"},
	"admin.jwt_secret":                {"JWT_SECRET"},
	"admin.username":                  {"ADMIN_USERNAME"},
	"admin.password_hash":             {"ADMIN_PASSWORD_HASH"},
	"rules.file":                      {"RULES_FILE"},
	"generator.ungrounded_with_facts": {"UNGROUNDED_WITH_FACTS"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_body_bytes", 10*1024)
	v.SetDefault("server.rate_limit_per_minute", 20)
	v.SetDefault("server.rate_limit_burst", 5)
	v.SetDefault("server.allowed_origin", "*")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("deadline.request", 9*time.Second)
	v.SetDefault("deadline.safety_margin", 300*time.Millisecond)
	v.SetDefault("deadline.min_call", 250*time.Millisecond)
	v.SetDefault("deadline.retrieve_fraction", 0.6)

	v.SetDefault("retriever.url", "")
	v.SetDefault("retriever.health_url", "")
	v.SetDefault("retriever.health_check", false)
	v.SetDefault("retriever.health_timeout", time.Second)
	v.SetDefault("retriever.timeout", 4*time.Second)

	v.SetDefault("generator.url", "https://openrouter.ai/api/v1/chat/completions")
	v.SetDefault("generator.api_key", "")
	v.SetDefault("generator.model", "mistralai/mistral-small-3.2-24b-instruct:free")
	v.SetDefault("generator.site_url", "")
	v.SetDefault("generator.site_name", "Huduma")
	v.SetDefault("generator.grounded_timeout", 6*time.Second)
	v.SetDefault("generator.ungrounded_timeout", 3*time.Second)
	v.SetDefault("generator.max_attempts", 3)
	v.SetDefault("generator.backoff_base", 2*time.Second)
	v.SetDefault("generator.estimated_call", 4*time.Second)
	v.SetDefault("generator.ungrounded_with_facts", false)
	v.SetDefault("generator.max_history_turns", 10)

	v.SetDefault("whatsapp.verify_token", "")
	v.SetDefault("whatsapp.access_token", "")
	v.SetDefault("whatsapp.phone_number_id", "")
	v.SetDefault("whatsapp.api_version", "v19.0")
	v.SetDefault("whatsapp.base_url", "https://graph.facebook.com")
	v.SetDefault("whatsapp.display_number", "")
	v.SetDefault("whatsapp.sender_per_minute", 10)
	v.SetDefault("whatsapp.sender_burst", 3)

	v.SetDefault("telegram.bot_token", "")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.record_timeout", 2*time.Second)

	v.SetDefault("admin.username", "")
	v.SetDefault("admin.password_hash", "")
	v.SetDefault("admin.jwt_secret", "")
	v.SetDefault("admin.token_ttl", 24*time.Hour)

	v.SetDefault("rules.file", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load reads .env (when present) and the process environment into a
// validated Config.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFrom(viper.New())
}

// LoadFrom builds a Config using the supplied viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Retriever.HealthURL == "" {
		cfg.Retriever.HealthURL = deriveHealthURL(cfg.Retriever.URL)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// deriveHealthURL swaps the last path segment of the retriever endpoint
// for /health, so https://rag.example/ask becomes https://rag.example/health.
func deriveHealthURL(retrieverURL string) string {
	if retrieverURL == "" {
		return ""
	}
	idx := strings.LastIndex(retrieverURL, "/")
	schemeEnd := strings.Index(retrieverURL, "://")
	if idx < 0 || (schemeEnd >= 0 && idx <= schemeEnd+2) {
		return strings.TrimRight(retrieverURL, "/") + "/health"
	}
	return retrieverURL[:idx] + "/health"
}
