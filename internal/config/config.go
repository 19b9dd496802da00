// Package config provides application configuration loading from environment.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/claude"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/extractor"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/gemini"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/session"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/sheets"
	"gitlab.com/yelinaung/sheets-expense-bot/internal/telemetry"
)

// Language model providers.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderNone      = "none"
)

// Defaults for optional settings.
const (
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "console"
	DefaultBoltPath          = "data/links.db"
	DefaultCurrencySymbol    = "₹"
	DefaultWebhookListenAddr = ":8080"
	DefaultServiceName       = "sheets-expense-bot"
)

// envConfig holds the raw environment values as koanf sees them.
type envConfig struct {
	TelegramBotToken      string `koanf:"TELEGRAM_BOT_TOKEN"`
	LogLevel              string `koanf:"LOG_LEVEL"`
	LogFormat             string `koanf:"LOG_FORMAT"`
	LogHashSalt           string `koanf:"LOG_HASH_SALT"`
	LLMProvider           string `koanf:"LLM_PROVIDER"`
	GeminiAPIKey          string `koanf:"GEMINI_API_KEY"`
	GeminiModel           string `koanf:"GEMINI_MODEL"`
	AnthropicAPIKey       string `koanf:"ANTHROPIC_API_KEY"`
	AnthropicModel        string `koanf:"ANTHROPIC_MODEL"`
	LLMTimeout            string `koanf:"LLM_TIMEOUT"`
	GoogleCredentialsFile string `koanf:"GOOGLE_CREDENTIALS_FILE"`
	GoogleCredentialsJSON string `koanf:"GOOGLE_CREDENTIALS_JSON"`
	SheetsShareMode       string `koanf:"SHEETS_SHARE_MODE"`
	SheetsTimeout         string `koanf:"SHEETS_TIMEOUT"`
	DatabaseURL           string `koanf:"DATABASE_URL"`
	BoltPath              string `koanf:"BOLT_PATH"`
	WhitelistedUserIDs    string `koanf:"WHITELISTED_USER_IDS"`
	WhitelistedUsernames  string `koanf:"WHITELISTED_USERNAMES"`
	SessionTTL            string `koanf:"SESSION_TTL"`
	CategoriesFile        string `koanf:"CATEGORIES_FILE"`
	CurrencySymbol        string `koanf:"CURRENCY_SYMBOL"`
	WebhookURL            string `koanf:"WEBHOOK_URL"`
	WebhookListenAddr     string `koanf:"WEBHOOK_LISTEN_ADDR"`
	WebhookSecret         string `koanf:"WEBHOOK_SECRET"`
	OTelExporter          string `koanf:"OTEL_EXPORTER"`
	ServiceName           string `koanf:"SERVICE_NAME"`
}

// Config holds all configuration for the application.
type Config struct {
	TelegramBotToken string
	LogLevel         string
	LogFormat        string
	LogHashSalt      string

	LLMProvider     string
	GeminiAPIKey    string
	GeminiModel     string
	AnthropicAPIKey string
	AnthropicModel  string
	LLMTimeout      time.Duration

	GoogleCredentialsFile string
	GoogleCredentialsJSON string
	SheetsShareMode       sheets.ShareMode
	SheetsTimeout         time.Duration

	DatabaseURL string
	BoltPath    string

	WhitelistedUserIDs   []int64
	WhitelistedUsernames []string

	SessionTTL     time.Duration
	CategoriesFile string
	CurrencySymbol string

	WebhookURL        string
	WebhookListenAddr string
	WebhookSecret     string

	OTelExporter string
	ServiceName  string
}

// Load reads configuration from a .env file and the environment, then
// validates it.
func Load() (*Config, error) {
	cfg, err := Read()
	if err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Read loads configuration without validating required settings. Malformed
// values are still reported.
func Read() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var raw envConfig
	if err := k.UnmarshalWithConf("", &raw, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return fromEnv(raw)
}

func fromEnv(raw envConfig) (*Config, error) {
	cfg := &Config{
		TelegramBotToken:      strings.TrimSpace(raw.TelegramBotToken),
		LogLevel:              withDefault(raw.LogLevel, DefaultLogLevel),
		LogFormat:             strings.ToLower(withDefault(raw.LogFormat, DefaultLogFormat)),
		LogHashSalt:           raw.LogHashSalt,
		GeminiAPIKey:          strings.TrimSpace(raw.GeminiAPIKey),
		GeminiModel:           withDefault(raw.GeminiModel, gemini.DefaultModel),
		AnthropicAPIKey:       strings.TrimSpace(raw.AnthropicAPIKey),
		AnthropicModel:        withDefault(raw.AnthropicModel, claude.DefaultModel),
		GoogleCredentialsFile: strings.TrimSpace(raw.GoogleCredentialsFile),
		GoogleCredentialsJSON: strings.TrimSpace(raw.GoogleCredentialsJSON),
		DatabaseURL:           strings.TrimSpace(raw.DatabaseURL),
		BoltPath:              withDefault(raw.BoltPath, DefaultBoltPath),
		CategoriesFile:        strings.TrimSpace(raw.CategoriesFile),
		CurrencySymbol:        withDefault(raw.CurrencySymbol, DefaultCurrencySymbol),
		WebhookURL:            strings.TrimSpace(raw.WebhookURL),
		WebhookListenAddr:     withDefault(raw.WebhookListenAddr, DefaultWebhookListenAddr),
		WebhookSecret:         raw.WebhookSecret,
		OTelExporter:          strings.ToLower(withDefault(raw.OTelExporter, telemetry.ExporterNone)),
		ServiceName:           withDefault(raw.ServiceName, DefaultServiceName),
		WhitelistedUserIDs:    parseUserIDs(raw.WhitelistedUserIDs),
		WhitelistedUsernames:  parseUsernames(raw.WhitelistedUsernames),
	}

	var errs []error

	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(raw.LLMProvider))
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = cfg.defaultProvider()
	}

	var err error
	if cfg.LLMTimeout, err = parseDuration("LLM_TIMEOUT", raw.LLMTimeout, extractor.DefaultTimeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.SheetsTimeout, err = parseDuration("SHEETS_TIMEOUT", raw.SheetsTimeout, sheets.DefaultTimeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.SessionTTL, err = parseDuration("SESSION_TTL", raw.SessionTTL, session.DefaultTTL); err != nil {
		errs = append(errs, err)
	}
	if cfg.SheetsShareMode, err = sheets.ParseShareMode(strings.TrimSpace(raw.SheetsShareMode)); err != nil {
		errs = append(errs, fmt.Errorf("SHEETS_SHARE_MODE: %w", err))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}

	return cfg, nil
}

func (c *Config) defaultProvider() string {
	switch {
	case c.GeminiAPIKey != "":
		return ProviderGemini
	case c.AnthropicAPIKey != "":
		return ProviderAnthropic
	default:
		return ProviderNone
	}
}

// validate checks that all required configuration is present.
func (c *Config) validate() error {
	var errs []string

	if c.TelegramBotToken == "" {
		errs = append(errs, "TELEGRAM_BOT_TOKEN is required")
	}

	if c.GoogleCredentialsFile == "" && c.GoogleCredentialsJSON == "" {
		errs = append(errs, "GOOGLE_CREDENTIALS_FILE or GOOGLE_CREDENTIALS_JSON is required")
	}

	switch c.LLMProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, "GEMINI_API_KEY is required when LLM_PROVIDER is gemini")
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			errs = append(errs, "ANTHROPIC_API_KEY is required when LLM_PROVIDER is anthropic")
		}
	case ProviderNone:
	default:
		errs = append(errs, fmt.Sprintf("LLM_PROVIDER %q is not one of gemini, anthropic, none", c.LLMProvider))
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("LOG_FORMAT %q is not one of console, json", c.LogFormat))
	}

	switch c.OTelExporter {
	case telemetry.ExporterNone, telemetry.ExporterStdout, telemetry.ExporterOTLPGRPC, telemetry.ExporterOTLPHTTP:
	default:
		errs = append(errs, fmt.Sprintf("OTEL_EXPORTER %q is not supported", c.OTelExporter))
	}

	if c.WebhookURL != "" && !strings.HasPrefix(c.WebhookURL, "https://") {
		errs = append(errs, "WEBHOOK_URL must use https")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// WebhookEnabled reports whether updates arrive by webhook instead of long
// polling.
func (c *Config) WebhookEnabled() bool {
	return c.WebhookURL != ""
}

// WhitelistEnabled reports whether access is restricted to listed users.
func (c *Config) WhitelistEnabled() bool {
	return len(c.WhitelistedUserIDs) > 0 || len(c.WhitelistedUsernames) > 0
}

// IsUserWhitelisted checks if a Telegram user ID or username is allowed.
// An empty whitelist allows everyone.
func (c *Config) IsUserWhitelisted(userID int64, username string) bool {
	if !c.WhitelistEnabled() {
		return true
	}

	if slices.Contains(c.WhitelistedUserIDs, userID) {
		return true
	}

	// Usernames compare case-insensitively.
	if username != "" {
		username = strings.TrimPrefix(username, "@")
		for _, whitelisted := range c.WhitelistedUsernames {
			if strings.EqualFold(whitelisted, username) {
				return true
			}
		}
	}

	return false
}

func parseUserIDs(s string) []int64 {
	var ids []int64
	for idStr := range strings.SplitSeq(s, ",") {
		idStr = strings.TrimSpace(idStr)
		if idStr == "" {
			continue
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func parseUsernames(s string) []string {
	var names []string
	for username := range strings.SplitSeq(s, ",") {
		username = strings.TrimSpace(username)
		if username == "" {
			continue
		}
		names = append(names, strings.TrimPrefix(username, "@"))
	}
	return names
}

func parseDuration(name, value string, def time.Duration) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", name, value)
	}
	return d, nil
}

func withDefault(value, def string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return def
}
