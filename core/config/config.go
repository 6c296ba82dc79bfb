package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// MaxUploadMB rejects larger documents before download; 0 -> 20
	MaxUploadMB int `yaml:"max_upload_mb" envconfig:"MAX_UPLOAD_MB"`
	// Credit is appended to the welcome message.
	Credit string `yaml:"credit" envconfig:"BOT_CREDIT"`
	// AdminID may run admin-only commands; 0 disables them.
	AdminID int64 `yaml:"admin_id" envconfig:"ADMIN_ID"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL         string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen      string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port        int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
	SecretToken string `yaml:"secret_token" envconfig:"SECRET_TOKEN"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Stacks      string `yaml:"stacks"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Channel is a channel users must join before using the bot.
type Channel struct {
	Username  string `yaml:"username" json:"username"`
	InviteURL string `yaml:"invite_url" json:"invite_url"`
}

// Channels decodes the REQUIRED_CHANNELS env value, a JSON list of channels.
type Channels []Channel

// Decode implements envconfig.Decoder.
func (c *Channels) Decode(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		*c = nil
		return nil
	}
	var list []Channel
	if err := json.Unmarshal([]byte(value), &list); err != nil {
		return fmt.Errorf("REQUIRED_CHANNELS must be a JSON list: %w", err)
	}
	*c = list
	return nil
}

// AccessConfig configures the membership gate.
type AccessConfig struct {
	Channels Channels `yaml:"channels" envconfig:"REQUIRED_CHANNELS"`
	// CheckTimeoutSeconds bounds one round of membership lookups; 0 -> 10
	CheckTimeoutSeconds int `yaml:"check_timeout_seconds" envconfig:"ACCESS_CHECK_TIMEOUT_SECONDS"`
}

const (
	// StorageFS keeps session files on local disk.
	StorageFS = "fs"
	// StorageRedis keeps session files in Redis.
	StorageRedis = "redis"
)

// StorageConfig selects where uploaded and generated files live.
type StorageConfig struct {
	Backend string        `yaml:"backend" envconfig:"STORAGE_BACKEND"`
	Dir     string        `yaml:"dir" envconfig:"STORAGE_DIR"`
	TTL     time.Duration `yaml:"ttl" envconfig:"STORAGE_TTL"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Username string `yaml:"username" envconfig:"REDIS_USERNAME"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
}

// DatabaseConfig holds the task journal connection settings.
type DatabaseConfig struct {
	Enabled        bool   `yaml:"enabled" envconfig:"DB_ENABLED"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	MigrationsDir  string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

// HTTPConfig configures the health and metrics server.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"HTTP_ENABLED"`
	Listen  string `yaml:"listen" envconfig:"HTTP_LISTEN"`
	Port    int    `yaml:"port" envconfig:"PORT"`
}

// Config aggregates the bot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Access    AccessConfig    `yaml:"access"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  DatabaseConfig  `yaml:"database"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// CoreConfig returns cfg itself.
func (c *Config) CoreConfig() *Config { return c }

// MaxUploadBytes returns the document size limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Telegram.MaxUploadMB) * 1024 * 1024
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	if cfg.Telegram.MaxUploadMB <= 0 {
		cfg.Telegram.MaxUploadMB = 20
	}
	if cfg.Access.CheckTimeoutSeconds <= 0 {
		cfg.Access.CheckTimeoutSeconds = 10
	}
	for i, ch := range cfg.Access.Channels {
		name := strings.TrimSpace(ch.Username)
		if name == "" {
			return fmt.Errorf("access.channels[%d].username is required", i)
		}
		if !strings.HasPrefix(name, "@") {
			name = "@" + name
		}
		cfg.Access.Channels[i].Username = name
		if strings.TrimSpace(ch.InviteURL) == "" {
			cfg.Access.Channels[i].InviteURL = "https://t.me/" + strings.TrimPrefix(name, "@")
		}
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	switch backend {
	case "":
		backend = StorageFS
	case StorageFS, StorageRedis:
	default:
		return fmt.Errorf("invalid storage.backend %q; allowed: fs, redis", cfg.Storage.Backend)
	}
	cfg.Storage.Backend = backend
	if cfg.Storage.TTL <= 0 {
		cfg.Storage.TTL = time.Hour
	}

	if cfg.Database.Enabled {
		if strings.TrimSpace(cfg.Database.Host) == "" || strings.TrimSpace(cfg.Database.Name) == "" {
			return fmt.Errorf("database.host and database.name are required when database.enabled is true")
		}
		if cfg.Database.SSLMode == "" {
			cfg.Database.SSLMode = "disable"
		}
		if cfg.Database.MaxConnections <= 0 {
			cfg.Database.MaxConnections = 4
		}
		if cfg.Database.MigrationsDir == "" {
			cfg.Database.MigrationsDir = "migrations"
		}
	}

	if cfg.HTTP.Enabled && cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 8000
	}

	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}
