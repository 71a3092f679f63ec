package config

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultMaxTransferAmount is the ceiling above which amounts are rejected as unusually high.
var DefaultMaxTransferAmount = decimal.NewFromInt(10000)

// Config holds runtime configuration for the payments bot.
type Config struct {
	AppEnv        string              `mapstructure:"app_env"`
	Bot           BotConfig           `mapstructure:"bot"`
	Server        ServerConfig        `mapstructure:"server"`
	Logger        LoggerConfig        `mapstructure:"logger"`
	Sentry        SentryConfig        `mapstructure:"sentry"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Payments      PaymentsConfig      `mapstructure:"payments"`
	Session       SessionConfig       `mapstructure:"session"`
	Database      DatabaseConfig      `mapstructure:"database"`
	State         StateConfig         `mapstructure:"state"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	RateLimit     RateLimitConfig     `mapstructure:"ratelimit"`
	Jobs          JobsConfig          `mapstructure:"jobs"`
	Limits        LimitsConfig        `mapstructure:"limits"`
	I18n          I18nConfig          `mapstructure:"i18n"`
}

type BotConfig struct {
	Token string `mapstructure:"token" validate:"required"`
	// Mode is either "polling" or "webhook".
	Mode    string        `mapstructure:"mode" validate:"omitempty,oneof=polling webhook"`
	Timeout time.Duration `mapstructure:"timeout"`
	// WebhookListen is the local address telebot's webhook poller binds to.
	WebhookListen string `mapstructure:"webhook_listen"`
	WebhookURL    string `mapstructure:"webhook_url" validate:"omitempty,url"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"omitempty,oneof=text json"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type SentryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	DSN         string `mapstructure:"dsn" validate:"required_if=Enabled true"`
	Environment string `mapstructure:"environment"`
}

type RedisConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	PoolSize        int           `mapstructure:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	PoolTimeout     time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

type PaymentsConfig struct {
	BaseURL           string        `mapstructure:"base_url" validate:"required,url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

type SessionConfig struct {
	// Driver is "file" or "postgres".
	Driver   string        `mapstructure:"driver" validate:"omitempty,oneof=file postgres"`
	FilePath string        `mapstructure:"file_path"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type DatabaseConfig struct {
	DSN           string `mapstructure:"dsn"`
	MigrationsDir string `mapstructure:"migrations_dir"`
}

type StateConfig struct {
	// Backend is "memory" or "redis".
	Backend         string        `mapstructure:"backend" validate:"omitempty,oneof=memory redis"`
	IdleTTL         time.Duration `mapstructure:"idle_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"`
	// LockTTL is how long a Redis chat lock survives a crashed holder.
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
}

type NotificationsConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	PusherKey      string        `mapstructure:"pusher_key"`
	PusherCluster  string        `mapstructure:"pusher_cluster"`
	PusherHost     string        `mapstructure:"pusher_host"`
	ThrottleWindow time.Duration `mapstructure:"throttle_window"`
	WebhookPath    string        `mapstructure:"webhook_path"`
	WebhookSecret  string        `mapstructure:"webhook_secret"`
}

type RateLimitRule struct {
	Limit  int    `mapstructure:"limit"`
	Window string `mapstructure:"window"`
}

type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	PerUser RateLimitRule `mapstructure:"per_user"`
	// Commands holds stricter limits for money-moving commands, keyed by command name.
	Commands  map[string]RateLimitRule `mapstructure:"commands"`
	Whitelist []int64                  `mapstructure:"whitelist"`
}

type JobsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Concurrency int    `mapstructure:"concurrency"`
	SweepCron   string `mapstructure:"sweep_cron"`
}

type LimitsConfig struct {
	MaxTransferAmount string `mapstructure:"max_transfer_amount"`
	HistoryPageSize   int    `mapstructure:"history_page_size"`
	MaxBulkRecipients int    `mapstructure:"max_bulk_recipients"`
}

type I18nConfig struct {
	DefaultLang string `mapstructure:"default_lang"`
}

// MaxTransfer parses MaxTransferAmount, falling back to DefaultMaxTransferAmount.
func (l LimitsConfig) MaxTransfer() decimal.Decimal {
	raw := strings.TrimSpace(l.MaxTransferAmount)
	if raw == "" {
		return DefaultMaxTransferAmount
	}

	value, err := decimal.NewFromString(raw)
	if err != nil || !value.IsPositive() {
		return DefaultMaxTransferAmount
	}
	return value
}
