// Package config provides configuration loading and validation utilities.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingBotToken is returned when no bot token is configured.
var ErrMissingBotToken = errors.New("bot token is required (set BOT_TOKEN)")

// Load reads configuration from YAML files and environment variables, validates it, and returns the resulting Config.
func Load() (*Config, *viper.Viper, error) {
	// .env files are optional; real deployments inject the environment directly.
	_ = godotenv.Load(".env.local", ".env")

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	return LoadFile(fmt.Sprintf("./configs/%s.yaml", env), env)
}

// LoadFile reads the given YAML file (if it exists) overlaid with environment variables.
func LoadFile(path, env string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.AppEnv = env

	if err := Validate(&cfg); err != nil {
		return nil, nil, err
	}

	return &cfg, v, nil
}

// Validate checks struct constraints. A missing bot token is reported as ErrMissingBotToken.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Bot.Token) == "" {
		return ErrMissingBotToken
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	return nil
}

// WatchLogLevel invokes onChange with the new logger level whenever the config file changes.
func WatchLogLevel(v *viper.Viper, onChange func(level string)) {
	if v == nil || onChange == nil || v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(v.GetString("logger.level"))
	})
	v.WatchConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.token", "")
	v.SetDefault("bot.mode", "polling")
	v.SetDefault("bot.timeout", 10*time.Second)
	v.SetDefault("bot.webhook_listen", ":8443")
	v.SetDefault("bot.webhook_url", "")

	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
	v.SetDefault("logger.file", "")
	v.SetDefault("logger.max_size_mb", 50)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age_days", 14)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.pool_timeout", 4*time.Second)
	v.SetDefault("redis.idle_timeout", 5*time.Minute)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.min_retry_backoff", 8*time.Millisecond)
	v.SetDefault("redis.max_retry_backoff", 512*time.Millisecond)

	v.SetDefault("payments.base_url", "https://income-api.copperx.io")
	v.SetDefault("payments.timeout", 15*time.Second)
	v.SetDefault("payments.max_retries", 3)
	v.SetDefault("payments.initial_backoff", 500*time.Millisecond)
	v.SetDefault("payments.max_backoff", 5*time.Second)
	v.SetDefault("payments.requests_per_second", 5.0)
	v.SetDefault("payments.burst", 10)

	v.SetDefault("session.driver", "file")
	v.SetDefault("session.file_path", "data/sessions.json")
	v.SetDefault("session.ttl", 24*time.Hour)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.migrations_dir", "migrations")

	v.SetDefault("state.backend", "memory")
	v.SetDefault("state.idle_ttl", time.Duration(0))
	v.SetDefault("state.cleanup_interval", 5*time.Minute)
	v.SetDefault("state.lock_timeout", 30*time.Second)
	v.SetDefault("state.lock_ttl", 2*time.Minute)

	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.pusher_key", "")
	v.SetDefault("notifications.pusher_cluster", "ap1")
	v.SetDefault("notifications.pusher_host", "")
	v.SetDefault("notifications.throttle_window", 5*time.Second)
	v.SetDefault("notifications.webhook_path", "/webhooks/deposit")
	v.SetDefault("notifications.webhook_secret", "")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.per_user.limit", 30)
	v.SetDefault("ratelimit.per_user.window", "1m")
	v.SetDefault("ratelimit.commands", map[string]any{
		"send":     map[string]any{"limit": 10, "window": "1m"},
		"withdraw": map[string]any{"limit": 5, "window": "1m"},
		"bulk":     map[string]any{"limit": 3, "window": "5m"},
	})
	v.SetDefault("ratelimit.whitelist", []int64{})

	v.SetDefault("jobs.enabled", false)
	v.SetDefault("jobs.concurrency", 5)
	v.SetDefault("jobs.sweep_cron", "*/15 * * * *")

	v.SetDefault("limits.max_transfer_amount", "10000")
	v.SetDefault("limits.history_page_size", 5)
	v.SetDefault("limits.max_bulk_recipients", 50)

	v.SetDefault("i18n.default_lang", "en")
}
