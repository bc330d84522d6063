package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "RELEARN"

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and the rules that span sections.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	switch cfg.Store.Backend {
	case "postgres":
		if cfg.Database.URL == "" {
			return errors.New("config validation failed: database.url is required for the postgres backend")
		}
	case "redis":
		if cfg.Redis.Addr == "" {
			return errors.New("config validation failed: redis.addr is required for the redis backend")
		}
	}

	if cfg.Scheduler.Enabled && cfg.Scheduler.DuePollInterval < time.Second {
		return fmt.Errorf("config validation failed: scheduler.due_poll_interval must be at least 1s, got %s",
			cfg.Scheduler.DuePollInterval)
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("store.backend", "postgres")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("review.max_conflict_retries", 3)
	v.SetDefault("review.retry_base_delay", 10*time.Millisecond)
	v.SetDefault("review.retry_delay_days", 2)
	v.SetDefault("review.difficult_base_days", 7)
	v.SetDefault("review.difficult_jitter_days", 7)
	v.SetDefault("review.min_session_seconds", 30)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.due_poll_interval", 5*time.Minute)
	v.SetDefault("scheduler.due_batch_limit", 100)
}
