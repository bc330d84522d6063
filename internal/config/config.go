package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Store     StoreConfig     `mapstructure:"store" validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Review    ReviewConfig    `mapstructure:"review" validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat       string        `mapstructure:"log_format" validate:"omitempty,oneof=json text"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains the Postgres connection settings. URL is required
// when the postgres store backend is selected.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" validate:"omitempty,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// StoreConfig selects the review state store backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend" validate:"required,oneof=postgres redis"`
}

// RedisConfig contains the Redis connection settings used by the redis backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0,lte=15"`
	PoolSize int    `mapstructure:"pool_size" validate:"gte=0"`
}

// ReviewConfig tunes outcome recording and the scheduling policies.
type ReviewConfig struct {
	MaxConflictRetries  int           `mapstructure:"max_conflict_retries" validate:"gte=0,lte=10"`
	RetryBaseDelay      time.Duration `mapstructure:"retry_base_delay" validate:"gt=0"`
	RetryDelayDays      int           `mapstructure:"retry_delay_days" validate:"gte=0"`
	DifficultBaseDays   int           `mapstructure:"difficult_base_days" validate:"gte=0"`
	DifficultJitterDays int           `mapstructure:"difficult_jitter_days" validate:"gte=0"`
	MinSessionSeconds   int           `mapstructure:"min_session_seconds" validate:"gte=0"`
}

// SchedulerConfig controls the periodic due-queue poller.
type SchedulerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	DuePollInterval time.Duration `mapstructure:"due_poll_interval" validate:"gte=0"`
	DueBatchLimit   int           `mapstructure:"due_batch_limit" validate:"gte=0,lte=500"`
}
