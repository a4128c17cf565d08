// Package config loads the engine's configuration from an optional YAML
// file and environment variables.
package config

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration of the engine.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Feed       FeedConfig       `yaml:"feed"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Settlement SettlementConfig `yaml:"settlement"`
	Limits     LimitsConfig     `yaml:"limits"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig selects the slog level: debug, info, warn or error.
type LogConfig struct {
	Level string `yaml:"level"`

	level slog.Level // set by Validate
}

// DatabaseConfig holds the PostgreSQL connection. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL     string `yaml:"url"`
	Migrate bool   `yaml:"migrate"`
}

// RedisConfig enables the results cache when URL is set.
type RedisConfig struct {
	URL       string        `yaml:"url"`
	ResultTTL time.Duration `yaml:"result_ttl"`
}

// FeedConfig holds the results feed settings.
type FeedConfig struct {
	BaseURL      string            `yaml:"base_url"`
	Timeout      time.Duration     `yaml:"timeout"`
	MaxRetries   int               `yaml:"max_retries"`
	RetryBackoff time.Duration     `yaml:"retry_backoff"`
	BatchSize    int               `yaml:"batch_size"`
	BatchTimeout time.Duration     `yaml:"batch_timeout"`
	Concurrency  int               `yaml:"concurrency"`
	Paths        map[string]string `yaml:"paths"` // category -> path, overrides the defaults
}

// KafkaConfig enables bet event publishing when Brokers is set.
type KafkaConfig struct {
	Brokers string `yaml:"brokers"` // comma-separated
	Topic   string `yaml:"topic"`
}

// SettlementConfig holds the settlement scheduler settings.
type SettlementConfig struct {
	Interval   time.Duration `yaml:"interval"`
	RunTimeout time.Duration `yaml:"run_timeout"`
	Disabled   bool          `yaml:"disabled"` // manual settlement only
}

// LimitsConfig caps reserved exposure. Zero disables a cap.
type LimitsConfig struct {
	MaxPerMarket decimal.Decimal `yaml:"max_per_market"`
	MaxPerEvent  decimal.Decimal `yaml:"max_per_event"`
}
