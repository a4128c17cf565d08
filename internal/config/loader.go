package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path, if any, and expands ${VAR} references.
// An empty path yields an empty config.
func Load(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return &cfg, nil
}

// LoadAndValidate loads the file named by CONFIG_FILE (optional), applies
// environment overrides and defaults, and validates the result.
func LoadAndValidate() (*Config, error) {
	cfg, err := Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides file values with the deployment environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("LOG_LEVEL", &c.Log.Level)
	str("DATABASE_URL", &c.Database.URL)
	str("REDIS_URL", &c.Redis.URL)
	str("FEED_BASE_URL", &c.Feed.BaseURL)
	str("KAFKA_BROKERS", &c.Kafka.Brokers)
	str("KAFKA_TOPIC", &c.Kafka.Topic)

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("DATABASE_MIGRATE"); ok && v != "" {
		migrate, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DATABASE_MIGRATE: %w", err)
		}
		c.Database.Migrate = migrate
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SETTLE_INTERVAL", &c.Settlement.Interval},
		{"FEED_TIMEOUT", &c.Feed.Timeout},
		{"FEED_BATCH_TIMEOUT", &c.Feed.BatchTimeout},
	}
	for _, d := range durations {
		if v, ok := lookup(d.key); ok && v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", d.key, err)
			}
			*d.dst = parsed
		}
	}

	limits := []struct {
		key string
		dst *decimal.Decimal
	}{
		{"MAX_EXPOSURE_PER_MARKET", &c.Limits.MaxPerMarket},
		{"MAX_EXPOSURE_PER_EVENT", &c.Limits.MaxPerEvent},
	}
	for _, l := range limits {
		if v, ok := lookup(l.key); ok && v != "" {
			parsed, err := decimal.NewFromString(v)
			if err != nil {
				return fmt.Errorf("%s: %w", l.key, err)
			}
			*l.dst = parsed
		}
	}
	return nil
}
