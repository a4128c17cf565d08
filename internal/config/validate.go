package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/betx/exchange-engine/internal/model"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return err
	}
	c.Log.level = level

	if c.Feed.BaseURL == "" && !c.Settlement.Disabled {
		return errors.New("feed.base_url is required unless settlement is disabled")
	}
	if c.Feed.MaxRetries < 0 {
		return errors.New("feed.max_retries must be >= 0")
	}
	if c.Feed.BatchSize < 1 || c.Feed.BatchSize > 50 {
		return fmt.Errorf("feed.batch_size must be between 1 and 50, got %d", c.Feed.BatchSize)
	}
	if c.Feed.Concurrency < 1 {
		return errors.New("feed.concurrency must be >= 1")
	}
	for category := range c.Feed.Paths {
		if _, err := model.ParseCategory(category); err != nil {
			return fmt.Errorf("feed.paths: %w", err)
		}
	}

	if c.Settlement.Interval <= 0 {
		return errors.New("settlement.interval must be positive")
	}
	if c.Settlement.RunTimeout <= 0 {
		return errors.New("settlement.run_timeout must be positive")
	}

	if c.Limits.MaxPerMarket.IsNegative() {
		return errors.New("limits.max_per_market must be >= 0")
	}
	if c.Limits.MaxPerEvent.IsNegative() {
		return errors.New("limits.max_per_event must be >= 0")
	}
	return nil
}

// SlogLevel returns the level parsed by Validate (info before validation).
func (l LogConfig) SlogLevel() slog.Level {
	return l.level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// FeedPaths returns the configured feed paths keyed by category.
func (f FeedConfig) FeedPaths() map[model.Category]string {
	if len(f.Paths) == 0 {
		return nil
	}
	paths := make(map[model.Category]string, len(f.Paths))
	for name, path := range f.Paths {
		if category, err := model.ParseCategory(name); err == nil {
			paths[category] = path
		}
	}
	return paths
}
