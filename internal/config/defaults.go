package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultPort             = 8080
	DefaultReadTimeout      = 10 * time.Second
	DefaultWriteTimeout     = 30 * time.Second
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultLogLevel         = "info"
	DefaultResultTTL        = 10 * time.Minute
	DefaultFeedTimeout      = 30 * time.Second
	DefaultFeedMaxRetries   = 2
	DefaultFeedRetryBackoff = 500 * time.Millisecond
	DefaultFeedBatchSize    = 50
	DefaultFeedBatchTimeout = 10 * time.Second
	DefaultFeedConcurrency  = 8
	DefaultKafkaTopic       = "bets"
	DefaultSettleInterval   = time.Minute
	DefaultSettleRunTimeout = 2 * time.Minute
)

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	if c.Redis.ResultTTL == 0 {
		c.Redis.ResultTTL = DefaultResultTTL
	}

	if c.Feed.Timeout == 0 {
		c.Feed.Timeout = DefaultFeedTimeout
	}
	if c.Feed.MaxRetries == 0 {
		c.Feed.MaxRetries = DefaultFeedMaxRetries
	}
	if c.Feed.RetryBackoff == 0 {
		c.Feed.RetryBackoff = DefaultFeedRetryBackoff
	}
	if c.Feed.BatchSize == 0 {
		c.Feed.BatchSize = DefaultFeedBatchSize
	}
	if c.Feed.BatchTimeout == 0 {
		c.Feed.BatchTimeout = DefaultFeedBatchTimeout
	}
	if c.Feed.Concurrency == 0 {
		c.Feed.Concurrency = DefaultFeedConcurrency
	}

	if c.Kafka.Topic == "" {
		c.Kafka.Topic = DefaultKafkaTopic
	}

	if c.Settlement.Interval == 0 {
		c.Settlement.Interval = DefaultSettleInterval
	}
	if c.Settlement.RunTimeout == 0 {
		c.Settlement.RunTimeout = DefaultSettleRunTimeout
	}
}
