package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/betx/exchange-engine/internal/metrics"
	"github.com/betx/exchange-engine/internal/model"
)

// CachedFeed wraps a Source with a Redis read-through cache. Only decided
// results are cached: a market's winner never changes once published, while
// an undecided market must be asked again on the next run.
type CachedFeed struct {
	source Source
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedFeed creates a cached wrapper around a source.
func NewCachedFeed(source Source, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedFeed{
		source: source,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// Results serves cached markets from Redis and asks the source for the rest.
func (c *CachedFeed) Results(ctx context.Context, category model.Category, marketIDs []string) ([]model.Result, error) {
	if len(marketIDs) == 0 {
		return nil, nil
	}

	keys := make([]string, len(marketIDs))
	for i, id := range marketIDs {
		keys[i] = resultKey(category, id)
	}

	var results []model.Result
	missing := marketIDs

	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		// Cache unavailable: fall through to the source for everything.
		c.logger.Warn("results cache read failed", "err", err)
	} else {
		missing = nil
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				missing = append(missing, marketIDs[i])
				continue
			}
			var r model.Result
			if json.Unmarshal([]byte(s), &r) != nil {
				missing = append(missing, marketIDs[i])
				continue
			}
			results = append(results, r)
		}
		metrics.FeedCacheHits.Add(float64(len(results)))
	}

	if len(missing) == 0 {
		return results, nil
	}

	fresh, err := c.source.Results(ctx, category, missing)
	if err != nil {
		return nil, err
	}
	c.cache(ctx, category, fresh)
	return append(results, fresh...), nil
}

func (c *CachedFeed) cache(ctx context.Context, category model.Category, results []model.Result) {
	if len(results) == 0 {
		return
	}
	pipe := c.rdb.Pipeline()
	for _, r := range results {
		if data, err := json.Marshal(r); err == nil {
			pipe.Set(ctx, resultKey(category, r.MarketID), data, c.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("results cache write failed", "err", err)
	}
}

func resultKey(category model.Category, marketID string) string {
	return fmt.Sprintf("result:%s:%s", category, marketID)
}
