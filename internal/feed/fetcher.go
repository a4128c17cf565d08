package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/betx/exchange-engine/internal/metrics"
	"github.com/betx/exchange-engine/internal/model"
)

// MaxBatchSize is the most market ids the provider accepts per request.
const MaxBatchSize = 50

// BatchError records one failed batch. Its markets are treated as not
// decided yet.
type BatchError struct {
	Category  model.Category
	MarketIDs []string
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("feed: %s batch of %d markets: %v", e.Category, len(e.MarketIDs), e.Err)
}

func (e *BatchError) Unwrap() []error { return []error{model.ErrFeedUnavailable, e.Err} }

// FetcherConfig holds batching parameters.
type FetcherConfig struct {
	BatchSize    int           // ids per request, capped at MaxBatchSize
	BatchTimeout time.Duration // deadline of each request
	Concurrency  int           // requests in flight across all categories
}

// DefaultFetcherConfig returns sensible defaults.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		BatchSize:    MaxBatchSize,
		BatchTimeout: 10 * time.Second,
		Concurrency:  8,
	}
}

// Fetcher splits market ids into batches and fetches them concurrently.
// A failed batch never cancels its siblings.
type Fetcher struct {
	source Source
	cfg    FetcherConfig
	logger *slog.Logger
}

// NewFetcher creates a fetcher over the given source.
func NewFetcher(source Source, cfg FetcherConfig, logger *slog.Logger) *Fetcher {
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{source: source, cfg: cfg, logger: logger}
}

type batch struct {
	category model.Category
	ids      []string
}

// FetchAll returns the decided results keyed by market id, together with
// every batch that failed.
func (f *Fetcher) FetchAll(ctx context.Context, idsByCategory map[model.Category][]string) (map[string]model.Result, []*BatchError) {
	var batches []batch
	for _, category := range model.Categories {
		batches = append(batches, f.split(category, idsByCategory[category])...)
	}

	var (
		mu       sync.Mutex
		results  = make(map[string]model.Result)
		failures []*BatchError
	)

	var g errgroup.Group
	g.SetLimit(f.cfg.Concurrency)
	for _, b := range batches {
		b := b
		g.Go(func() error {
			bctx, cancel := context.WithTimeout(ctx, f.cfg.BatchTimeout)
			defer cancel()

			res, err := f.source.Results(bctx, b.category, b.ids)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				metrics.FeedBatchFailures.WithLabelValues(string(b.category)).Inc()
				f.logger.Warn("results batch failed",
					"category", b.category,
					"markets", len(b.ids),
					"err", err,
				)
				failures = append(failures, &BatchError{Category: b.category, MarketIDs: b.ids, Err: err})
				return nil
			}
			for _, r := range res {
				results[r.MarketID] = r
			}
			return nil
		})
	}
	g.Wait()

	sort.Slice(failures, func(i, j int) bool {
		if failures[i].Category != failures[j].Category {
			return failures[i].Category < failures[j].Category
		}
		return failures[i].MarketIDs[0] < failures[j].MarketIDs[0]
	})
	return results, failures
}

// split dedupes and sorts ids before cutting them into batches.
func (f *Fetcher) split(category model.Category, ids []string) []batch {
	seen := make(map[string]bool, len(ids))
	var unique []string
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	sort.Strings(unique)

	var out []batch
	for start := 0; start < len(unique); start += f.cfg.BatchSize {
		end := min(start+f.cfg.BatchSize, len(unique))
		out = append(out, batch{category: category, ids: unique[start:end]})
	}
	return out
}
