package feed

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/betx/exchange-engine/internal/model"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestCachedFeed_ServesDecidedResultsFromCache(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	src := newFakeSource()
	cf := NewCachedFeed(src, rdb, time.Minute, nil)

	got, err := cf.Results(ctx, model.CategoryMatchOdds, []string{"m1", "m2"})
	if err != nil || len(got) != 2 {
		t.Fatalf("first call: %v %v", got, err)
	}
	if !mr.Exists("result:match_odds:m1") {
		t.Fatal("decided result was not cached")
	}
	if ttl := mr.TTL("result:match_odds:m1"); ttl != time.Minute {
		t.Errorf("ttl = %v, want 1m", ttl)
	}

	got, err = cf.Results(ctx, model.CategoryMatchOdds, []string{"m1", "m2", "m3"})
	if err != nil || len(got) != 3 {
		t.Fatalf("second call: %v %v", got, err)
	}

	calls := src.calls[model.CategoryMatchOdds]
	if len(calls) != 2 || len(calls[1]) != 1 || calls[1][0] != "m3" {
		t.Errorf("source calls = %v, want second call for m3 only", calls)
	}
	for _, r := range got {
		if r.Winner != "w-"+r.MarketID {
			t.Errorf("result %s winner = %q", r.MarketID, r.Winner)
		}
	}
}

func TestCachedFeed_MissFallsThroughToSource(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	src := newFakeSource()
	cf := NewCachedFeed(src, rdb, time.Minute, nil)

	got, err := cf.Results(ctx, model.CategoryFancy, []string{"f1"})
	if err != nil || len(got) != 1 || got[0].MarketID != "f1" {
		t.Fatalf("results = %v, %v", got, err)
	}
	if calls := src.calls[model.CategoryFancy]; len(calls) != 1 {
		t.Errorf("source calls = %v, want 1", calls)
	}

	// Same id under another category is a separate key.
	if _, err := cf.Results(ctx, model.CategoryBookmaker, []string{"f1"}); err != nil {
		t.Fatal(err)
	}
	if calls := src.calls[model.CategoryBookmaker]; len(calls) != 1 {
		t.Errorf("bookmaker calls = %v, want 1", calls)
	}
}

func TestCachedFeed_UndecidedMarketsAreAskedAgain(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	src := &undecidedSource{decided: map[string]bool{"m1": true}}
	cf := NewCachedFeed(src, rdb, time.Minute, nil)

	for i := 0; i < 2; i++ {
		if _, err := cf.Results(ctx, model.CategoryMatchOdds, []string{"m1", "m2"}); err != nil {
			t.Fatal(err)
		}
	}
	if mr.Exists("result:match_odds:m2") {
		t.Error("undecided market must not be cached")
	}
	if len(src.calls) != 2 || len(src.calls[1]) != 1 || src.calls[1][0] != "m2" {
		t.Errorf("source calls = %v, want m2 asked again", src.calls)
	}
}

func TestCachedFeed_RedisDownFallsBackToSource(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	src := newFakeSource()
	cf := NewCachedFeed(src, rdb, time.Minute, nil)
	mr.Close()

	got, err := cf.Results(ctx, model.CategoryMatchOdds, []string{"m1", "m2"})
	if err != nil {
		t.Fatalf("expected fallback to source, got %v", err)
	}
	if len(got) != 2 {
		t.Errorf("results = %v, want 2", got)
	}
	if calls := src.calls[model.CategoryMatchOdds]; len(calls) != 1 || len(calls[0]) != 2 {
		t.Errorf("source calls = %v, want one call for both ids", calls)
	}
}

// undecidedSource omits markets without a winner, like the HTTP client.
type undecidedSource struct {
	decided map[string]bool
	calls   [][]string
}

func (s *undecidedSource) Results(_ context.Context, _ model.Category, ids []string) ([]model.Result, error) {
	s.calls = append(s.calls, ids)
	var out []model.Result
	for _, id := range ids {
		if s.decided[id] {
			out = append(out, model.Result{MarketID: id, Winner: "s1"})
		}
	}
	return out, nil
}
