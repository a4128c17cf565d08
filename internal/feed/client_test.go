package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betx/exchange-engine/internal/model"
)

func TestClient_Results(t *testing.T) {
	t.Run("sends comma-joined ids to the category path", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/bookmaker" {
				t.Errorf("path = %q, want /bookmaker", r.URL.Path)
			}
			if got := r.URL.Query().Get("Mids"); got != "m1,m2" {
				t.Errorf("Mids = %q, want m1,m2", got)
			}
			if r.Header.Get("Accept") != "application/json" {
				t.Errorf("Accept header = %q", r.Header.Get("Accept"))
			}
			w.Write([]byte(`[{"marketId":"m1","winner":"s7"},{"marketId":"m2","winner":null}]`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		got, err := c.Results(context.Background(), model.CategoryBookmaker, []string{"m1", "m2"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 || got[0].MarketID != "m1" || got[0].Winner != "s7" {
			t.Errorf("results = %+v, want only m1 won by s7", got)
		}
	})

	t.Run("fancy winners are numbers", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[
				{"marketId":"f1","winner":47},
				{"marketId":"f2","winner":"52.5"},
				{"marketId":"f3"},
				{"marketId":"f4","winner":"abandoned"},
				{"marketId":"f5","winner":""}
			]`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		got, err := c.Results(context.Background(), model.CategoryFancy, []string{"f1", "f2", "f3", "f4", "f5"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 decided results, got %+v", got)
		}
		if got[0].Number == nil || !got[0].Number.Equal(decimal.NewFromInt(47)) {
			t.Errorf("f1 number = %v, want 47", got[0].Number)
		}
		if got[1].Number == nil || !got[1].Number.Equal(decimal.RequireFromString("52.5")) {
			t.Errorf("f2 number = %v, want 52.5", got[1].Number)
		}
	})

	t.Run("custom paths", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/RMatchOdds" {
				t.Errorf("path = %q, want /RMatchOdds", r.URL.Path)
			}
			w.Write([]byte(`[]`))
		}))
		defer server.Close()

		c := NewClient(server.URL+"/", WithPaths(map[model.Category]string{model.CategoryMatchOdds: "/RMatchOdds"}))
		if _, err := c.Results(context.Background(), model.CategoryMatchOdds, []string{"m1"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("4xx error returns APIError without retry", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(3, time.Millisecond))
		_, err := c.Results(context.Background(), model.CategoryMatchOdds, []string{"m1"})
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400 APIError, got %v", err)
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("5xx is retried", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(`[{"marketId":"m1","winner":"s1"}]`))
		}))
		defer server.Close()

		c := NewClient(server.URL, WithRetries(3, time.Millisecond))
		got, err := c.Results(context.Background(), model.CategoryMatchOdds, []string{"m1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 {
			t.Errorf("expected 1 result, got %d", len(got))
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"not":"an array"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		if _, err := c.Results(context.Background(), model.CategoryMatchOdds, []string{"m1"}); err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}

func TestAPIError_IsRetryable(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{400, false},
		{404, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tt := range tests {
		err := &APIError{StatusCode: tt.code}
		if got := err.IsRetryable(); got != tt.want {
			t.Errorf("IsRetryable() for status %d = %v, want %v", tt.code, got, tt.want)
		}
	}
}
