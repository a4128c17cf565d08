// Package feed fetches authoritative market results from the results
// provider.
//
// The provider exposes one GET endpoint per category that accepts a
// comma-joined list of market ids and returns the decided winners. A market
// whose winner is absent or null is not decided yet and is left out of the
// returned results.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betx/exchange-engine/internal/model"
)

// Source returns the decided results of one batch of markets.
type Source interface {
	Results(ctx context.Context, category model.Category, marketIDs []string) ([]model.Result, error)
}

// DefaultPaths maps each category to its endpoint below the base URL.
var DefaultPaths = map[model.Category]string{
	model.CategoryMatchOdds: "/match-odds",
	model.CategoryBookmaker: "/bookmaker",
	model.CategoryFancy:     "/fancy",
}

// APIError represents a non-2xx answer from the results provider.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("results feed error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// Client provides access to the results provider.
type Client struct {
	baseURL    string
	paths      map[model.Category]string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a results feed client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		paths:   DefaultPaths,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   2,
		retryBackoff: 500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithPaths overrides the endpoint of some categories.
func WithPaths(paths map[model.Category]string) ClientOption {
	return func(c *Client) {
		merged := make(map[model.Category]string, len(DefaultPaths))
		for k, v := range DefaultPaths {
			merged[k] = v
		}
		for k, v := range paths {
			if v != "" {
				merged[k] = v
			}
		}
		c.paths = merged
	}
}

// wireResult is one element of the provider's response. Winner is a
// selection id string for match odds and bookmaker markets and a number for
// fancy markets, but providers are loose about both.
type wireResult struct {
	MarketID string          `json:"marketId"`
	Winner   json.RawMessage `json:"winner"`
}

// Results fetches one batch of market ids.
func (c *Client) Results(ctx context.Context, category model.Category, marketIDs []string) ([]model.Result, error) {
	path, ok := c.paths[category]
	if !ok {
		return nil, fmt.Errorf("feed: no endpoint for category %q", category)
	}
	if len(marketIDs) == 0 {
		return nil, nil
	}

	escaped := make([]string, len(marketIDs))
	for i, id := range marketIDs {
		escaped[i] = url.QueryEscape(id)
	}
	fullURL := c.baseURL + path + "?Mids=" + strings.Join(escaped, ",")

	body, err := c.doWithRetry(ctx, fullURL)
	if err != nil {
		return nil, err
	}

	var raw []wireResult
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	results := make([]model.Result, 0, len(raw))
	for _, r := range raw {
		res, ok := parseResult(category, r)
		if !ok {
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

func parseResult(category model.Category, r wireResult) (model.Result, bool) {
	winner, ok := winnerString(r.Winner)
	if !ok || r.MarketID == "" {
		return model.Result{}, false
	}
	res := model.Result{MarketID: r.MarketID, Winner: winner}
	if category.IsFancy() {
		n, err := decimal.NewFromString(winner)
		if err != nil {
			return model.Result{}, false
		}
		res.Number = &n
	}
	return res, true
}

// winnerString accepts a JSON string or number. Null, absent and empty
// winners mean the market is not decided.
func winnerString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
	}

	return body, nil
}

// doWithRetry performs a GET with jittered exponential backoff.
func (c *Client) doWithRetry(ctx context.Context, fullURL string) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int63n(int64(backoff)+1))
			c.logger.Debug("retrying results request",
				"attempt", attempt,
				"backoff", jitter,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		body, err := c.doRequest(ctx, fullURL)
		if err == nil {
			return body, nil
		}

		lastErr = err

		apiErr, ok := err.(*APIError)
		if !ok || !apiErr.IsRetryable() {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
