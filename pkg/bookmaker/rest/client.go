// Package rest implements a bookmaker.Client over a generic JSON HTTP API.
// It covers the common shape of modern bookmaker placement endpoints: an
// API-key header, a POST placement call carrying an idempotency key, and
// per-bookmaker rate limits.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/oddsforge/betengine/pkg/bookmaker"
)

// Client is a REST bookmaker client.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ bookmaker.Client = (*Client)(nil)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithAPIKey sets the API key sent with every request.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithRateLimit overrides the default placement rate limit.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a REST bookmaker client. name is the identifier bets
// are routed by and must match the bookmaker field on arbitrage legs.
func NewClient(name, baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		name:    name,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(5), 2),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the bookmaker identifier.
func (c *Client) Name() string {
	return c.name
}

type placeBetPayload struct {
	MarketID  string  `json:"market_id"`
	Selection string  `json:"selection"`
	Stake     float64 `json:"stake"`
	Odds      float64 `json:"odds"`
}

type placeBetResponse struct {
	BetID    string    `json:"bet_id"`
	Status   string    `json:"status"`
	PlacedAt time.Time `json:"placed_at"`
}

// PlaceBet submits a placement. The idempotency key travels as an
// Idempotency-Key header so retried requests settle to one bet server-side.
func (c *Client) PlaceBet(ctx context.Context, req bookmaker.BetRequest) (*bookmaker.BetReceipt, error) {
	payload, err := json.Marshal(placeBetPayload{
		MarketID:  req.MarketID,
		Selection: req.Selection,
		Stake:     req.Stake,
		Odds:      req.Odds,
	})
	if err != nil {
		return nil, fmt.Errorf("encode bet: %w", err)
	}

	headers := map[string]string{}
	if req.IdempotencyKey != "" {
		headers["Idempotency-Key"] = req.IdempotencyKey
	}

	var resp placeBetResponse
	if err := c.post(ctx, "/v1/bets", headers, payload, &resp); err != nil {
		return nil, err
	}
	if resp.Status == "rejected" {
		return nil, fmt.Errorf("bookmaker %s rejected bet on %s/%s", c.name, req.MarketID, req.Selection)
	}

	placedAt := resp.PlacedAt
	if placedAt.IsZero() {
		placedAt = time.Now()
	}
	return &bookmaker.BetReceipt{
		BetID:     resp.BetID,
		Bookmaker: c.name,
		Stake:     req.Stake,
		Odds:      req.Odds,
		PlacedAt:  placedAt,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, headers map[string]string, body []byte, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("api error %d: %s", resp.StatusCode, string(body))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
