// Package coingecko implements the reference-data provider backed by the
// CoinGecko public API: the bulk coin listing and batched market snapshots.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/time/rate"

	"eod-collector/pkg/market"
)

const (
	defaultBaseURL        = "https://api.coingecko.com/api/v3"
	defaultHTTPTimeout    = 30 * time.Second
	defaultCallsPerMinute = 30
	defaultRateLimitWait  = 60 * time.Second
	defaultVsCurrency     = "usd"
	providerName          = "coingecko"

	// MaxBatchSize is the documented per_page ceiling of /coins/markets.
	MaxBatchSize = 250

	demoKeyHeader = "x-cg-demo-api-key"
	proKeyHeader  = "x-cg-pro-api-key"
)

// Client wraps access to the CoinGecko REST API.
type Client struct {
	baseURL    string
	apiKey     string
	vsCurrency string
	httpClient *http.Client
	limiter    *rate.Limiter
	retryWait  time.Duration
	batchSize  int
}

// Option configures a new Client.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL overrides the default API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithAPIKey sends the given key with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithVsCurrency sets the quote currency for market figures.
func WithVsCurrency(currency string) Option {
	return func(c *Client) {
		if currency = strings.ToLower(strings.TrimSpace(currency)); currency != "" {
			c.vsCurrency = currency
		}
	}
}

// WithCallsPerMinute sets the request budget. Zero or less disables pacing.
func WithCallsPerMinute(n int) Option {
	return func(c *Client) {
		c.limiter = newLimiter(n)
	}
}

// WithRateLimitBackoff sets the fixed pause taken after a 429 before the single retry.
func WithRateLimitBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryWait = d
		}
	}
}

// WithBatchSize caps ids per /coins/markets request (at most MaxBatchSize).
func WithBatchSize(n int) Option {
	return func(c *Client) {
		if n > 0 && n <= MaxBatchSize {
			c.batchSize = n
		}
	}
}

// NewClient constructs a CoinGecko API client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		baseURL:    defaultBaseURL,
		vsCurrency: defaultVsCurrency,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		limiter:    newLimiter(defaultCallsPerMinute),
		retryWait:  defaultRateLimitWait,
		batchSize:  MaxBatchSize,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func newLimiter(callsPerMinute int) *rate.Limiter {
	if callsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(callsPerMinute)), 1)
}

// getJSON performs a paced GET. A 429 answer triggers exactly one fixed
// backoff followed by one retry; every other failure is returned as is.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, result interface{}) error {
	attempt := 0
	operation := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := c.getOnce(ctx, path, query, result)
		switch {
		case err == nil:
			return nil
		case market.IsRateLimited(err) && attempt == 1:
			logx.WithContext(ctx).Slowf("coingecko: rate limited path=%s, retrying once in %s", path, c.retryWait)
			return err
		default:
			return backoff.Permanent(err)
		}
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryWait), 1), ctx)
	return backoff.Retry(operation, policy)
}

func (c *Client) getOnce(ctx context.Context, path string, query url.Values, result interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("coingecko: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		header := demoKeyHeader
		if strings.Contains(c.baseURL, "pro-api") {
			header = proKeyHeader
		}
		req.Header.Set(header, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: coingecko: %v", market.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: coingecko: read response: %v", market.ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &market.HTTPError{Provider: providerName, Status: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("%w: coingecko: decode response: %v", market.ErrTransport, err)
	}
	return nil
}
