package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"eod-collector/pkg/market"
)

const (
	defaultBaseURL     = "https://api.binance.com"
	defaultHTTPTimeout = 10 * time.Second
	providerName       = "binance"

	exchangeInfoPath = "/api/v3/exchangeInfo"
	klinesPath       = "/api/v3/klines"
	ticker24hPath    = "/api/v3/ticker/24hr"
)

// Client wraps access to the Binance spot public REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	nowFn      func() time.Time
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

// WithBaseURL overrides the default API host.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithCallsPerMinute caps the request rate. Zero or negative disables the cap.
func WithCallsPerMinute(n int) Option {
	return func(c *Client) {
		if n <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
	}
}

// WithClock overrides the wall clock used to compute request windows.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.nowFn = now
		}
	}
}

// NewClient constructs a Binance API client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		limiter:    rate.NewLimiter(rate.Inf, 1),
		nowFn:      time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// getJSON issues a single GET and decodes the body into result. Binance calls
// are never retried; failures surface as market.ErrTransport.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("binance: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: binance: %v", market.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: binance: read response: %v", market.ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &market.HTTPError{Provider: providerName, Status: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("%w: binance: decode response: %v", market.ErrTransport, err)
	}
	return nil
}
