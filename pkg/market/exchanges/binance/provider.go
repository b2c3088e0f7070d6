package binance

import (
	"context"
	"net/http"
	"time"

	"eod-collector/pkg/market"
)

const defaultProviderTimeout = 30 * time.Second

// Provider wraps Client calls behind the market.Exchange contract and bounds
// every call with a timeout.
type Provider struct {
	client  *Client
	timeout time.Duration
}

type providerConfig struct {
	timeout      time.Duration
	clientConfig []Option
}

// ProviderOption customises the Binance provider.
type ProviderOption func(*providerConfig)

// WithTimeout overrides the default per-call timeout.
func WithTimeout(timeout time.Duration) ProviderOption {
	return func(cfg *providerConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// WithClientOptions passes options to the underlying Binance client.
func WithClientOptions(options ...Option) ProviderOption {
	return func(cfg *providerConfig) {
		cfg.clientConfig = append(cfg.clientConfig, options...)
	}
}

// NewProvider constructs a Binance exchange provider.
func NewProvider(opts ...ProviderOption) *Provider {
	cfg := &providerConfig{timeout: defaultProviderTimeout}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Provider{
		client:  NewClient(cfg.clientConfig...),
		timeout: cfg.timeout,
	}
}

func init() {
	market.RegisterExchange("binance", func(name string, cfg *market.ProviderConfig) (market.Exchange, error) {
		opts := []ProviderOption{}
		clientOptions := []Option{}
		if cfg.Timeout > 0 {
			opts = append(opts, WithTimeout(cfg.Timeout))
		}
		if cfg.HTTPTimeout > 0 {
			clientOptions = append(clientOptions, WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
		}
		if cfg.CallsPerMinute > 0 {
			clientOptions = append(clientOptions, WithCallsPerMinute(cfg.CallsPerMinute))
		}
		if cfg.BaseURL != "" {
			clientOptions = append(clientOptions, WithBaseURL(cfg.BaseURL))
		}
		if len(clientOptions) > 0 {
			opts = append(opts, WithClientOptions(clientOptions...))
		}
		return NewProvider(opts...), nil
	})
}

// TradingPairs implements market.Exchange.
func (p *Provider) TradingPairs(ctx context.Context) ([]market.TradingPair, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.client.TradingPairs(ctx)
}

// DailyBars implements market.Exchange.
func (p *Provider) DailyBars(ctx context.Context, symbol string, days int) ([]market.MarketBar, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.client.DailyBars(ctx, symbol, days)
}

// Tickers24h implements market.Exchange.
func (p *Provider) Tickers24h(ctx context.Context, symbols []string) ([]market.MarketBar, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.client.Tickers24h(ctx, symbols)
}

func (p *Provider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, p.timeout)
}
