package coingecko

import (
	"net/http"

	"eod-collector/pkg/market"
)

func init() {
	market.RegisterReference("coingecko", func(name string, cfg *market.ProviderConfig) (market.Reference, error) {
		opts := []Option{
			WithAPIKey(cfg.APIKey),
			WithVsCurrency(cfg.VsCurrency),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.BaseURL))
		}
		if cfg.HTTPTimeout > 0 {
			opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
		}
		if cfg.CallsPerMinute > 0 {
			opts = append(opts, WithCallsPerMinute(cfg.CallsPerMinute))
		}
		if cfg.Backoff > 0 {
			opts = append(opts, WithRateLimitBackoff(cfg.Backoff))
		}
		if cfg.BatchSize > 0 {
			opts = append(opts, WithBatchSize(cfg.BatchSize))
		}
		return NewClient(opts...), nil
	})
}
