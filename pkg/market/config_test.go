package market_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	market "eod-collector/pkg/market"
	_ "eod-collector/pkg/market/exchanges/binance"
	_ "eod-collector/pkg/market/exchanges/coingecko"
)

const validConfig = `
exchange: binance
reference: coingecko
providers:
  binance:
    type: binance
    base_url: https://api.binance.test
    timeout: 6s
    http_timeout: 12s
  coingecko:
    type: coingecko
    calls_per_minute: 30
    rate_limit_backoff: 60s
    batch_size: 250
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "market.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMarketConfig(t *testing.T) {
	cfg, err := market.LoadConfig(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "binance", cfg.Exchange)
	assert.Equal(t, "coingecko", cfg.Reference)
	assert.Equal(t, 6*time.Second, cfg.Providers["binance"].Timeout)
	assert.Equal(t, 12*time.Second, cfg.Providers["binance"].HTTPTimeout)
	assert.Equal(t, time.Minute, cfg.Providers["coingecko"].Backoff)
	assert.Equal(t, 250, cfg.Providers["coingecko"].BatchSize)

	exchange, err := cfg.BuildExchange()
	require.NoError(t, err)
	assert.NotNil(t, exchange)

	reference, err := cfg.BuildReference()
	require.NoError(t, err)
	assert.NotNil(t, reference)
}

func TestMarketConfigRejects(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "unknown type",
			body: "exchange: demo\nreference: demo\nproviders:\n  demo:\n    type: foobar\n",
			want: "unsupported",
		},
		{
			name: "no providers",
			body: "exchange: binance\nreference: coingecko\n",
			want: "providers cannot be empty",
		},
		{
			name: "missing reference",
			body: "exchange: binance\nreference: coingecko\nproviders:\n  binance:\n    type: binance\n",
			want: `reference provider "coingecko" not defined`,
		},
		{
			name: "reference role on exchange type",
			body: "exchange: binance\nreference: binance\nproviders:\n  binance:\n    type: binance\n",
			want: "unsupported reference type",
		},
		{
			name: "bad duration",
			body: "exchange: binance\nreference: coingecko\nproviders:\n  binance:\n    type: binance\n    timeout: soon\n  coingecko:\n    type: coingecko\n",
			want: "invalid timeout",
		},
		{
			name: "negative batch",
			body: "exchange: binance\nreference: coingecko\nproviders:\n  binance:\n    type: binance\n  coingecko:\n    type: coingecko\n    batch_size: -1\n",
			want: "batch_size cannot be negative",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := market.LoadConfigFromReader(strings.NewReader(tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
