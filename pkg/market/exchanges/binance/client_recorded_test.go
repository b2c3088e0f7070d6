package binance

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/dnaeon/go-vcr/recorder"
	"github.com/stretchr/testify/assert"
)

// Replays a recorded exchangeInfo call. Skips unless the cassette exists or
// RECORD_CASSETTES=1 is set to record one against the live API.
func TestClient_TradingPairs_Recorded(t *testing.T) {
	cassette := filepath.Join("testdata", "cassettes", "binance_exchange_info.yaml")
	if _, err := os.Stat(cassette); os.IsNotExist(err) {
		if os.Getenv("RECORD_CASSETTES") != "1" {
			t.Skipf("cassette missing; set RECORD_CASSETTES=1 to record: %s", cassette)
		}
		err := os.MkdirAll(filepath.Dir(cassette), 0o755)
		assert.NoError(t, err, "mkdir cassettes dir should succeed")
	}

	r, err := recorder.New(cassette)
	assert.NoError(t, err, "recorder.New should not error")
	defer func() { _ = r.Stop() }()

	client := NewClient(WithHTTPClient(&http.Client{Transport: r}))
	pairs, err := client.TradingPairs(context.Background())
	assert.NoError(t, err, "TradingPairs should not error")
	assert.NotEmpty(t, pairs, "exchange should list trading pairs")
	for _, pair := range pairs {
		assert.True(t, pair.IsTrading(), "pair %s should be trading", pair.Symbol)
	}
}
