package marketpersist

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eod-collector/pkg/market"
)

func TestNewServiceWithoutConn(t *testing.T) {
	svc := NewService(Config{})
	assert.Nil(t, svc)
	// A nil service is a valid no-op mirror.
	assert.NoError(t, svc.MirrorBars(context.Background(), []market.EnrichedBar{{}}))
	assert.NoError(t, svc.EnsureSchema(context.Background()))
}

func TestBarArgs(t *testing.T) {
	row := market.EnrichedBar{
		MarketBar: market.MarketBar{
			Date:   time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
			Symbol: "BTCUSDT",
			Close:  61000.5,
			Trades: 9,
		},
		EnrichmentRecord: market.EnrichmentRecord{MarketCap: market.Float(1.2e12)},
	}
	args := barArgs(row)
	require.Len(t, args, 13)
	assert.Equal(t, "BTCUSDT", args[0])
	assert.Equal(t, "2024-02-29", args[1])
	assert.Equal(t, 61000.5, args[5])
	assert.Equal(t, int64(9), args[8])
	assert.Equal(t, sql.NullFloat64{Float64: 1.2e12, Valid: true}, args[9])
	assert.Equal(t, sql.NullFloat64{}, args[12])
}
