package enrich

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"eod-collector/pkg/market"
	"eod-collector/pkg/symbols"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) FetchMarkets(ctx context.Context, ids []string) (map[string]market.EnrichmentRecord, error) {
	args := m.Called(ctx, ids)
	records, _ := args.Get(0).(map[string]market.EnrichmentRecord)
	return records, args.Error(1)
}

type listing []market.Coin

func (l listing) CoinsList(context.Context) ([]market.Coin, error) {
	return l, nil
}

var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func bar(symbol string, offset int, close float64) market.MarketBar {
	return market.MarketBar{Date: day0.AddDate(0, 0, offset), Symbol: symbol, Close: close}
}

func newResolver() *symbols.Resolver {
	return symbols.NewResolver(listing{
		{ID: "alpha", Symbol: "aaa", Name: "Alpha"},
		{ID: "gamma", Symbol: "ccc", Name: "Gamma"},
	})
}

func TestEnrichExclusion(t *testing.T) {
	source := &mockSource{}
	source.On("FetchMarkets", mock.Anything, []string{"alpha", "gamma"}).Return(map[string]market.EnrichmentRecord{
		"alpha": {MarketCap: market.Float(1e9), MaxSupply: nil},
	}, nil).Once()

	pipeline := NewPipeline(newResolver(), source)
	bars := []market.MarketBar{
		bar("AAAUSDT", 0, 1),
		bar("BBBUSDT", 0, 2),
		bar("CCCUSDT", 0, 3),
	}

	result, err := pipeline.Enrich(context.Background(), bars)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "AAAUSDT", result.Rows[0].Symbol)
	require.NotNil(t, result.Rows[0].MarketCap)
	assert.Equal(t, 1e9, *result.Rows[0].MarketCap)
	assert.Nil(t, result.Rows[0].MaxSupply)

	assert.Equal(t, []string{"BBBUSDT", "CCCUSDT"}, result.SkippedSymbols())
	assert.Equal(t, SkipNoMapping, result.Skipped["BBBUSDT"])
	assert.Equal(t, SkipNoMarketData, result.Skipped["CCCUSDT"])
	source.AssertExpectations(t)
}

func TestEnrichUnknownSymbolSkipped(t *testing.T) {
	source := &mockSource{}
	pipeline := NewPipeline(newResolver(), source)

	bars := []market.MarketBar{bar("FAKEUSDT", 0, 1), bar("FAKEUSDT", 1, 2), bar("FAKEUSDT", 2, 3)}
	result, err := pipeline.Enrich(context.Background(), bars)
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	assert.Equal(t, []string{"FAKEUSDT"}, result.SkippedSymbols())
	source.AssertNotCalled(t, "FetchMarkets", mock.Anything, mock.Anything)
}

func TestEnrichNoQuoteSuffix(t *testing.T) {
	pipeline := NewPipeline(newResolver(), &mockSource{})
	result, err := pipeline.Enrich(context.Background(), []market.MarketBar{bar("AAAXYZ", 0, 1)})
	require.NoError(t, err)
	assert.Equal(t, SkipNoQuoteSuffix, result.Skipped["AAAXYZ"])
}

func TestEnrichKeepsAllBarsOfEnrichedSymbol(t *testing.T) {
	source := &mockSource{}
	source.On("FetchMarkets", mock.Anything, []string{"alpha"}).Return(map[string]market.EnrichmentRecord{
		"alpha": {MarketCap: market.Float(5)},
	}, nil)

	bars := []market.MarketBar{bar("AAAUSDT", 0, 1), bar("AAAUSDT", 1, 2), bar("AAAUSDT", 2, 3)}
	input := append([]market.MarketBar(nil), bars...)

	result, err := NewPipeline(newResolver(), source).Enrich(context.Background(), bars)
	require.NoError(t, err)
	require.Len(t, result.Rows, 3)
	assert.Equal(t, input, bars, "input must not be modified")

	*result.Rows[0].MarketCap = 42
	assert.Equal(t, 5.0, *result.Rows[1].MarketCap, "rows must not share enrichment pointers")
}

func TestEnrichDeterministic(t *testing.T) {
	bars := []market.MarketBar{
		bar("CCCUSDT", 0, 3),
		bar("AAAUSDT", 0, 1),
		bar("BBBUSDT", 0, 2),
		bar("AAABTC", 0, 4),
	}

	var (
		first  Result
		callID [][]string
	)
	for i := 0; i < 5; i++ {
		source := &mockSource{}
		source.On("FetchMarkets", mock.Anything, mock.Anything).Return(map[string]market.EnrichmentRecord{
			"alpha": {MarketCap: market.Float(1)},
			"gamma": {MarketCap: market.Float(3)},
		}, nil).Run(func(args mock.Arguments) {
			callID = append(callID, args.Get(1).([]string))
		})

		result, err := NewPipeline(newResolver(), source).Enrich(context.Background(), bars)
		require.NoError(t, err)
		if i == 0 {
			first = result
			continue
		}
		assert.Equal(t, first, result)
	}
	for _, ids := range callID {
		assert.Equal(t, []string{"alpha", "gamma"}, ids)
	}
}

func TestEnrichPropagatesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	source := &mockSource{}
	source.On("FetchMarkets", mock.Anything, mock.Anything).Return(map[string]market.EnrichmentRecord{}, context.Canceled)

	_, err := NewPipeline(newResolver(), source).Enrich(ctx, []market.MarketBar{bar("AAAUSDT", 0, 1)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnrichEmpty(t *testing.T) {
	result, err := NewPipeline(newResolver(), &mockSource{}).Enrich(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	assert.Empty(t, result.SkippedSymbols())
}
