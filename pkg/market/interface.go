package market

import "context"

// Exchange is the source of trading pairs and daily price bars.
type Exchange interface {
	// TradingPairs lists the pairs currently open for trading.
	TradingPairs(ctx context.Context) ([]TradingPair, error)
	// DailyBars returns up to days daily bars for symbol in ascending date order.
	// An empty upstream answer yields an empty slice and a nil error.
	DailyBars(ctx context.Context, symbol string, days int) ([]MarketBar, error)
	// Tickers24h returns today's rolling 24h bar for each requested symbol it knows.
	Tickers24h(ctx context.Context, symbols []string) ([]MarketBar, error)
}

// CoinDirectory exposes the provider's bulk coin listing.
type CoinDirectory interface {
	CoinsList(ctx context.Context) ([]Coin, error)
}

// MarketSource fetches enrichment records for provider coin ids.
type MarketSource interface {
	// FetchMarkets returns records for the ids it could fetch. Failed batches are
	// absent from the result; the error is only set when ctx is done.
	FetchMarkets(ctx context.Context, ids []string) (map[string]EnrichmentRecord, error)
}

// Reference is a full market-data provider (listing plus market data).
type Reference interface {
	CoinDirectory
	MarketSource
}
