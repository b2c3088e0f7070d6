package market

import (
	"strings"
	"time"
)

// DateLayout is the calendar-day format used in persisted rows.
const DateLayout = "2006-01-02"

// TradingPair describes an exchange symbol built from a base and a quote asset.
type TradingPair struct {
	Symbol     string // Exchange symbol as traded, e.g. "BTCUSDT"
	BaseAsset  string // Traded asset, e.g. "BTC"
	QuoteAsset string // Pricing asset, e.g. "USDT"
	Status     string // Exchange trading status; only "TRADING" pairs are collected
}

// IsTrading reports whether the pair is currently eligible for collection.
func (p TradingPair) IsTrading() bool {
	return strings.EqualFold(p.Status, StatusTrading)
}

// StatusTrading is the exchange status of pairs open for trading.
const StatusTrading = "TRADING"

// MarketBar is one daily OHLCV record keyed by (Symbol, Date).
type MarketBar struct {
	Date        time.Time // UTC midnight of the bar's calendar day
	Symbol      string
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	QuoteVolume float64
	Trades      int64
}

// Key returns the identity of the bar within a persisted dataset.
func (b MarketBar) Key() BarKey {
	return BarKey{Symbol: b.Symbol, Date: b.Date.UTC().Format(DateLayout)}
}

// BarKey identifies a bar by symbol and calendar day.
type BarKey struct {
	Symbol string
	Date   string
}

// EnrichmentRecord carries provider market-cap and supply figures.
// A nil field means the provider did not report it; it is never zero-filled.
type EnrichmentRecord struct {
	MarketCap         *float64
	CirculatingSupply *float64
	TotalSupply       *float64
	MaxSupply         *float64
}

// Clone copies the record so rows never share pointers.
func (r EnrichmentRecord) Clone() EnrichmentRecord {
	return EnrichmentRecord{
		MarketCap:         clonePtr(r.MarketCap),
		CirculatingSupply: clonePtr(r.CirculatingSupply),
		TotalSupply:       clonePtr(r.TotalSupply),
		MaxSupply:         clonePtr(r.MaxSupply),
	}
}

func clonePtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// EnrichedBar is a MarketBar with provider attributes attached.
type EnrichedBar struct {
	MarketBar
	EnrichmentRecord
}

// Coin is an entry of the provider's bulk coin listing.
type Coin struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// DayOf truncates t to the UTC calendar day.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Float returns a pointer to v, handy for optional enrichment fields.
func Float(v float64) *float64 {
	return &v
}
