package binance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"eod-collector/pkg/market"
)

// ExchangeInfoResponse mirrors the subset of /api/v3/exchangeInfo we consume.
type ExchangeInfoResponse struct {
	Symbols []SymbolInfo `json:"symbols"`
}

// SymbolInfo describes a single spot trading pair.
type SymbolInfo struct {
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

// KlineRow is one fixed-arity candle tuple:
// [open_time, open, high, low, close, volume, close_time, quote_volume, trades, ...].
type KlineRow []json.RawMessage

const klineMinArity = 9

// Ticker24h mirrors one entry of /api/v3/ticker/24hr.
type Ticker24h struct {
	Symbol      string          `json:"symbol"`
	OpenPrice   string          `json:"openPrice"`
	HighPrice   string          `json:"highPrice"`
	LowPrice    string          `json:"lowPrice"`
	LastPrice   string          `json:"lastPrice"`
	Volume      string          `json:"volume"`
	QuoteVolume string          `json:"quoteVolume"`
	Count       json.RawMessage `json:"count"`
}

// parseBar converts a candle tuple into a MarketBar tagged with symbol.
func (r KlineRow) parseBar(symbol string) (market.MarketBar, error) {
	if len(r) < klineMinArity {
		return market.MarketBar{}, fmt.Errorf("%w: kline arity %d", market.ErrMalformedField, len(r))
	}
	openTime, err := rawInt(r[0], "open_time")
	if err != nil {
		return market.MarketBar{}, err
	}
	bar := market.MarketBar{
		Date:   market.DayOf(msToTime(openTime)),
		Symbol: symbol,
	}
	prices := []struct {
		name string
		raw  json.RawMessage
		dst  *float64
	}{
		{"open", r[1], &bar.Open},
		{"high", r[2], &bar.High},
		{"low", r[3], &bar.Low},
		{"close", r[4], &bar.Close},
		{"volume", r[5], &bar.Volume},
		{"quote_volume", r[7], &bar.QuoteVolume},
	}
	for _, p := range prices {
		v, err := rawFloat(p.raw, p.name)
		if err != nil {
			return market.MarketBar{}, err
		}
		*p.dst = v
	}
	if bar.Trades, err = rawInt(r[8], "trades"); err != nil {
		return market.MarketBar{}, err
	}
	return bar, nil
}

// parseBar converts a 24h ticker into a MarketBar for the given day.
func (t Ticker24h) parseBar(on time.Time) (market.MarketBar, error) {
	bar := market.MarketBar{
		Date:   market.DayOf(on),
		Symbol: t.Symbol,
	}
	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"openPrice", t.OpenPrice, &bar.Open},
		{"highPrice", t.HighPrice, &bar.High},
		{"lowPrice", t.LowPrice, &bar.Low},
		{"lastPrice", t.LastPrice, &bar.Close},
		{"volume", t.Volume, &bar.Volume},
		{"quoteVolume", t.QuoteVolume, &bar.QuoteVolume},
	}
	for _, f := range fields {
		v, err := parseNonNegative(f.name, f.raw)
		if err != nil {
			return market.MarketBar{}, err
		}
		*f.dst = v
	}
	count, err := rawInt(t.Count, "count")
	if err != nil {
		return market.MarketBar{}, err
	}
	bar.Trades = count
	return bar, nil
}

// rawFloat parses a JSON value that Binance transmits as text (or, defensively, as a bare number).
func rawFloat(raw json.RawMessage, name string) (float64, error) {
	return parseNonNegative(name, unquote(raw))
}

func rawInt(raw json.RawMessage, name string) (int64, error) {
	text := unquote(raw)
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil || v < 0 {
		return 0, market.MalformedFieldError(name, text)
	}
	return v, nil
}

func parseNonNegative(name, text string) (float64, error) {
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || v < 0 || v != v {
		return 0, market.MalformedFieldError(name, text)
	}
	return v, nil
}

func unquote(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) >= 2 && trimmed[0] == '"' && trimmed[len(trimmed)-1] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(trimmed)
}
