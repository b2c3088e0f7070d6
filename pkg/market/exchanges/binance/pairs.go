package binance

import (
	"context"
	"strings"

	"eod-collector/pkg/market"
)

// TradingPairs returns every spot pair whose status is TRADING.
func (c *Client) TradingPairs(ctx context.Context) ([]market.TradingPair, error) {
	var payload ExchangeInfoResponse
	if err := c.getJSON(ctx, exchangeInfoPath, nil, &payload); err != nil {
		return nil, err
	}
	pairs := make([]market.TradingPair, 0, len(payload.Symbols))
	for _, info := range payload.Symbols {
		pair := market.TradingPair{
			Symbol:     strings.ToUpper(strings.TrimSpace(info.Symbol)),
			BaseAsset:  strings.ToUpper(strings.TrimSpace(info.BaseAsset)),
			QuoteAsset: strings.ToUpper(strings.TrimSpace(info.QuoteAsset)),
			Status:     info.Status,
		}
		if pair.Symbol == "" || !pair.IsTrading() {
			continue
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}
