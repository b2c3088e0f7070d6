package binance

import (
	"context"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"eod-collector/pkg/market"
)

// Tickers24h returns today's rolling 24h bar for the requested symbols. An empty
// symbol list selects every ticker the exchange reports.
func (c *Client) Tickers24h(ctx context.Context, symbols []string) ([]market.MarketBar, error) {
	var tickers []Ticker24h
	if err := c.getJSON(ctx, ticker24hPath, nil, &tickers); err != nil {
		return nil, err
	}

	wanted := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym != "" {
			wanted[sym] = struct{}{}
		}
	}

	today := c.nowFn()
	bars := make([]market.MarketBar, 0, len(tickers))
	for _, ticker := range tickers {
		ticker.Symbol = strings.ToUpper(strings.TrimSpace(ticker.Symbol))
		if len(wanted) > 0 {
			if _, ok := wanted[ticker.Symbol]; !ok {
				continue
			}
		}
		bar, err := ticker.parseBar(today)
		if err != nil {
			logx.WithContext(ctx).Slowf("binance: drop ticker symbol=%s err=%v", ticker.Symbol, err)
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}
