package binance

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"eod-collector/pkg/market"
)

const (
	dailyInterval  = "1d"
	maxKlinesLimit = 1000
	day            = 24 * time.Hour
)

// DailyBars fetches daily candles for symbol over the closed window
// [now - days, now], following pagination when the window exceeds one page.
// Rows with malformed numeric text are dropped individually.
func (c *Client) DailyBars(ctx context.Context, symbol string, days int) ([]market.MarketBar, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("binance: symbol is required")
	}
	if days <= 0 {
		return nil, fmt.Errorf("binance: days must be positive, got %d", days)
	}

	end := c.nowFn().UTC()
	start := end.Add(-time.Duration(days) * day)

	byDate := make(map[string]market.MarketBar, days+1)
	for !start.After(end) {
		rows, err := c.klinePage(ctx, symbol, start, end)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}
		var lastOpen int64
		for i, row := range rows {
			bar, err := row.parseBar(symbol)
			if err != nil {
				logx.WithContext(ctx).Slowf("binance: drop kline symbol=%s row=%d err=%v", symbol, i, err)
				continue
			}
			byDate[bar.Key().Date] = bar
			if ts, err := rawInt(row[0], "open_time"); err == nil && ts > lastOpen {
				lastOpen = ts
			}
		}
		if len(rows) < maxKlinesLimit || lastOpen == 0 {
			break
		}
		start = msToTime(lastOpen).Add(day)
	}

	if len(byDate) == 0 {
		return nil, nil
	}
	bars := make([]market.MarketBar, 0, len(byDate))
	for _, bar := range byDate {
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Date.Before(bars[j].Date)
	})
	return bars, nil
}

func (c *Client) klinePage(ctx context.Context, symbol string, start, end time.Time) ([]KlineRow, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("interval", dailyInterval)
	query.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	query.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	query.Set("limit", strconv.Itoa(maxKlinesLimit))

	var rows []KlineRow
	if err := c.getJSON(ctx, klinesPath, query, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
