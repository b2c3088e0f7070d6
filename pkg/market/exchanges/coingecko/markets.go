package coingecko

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"eod-collector/pkg/market"
)

const coinsMarketsPath = "/coins/markets"

// marketEntry mirrors the subset of /coins/markets we consume. Pointer fields
// stay nil when the provider omits a value or reports null.
type marketEntry struct {
	ID                string   `json:"id"`
	MarketCap         *float64 `json:"market_cap"`
	CirculatingSupply *float64 `json:"circulating_supply"`
	TotalSupply       *float64 `json:"total_supply"`
	MaxSupply         *float64 `json:"max_supply"`
}

// FetchMarkets retrieves enrichment records for ids in batches of at most the
// configured batch size. A failed batch is logged and its ids are left out of
// the result; it is not retried beyond the single rate-limit retry.
func (c *Client) FetchMarkets(ctx context.Context, ids []string) (map[string]market.EnrichmentRecord, error) {
	unique := normaliseIDs(ids)
	records := make(map[string]market.EnrichmentRecord, len(unique))
	batches := chunk(unique, c.batchSize)
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		entries, err := c.fetchBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return records, ctx.Err()
			}
			logx.WithContext(ctx).Errorf("coingecko: markets batch=%d/%d ids=%d err=%v", i+1, len(batches), len(batch), err)
			continue
		}
		for _, entry := range entries {
			if entry.ID == "" {
				continue
			}
			records[entry.ID] = market.EnrichmentRecord{
				MarketCap:         entry.MarketCap,
				CirculatingSupply: entry.CirculatingSupply,
				TotalSupply:       entry.TotalSupply,
				MaxSupply:         entry.MaxSupply,
			}
		}
	}
	logx.WithContext(ctx).Infof("coingecko: fetched market data for %d/%d coins in %d batches", len(records), len(unique), len(batches))
	return records, nil
}

func (c *Client) fetchBatch(ctx context.Context, ids []string) ([]marketEntry, error) {
	query := url.Values{}
	query.Set("vs_currency", c.vsCurrency)
	query.Set("ids", strings.Join(ids, ","))
	query.Set("order", "market_cap_desc")
	query.Set("per_page", strconv.Itoa(c.batchSize))
	query.Set("page", "1")
	query.Set("sparkline", "false")

	var entries []marketEntry
	if err := c.getJSON(ctx, coinsMarketsPath, query, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func normaliseIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = MaxBatchSize
	}
	var batches [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	return batches
}
