// Package enrich joins reference market data onto exchange daily bars.
package enrich

import (
	"context"
	"sort"

	"github.com/zeromicro/go-zero/core/logx"

	"eod-collector/pkg/market"
)

// SkipReason says why a symbol produced no enriched rows.
type SkipReason string

const (
	SkipNoQuoteSuffix SkipReason = "no_quote_suffix"
	SkipNoMapping     SkipReason = "no_provider_mapping"
	SkipNoMarketData  SkipReason = "no_market_data"
)

// Resolver maps a trading pair to its base asset and provider id. A failed
// extraction returns an empty base.
type Resolver interface {
	ResolvePair(ctx context.Context, pair string) (base, id string, err error)
}

// Result is the outcome of one Enrich call.
type Result struct {
	Rows    []market.EnrichedBar
	Skipped map[string]SkipReason
	// Resolved maps every symbol that resolved to its provider id.
	Resolved map[string]string
}

// SkippedSymbols returns the skipped symbols in sorted order.
func (r Result) SkippedSymbols() []string {
	out := make([]string, 0, len(r.Skipped))
	for symbol := range r.Skipped {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// Pipeline composes symbol resolution and market data retrieval.
type Pipeline struct {
	resolver Resolver
	source   market.MarketSource
}

// NewPipeline builds a Pipeline.
func NewPipeline(resolver Resolver, source market.MarketSource) *Pipeline {
	return &Pipeline{resolver: resolver, source: source}
}

// Enrich attaches an EnrichmentRecord to every bar whose symbol resolves to a
// provider id with fetched data. Whether a symbol is enriched is decided once
// per provider id, so a symbol either keeps all of its bars or none. The input
// slice is not modified. The only error is the context's.
func (p *Pipeline) Enrich(ctx context.Context, bars []market.MarketBar) (Result, error) {
	result := Result{
		Skipped:  make(map[string]SkipReason),
		Resolved: make(map[string]string),
	}
	if len(bars) == 0 {
		return result, nil
	}

	symbols := distinctSymbols(bars)
	ids := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, symbol := range symbols {
		base, id, err := p.resolver.ResolvePair(ctx, symbol)
		if err != nil {
			reason := SkipNoMapping
			if base == "" {
				reason = SkipNoQuoteSuffix
			}
			result.Skipped[symbol] = reason
			logx.WithContext(ctx).Slowf("enrich: skip symbol=%s reason=%s err=%v", symbol, reason, err)
			continue
		}
		result.Resolved[symbol] = id
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	records := map[string]market.EnrichmentRecord{}
	if len(ids) > 0 {
		fetched, err := p.source.FetchMarkets(ctx, ids)
		if err != nil {
			return Result{}, err
		}
		records = fetched
	}

	for _, symbol := range symbols {
		id, ok := result.Resolved[symbol]
		if !ok {
			continue
		}
		if _, ok := records[id]; !ok {
			result.Skipped[symbol] = SkipNoMarketData
			logx.WithContext(ctx).Slowf("enrich: skip symbol=%s id=%s reason=%s", symbol, id, SkipNoMarketData)
		}
	}

	result.Rows = make([]market.EnrichedBar, 0, len(bars))
	for _, bar := range bars {
		if _, skipped := result.Skipped[bar.Symbol]; skipped {
			continue
		}
		id, ok := result.Resolved[bar.Symbol]
		if !ok {
			continue
		}
		result.Rows = append(result.Rows, market.EnrichedBar{
			MarketBar:        bar,
			EnrichmentRecord: records[id].Clone(),
		})
	}
	return result, nil
}

func distinctSymbols(bars []market.MarketBar) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, bar := range bars {
		if _, ok := seen[bar.Symbol]; ok {
			continue
		}
		seen[bar.Symbol] = struct{}{}
		out = append(out, bar.Symbol)
	}
	sort.Strings(out)
	return out
}
