// Package collector drives symbol discovery, bar retrieval, enrichment and
// persistence for historical backfills and daily updates.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"eod-collector/pkg/enrich"
	"eod-collector/pkg/journal"
	"eod-collector/pkg/market"
	"eod-collector/pkg/store"
)

const (
	ModeHistorical = "historical"
	ModeDaily      = "daily"

	defaultBatchSize = 50
	defaultDays      = 365
	logPreview       = 10
)

// ErrNothingPersisted is returned when a run ends without any PERSISTED symbol.
var ErrNothingPersisted = errors.New("collector: no symbol persisted")

// Enricher attaches reference data to bars.
type Enricher interface {
	Enrich(ctx context.Context, bars []market.MarketBar) (enrich.Result, error)
}

// Store persists enriched rows.
type Store interface {
	Write(rows []market.EnrichedBar, mode store.Mode) (int, error)
}

// MappingFlusher saves resolver state between batches.
type MappingFlusher interface {
	Flush(ctx context.Context) error
}

// RunJournal records finished runs.
type RunJournal interface {
	WriteRun(rec *journal.RunRecord) (string, error)
}

// Config wires a Collector. Exchange, Enricher and Store are required.
type Config struct {
	Exchange market.Exchange
	Enricher Enricher
	Store    Store
	Mapping  MappingFlusher
	Mirror   market.Mirror
	Journal  RunJournal

	Days        int
	BatchSize   int
	SymbolDelay time.Duration
	// QuoteAssets limits discovered pairs to these quotes. Empty keeps all.
	QuoteAssets []string
	// Symbols replaces discovery when set.
	Symbols    []string
	MaxSymbols int
	// Overwrite makes the first historical write replace the dataset.
	Overwrite bool
}

// Collector runs collections sequentially. It is not safe for concurrent runs.
type Collector struct {
	cfg   Config
	nowFn func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

// New validates cfg and applies defaults.
func New(cfg Config) (*Collector, error) {
	if cfg.Exchange == nil {
		return nil, errors.New("collector: exchange is required")
	}
	if cfg.Enricher == nil {
		return nil, errors.New("collector: enricher is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("collector: store is required")
	}
	if cfg.Days <= 0 {
		cfg.Days = defaultDays
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.SymbolDelay < 0 {
		cfg.SymbolDelay = 0
	}
	if cfg.MaxSymbols < 0 {
		cfg.MaxSymbols = 0
	}
	cfg.Symbols = normaliseSymbols(cfg.Symbols)
	quotes := make([]string, 0, len(cfg.QuoteAssets))
	for _, q := range cfg.QuoteAssets {
		if q = strings.ToUpper(strings.TrimSpace(q)); q != "" {
			quotes = append(quotes, q)
		}
	}
	cfg.QuoteAssets = quotes
	return &Collector{cfg: cfg, nowFn: time.Now, sleep: sleepWithContext}, nil
}

// RunHistorical backfills Days of bars for every selected symbol, flushing
// every BatchSize symbols.
func (c *Collector) RunHistorical(ctx context.Context) (*Report, error) {
	symbols, err := c.selectSymbols(ctx)
	if err != nil {
		return nil, err
	}
	report := newReport(ModeHistorical, symbols, c.nowFn())
	logx.WithContext(ctx).Infof("collector: historical run symbols=%d days=%d batch=%d", len(symbols), c.cfg.Days, c.cfg.BatchSize)

	mode := store.ModeMerge
	if c.cfg.Overwrite {
		mode = store.ModeOverwrite
	}
	batches := chunk(symbols, c.cfg.BatchSize)
	first := true

run:
	for i, batch := range batches {
		var bars []market.MarketBar
		for _, symbol := range batch {
			if ctx.Err() != nil {
				report.Interrupted = true
				break run
			}
			if !first && !c.sleep(ctx, c.cfg.SymbolDelay) {
				report.Interrupted = true
				break run
			}
			first = false

			fetched, err := c.cfg.Exchange.DailyBars(ctx, symbol, c.cfg.Days)
			switch {
			case err != nil && ctx.Err() != nil:
				report.Interrupted = true
				break run
			case err != nil:
				logx.WithContext(ctx).Errorf("collector: fetch symbol=%s err=%v", symbol, err)
				report.fail(symbol, err.Error())
				continue
			case len(fetched) == 0:
				logx.WithContext(ctx).Slowf("collector: no bars symbol=%s", symbol)
				report.fail(symbol, "no data")
				continue
			}
			report.States[symbol] = StateFetched
			bars = append(bars, fetched...)
		}

		wrote, err := c.processBatch(ctx, report, i+1, len(batches), batch, bars, mode)
		if err != nil {
			return c.finish(ctx, report, err)
		}
		if wrote {
			mode = store.ModeMerge
		}
		if report.Interrupted {
			break
		}
	}
	return c.finish(ctx, report, nil)
}

// RunDaily fetches today's 24h tickers for the selected symbols and merges
// them into the dataset.
func (c *Collector) RunDaily(ctx context.Context) (*Report, error) {
	symbols, err := c.selectSymbols(ctx)
	if err != nil {
		return nil, err
	}
	report := newReport(ModeDaily, symbols, c.nowFn())
	logx.WithContext(ctx).Infof("collector: daily run symbols=%d", len(symbols))

	tickers, err := c.cfg.Exchange.Tickers24h(ctx, symbols)
	if err != nil {
		if ctx.Err() != nil {
			report.Interrupted = true
			return c.finish(ctx, report, nil)
		}
		logx.WithContext(ctx).Errorf("collector: fetch tickers err=%v", err)
		for _, symbol := range symbols {
			report.fail(symbol, err.Error())
		}
		return c.finish(ctx, report, nil)
	}

	bySymbol := make(map[string]market.MarketBar, len(tickers))
	for _, bar := range tickers {
		bySymbol[bar.Symbol] = bar
	}

	batches := chunk(symbols, c.cfg.BatchSize)
	for i, batch := range batches {
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}
		bars := make([]market.MarketBar, 0, len(batch))
		for _, symbol := range batch {
			bar, ok := bySymbol[symbol]
			if !ok {
				report.fail(symbol, "no ticker")
				continue
			}
			report.States[symbol] = StateFetched
			bars = append(bars, bar)
		}
		if _, err := c.processBatch(ctx, report, i+1, len(batches), batch, bars, store.ModeMerge); err != nil {
			return c.finish(ctx, report, err)
		}
		if report.Interrupted {
			break
		}
	}
	return c.finish(ctx, report, nil)
}

// processBatch enriches and persists one batch. Only store errors are returned.
func (c *Collector) processBatch(ctx context.Context, report *Report, n, batches int, batch []string, bars []market.MarketBar, mode store.Mode) (bool, error) {
	report.Batches++
	defer c.logBatch(ctx, report, n, batches, batch)
	if len(bars) == 0 {
		return false, nil
	}

	result, err := c.cfg.Enricher.Enrich(ctx, bars)
	if err != nil {
		// Enrichment only fails on cancellation; the batch stays unflushed.
		report.Interrupted = true
		return false, nil
	}
	for symbol, reason := range result.Skipped {
		report.skip(symbol, string(reason))
	}
	if skipped := result.SkippedSymbols(); len(skipped) > 0 {
		logx.WithContext(ctx).Infof("collector: batch=%d skipped=%d %v", n, len(skipped), preview(skipped, logPreview))
	}
	for _, row := range result.Rows {
		report.States[row.Symbol] = StateEnriched
	}
	c.flushMapping(ctx)
	if len(result.Rows) == 0 {
		return false, nil
	}

	datasetRows, err := c.cfg.Store.Write(result.Rows, mode)
	if err != nil {
		return false, fmt.Errorf("collector: persist batch %d: %w", n, err)
	}
	report.RowsWritten += len(result.Rows)
	for _, row := range result.Rows {
		report.States[row.Symbol] = StatePersisted
	}
	logx.WithContext(ctx).Infof("collector: batch=%d persisted rows=%d dataset=%d mode=%s", n, len(result.Rows), datasetRows, mode)

	if c.cfg.Mirror != nil {
		if err := c.cfg.Mirror.MirrorBars(ctx, result.Rows); err != nil {
			logx.WithContext(ctx).Errorf("collector: mirror batch=%d rows=%d err=%v", n, len(result.Rows), err)
		}
	}
	return true, nil
}

func (c *Collector) logBatch(ctx context.Context, report *Report, n, total int, batch []string) {
	t := tally(report.States, batch)
	logx.WithContext(ctx).Infof("collector: batch=%d/%d symbols=%d fetched=%d failed=%d skipped=%d persisted=%d pending=%d",
		n, total, len(batch), t.Fetched, t.Failed, t.Skipped, t.Persisted, t.Pending)
}

func (c *Collector) flushMapping(ctx context.Context) {
	if c.cfg.Mapping == nil {
		return
	}
	if err := c.cfg.Mapping.Flush(ctx); err != nil {
		logx.WithContext(ctx).Errorf("collector: flush symbol mapping err=%v", err)
	}
}

// finish logs totals, journals the run and decides the returned error.
func (c *Collector) finish(ctx context.Context, report *Report, runErr error) (*Report, error) {
	report.Finished = c.nowFn()
	c.flushMapping(ctx)

	t := report.Tally()
	logx.WithContext(ctx).Infof("collector: %s run done symbols=%d fetched=%d failed=%d skipped=%d persisted=%d pending=%d rows=%d interrupted=%t duration=%s",
		report.Mode, len(report.States), t.Fetched, t.Failed, t.Skipped, t.Persisted, t.Pending, report.RowsWritten, report.Interrupted,
		report.Finished.Sub(report.Started).Round(time.Millisecond))
	if failed := report.FailedSymbols(); len(failed) > 0 {
		logx.WithContext(ctx).Slowf("collector: failed symbols=%d %v", len(failed), preview(failed, logPreview))
	}
	if skipped := report.SkippedSymbols(); len(skipped) > 0 {
		logx.WithContext(ctx).Slowf("collector: skipped symbols=%d %v", len(skipped), preview(skipped, logPreview))
	}

	if runErr == nil && !report.Success() {
		runErr = ErrNothingPersisted
	}
	if c.cfg.Journal != nil {
		if path, err := c.cfg.Journal.WriteRun(report.Record(runErr)); err != nil {
			logx.WithContext(ctx).Errorf("collector: write journal err=%v", err)
		} else {
			logx.WithContext(ctx).Infof("collector: journal written path=%s", path)
		}
	}
	return report, runErr
}

// selectSymbols returns the configured symbols or the discovered trading
// pairs, filtered by quote and capped at MaxSymbols.
func (c *Collector) selectSymbols(ctx context.Context) ([]string, error) {
	symbols := c.cfg.Symbols
	if len(symbols) == 0 {
		pairs, err := c.cfg.Exchange.TradingPairs(ctx)
		if err != nil {
			return nil, fmt.Errorf("collector: discover trading pairs: %w", err)
		}
		symbols = make([]string, 0, len(pairs))
		for _, pair := range pairs {
			if !pair.IsTrading() || !c.quoteAllowed(pair.QuoteAsset) {
				continue
			}
			symbols = append(symbols, pair.Symbol)
		}
		symbols = normaliseSymbols(symbols)
		logx.WithContext(ctx).Infof("collector: discovered %d trading pairs (%d eligible)", len(pairs), len(symbols))
	}
	if c.cfg.MaxSymbols > 0 && len(symbols) > c.cfg.MaxSymbols {
		symbols = symbols[:c.cfg.MaxSymbols]
	}
	if len(symbols) == 0 {
		return nil, errors.New("collector: no symbols to collect")
	}
	return symbols, nil
}

func (c *Collector) quoteAllowed(quote string) bool {
	if len(c.cfg.QuoteAssets) == 0 {
		return true
	}
	quote = strings.ToUpper(quote)
	for _, q := range c.cfg.QuoteAssets {
		if q == quote {
			return true
		}
	}
	return false
}

func normaliseSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func chunk(symbols []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(symbols); start += size {
		end := start + size
		if end > len(symbols) {
			end = len(symbols)
		}
		out = append(out, symbols[start:end])
	}
	return out
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
