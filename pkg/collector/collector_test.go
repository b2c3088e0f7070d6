package collector

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eod-collector/pkg/enrich"
	"eod-collector/pkg/journal"
	"eod-collector/pkg/market"
	"eod-collector/pkg/store"
	"eod-collector/pkg/symbols"
)

var today = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

type fakeExchange struct {
	pairs     []market.TradingPair
	bars      map[string][]market.MarketBar
	errs      map[string]error
	tickers   []market.MarketBar
	tickerErr error
	onFetch   func(symbol string)
	fetched   []string
}

func (f *fakeExchange) TradingPairs(context.Context) ([]market.TradingPair, error) {
	return f.pairs, nil
}

func (f *fakeExchange) DailyBars(ctx context.Context, symbol string, days int) ([]market.MarketBar, error) {
	f.fetched = append(f.fetched, symbol)
	if f.onFetch != nil {
		f.onFetch(symbol)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	return f.bars[symbol], nil
}

func (f *fakeExchange) Tickers24h(_ context.Context, wanted []string) ([]market.MarketBar, error) {
	if f.tickerErr != nil {
		return nil, f.tickerErr
	}
	return f.tickers, nil
}

type coinList []market.Coin

func (l coinList) CoinsList(context.Context) ([]market.Coin, error) { return l, nil }

type fakeSource map[string]market.EnrichmentRecord

func (s fakeSource) FetchMarkets(_ context.Context, ids []string) (map[string]market.EnrichmentRecord, error) {
	out := make(map[string]market.EnrichmentRecord)
	for _, id := range ids {
		if rec, ok := s[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

type recordingStore struct {
	inner  Store
	modes  []store.Mode
	counts []int
	err    error
}

func (s *recordingStore) Write(rows []market.EnrichedBar, mode store.Mode) (int, error) {
	s.modes = append(s.modes, mode)
	s.counts = append(s.counts, len(rows))
	if s.err != nil {
		return 0, s.err
	}
	return s.inner.Write(rows, mode)
}

type countingFlusher struct{ calls int }

func (f *countingFlusher) Flush(context.Context) error {
	f.calls++
	return nil
}

type memoryJournal struct{ records []*journal.RunRecord }

func (j *memoryJournal) WriteRun(rec *journal.RunRecord) (string, error) {
	j.records = append(j.records, rec)
	return "memory", nil
}

type failingMirror struct{ calls int }

func (m *failingMirror) MirrorBars(context.Context, []market.EnrichedBar) error {
	m.calls++
	return errors.New("postgres down")
}

func bars(symbol string, n int, close float64) []market.MarketBar {
	out := make([]market.MarketBar, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, market.MarketBar{Date: today.AddDate(0, 0, i-n), Symbol: symbol, Close: close + float64(i)})
	}
	return out
}

type harness struct {
	exchange *fakeExchange
	store    *recordingStore
	csv      *store.CSVStore
	flusher  *countingFlusher
	journal  *memoryJournal
	mirror   *failingMirror
	sleeps   int
}

func newHarness(t *testing.T, exchange *fakeExchange, mutate func(*Config)) (*Collector, *harness) {
	t.Helper()
	resolver := symbols.NewResolver(coinList{
		{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin"},
		{ID: "ethereum", Symbol: "eth", Name: "Ethereum"},
		{ID: "nodata", Symbol: "nod", Name: "No Data"},
	})
	source := fakeSource{
		"bitcoin":  {MarketCap: market.Float(1e12)},
		"ethereum": {MarketCap: market.Float(4e11)},
	}
	csv := store.NewCSVStore(filepath.Join(t.TempDir(), "all_pairs_eod.csv"))
	h := &harness{
		exchange: exchange,
		store:    &recordingStore{inner: csv},
		csv:      csv,
		flusher:  &countingFlusher{},
		journal:  &memoryJournal{},
		mirror:   &failingMirror{},
	}
	cfg := Config{
		Exchange:    exchange,
		Enricher:    enrich.NewPipeline(resolver, source),
		Store:       h.store,
		Mapping:     h.flusher,
		Mirror:      h.mirror,
		Journal:     h.journal,
		Days:        3,
		BatchSize:   2,
		SymbolDelay: time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	c.nowFn = func() time.Time { return today }
	c.sleep = func(ctx context.Context, _ time.Duration) bool {
		h.sleeps++
		return ctx.Err() == nil
	}
	return c, h
}

func TestRunHistoricalStates(t *testing.T) {
	exchange := &fakeExchange{
		bars: map[string][]market.MarketBar{
			"BTCUSDT":  bars("BTCUSDT", 3, 100),
			"FAKEUSDT": bars("FAKEUSDT", 3, 1),
			"NODUSDT":  bars("NODUSDT", 2, 1),
		},
		errs: map[string]error{"ERRUSDT": market.ErrTransport},
	}
	c, h := newHarness(t, exchange, func(cfg *Config) {
		cfg.Symbols = []string{"btcusdt", "FAKEUSDT", "ERRUSDT", "EMPTYUSDT", "NODUSDT", "BTCUSDT"}
	})

	report, err := c.RunHistorical(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]State{
		"BTCUSDT":   StatePersisted,
		"EMPTYUSDT": StateFailed,
		"ERRUSDT":   StateFailed,
		"FAKEUSDT":  StateSkipped,
		"NODUSDT":   StateSkipped,
	}, report.States)
	assert.Equal(t, Tally{Fetched: 3, Failed: 2, Skipped: 2, Persisted: 1}, report.Tally())
	assert.Equal(t, "no data", report.Failed["EMPTYUSDT"])
	assert.Equal(t, string(enrich.SkipNoMapping), report.Skipped["FAKEUSDT"])
	assert.Equal(t, string(enrich.SkipNoMarketData), report.Skipped["NODUSDT"])
	assert.Equal(t, 3, report.Batches)
	assert.Equal(t, 3, report.RowsWritten)
	assert.True(t, report.Success())
	assert.Equal(t, 4, h.sleeps, "one pause between consecutive symbols")

	rows, err := h.csv.Read()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, "BTCUSDT", row.Symbol)
		require.NotNil(t, row.MarketCap)
	}

	assert.Equal(t, 1, h.mirror.calls, "mirror failures are logged only")
	assert.GreaterOrEqual(t, h.flusher.calls, 2)
	require.Len(t, h.journal.records, 1)
	rec := h.journal.records[0]
	assert.Equal(t, ModeHistorical, rec.Mode)
	assert.True(t, rec.Success)
	assert.Equal(t, []string{"EMPTYUSDT", "ERRUSDT"}, rec.Failed)
	assert.Equal(t, 1, rec.Counts[string(StatePersisted)])
}

func TestRunHistoricalOverwriteThenMerge(t *testing.T) {
	exchange := &fakeExchange{bars: map[string][]market.MarketBar{
		"BTCUSDT": bars("BTCUSDT", 2, 1),
		"ETHUSDT": bars("ETHUSDT", 2, 1),
		"ETHBTC":  bars("ETHBTC", 2, 1),
	}}
	c, h := newHarness(t, exchange, func(cfg *Config) {
		cfg.Symbols = []string{"BTCUSDT", "ETHUSDT", "ETHBTC"}
		cfg.BatchSize = 1
		cfg.Overwrite = true
	})
	_, err := h.csv.Write([]market.EnrichedBar{{MarketBar: market.MarketBar{Date: today, Symbol: "OLDUSDT"}}}, store.ModeOverwrite)
	require.NoError(t, err)

	report, err := c.RunHistorical(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Tally().Persisted)
	assert.Equal(t, []store.Mode{store.ModeOverwrite, store.ModeMerge, store.ModeMerge}, h.store.modes)

	rows, err := h.csv.Read()
	require.NoError(t, err)
	assert.Len(t, rows, 6, "overwrite drops the old dataset, later batches merge")
}

func TestRunHistoricalBatchesOfConfiguredSize(t *testing.T) {
	exchange := &fakeExchange{bars: map[string][]market.MarketBar{}}
	var syms []string
	for _, base := range []string{"BTC", "ETH"} {
		for _, quote := range []string{"USDT", "BUSD", "USDC"} {
			sym := base + quote
			syms = append(syms, sym)
			exchange.bars[sym] = bars(sym, 1, 1)
		}
	}
	c, h := newHarness(t, exchange, func(cfg *Config) {
		cfg.Symbols = syms
		cfg.BatchSize = 4
	})
	report, err := c.RunHistorical(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Batches)
	assert.Equal(t, []int{4, 2}, h.store.counts)
	assert.Equal(t, []store.Mode{store.ModeMerge, store.ModeMerge}, h.store.modes)
}

func TestRunHistoricalNothingPersisted(t *testing.T) {
	exchange := &fakeExchange{bars: map[string][]market.MarketBar{"FAKEUSDT": bars("FAKEUSDT", 2, 1)}}
	c, h := newHarness(t, exchange, func(cfg *Config) { cfg.Symbols = []string{"FAKEUSDT"} })

	report, err := c.RunHistorical(context.Background())
	require.ErrorIs(t, err, ErrNothingPersisted)
	require.NotNil(t, report)
	assert.Equal(t, StateSkipped, report.States["FAKEUSDT"])
	assert.Empty(t, h.store.modes, "nothing to write")
	require.Len(t, h.journal.records, 1)
	assert.False(t, h.journal.records[0].Success)
}

func TestRunHistoricalStoreFailureIsFatal(t *testing.T) {
	exchange := &fakeExchange{bars: map[string][]market.MarketBar{
		"BTCUSDT": bars("BTCUSDT", 1, 1),
		"ETHUSDT": bars("ETHUSDT", 1, 1),
	}}
	c, h := newHarness(t, exchange, func(cfg *Config) {
		cfg.Symbols = []string{"BTCUSDT", "ETHUSDT"}
		cfg.BatchSize = 1
	})
	diskErr := errors.New("disk full")
	h.store.err = diskErr

	_, err := c.RunHistorical(context.Background())
	require.ErrorIs(t, err, diskErr)
	assert.Equal(t, []string{"BTCUSDT"}, exchange.fetched, "run stops at the first disk failure")
}

func TestRunHistoricalInterruptStopsBetweenSymbols(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exchange := &fakeExchange{bars: map[string][]market.MarketBar{
		"BTCUSDT": bars("BTCUSDT", 1, 1),
		"ETHBTC":  bars("ETHBTC", 1, 1),
		"ETHUSDT": bars("ETHUSDT", 1, 1),
	}}
	exchange.onFetch = func(symbol string) {
		if symbol == "ETHBTC" {
			cancel()
		}
	}
	c, h := newHarness(t, exchange, func(cfg *Config) {
		cfg.Symbols = []string{"BTCUSDT", "ETHBTC", "ETHUSDT"}
		cfg.BatchSize = 1
	})

	report, err := c.RunHistorical(ctx)
	require.NoError(t, err, "one symbol was persisted before the interrupt")
	assert.True(t, report.Interrupted)
	assert.Equal(t, StatePersisted, report.States["BTCUSDT"])
	assert.Equal(t, StatePending, report.States["ETHBTC"])
	assert.Equal(t, StatePending, report.States["ETHUSDT"])
	assert.Equal(t, []string{"BTCUSDT", "ETHBTC"}, exchange.fetched)
	assert.Len(t, h.store.modes, 1)
}

func TestRunDaily(t *testing.T) {
	exchange := &fakeExchange{
		pairs: []market.TradingPair{
			{Symbol: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT", Status: market.StatusTrading},
			{Symbol: "ETHUSDT", BaseAsset: "ETH", QuoteAsset: "USDT", Status: market.StatusTrading},
			{Symbol: "LUNAUSDT", BaseAsset: "LUNA", QuoteAsset: "USDT", Status: market.StatusTrading},
			{Symbol: "ETHBTC", BaseAsset: "ETH", QuoteAsset: "BTC", Status: market.StatusTrading},
			{Symbol: "OLDUSDT", BaseAsset: "OLD", QuoteAsset: "USDT", Status: "BREAK"},
		},
		tickers: []market.MarketBar{
			{Date: today, Symbol: "BTCUSDT", Close: 70000},
			{Date: today, Symbol: "ETHUSDT", Close: 3500},
		},
	}
	c, h := newHarness(t, exchange, func(cfg *Config) { cfg.QuoteAssets = []string{"usdt"} })
	_, err := h.csv.Write([]market.EnrichedBar{
		{MarketBar: market.MarketBar{Date: today, Symbol: "BTCUSDT", Close: 1}},
		{MarketBar: market.MarketBar{Date: today.AddDate(0, 0, -1), Symbol: "BTCUSDT", Close: 2}},
	}, store.ModeOverwrite)
	require.NoError(t, err)

	report, err := c.RunDaily(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]State{
		"BTCUSDT":  StatePersisted,
		"ETHUSDT":  StatePersisted,
		"LUNAUSDT": StateFailed,
	}, report.States)
	assert.Equal(t, "no ticker", report.Failed["LUNAUSDT"])
	assert.Equal(t, []store.Mode{store.ModeMerge}, h.store.modes, "a batch without rows is not written")
	assert.Zero(t, h.sleeps)

	rows, err := h.csv.Read()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 2.0, rows[0].Close, "older BTC row kept")
	assert.Equal(t, 70000.0, rows[1].Close, "today's BTC row replaced")
	assert.Equal(t, "ETHUSDT", rows[2].Symbol)
}

func TestRunDailyTickerFailure(t *testing.T) {
	exchange := &fakeExchange{tickerErr: market.ErrTransport}
	c, _ := newHarness(t, exchange, func(cfg *Config) { cfg.Symbols = []string{"BTCUSDT", "ETHUSDT"} })

	report, err := c.RunDaily(context.Background())
	require.ErrorIs(t, err, ErrNothingPersisted)
	assert.Equal(t, Tally{Failed: 2}, report.Tally())
}

func TestSelectSymbols(t *testing.T) {
	exchange := &fakeExchange{pairs: []market.TradingPair{
		{Symbol: "ETHUSDT", QuoteAsset: "USDT", Status: market.StatusTrading},
		{Symbol: "BTCUSDT", QuoteAsset: "USDT", Status: market.StatusTrading},
		{Symbol: "ADAUSDT", QuoteAsset: "USDT", Status: "HALT"},
		{Symbol: "SOLEUR", QuoteAsset: "EUR", Status: market.StatusTrading},
		{Symbol: "BNBUSDT", QuoteAsset: "USDT", Status: market.StatusTrading},
	}}
	c, _ := newHarness(t, exchange, func(cfg *Config) {
		cfg.QuoteAssets = []string{"USDT"}
		cfg.MaxSymbols = 2
	})
	got, err := c.selectSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BNBUSDT", "BTCUSDT"}, got)

	c.cfg.QuoteAssets = nil
	c.cfg.MaxSymbols = 0
	got, err = c.selectSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BNBUSDT", "BTCUSDT", "ETHUSDT", "SOLEUR"}, got)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestSleepWithContext(t *testing.T) {
	assert.True(t, sleepWithContext(context.Background(), 0))
	assert.True(t, sleepWithContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepWithContext(ctx, time.Hour))
	assert.False(t, sleepWithContext(ctx, 0))
}
