package svc

import (
	"context"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"eod-collector/internal/cache"
	"eod-collector/internal/config"
	marketpersist "eod-collector/internal/persistence/market"
	"eod-collector/pkg/collector"
	"eod-collector/pkg/enrich"
	"eod-collector/pkg/journal"
	marketpkg "eod-collector/pkg/market"
	_ "eod-collector/pkg/market/exchanges/binance"
	_ "eod-collector/pkg/market/exchanges/coingecko"
	"eod-collector/pkg/store"
	"eod-collector/pkg/symbols"
)

type ServiceContext struct {
	Config config.Config

	Exchange  marketpkg.Exchange
	Reference marketpkg.Reference
	Resolver  *symbols.Resolver
	Pipeline  *enrich.Pipeline
	Dataset   *store.CSVStore
	Journal   *journal.Writer

	// Optional mirrors, nil unless configured.
	DBConn        sqlx.SqlConn
	BarMirror     *marketpersist.Service
	MappingMirror *cache.MappingStore
}

// RunOptions override collector settings from the command line. Zero values
// keep the configured value.
type RunOptions struct {
	Days       int
	Symbols    []string
	MaxSymbols int
	Overwrite  bool
}

// NewServiceContext builds providers, the resolver and the stores for c and
// loads the persisted symbol mapping.
func NewServiceContext(ctx context.Context, c config.Config) (*ServiceContext, error) {
	if !c.Market.Loaded() {
		return nil, errors.New("svc: market config not loaded")
	}
	marketCfg := c.Market.Value
	exchange, err := marketCfg.BuildExchange()
	if err != nil {
		return nil, fmt.Errorf("svc: build exchange: %w", err)
	}
	reference, err := marketCfg.BuildReference()
	if err != nil {
		return nil, fmt.Errorf("svc: build reference: %w", err)
	}

	svc := &ServiceContext{
		Config:    c,
		Exchange:  exchange,
		Reference: reference,
		Dataset:   store.NewCSVStore(c.OutputPath()),
	}
	if dir := c.JournalPath(); dir != "" {
		svc.Journal = journal.NewWriter(dir)
	}

	opts := []symbols.Option{symbols.WithStore(symbols.NewFileStore(c.MappingPath()))}
	if c.Collector.ListingTTL > 0 {
		opts = append(opts, symbols.WithListingTTL(c.Collector.ListingTTL))
	}
	if len(c.Collector.RecognisedQuotes) > 0 {
		opts = append(opts, symbols.WithQuoteAssets(c.Collector.RecognisedQuotes))
	}
	if len(c.Collector.Overrides) > 0 {
		opts = append(opts, symbols.WithOverrides(c.Collector.Overrides))
	}

	mirror, err := cache.NewMappingStore(c.Redis, c.Env, marketCfg.Reference)
	if err != nil {
		return nil, err
	}
	if mirror != nil {
		svc.MappingMirror = mirror
		opts = append(opts, symbols.WithMirror(mirror))
	}

	// Only mirror bars into Postgres when a DSN is provided; the CSV stays primary.
	if c.Postgres.DSN != "" {
		conn := sqlx.NewSqlConn("pgx", c.Postgres.DSN)
		if db, err := conn.RawDB(); err == nil {
			db.SetMaxOpenConns(c.Postgres.MaxOpen)
			db.SetMaxIdleConns(c.Postgres.MaxIdle)
		}
		svc.DBConn = conn
		svc.BarMirror = marketpersist.NewService(marketpersist.Config{SQLConn: conn})
		if err := svc.BarMirror.EnsureSchema(ctx); err != nil {
			logx.WithContext(ctx).Errorf("svc: postgres mirror disabled: err=%v", err)
			svc.BarMirror = nil
		}
	}

	svc.Resolver = symbols.NewResolver(reference, opts...)
	if err := svc.Resolver.Load(ctx); err != nil {
		return nil, fmt.Errorf("svc: load symbol mapping: %w", err)
	}
	svc.Pipeline = enrich.NewPipeline(svc.Resolver, reference)
	return svc, nil
}

// NewCollector assembles a collector over the context's dependencies.
func (s *ServiceContext) NewCollector(run RunOptions) (*collector.Collector, error) {
	cc := s.Config.Collector
	cfg := collector.Config{
		Exchange:    s.Exchange,
		Enricher:    s.Pipeline,
		Store:       s.Dataset,
		Mapping:     s.Resolver,
		Days:        cc.Days,
		BatchSize:   cc.BatchSize,
		SymbolDelay: cc.SymbolDelay,
		QuoteAssets: cc.QuoteAssets,
		Symbols:     cc.Symbols,
		MaxSymbols:  cc.MaxSymbols,
		Overwrite:   run.Overwrite,
	}
	if run.Days > 0 {
		cfg.Days = run.Days
	}
	if len(run.Symbols) > 0 {
		cfg.Symbols = run.Symbols
	}
	if run.MaxSymbols > 0 {
		cfg.MaxSymbols = run.MaxSymbols
	}
	if s.BarMirror != nil {
		cfg.Mirror = s.BarMirror
	}
	if s.Journal != nil {
		cfg.Journal = s.Journal
	}
	return collector.New(cfg)
}
