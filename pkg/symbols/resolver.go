// Package symbols maps exchange trading pairs to reference-provider coin ids.
package symbols

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"eod-collector/pkg/market"
)

const (
	defaultListingTTL   = 24 * time.Hour
	defaultRetryListing = time.Minute
)

// DefaultOverrides covers exchange tickers whose provider symbol lookup is
// ambiguous or wrong.
var DefaultOverrides = map[string]string{
	"BNB":   "binancecoin",
	"WBTC":  "wrapped-bitcoin",
	"WETH":  "weth",
	"SHIB":  "shiba-inu",
	"DOGE":  "dogecoin",
	"MATIC": "matic-network",
}

// Resolver resolves base assets to provider coin ids using the cache, a fixed
// override table and the provider's bulk listing, in that order.
type Resolver struct {
	directory  market.CoinDirectory
	cache      *Cache
	quotes     []string
	overrides  map[string]string
	store      MappingStore
	mirror     MappingStore
	listingTTL time.Duration
	retryAfter time.Duration
	nowFn      func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache injects the cache the resolver owns.
func WithCache(cache *Cache) Option {
	return func(r *Resolver) {
		if cache != nil {
			r.cache = cache
		}
	}
}

// WithQuoteAssets replaces the recognised quote assets.
func WithQuoteAssets(quotes []string) Option {
	return func(r *Resolver) {
		if sorted := sortQuotes(quotes); len(sorted) > 0 {
			r.quotes = sorted
		}
	}
}

// WithOverrides adds to (or replaces entries of) the default override table.
func WithOverrides(overrides map[string]string) Option {
	return func(r *Resolver) {
		for base, id := range overrides {
			base = strings.ToUpper(strings.TrimSpace(base))
			id = strings.TrimSpace(id)
			if base != "" && id != "" {
				r.overrides[base] = id
			}
		}
	}
}

// WithStore sets where the mapping is loaded from and flushed to.
func WithStore(store MappingStore) Option {
	return func(r *Resolver) {
		r.store = store
	}
}

// WithMirror sets a secondary store. Mirror failures are logged, never returned.
func WithMirror(store MappingStore) Option {
	return func(r *Resolver) {
		r.mirror = store
	}
}

// WithListingTTL sets the listing freshness window. Zero keeps the first listing forever.
func WithListingTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl >= 0 {
			r.listingTTL = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.nowFn = now
		}
	}
}

// NewResolver constructs a Resolver over the given coin directory.
func NewResolver(directory market.CoinDirectory, opts ...Option) *Resolver {
	r := &Resolver{
		directory:  directory,
		cache:      NewCache(nil),
		quotes:     sortQuotes(DefaultQuoteAssets),
		overrides:  make(map[string]string, len(DefaultOverrides)),
		listingTTL: defaultListingTTL,
		retryAfter: defaultRetryListing,
		nowFn:      time.Now,
	}
	for base, id := range DefaultOverrides {
		r.overrides[base] = id
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cache exposes the resolver's cache.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// ExtractBase strips the longest recognised quote asset from pair.
func (r *Resolver) ExtractBase(pair string) (string, error) {
	base, _, err := splitPair(pair, r.quotes)
	return base, err
}

// Resolve maps a base asset to a provider id. It returns ErrNotResolvable
// when no source knows the asset.
func (r *Resolver) Resolve(ctx context.Context, base string) (string, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	if base == "" {
		return "", fmt.Errorf("%w: empty base asset", market.ErrNotResolvable)
	}
	if id, ok := r.cache.lookup(base); ok {
		return id, nil
	}
	if id, ok := r.overrides[base]; ok {
		r.cache.store(base, id)
		return id, nil
	}
	listing := r.listing(ctx)
	if id, ok := listing[base]; ok {
		r.cache.store(base, id)
		return id, nil
	}
	return "", fmt.Errorf("%w: no provider id for %s", market.ErrNotResolvable, base)
}

// ResolvePair extracts the base asset from pair and resolves it.
func (r *Resolver) ResolvePair(ctx context.Context, pair string) (base, id string, err error) {
	base, err = r.ExtractBase(pair)
	if err != nil {
		return "", "", err
	}
	id, err = r.Resolve(ctx, base)
	if err != nil {
		return base, "", err
	}
	return base, id, nil
}

// listing returns the provider symbol index, refreshing it when stale. A
// failed fetch is not repeated until retryAfter has passed; the stale index,
// if any, keeps serving in the meantime.
func (r *Resolver) listing(ctx context.Context) map[string]string {
	c := r.cache
	now := r.nowFn()

	c.mu.Lock()
	current := c.listing
	refresh := needsRefresh(now, c.lastRefresh, r.listingTTL)
	recentFailure := !c.lastFailure.IsZero() && now.Sub(c.lastFailure) < r.retryAfter
	c.mu.Unlock()

	if !refresh || recentFailure || r.directory == nil {
		return current
	}

	coins, err := r.directory.CoinsList(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logx.WithContext(ctx).Errorf("symbols: refresh provider listing err=%v", err)
		}
		c.mu.Lock()
		c.lastFailure = now
		c.mu.Unlock()
		return current
	}

	index := indexListing(coins)
	c.mu.Lock()
	c.listing = index
	c.lastRefresh = now
	c.lastFailure = time.Time{}
	c.mu.Unlock()
	logx.WithContext(ctx).Infof("symbols: loaded %d provider symbols from %d coins", len(index), len(coins))
	return index
}

// Load merges persisted mappings into the cache. A mirror is consulted only
// when the primary store has nothing.
func (r *Resolver) Load(ctx context.Context) error {
	if r.store != nil {
		entries, err := r.store.Load(ctx)
		if err != nil {
			return fmt.Errorf("symbols: load mapping: %w", err)
		}
		if len(entries) > 0 {
			r.cache.merge(entries)
			return nil
		}
	}
	if r.mirror != nil {
		entries, err := r.mirror.Load(ctx)
		if err != nil {
			logx.WithContext(ctx).Errorf("symbols: load mapping mirror err=%v", err)
			return nil
		}
		if len(entries) > 0 {
			// Copy mirror entries back into the primary store on the next flush.
			r.cache.merge(entries)
			r.cache.markDirty()
		}
	}
	return nil
}

// Flush saves the whole mapping when it changed since the last flush.
func (r *Resolver) Flush(ctx context.Context) error {
	if !r.cache.Dirty() {
		return nil
	}
	snapshot := r.cache.Snapshot()
	if r.store != nil {
		if err := r.store.Save(ctx, snapshot); err != nil {
			return fmt.Errorf("symbols: save mapping: %w", err)
		}
	}
	if r.mirror != nil {
		if err := r.mirror.Save(ctx, snapshot); err != nil {
			logx.WithContext(ctx).Errorf("symbols: save mapping mirror entries=%d err=%v", len(snapshot), err)
		}
	}
	r.cache.markClean()
	return nil
}
