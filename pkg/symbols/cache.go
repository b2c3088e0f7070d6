package symbols

import (
	"strings"
	"sync"
	"time"

	"eod-collector/pkg/market"
)

// Cache holds the resolver's mutable state: the persistent base asset to
// provider id mapping plus the in-memory provider listing and the time it was
// last refreshed. It is owned by exactly one Resolver.
type Cache struct {
	mu sync.Mutex

	mapping map[string]string
	dirty   bool

	listing     map[string]string
	lastRefresh time.Time
	lastFailure time.Time
}

// NewCache seeds a cache with previously persisted mappings.
func NewCache(mapping map[string]string) *Cache {
	c := &Cache{mapping: make(map[string]string, len(mapping))}
	for base, id := range mapping {
		base = strings.ToUpper(strings.TrimSpace(base))
		if base == "" || id == "" {
			continue
		}
		c.mapping[base] = id
	}
	return c
}

func (c *Cache) lookup(base string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.mapping[base]
	return id, ok
}

func (c *Cache) store(base, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mapping[base] == id {
		return
	}
	c.mapping[base] = id
	c.dirty = true
}

// merge adds entries without overwriting what the cache already knows.
func (c *Cache) merge(entries map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for base, id := range entries {
		base = strings.ToUpper(strings.TrimSpace(base))
		if base == "" || id == "" {
			continue
		}
		if _, ok := c.mapping[base]; !ok {
			c.mapping[base] = id
		}
	}
}

// Snapshot returns a copy of the mapping.
func (c *Cache) Snapshot() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.mapping))
	for k, v := range c.mapping {
		out[k] = v
	}
	return out
}

// Len reports the number of cached mappings.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.mapping)
}

// Dirty reports whether mappings were added since the last save.
func (c *Cache) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

func (c *Cache) markDirty() {
	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
}

func (c *Cache) markClean() {
	c.mu.Lock()
	c.dirty = false
	c.mu.Unlock()
}

// needsRefresh decides whether the provider listing must be fetched again.
// A non-positive ttl means the listing is fetched once and kept forever.
func needsRefresh(now, lastRefresh time.Time, ttl time.Duration) bool {
	if lastRefresh.IsZero() {
		return true
	}
	if ttl <= 0 {
		return false
	}
	return now.Sub(lastRefresh) >= ttl
}

// indexListing builds the symbol index. The first coin seen for a symbol
// holds it until a later coin whose name equals the symbol
// (case-insensitively) replaces it, so the last name match wins.
func indexListing(coins []market.Coin) map[string]string {
	index := make(map[string]string, len(coins))
	for _, coin := range coins {
		symbol := strings.ToUpper(strings.TrimSpace(coin.Symbol))
		if symbol == "" || coin.ID == "" {
			continue
		}
		nameMatch := strings.EqualFold(strings.TrimSpace(coin.Name), symbol)
		if _, seen := index[symbol]; !seen || nameMatch {
			index[symbol] = coin.ID
		}
	}
	return index
}
