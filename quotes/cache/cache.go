// Package cache implements the caching layer between the vendor adapters and
// the query facade.
//
// It solves this problem: candle history barely changes, but every strategy
// run, notebook reload or dashboard refresh asks for the same series again.
// Without a cache each of those calls is a vendor round-trip, and the vendors
// (Tencent, Sina, EastMoney) rate-limit aggressively.
//
// Two implementations are exposed. MemoryCache is a process-local LRU for
// short-lived programs. PersistentCache fronts a storage.Backend so series
// survive restarts, and adds GetPriceAutoMerge: the read-through mode that
// extends a cached series forward and backward until it covers the requested
// window.
//
// Usage:
//
// ```
//
// backend, _ := storage.New("sqlite", "")
// cache := cache.NewPersistentCache(backend, 24*time.Hour)
//
// quote, err := cache.GetPriceAutoMerge("sh600000", "2024-01-02", "2024-01-05", "day", 320, "qfq", fetchFn)
//
// ```
//
// Keys come in two textual forms: the base form `symbol:freq:fq` (dates passed
// alongside as arguments) and the full form `symbol:sdate:edate:freq:days:fq`
// (dates read from the key itself).
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog/log"

	"github.com/marianogappa/stock-quotes/quotes/common"
)

// Cache is what the query facade talks to. Get returns common.ErrCacheMiss
// when nothing cached overlaps [sdate, edate]; callers must treat that error
// as normal control flow. A ttl of 0 on Put means the cache's default.
type Cache interface {
	Get(key, sdate, edate string) (common.Quote, error)
	Put(key string, q common.Quote, ttl time.Duration) error
	Delete(key string) error
	Clear() error
	Close() error
}

// BaseKey builds the canonical cache key for one (symbol, frequency,
// adjustment) series.
func BaseKey(symbol, freq, fq string) string {
	return symbol + ":" + freq + ":" + fq
}

const defaultMemoryCacheSize = 4096

// MemoryCache is the process-local LRU implementation of Cache.
type MemoryCache struct {
	cache      *lru.Cache
	defaultTTL time.Duration
	timeNow    func() time.Time

	CacheMisses   int
	CacheRequests int
}

type memoryEntry struct {
	quote    common.Quote
	expireAt time.Time
}

// NewMemoryCache instantiates an LRU cache holding up to size series. A size
// of 0 or less picks a sensible default; a defaultTTL of 0 disables expiry.
func NewMemoryCache(size int, defaultTTL time.Duration) *MemoryCache {
	if size <= 0 {
		size = defaultMemoryCacheSize
	}
	cache, _ := lru.New(size)
	return &MemoryCache{cache: cache, defaultTTL: defaultTTL, timeNow: time.Now}
}

// SetClock replaces the time source used for expiry, for tests.
func (c *MemoryCache) SetClock(now func() time.Time) {
	if now != nil {
		c.timeNow = now
	}
}

// Get returns the cached series filtered to [sdate, edate]. Dates embedded in
// a full-form key win over the arguments. Expired entries are evicted and
// reported as misses.
func (c *MemoryCache) Get(key, sdate, edate string) (common.Quote, error) {
	c.CacheRequests++
	k := splitKey(key)
	if k.sdate != "" {
		sdate = k.sdate
	}
	if k.edate != "" {
		edate = k.edate
	}
	elem, ok := c.cache.Get(key)
	if !ok {
		c.CacheMisses++
		return common.Quote{}, common.ErrCacheMiss
	}
	entry := elem.(memoryEntry)
	if !entry.expireAt.IsZero() && !entry.expireAt.After(c.timeNow()) {
		c.cache.Remove(key)
		c.CacheMisses++
		return common.Quote{}, common.ErrCacheMiss
	}
	q, err := windowedHit(entry.quote, sdate, edate)
	if err != nil {
		c.CacheMisses++
		return common.Quote{}, err
	}
	return q, nil
}

// Put merges q into the entry cached under key. Duplicated dates keep q's row.
// Empty series are not cached.
func (c *MemoryCache) Put(key string, q common.Quote, ttl time.Duration) error {
	if q.Series.IsEmpty() {
		log.Debug().Msgf("Not caching %v: empty series", key)
		return nil
	}
	merged := q
	if elem, ok := c.cache.Get(key); ok {
		entry := elem.(memoryEntry)
		merged.Series = entry.quote.Series.Merge(q.Series)
		if merged.Name == "" {
			merged.Name = entry.quote.Name
		}
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	var expireAt time.Time
	if ttl > 0 {
		expireAt = c.timeNow().Add(ttl)
	}
	c.cache.Add(key, memoryEntry{quote: merged, expireAt: expireAt})
	return nil
}

func (c *MemoryCache) Delete(key string) error {
	c.cache.Remove(key)
	return nil
}

func (c *MemoryCache) Clear() error {
	c.cache.Purge()
	return nil
}

func (c *MemoryCache) Close() error {
	return nil
}

// HitRatio returns the percentage of Get calls served from cache. Used to see
// if the cache is useful.
func (c *MemoryCache) HitRatio() float64 {
	if c.CacheRequests == 0 {
		return 0
	}
	return float64(c.CacheRequests-c.CacheMisses) / float64(c.CacheRequests) * 100
}
