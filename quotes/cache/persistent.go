package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/marianogappa/stock-quotes/quotes/common"
	"github.com/marianogappa/stock-quotes/quotes/storage"
)

// PersistentCache layers TTL expiry, windowed reads and merge-on-write over a
// storage.Backend. A put always merges with whatever is already stored under
// the key, deduplicating by date with the later write winning, so cached
// windows only ever grow.
type PersistentCache struct {
	backend storage.Backend
	ttl     time.Duration
	timeNow func() time.Time
	mu      sync.Mutex
	group   singleflight.Group

	// MinRowsBeforeEdate is how many rows at or before the requested end date
	// GetPriceAutoMerge gathers as warm-up for trailing-window consumers.
	MinRowsBeforeEdate int
	// MaxExtendIterations bounds each extension loop against vendors that keep
	// returning fresh-looking fragments.
	MaxExtendIterations int

	CacheMisses   int
	CacheRequests int
}

// NewPersistentCache wraps a storage backend. A ttl of 0 disables expiry.
func NewPersistentCache(backend storage.Backend, ttl time.Duration) *PersistentCache {
	return &PersistentCache{
		backend:             backend,
		ttl:                 ttl,
		timeNow:             time.Now,
		MinRowsBeforeEdate:  60,
		MaxExtendIterations: 15,
	}
}

// SetClock replaces the time source used for expiry and for "today" in the
// extension loops, for tests.
func (c *PersistentCache) SetClock(now func() time.Time) {
	if now != nil {
		c.timeNow = now
	}
}

// Get loads the record under key and returns its series filtered to
// [sdate, edate]. Dates embedded in a full-form key win over the arguments.
// Expired records are deleted and reported as misses; undecodable blobs are
// misses too, so a later put can heal them.
func (c *PersistentCache) Get(key, sdate, edate string) (common.Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.CacheRequests++
	k := splitKey(key)
	if k.sdate != "" {
		sdate = k.sdate
	}
	if k.edate != "" {
		edate = k.edate
	}

	rec, found, err := c.backend.GetRaw(key)
	if err != nil {
		return common.Quote{}, err
	}
	if !found {
		c.CacheMisses++
		return common.Quote{}, common.ErrCacheMiss
	}
	if !rec.ExpireAt.IsZero() && !rec.ExpireAt.After(c.timeNow()) {
		if err := c.backend.Delete(key); err != nil {
			return common.Quote{}, err
		}
		c.CacheMisses++
		return common.Quote{}, common.ErrCacheMiss
	}

	var series common.Series
	if err := msgpack.Unmarshal(rec.Data, &series); err != nil {
		log.Warn().Msgf("Treating %v as a cache miss: undecodable series blob: %v", key, err)
		c.CacheMisses++
		return common.Quote{}, common.ErrCacheMiss
	}
	q, err := windowedHit(common.Quote{Symbol: rec.Symbol, Name: rec.Name, Series: series}, sdate, edate)
	if err != nil {
		c.CacheMisses++
		return common.Quote{}, err
	}
	return q, nil
}

// Put merges q's series into the record stored under key, re-derives the
// earliest/latest bounds from the merged series, and stamps a fresh expiry.
// Empty series are not cached.
func (c *PersistentCache) Put(key string, q common.Quote, ttl time.Duration) error {
	if q.Series.IsEmpty() {
		log.Debug().Msgf("Not caching %v: empty series", key)
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	k := splitKey(key)
	merged := q.Series
	name := q.Name
	rec, found, err := c.backend.GetRaw(key)
	if err != nil {
		return err
	}
	if found {
		var existing common.Series
		if err := msgpack.Unmarshal(rec.Data, &existing); err == nil {
			merged = existing.Merge(q.Series)
		}
		if name == "" {
			name = rec.Name
		}
	}

	earliest, latest := merged.BoundsLabels()
	blob, err := msgpack.Marshal(merged)
	if err != nil {
		return fmt.Errorf("%w: encoding series for %v: %v", common.ErrCache, key, err)
	}
	if ttl == 0 {
		ttl = c.ttl
	}
	now := c.timeNow()
	var expireAt time.Time
	if ttl > 0 {
		expireAt = now.Add(ttl)
	}
	return c.backend.Put(storage.Record{
		Key:          key,
		Symbol:       k.symbol,
		Name:         name,
		Data:         blob,
		EarliestDate: earliest,
		LatestDate:   latest,
		Freq:         k.freq,
		FQ:           k.fq,
		UpdatedAt:    now,
		ExpireAt:     expireAt,
	})
}

func (c *PersistentCache) Delete(key string) error {
	return c.backend.Delete(key)
}

func (c *PersistentCache) Clear() error {
	return c.backend.Clear()
}

func (c *PersistentCache) Close() error {
	return c.backend.Close()
}

// HitRatio returns the percentage of Get calls served from cache. Used to see
// if the cache is useful.
func (c *PersistentCache) HitRatio() float64 {
	if c.CacheRequests == 0 {
		return 0
	}
	return float64(c.CacheRequests-c.CacheMisses) / float64(c.CacheRequests) * 100
}
