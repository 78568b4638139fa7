// Package quotes implements a quote market over the mainland China, Hong Kong
// and US stock vendors, plus futures and BTC, with a time-range-aware cache in
// front of them.
package quotes

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marianogappa/stock-quotes/quotes/cache"
	"github.com/marianogappa/stock-quotes/quotes/cnstock"
	"github.com/marianogappa/stock-quotes/quotes/common"
	"github.com/marianogappa/stock-quotes/quotes/config"
	"github.com/marianogappa/stock-quotes/quotes/fetch"
	"github.com/marianogappa/stock-quotes/quotes/future"
	"github.com/marianogappa/stock-quotes/quotes/hkstock"
	"github.com/marianogappa/stock-quotes/quotes/lists"
	"github.com/marianogappa/stock-quotes/quotes/storage"
	"github.com/marianogappa/stock-quotes/quotes/tick"
	"github.com/marianogappa/stock-quotes/quotes/usstock"
)

// Market struct implements the quote market.
type Market struct {
	cnStock *cnstock.CNStock
	hkStock *hkstock.HKStock
	usStock *usstock.USStock
	future  *future.Future
	lists   *lists.Lists
	ticker  *tick.Ticker

	cache cache.Cache
	debug *bool

	timeout  time.Duration
	poolSize int
	retry    fetch.RetryStrategy
	noCache  bool
	cacheTTL time.Duration
}

// Query describes one quote request. Zero values pick the defaults: daily
// frequency, 320 bars of vendor warmup and forward adjustment. Dates accept
// YYYY-MM-DD as well as the /, ., _ and bare-digit spellings of it.
type Query struct {
	Symbol     string
	StartDate  string
	EndDate    string
	Frequency  string
	Days       int
	Adjustment string
}

func (q Query) withDefaults() Query {
	if q.Frequency == "" {
		q.Frequency = common.FreqDay
	}
	if q.Days <= 0 {
		q.Days = 320
	}
	switch q.Adjustment {
	case "":
		q.Adjustment = common.AdjustForward
	case common.AdjustNone:
		// The vendors spell "no adjustment" as an empty parameter.
		q.Adjustment = ""
	}
	return q
}

// NewMarket constructs a market. Defaults come from the environment via
// config.Load; options override them.
func NewMarket(options ...func(*Market)) Market {
	cfg := config.Load()
	m := Market{
		debug:    new(bool),
		timeout:  cfg.HTTPTimeout,
		poolSize: cfg.PoolSize,
		retry:    fetch.RetryStrategy{Attempts: cfg.RetryTimes, Delay: cfg.RetryDelay},
		noCache:  !cfg.CacheEnabled,
		cacheTTL: cfg.CacheTTL,
	}

	for _, option := range options {
		option(&m)
	}

	client := fetch.NewClient(m.timeout, m.poolSize, m.retry, m.debug)
	m.cnStock = cnstock.NewCNStock(client)
	m.hkStock = hkstock.NewHKStock(client)
	m.usStock = usstock.NewUSStock(client)
	m.future = future.NewFuture(client)
	m.lists = lists.NewLists(client)
	m.ticker = tick.NewTicker(client)

	if m.cache == nil && !m.noCache {
		m.cache = cache.NewMemoryCache(0, m.cacheTTL)
	}

	return m
}

// WithCache installs a prebuilt cache on the market instance at construction
// time.
func WithCache(c cache.Cache) func(*Market) {
	return func(m *Market) {
		m.cache = c
		m.noCache = c == nil
	}
}

// WithMemoryCache configures a process-local LRU cache of the given size and
// TTL. Zero values pick the cache's own defaults.
func WithMemoryCache(size int, ttl time.Duration) func(*Market) {
	return func(m *Market) {
		m.cache = cache.NewMemoryCache(size, ttl)
	}
}

// WithPersistentCache configures a persistent cache on the given storage
// backend kind ("sqlite", "jsonl", "snapshot", "sharded", "redis",
// "postgres"). If the backend cannot be opened the market falls back to a
// memory cache with a warning.
func WithPersistentCache(kind, path string, ttl time.Duration) func(*Market) {
	return func(m *Market) {
		backend, err := storage.New(kind, path)
		if err != nil {
			log.Warn().Msgf("Failed to open %v storage at %q: %v; falling back to memory cache", kind, path, err)
			m.cache = cache.NewMemoryCache(0, ttl)
			return
		}
		m.cache = cache.NewPersistentCache(backend, ttl)
	}
}

// WithoutCache disables caching entirely; every request goes to the vendor.
func WithoutCache() func(*Market) {
	return func(m *Market) {
		m.cache = nil
		m.noCache = true
	}
}

// WithTimeout overrides the HTTP request timeout.
func WithTimeout(timeout time.Duration) func(*Market) {
	return func(m *Market) {
		m.timeout = timeout
	}
}

// WithRetry overrides how many times a vendor request is attempted and the
// base delay between attempts.
func WithRetry(attempts int, delay time.Duration) func(*Market) {
	return func(m *Market) {
		m.retry = fetch.RetryStrategy{Attempts: attempts, Delay: delay}
	}
}

// WithPoolSize overrides the HTTP connection pool size.
func WithPoolSize(size int) func(*Market) {
	return func(m *Market) {
		m.poolSize = size
	}
}

// GetPrice resolves one query: it normalizes the symbol and dates, routes to
// the owning market adapter and consults the cache according to the query's
// frequency. Daily quotes against a persistent cache go through the
// range-extension path; anything else is cached whole, except intraday data
// which is never persisted.
func (m Market) GetPrice(q Query) (common.Quote, error) {
	q = q.withDefaults()

	sdate, err := common.NormalizeDate(q.StartDate)
	if err != nil {
		return common.Quote{}, err
	}
	edate, err := common.NormalizeDate(q.EndDate)
	if err != nil {
		return common.Quote{}, err
	}

	symbol, fetchFn, err := m.route(q.Symbol)
	if err != nil {
		return common.Quote{}, err
	}
	return m.getPrice(symbol, sdate, edate, q.Frequency, q.Days, q.Adjustment, fetchFn)
}

func (m Market) getPrice(symbol, sdate, edate, freq string, days int, fq string, fetchFn common.FetchFunc) (common.Quote, error) {
	if strings.HasPrefix(symbol, "BK") {
		return m.boardFetch(symbol, sdate, edate, freq, days, fq, fetchFn)
	}

	switch c := m.cache.(type) {
	case nil:
		return fetchFn(symbol, sdate, edate, freq, days, fq)
	case *cache.PersistentCache:
		if freq == common.FreqDay {
			return c.GetPriceAutoMerge(symbol, sdate, edate, freq, days, fq, fetchFn)
		}
		if freq == common.FreqMinute {
			// Intraday labels are times of day, not dates; persisting them
			// would corrupt the range arithmetic of the daily records.
			return fetchFn(symbol, sdate, edate, freq, days, fq)
		}
		return m.cachedFetch(c, symbol, sdate, edate, freq, days, fq, fetchFn)
	default:
		return m.cachedFetch(c, symbol, sdate, edate, freq, days, fq, fetchFn)
	}
}

// GetPriceLonger stitches a multi-year daily history by walking backwards:
// each round requests bars ending where the accumulated series begins, and the
// rounds are merged with duplicates dropped.
func (m Market) GetPriceLonger(q Query, years int) (common.Quote, error) {
	if years <= 0 {
		years = 2
	}
	quote, err := m.GetPrice(q)
	if err != nil {
		return common.Quote{}, err
	}
	for i := 1; i < years; i++ {
		first := string(quote.Series.First())
		if first == "" {
			break
		}
		t, perr := common.ParseDateLabel(first)
		if perr != nil {
			log.Warn().Msgf("Cannot walk back from label %q: %v", first, perr)
			break
		}
		older := q
		older.StartDate = ""
		older.EndDate = t.Format("20060102")
		segment, err := m.GetPrice(older)
		if err != nil {
			return common.Quote{}, err
		}
		if segment.Series.IsEmpty() {
			break
		}
		quote.Series = segment.Series.Merge(quote.Series)
		if string(quote.Series.First()) == first {
			// The vendor has no rows older than what we already hold.
			break
		}
	}
	return quote, nil
}

// route maps a raw symbol onto its market adapter, normalizing it on the way:
// 4-digit Hong Kong bodies gain a leading zero and bare mainland codes gain
// their exchange prefix.
func (m Market) route(symbol string) (string, common.FetchFunc, error) {
	switch {
	case strings.HasPrefix(symbol, "BK"), strings.HasPrefix(symbol, "pt"),
		strings.HasPrefix(symbol, "sh"), strings.HasPrefix(symbol, "sz"):
		return symbol, m.cnStock.RequestQuote, nil
	case strings.HasPrefix(symbol, "fu"):
		return symbol, m.future.RequestQuote, nil
	case strings.HasPrefix(symbol, "hk"):
		if len(symbol) == 6 {
			symbol = "hk0" + symbol[2:]
		}
		return symbol, m.hkStock.RequestQuote, nil
	case strings.HasPrefix(symbol, "us"):
		return symbol, m.usStock.RequestQuote, nil
	}
	if symbol != "" {
		switch symbol[0] {
		case '5', '6':
			return "sh" + symbol, m.cnStock.RequestQuote, nil
		case '0', '1', '3':
			return "sz" + symbol, m.cnStock.RequestQuote, nil
		}
	}
	return "", nil, fmt.Errorf("%w: unsupported symbol %q", common.ErrSymbol, symbol)
}

// cachedFetch is the whole-series cache path: serve the requested window from
// the cache if it overlaps, otherwise fetch, store and return.
func (m Market) cachedFetch(c cache.Cache, symbol, sdate, edate, freq string, days int, fq string, fetchFn common.FetchFunc) (common.Quote, error) {
	key := cache.BaseKey(symbol, freq, fq)
	quote, err := c.Get(key, sdate, edate)
	if err == nil {
		return quote, nil
	}
	if !errors.Is(err, common.ErrCacheMiss) {
		return common.Quote{}, err
	}
	quote, err = fetchFn(symbol, sdate, edate, freq, days, fq)
	if err != nil {
		return common.Quote{}, err
	}
	if err := c.Put(key, quote, 0); err != nil {
		return common.Quote{}, err
	}
	return quote, nil
}

// boardFetch always asks the vendor: board quotes fail soft into empty series,
// and serving a stale empty record would mask recovery. The fresh result is
// still stored so direct cache readers see it.
func (m Market) boardFetch(symbol, sdate, edate, freq string, days int, fq string, fetchFn common.FetchFunc) (common.Quote, error) {
	quote, err := fetchFn(symbol, sdate, edate, freq, days, fq)
	if err != nil {
		return common.Quote{}, err
	}
	if m.cache != nil && !quote.Series.IsEmpty() {
		if err := m.cache.Put(cache.BaseKey(symbol, freq, fq), quote, 0); err != nil {
			log.Warn().Msgf("Failed to cache board %v: %v", symbol, err)
		}
	}
	quote.Series = quote.Series.FilterRange(sdate, edate)
	return quote, nil
}

// Lists returns the market catalog client sharing this market's HTTP stack.
func (m Market) Lists() *lists.Lists {
	return m.lists
}

// Ticker returns the realtime tick client sharing this market's HTTP stack.
func (m Market) Ticker() *tick.Ticker {
	return m.ticker
}

// SetDebug sets debug logging across all market adapters and the Market struct
// itself. Useful to know how many times vendors are being requested.
func (m *Market) SetDebug(debug bool) {
	*m.debug = debug
	m.cnStock.SetDebug(debug)
	m.hkStock.SetDebug(debug)
	m.usStock.SetDebug(debug)
	m.future.SetDebug(debug)
	m.lists.SetDebug(debug)
	m.ticker.SetDebug(debug)
}

// CalculateCacheHitRatio returns the hit ratio of the cache of the market.
// Used to see if the cache is useful.
func (m Market) CalculateCacheHitRatio() float64 {
	type hitRatioer interface{ HitRatio() float64 }
	if r, ok := m.cache.(hitRatioer); ok {
		return r.HitRatio()
	}
	return 0
}

// Close releases the cache's resources, if any.
func (m Market) Close() error {
	if m.cache != nil {
		return m.cache.Close()
	}
	return nil
}
