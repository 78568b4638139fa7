package cache

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marianogappa/stock-quotes/quotes/common"
	"github.com/marianogappa/stock-quotes/quotes/storage"
)

type fetchCall struct {
	symbol string
	sdate  string
	edate  string
	freq   string
	days   int
	fq     string
}

func recordingFetch(calls *[]fetchCall, respond func(call fetchCall) (common.Quote, error)) common.FetchFunc {
	return func(symbol, sdate, edate, freq string, days int, fq string) (common.Quote, error) {
		call := fetchCall{symbol: symbol, sdate: sdate, edate: edate, freq: freq, days: days, fq: fq}
		*calls = append(*calls, call)
		return respond(call)
	}
}

func newAutoMergeCache(t *testing.T, today time.Time) *PersistentCache {
	t.Helper()
	backend, err := storage.NewJSONL(filepath.Join(t.TempDir(), "cache.jsonl"))
	require.Nil(t, err)
	cache := NewPersistentCache(backend, 0)
	cache.SetClock(func() time.Time { return today })
	return cache
}

func TestAutoMergeColdCacheFetchesOnce(t *testing.T) {
	cache := newAutoMergeCache(t, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))

	calls := []fetchCall{}
	fetch := recordingFetch(&calls, func(call fetchCall) (common.Quote, error) {
		return quoteWith("sh600000", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"), nil
	})

	quote, err := cache.GetPriceAutoMerge("sh600000", "2024-01-02", "2024-01-05", "day", 320, "qfq", fetch)
	require.Nil(t, err)
	require.Equal(t, []string{"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"}, datesOf(quote.Series))
	require.Equal(t, []fetchCall{{symbol: "sh600000", sdate: "2024-01-02", edate: "2024-01-05", freq: "day", days: 320, fq: "qfq"}}, calls)
}

func TestAutoMergeWarmRepeatSkipsVendor(t *testing.T) {
	cache := newAutoMergeCache(t, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))

	calls := []fetchCall{}
	fetch := recordingFetch(&calls, func(call fetchCall) (common.Quote, error) {
		return quoteWith("sh600000", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"), nil
	})

	first, err := cache.GetPriceAutoMerge("sh600000", "2024-01-02", "2024-01-05", "day", 320, "qfq", fetch)
	require.Nil(t, err)
	require.Len(t, calls, 1)

	second, err := cache.GetPriceAutoMerge("sh600000", "2024-01-02", "2024-01-05", "day", 320, "qfq", fetch)
	require.Nil(t, err)
	require.Len(t, calls, 1)
	require.Equal(t, first, second)
}

func TestAutoMergeExtendsForward(t *testing.T) {
	cache := newAutoMergeCache(t, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	require.Nil(t, cache.Put("sh600000:day:qfq", quoteWith("sh600000", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"), 0))

	calls := []fetchCall{}
	fetch := recordingFetch(&calls, func(call fetchCall) (common.Quote, error) {
		return quoteWith("sh600000", "2024-01-08", "2024-01-09", "2024-01-10", "2024-01-11", "2024-01-12"), nil
	})

	quote, err := cache.GetPriceAutoMerge("sh600000", "2024-01-02", "2024-01-12", "day", 320, "qfq", fetch)
	require.Nil(t, err)
	require.Equal(t, []fetchCall{{symbol: "sh600000", sdate: "2024-01-06", edate: "2024-01-15", freq: "day", days: 320, fq: "qfq"}}, calls)
	require.Equal(t, []string{
		"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05",
		"2024-01-08", "2024-01-09", "2024-01-10", "2024-01-11", "2024-01-12",
	}, datesOf(quote.Series))
}

func TestAutoMergeExtendsBackwardForWarmup(t *testing.T) {
	cache := newAutoMergeCache(t, time.Date(2024, 3, 20, 16, 0, 0, 0, time.UTC))
	require.Nil(t, cache.Put("sh600000:day:qfq", quoteWith("sh600000", dateRange("2024-03-01", "2024-03-20")...), 0))

	calls := []fetchCall{}
	fetch := recordingFetch(&calls, func(call fetchCall) (common.Quote, error) {
		return quoteWith("sh600000", dateRange("2024-01-01", call.edate)...), nil
	})

	quote, err := cache.GetPriceAutoMerge("sh600000", "2024-02-01", "2024-03-20", "day", 320, "qfq", fetch)
	require.Nil(t, err)
	require.Equal(t, []fetchCall{{symbol: "sh600000", sdate: "", edate: "2024-02-29", freq: "day", days: 320, fq: "qfq"}}, calls)
	require.Equal(t, dateRange("2024-02-01", "2024-03-20"), datesOf(quote.Series))
}

func TestAutoMergeStopsOnVendorEmptyAndServesCache(t *testing.T) {
	cache := newAutoMergeCache(t, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	require.Nil(t, cache.Put("sh600000:day:qfq", quoteWith("sh600000", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"), 0))

	calls := []fetchCall{}
	fetch := recordingFetch(&calls, func(call fetchCall) (common.Quote, error) {
		return common.Quote{Symbol: "sh600000"}, nil
	})

	quote, err := cache.GetPriceAutoMerge("sh600000", "2024-01-02", "2024-01-12", "day", 320, "qfq", fetch)
	require.Nil(t, err)
	require.Len(t, calls, 1)
	require.Equal(t, []string{"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"}, datesOf(quote.Series))
}

func TestAutoMergeStopsOnNoAdvance(t *testing.T) {
	cache := newAutoMergeCache(t, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	require.Nil(t, cache.Put("sh600000:day:qfq", quoteWith("sh600000", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"), 0))

	calls := []fetchCall{}
	fetch := recordingFetch(&calls, func(call fetchCall) (common.Quote, error) {
		return quoteWith("sh600000", "2024-01-04", "2024-01-05"), nil
	})

	quote, err := cache.GetPriceAutoMerge("sh600000", "2024-01-02", "2024-01-12", "day", 320, "qfq", fetch)
	require.Nil(t, err)
	require.Len(t, calls, 1)
	require.Equal(t, []string{"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"}, datesOf(quote.Series))
}

func TestAutoMergeSwallowsNetworkErrorWhenCacheCovers(t *testing.T) {
	cache := newAutoMergeCache(t, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	require.Nil(t, cache.Put("sh600000:day:qfq", quoteWith("sh600000", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"), 0))

	calls := []fetchCall{}
	fetch := recordingFetch(&calls, func(call fetchCall) (common.Quote, error) {
		return common.Quote{}, common.ErrNetwork
	})

	quote, err := cache.GetPriceAutoMerge("sh600000", "2024-01-02", "2024-01-12", "day", 320, "qfq", fetch)
	require.Nil(t, err)
	require.Len(t, calls, 1)
	require.Equal(t, []string{"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"}, datesOf(quote.Series))
}

func TestAutoMergeSurfacesNetworkErrorOnColdCache(t *testing.T) {
	cache := newAutoMergeCache(t, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))

	calls := []fetchCall{}
	fetch := recordingFetch(&calls, func(call fetchCall) (common.Quote, error) {
		return common.Quote{}, common.ErrNetwork
	})

	_, err := cache.GetPriceAutoMerge("sh600000", "2024-01-02", "2024-01-05", "day", 320, "qfq", fetch)
	require.ErrorIs(t, err, common.ErrNetwork)
	require.Len(t, calls, 1)
}

func TestAutoMergeErrorsWhenVendorHasNoData(t *testing.T) {
	cache := newAutoMergeCache(t, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))

	calls := []fetchCall{}
	fetch := recordingFetch(&calls, func(call fetchCall) (common.Quote, error) {
		return common.Quote{Symbol: "sh600000"}, nil
	})

	_, err := cache.GetPriceAutoMerge("sh600000", "2024-01-02", "2024-01-05", "day", 320, "qfq", fetch)
	require.ErrorIs(t, err, common.ErrDataSource)
	require.Contains(t, err.Error(), "no data available")
	require.Len(t, calls, 2)
}

func TestAutoMergeBoundsBackwardIterations(t *testing.T) {
	cache := newAutoMergeCache(t, time.Date(2024, 3, 20, 16, 0, 0, 0, time.UTC))
	cache.MaxExtendIterations = 3
	require.Nil(t, cache.Put("sh600000:day:qfq", quoteWith("sh600000", "2024-03-20"), 0))

	calls := []fetchCall{}
	fetch := recordingFetch(&calls, func(call fetchCall) (common.Quote, error) {
		// One bar per page, so the cap is what stops the loop.
		return quoteWith(call.symbol, call.edate), nil
	})

	quote, err := cache.GetPriceAutoMerge("sh600000", "", "2024-03-20", "day", 320, "qfq", fetch)
	require.Nil(t, err)
	require.Len(t, calls, 3)
	require.Equal(t, []string{"2024-03-17", "2024-03-18", "2024-03-19", "2024-03-20"}, datesOf(quote.Series))
}

func TestAutoMergeWithoutEndDateServesCachedOverlap(t *testing.T) {
	cache := newAutoMergeCache(t, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	require.Nil(t, cache.Put("sh600000:day:qfq", quoteWith("sh600000", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"), 0))

	calls := []fetchCall{}
	fetch := recordingFetch(&calls, func(call fetchCall) (common.Quote, error) {
		return common.Quote{}, common.ErrNetwork
	})

	quote, err := cache.GetPriceAutoMerge("sh600000", "2024-01-03", "", "day", 320, "qfq", fetch)
	require.Nil(t, err)
	require.Len(t, calls, 0)
	require.Equal(t, []string{"2024-01-03", "2024-01-04", "2024-01-05"}, datesOf(quote.Series))
}

func TestAutoMergeConcurrentCallersShareOneFetch(t *testing.T) {
	cache := newAutoMergeCache(t, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))

	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	fetch := func(symbol, sdate, edate, freq string, days int, fq string) (common.Quote, error) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			close(started)
			<-release
		}
		return quoteWith(symbol, "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"), nil
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[0] = cache.GetPriceAutoMerge("sh600000", "2024-01-02", "2024-01-05", "day", 320, "qfq", fetch)
	}()
	<-started
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[1] = cache.GetPriceAutoMerge("sh600000", "2024-01-02", "2024-01-05", "day", 320, "qfq", fetch)
	}()
	close(release)
	wg.Wait()

	require.Nil(t, errs[0])
	require.Nil(t, errs[1])
	require.Equal(t, 1, calls)
}

func dateRange(from, to string) []string {
	start, _ := time.Parse(common.DateLayout, from)
	end, _ := time.Parse(common.DateLayout, to)
	dates := []string{}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(common.DateLayout))
	}
	return dates
}
