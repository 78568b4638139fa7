package cache

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/marianogappa/stock-quotes/quotes/common"
)

// GetPriceAutoMerge is the read-through mode of the persistent cache. It
// consults the series cached under symbol's base key, extends it forward and
// backward through fetch until the requested [sdate, edate] window is covered
// or a stop condition fires, persists every fetched fragment, and returns the
// windowed result. Concurrent callers for the same base key share a single
// extension run.
func (c *PersistentCache) GetPriceAutoMerge(symbol, sdate, edate, freq string, days int, fq string, fetch common.FetchFunc) (common.Quote, error) {
	baseKey := BaseKey(symbol, freq, fq)
	if _, err, _ := c.group.Do(baseKey, func() (interface{}, error) {
		return nil, c.extendCached(baseKey, symbol, sdate, edate, freq, days, fq, fetch)
	}); err != nil {
		return common.Quote{}, err
	}
	return c.finalize(baseKey, symbol, sdate, edate, freq, days, fq, fetch)
}

// extendCached brings the record under baseKey as close to covering
// [sdate, edate] as the vendor allows. A fetch failure mid-extension stops the
// loop with a warning; finalize then decides whether the cached rows alone
// satisfy the window.
func (c *PersistentCache) extendCached(baseKey, symbol, sdate, edate, freq string, days int, fq string, fetch common.FetchFunc) error {
	full, err := c.Get(baseKey, "", "")
	if err != nil && !errors.Is(err, common.ErrCacheMiss) {
		return err
	}
	if err != nil {
		// Cold cache: a single fetch for the requested window seeds the record.
		fetched, ferr := fetch(symbol, sdate, edate, freq, days, fq)
		if ferr != nil {
			return ferr
		}
		return c.Put(baseKey, fetched, 0)
	}
	if edate == "" {
		return nil
	}

	earliest, latest := full.Series.BoundsLabels()

	// Forward extension: catch up from the cached latest towards today.
	if edate > latest {
		for i := 0; i < c.MaxExtendIterations; i++ {
			extendS, serr := common.ShiftDays(latest, 1)
			if serr != nil {
				break
			}
			extendE := c.timeNow().Format(common.DateLayout)
			fetched, ferr := fetch(symbol, extendS, extendE, freq, days, fq)
			if ferr != nil {
				log.Warn().Msgf("Stopping forward extension of %v: %v", baseKey, ferr)
				break
			}
			if fetched.Series.IsEmpty() {
				break
			}
			if err := c.Put(baseKey, fetched, 0); err != nil {
				return err
			}
			refreshed, gerr := c.Get(baseKey, "", "")
			if gerr != nil {
				if errors.Is(gerr, common.ErrCacheMiss) {
					break
				}
				return gerr
			}
			full = refreshed
			var newLatest string
			earliest, newLatest = full.Series.BoundsLabels()
			if newLatest == latest {
				break
			}
			latest = newLatest
			if latest >= edate {
				break
			}
		}
	}

	// Backward extension: page older bars, using the vendor's "up to days bars
	// ending at extendE" contract, until enough warm-up rows precede the
	// requested end date. Skipped when the requested start is already covered
	// and only the warm-up threshold would fire.
	sdateCovered := sdate != "" && sdate >= earliest
	if edate < earliest || (full.Series.CountThrough(edate) <= c.MinRowsBeforeEdate && !sdateCovered) {
		for i := 0; i < c.MaxExtendIterations; i++ {
			extendE, serr := common.ShiftDays(earliest, -1)
			if serr != nil {
				break
			}
			fetched, ferr := fetch(symbol, "", extendE, freq, days, fq)
			if ferr != nil {
				log.Warn().Msgf("Stopping backward extension of %v: %v", baseKey, ferr)
				break
			}
			if fetched.Series.IsEmpty() {
				break
			}
			if err := c.Put(baseKey, fetched, 0); err != nil {
				return err
			}
			refreshed, gerr := c.Get(baseKey, "", "")
			if gerr != nil {
				if errors.Is(gerr, common.ErrCacheMiss) {
					break
				}
				return gerr
			}
			full = refreshed
			newEarliest, _ := full.Series.BoundsLabels()
			if newEarliest == earliest {
				break
			}
			earliest = newEarliest
			if full.Series.CountThrough(edate) > c.MinRowsBeforeEdate && earliest <= edate {
				break
			}
		}
	}
	return nil
}

// finalize serves the caller's window from the extended record, falling back
// to one direct fetch when the window still misses.
func (c *PersistentCache) finalize(baseKey, symbol, sdate, edate, freq string, days int, fq string, fetch common.FetchFunc) (common.Quote, error) {
	q, err := c.Get(baseKey, sdate, edate)
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, common.ErrCacheMiss) {
		return common.Quote{}, err
	}

	fetched, ferr := fetch(symbol, sdate, edate, freq, days, fq)
	if ferr != nil {
		return common.Quote{}, ferr
	}
	if !fetched.Series.IsEmpty() {
		if err := c.Put(baseKey, fetched, 0); err != nil {
			return common.Quote{}, err
		}
		return fetched, nil
	}

	// The window is dry everywhere. Cached rows outside it mean the symbol is
	// alive and the window simply has no bars; a fully dry symbol is a vendor
	// problem.
	if full, gerr := c.Get(baseKey, "", ""); gerr == nil {
		return common.Quote{Symbol: full.Symbol, Name: full.Name, Series: common.Series{Columns: full.Series.Columns}}, nil
	}
	return common.Quote{}, fmt.Errorf("%w: no data available for %v", common.ErrDataSource, symbol)
}
