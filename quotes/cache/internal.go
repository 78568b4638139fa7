package cache

import (
	"strings"

	"github.com/marianogappa/stock-quotes/quotes/common"
)

type keyParts struct {
	symbol string
	sdate  string
	edate  string
	freq   string
	fq     string
}

// splitKey parses both accepted key forms. Full keys
// (symbol:sdate:edate:freq:days:fq) carry their own window; base keys
// (symbol:freq:fq) leave the window to the caller; anything shorter falls back
// to day/qfq defaults.
func splitKey(key string) keyParts {
	segs := strings.Split(key, ":")
	switch {
	case len(segs) >= 6:
		return keyParts{symbol: segs[0], sdate: segs[1], edate: segs[2], freq: segs[3], fq: segs[5]}
	case len(segs) >= 4:
		fq := common.AdjustForward
		if len(segs) > 4 {
			fq = segs[4]
		}
		return keyParts{symbol: segs[0], sdate: segs[1], edate: segs[2], freq: segs[3], fq: fq}
	case len(segs) == 3:
		return keyParts{symbol: segs[0], freq: segs[1], fq: segs[2]}
	}
	return keyParts{symbol: segs[0], freq: common.FreqDay, fq: common.AdjustForward}
}

// windowedHit turns a cached quote into a hit for [sdate, edate], or a miss.
// A miss is reported when the series cannot be coerced to a timestamp index,
// when the window is disjoint from the cached bounds, or when filtering leaves
// no rows. Empty bounds leave that side of the window open.
func windowedHit(q common.Quote, sdate, edate string) (common.Quote, error) {
	if _, err := q.Series.Times(); err != nil {
		return common.Quote{}, common.ErrCacheMiss
	}
	earliest, latest := q.Series.BoundsLabels()
	if edate != "" && earliest != "" && edate < earliest {
		return common.Quote{}, common.ErrCacheMiss
	}
	if sdate != "" && latest != "" && sdate > latest {
		return common.Quote{}, common.ErrCacheMiss
	}
	filtered := q.Series.FilterRange(sdate, edate)
	if filtered.IsEmpty() {
		return common.Quote{}, common.ErrCacheMiss
	}
	return common.Quote{Symbol: q.Symbol, Name: q.Name, Series: filtered}, nil
}
