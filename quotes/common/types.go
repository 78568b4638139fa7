// Package common contains the types shared by all market adapters, the parsers,
// the caches and the query facade.
package common

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Market identifiers, also used as shard names by the sharded storage backend.
const (
	MarketCN     = "cn"
	MarketHK     = "hk"
	MarketUS     = "us"
	MarketFuture = "fu"
)

// Supported candle frequencies.
const (
	FreqDay    = "day"
	FreqWeek   = "week"
	FreqMonth  = "month"
	FreqMinute = "min"
)

// Price adjustment modes. AdjustNone is sent to vendors as the empty string.
const (
	AdjustForward  = "qfq"
	AdjustBackward = "hfq"
	AdjustNone     = "none"
)

// DateString is a date or datetime label exactly as a vendor returned it, e.g.
// "2024-01-02" or "2024-01-02 15:04". Labels within one series share a single
// layout, so lexicographic order matches chronological order.
type DateString string

// Time parses the label. All layouts the supported vendors emit are accepted.
func (d DateString) Time() (time.Time, error) {
	return ParseDateLabel(string(d))
}

// JSONFloat64 is a float64 that trims trailing zeros when marshalled and maps
// NaN (used for unparseable vendor cells) to null instead of erroring.
type JSONFloat64 float64

func (jf JSONFloat64) MarshalJSON() ([]byte, error) {
	f := float64(jf)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	bs := []byte(fmt.Sprintf("%.8f", f))
	var i int
	for i = len(bs) - 1; i >= 0; i-- {
		if bs[i] == '0' {
			continue
		}
		if bs[i] == '.' {
			i--
		}
		break
	}
	return bs[:i+1], nil
}

func (jf *JSONFloat64) UnmarshalJSON(bs []byte) error {
	if string(bs) == "null" {
		*jf = JSONFloat64(math.NaN())
		return nil
	}
	var f float64
	if _, err := fmt.Sscanf(string(bs), "%f", &f); err != nil {
		return err
	}
	*jf = JSONFloat64(f)
	return nil
}

// Row is one candle, keyed by its date label. Values align positionally with
// the owning Series' Columns.
type Row struct {
	Date   DateString    `json:"date" msgpack:"date"`
	Values []JSONFloat64 `json:"values" msgpack:"values"`
}

// Series is an ordered, date-keyed table of numeric columns: the library's
// stand-in for a dataframe. Date labels are unique and ascending; cells may be
// NaN where a vendor sent something unparseable.
type Series struct {
	Columns []string `json:"columns" msgpack:"columns"`
	Rows    []Row    `json:"rows" msgpack:"rows"`
}

func (s Series) Len() int      { return len(s.Rows) }
func (s Series) IsEmpty() bool { return len(s.Rows) == 0 }

// First returns the first row's date label, or "" on an empty series.
func (s Series) First() DateString {
	if s.IsEmpty() {
		return ""
	}
	return s.Rows[0].Date
}

// Last returns the last row's date label, or "" on an empty series.
func (s Series) Last() DateString {
	if s.IsEmpty() {
		return ""
	}
	return s.Rows[len(s.Rows)-1].Date
}

// Merge concatenates the receiver with a later fragment, deduplicates by date
// label keeping the later fragment's row, and sorts ascending. The receiver is
// not modified.
func (s Series) Merge(later Series) Series {
	cols := s.Columns
	if len(cols) == 0 {
		cols = later.Columns
	}
	byDate := make(map[DateString]Row, len(s.Rows)+len(later.Rows))
	order := make([]DateString, 0, len(s.Rows)+len(later.Rows))
	for _, r := range s.Rows {
		if _, ok := byDate[r.Date]; !ok {
			order = append(order, r.Date)
		}
		byDate[r.Date] = r
	}
	for _, r := range later.Rows {
		if _, ok := byDate[r.Date]; !ok {
			order = append(order, r.Date)
		}
		byDate[r.Date] = r
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	rows := make([]Row, 0, len(order))
	for _, d := range order {
		rows = append(rows, byDate[d])
	}
	return Series{Columns: cols, Rows: rows}
}

// FilterRange keeps rows whose date falls inside [sdate, edate]. Empty bounds
// leave that side open. Rows with unparseable labels are dropped.
func (s Series) FilterRange(sdate, edate string) Series {
	var lo, hi time.Time
	if sdate != "" {
		lo, _ = ParseDateLabel(sdate)
	}
	if edate != "" {
		hi, _ = ParseDateLabel(edate)
	}
	out := Series{Columns: s.Columns}
	for _, r := range s.Rows {
		t, err := r.Date.Time()
		if err != nil {
			continue
		}
		if sdate != "" && t.Before(lo) {
			continue
		}
		if edate != "" && t.After(hi) {
			continue
		}
		out.Rows = append(out.Rows, r)
	}
	return out
}

// CountThrough counts rows dated at or before edate. An unparseable edate
// counts the whole series.
func (s Series) CountThrough(edate string) int {
	hi, err := ParseDateLabel(edate)
	if err != nil {
		return s.Len()
	}
	n := 0
	for _, r := range s.Rows {
		t, err := r.Date.Time()
		if err != nil {
			continue
		}
		if !t.After(hi) {
			n++
		}
	}
	return n
}

// BoundsLabels returns the smallest and largest date labels as YYYY-MM-DD when
// every label parses, falling back to lexicographic bounds over the raw labels
// otherwise. Empty series yields two empty strings.
func (s Series) BoundsLabels() (earliest, latest string) {
	if s.IsEmpty() {
		return "", ""
	}
	var lo, hi time.Time
	timed := true
	for i, r := range s.Rows {
		t, err := r.Date.Time()
		if err != nil {
			timed = false
			break
		}
		if i == 0 || t.Before(lo) {
			lo = t
		}
		if i == 0 || t.After(hi) {
			hi = t
		}
	}
	if timed {
		return lo.Format(DateLayout), hi.Format(DateLayout)
	}
	loS, hiS := s.Rows[0].Date, s.Rows[0].Date
	for _, r := range s.Rows[1:] {
		if r.Date < loS {
			loS = r.Date
		}
		if r.Date > hiS {
			hiS = r.Date
		}
	}
	return string(loS), string(hiS)
}

// Times parses every row label into a timestamp index. It fails on the first
// unparseable label, which callers treat as "this series cannot be coerced".
func (s Series) Times() ([]time.Time, error) {
	ts := make([]time.Time, len(s.Rows))
	for i, r := range s.Rows {
		t, err := r.Date.Time()
		if err != nil {
			return nil, fmt.Errorf("row %v has unparseable date %q: %w", i, r.Date, err)
		}
		ts[i] = t
	}
	return ts, nil
}

// Quote is the (symbol, name, series) triple every retrieval returns. Symbol is
// the canonical form actually used upstream; US suffix probing may differ from
// what the caller passed in.
type Quote struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Series Series `json:"series"`
}

// FetchFunc retrieves candles for one symbol and window straight from a vendor.
// Market adapters provide it; the cache's auto-merge orchestrator drives it.
type FetchFunc func(symbol, sdate, edate, freq string, days int, fq string) (Quote, error)

// MarketOf reports which market a normalized symbol belongs to. Symbols that
// match no known prefix map to the CN market, which is also the sharded
// store's fallback shard.
func MarketOf(symbol string) string {
	switch {
	case strings.HasPrefix(symbol, "BK"), strings.HasPrefix(symbol, "pt"):
		return MarketCN
	case strings.HasPrefix(symbol, "fu"):
		return MarketFuture
	case strings.HasPrefix(symbol, "sh"), strings.HasPrefix(symbol, "sz"):
		return MarketCN
	case strings.HasPrefix(symbol, "hk"):
		return MarketHK
	case strings.HasPrefix(symbol, "us"):
		return MarketUS
	}
	return MarketCN
}
