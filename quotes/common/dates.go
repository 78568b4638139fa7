package common

import (
	"fmt"
	"time"
)

// DateLayout is the canonical day layout used in cache keys, cache records and
// vendor URLs.
const DateLayout = "2006-01-02"

// Layouts accepted for caller-supplied date arguments.
var argDateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"20060102",
	"2006.01.02",
	"2006_01_02",
}

// Layouts vendors use for row labels. Day layouts come after the datetime ones
// so intraday labels never lose their time component.
var labelLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"200601021504",
	"2006-01-02",
	"2006/01/02",
	"20060102",
	"2006.01.02",
	"2006_01_02",
	"1504", // US minute labels carry time-of-day only
}

// NormalizeDate maps any accepted date argument to YYYY-MM-DD. It is a no-op on
// empty input and idempotent on already-normalized input. Unknown layouts wrap
// ErrSymbol.
func NormalizeDate(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	for _, layout := range argDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout), nil
		}
	}
	return "", fmt.Errorf("%w: invalid date format: %q", ErrSymbol, s)
}

// ParseDateLabel parses a vendor row label in any of the known layouts.
func ParseDateLabel(s string) (time.Time, error) {
	for _, layout := range labelLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unknown date label layout: %q", s)
}

// ShiftDays moves a YYYY-MM-DD date by n days, used to aim extension fetches
// just past a cached bound.
func ShiftDays(date string, n int) (string, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return "", fmt.Errorf("%w: invalid date format: %q", ErrSymbol, date)
	}
	return t.AddDate(0, 0, n).Format(DateLayout), nil
}
