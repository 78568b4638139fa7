// Package tick serves realtime quote snapshots from the sina hq service.
package tick

import (
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/marianogappa/stock-quotes/quotes/fetch"
)

// Tick is one realtime quote line. TimeSec is the vendor's quote timestamp,
// kept as text because its layout varies by venue.
type Tick struct {
	Symbol     string
	Name       string
	Price      float64
	ChangeRate float64
	TimeSec    string
	Change     float64
	Volume     float64
	LastClose  float64
	Turnover   float64
}

// Ticker enables requesting realtime quotes for US symbols from the sina hq
// service.
type Ticker struct {
	apiURL string
	client *fetch.Client
	debug  bool
}

// NewTicker is the constructor for Ticker
func NewTicker(client *fetch.Client) *Ticker {
	return &Ticker{
		apiURL: "https://hq.sinajs.cn/?list=",
		client: client,
	}
}

// Get requests realtime quotes for the given bare symbols (no gb_ prefix).
// Malformed or truncated response lines are skipped with a warning rather
// than failing the whole batch.
func (tk *Ticker) Get(symbols ...string) ([]Tick, error) {
	if len(symbols) == 0 {
		return []Tick{}, nil
	}
	prefixed := make([]string, 0, len(symbols))
	for _, s := range symbols {
		prefixed = append(prefixed, "gb_"+strings.ToLower(s))
	}

	byts, err := tk.client.Get(tk.apiURL + strings.Join(prefixed, ","))
	if err != nil {
		return nil, err
	}

	ticks := []Tick{}
	for _, line := range strings.Split(string(byts), ";\n") {
		if !strings.Contains(line, ",") {
			continue
		}
		quoted := strings.Split(line, `"`)
		if len(quoted) < 2 {
			log.Warn().Msgf("Skipping malformed tick line: %.40v", line)
			continue
		}
		fields := strings.Split(quoted[1], ",")
		if len(fields) < 31 {
			log.Warn().Msgf("Skipping short tick line with %v fields", len(fields))
			continue
		}
		ticks = append(ticks, Tick{
			Symbol:     symbolOf(quoted[0]),
			Name:       fields[0],
			Price:      asFloat(fields[1]),
			ChangeRate: asFloat(fields[2]),
			TimeSec:    fields[3],
			Change:     asFloat(fields[4]),
			Volume:     asFloat(fields[10]),
			LastClose:  asFloat(fields[26]),
			Turnover:   asFloat(fields[30]),
		})
	}

	if tk.debug {
		log.Info().Int("tick_count", len(ticks)).Msg("Tick request successful!")
	}

	return ticks, nil
}

// SetDebug sets debug logging for tick requests.
func (tk *Ticker) SetDebug(debug bool) {
	tk.debug = debug
}

// symbolOf pulls the code out of the var assignment before the quoted fields,
// e.g. `var hq_str_gb_aapl=` yields gb_aapl.
func symbolOf(prefix string) string {
	idx := strings.Index(prefix, "hq_str_")
	if idx < 0 {
		return ""
	}
	return strings.TrimSuffix(strings.TrimSpace(prefix[idx+len("hq_str_"):]), "=")
}

func asFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// Example request:
// https://hq.sinajs.cn/?list=gb_aapl,gb_msft
//
// Example response (trimmed):
// var hq_str_gb_aapl="苹果,228.87,1.25,2024-01-12 16:00:00,2.83,...";
