package usstock

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/marianogappa/stock-quotes/quotes/common"
	"github.com/marianogappa/stock-quotes/quotes/fetch"
	"github.com/marianogappa/stock-quotes/quotes/parse"
)

// USStock enables requesting quotes for US listed symbols from Tencent's
// usfqkline gateway. Symbols without an exchange suffix are probed against
// both NASDAQ (.OQ) and NYSE (.N), keeping the richer answer.
type USStock struct {
	apiURL    string
	minuteURL string
	client    *fetch.Client
	debug     bool
}

// NewUSStock is the constructor for USStock
func NewUSStock(client *fetch.Client) *USStock {
	return &USStock{
		apiURL:    "https://web.ifzq.gtimg.cn/appstock/app/usfqkline/get",
		minuteURL: "https://web.ifzq.gtimg.cn/appstock/app/UsMinute/query",
		client:    client,
	}
}

// RequestQuote requests a kline series for symbol between sdate and edate. The
// minute frequency routes to the intraday gateway. On a suffix probe the
// returned Quote carries the winning suffixed symbol, not the bare one.
func (m *USStock) RequestQuote(symbol, sdate, edate, freq string, days int, fq string) (common.Quote, error) {
	if freq == common.FreqMinute {
		return m.requestMinute(symbol)
	}
	if strings.HasSuffix(symbol, ".OQ") || strings.HasSuffix(symbol, ".N") || strings.HasSuffix(symbol, ".AM") {
		return m.requestKline(symbol, sdate, edate, freq, days, fq)
	}

	best := common.Quote{}
	found := false
	for _, suffix := range []string{".OQ", ".N"} {
		full := symbol + suffix
		quote, err := m.requestKline(full, sdate, edate, freq, days, fq)
		if err != nil {
			log.Warn().Msgf("Failed to fetch %v: %v", full, err)
			continue
		}
		// Fewer than 3 rows from a probe is almost always a bogus listing.
		if quote.Series.Len() < 3 {
			log.Warn().Msgf("Skipping %v: only %v rows", full, quote.Series.Len())
			continue
		}
		if !found || richer(quote, best) {
			best, found = quote, true
		}
	}
	if !found {
		return common.Quote{}, fmt.Errorf("%w: failed to fetch US symbol %v with .OQ/.N suffixes", common.ErrDataSource, symbol)
	}
	return best, nil
}

// richer reports whether a beats b: more rows wins, and on equal row counts
// the earlier first date wins.
func richer(a, b common.Quote) bool {
	if a.Series.Len() != b.Series.Len() {
		return a.Series.Len() > b.Series.Len()
	}
	return a.Series.First() < b.Series.First()
}

func (m *USStock) requestKline(symbol, sdate, edate, freq string, days int, fq string) (common.Quote, error) {
	url := fmt.Sprintf("%v?param=%v,%v,%v,%v,%v,%v", m.apiURL, symbol, freq, sdate, edate, days, fq)
	byts, err := m.client.Get(url)
	if err != nil {
		return common.Quote{}, err
	}
	name, series, err := parse.Kline(byts, symbol, fq)
	if err != nil {
		return common.Quote{}, err
	}

	if m.debug {
		log.Info().Str("market", common.MarketUS).Str("symbol", symbol).Int("row_count", series.Len()).Msg("Quote request successful!")
	}

	return common.Quote{Symbol: symbol, Name: name, Series: series}, nil
}

func (m *USStock) requestMinute(symbol string) (common.Quote, error) {
	trimmed := strings.ReplaceAll(symbol, ".", "")
	url := fmt.Sprintf("%v?_var=min_data_%v&code=%v", m.minuteURL, trimmed, symbol)
	byts, err := m.client.Get(url)
	if err != nil {
		return common.Quote{}, err
	}
	name, series, err := parse.USMinute(byts, symbol)
	if err != nil {
		return common.Quote{}, err
	}

	if m.debug {
		log.Info().Str("market", common.MarketUS).Str("symbol", symbol).Int("row_count", series.Len()).Msg("Quote request successful!")
	}

	return common.Quote{Symbol: symbol, Name: name, Series: series}, nil
}

// SetDebug sets market-wide debug logging. It's useful to know how many times requests are being sent to vendors.
func (m *USStock) SetDebug(debug bool) {
	m.debug = debug
}

// Example request:
// https://web.ifzq.gtimg.cn/appstock/app/usfqkline/get?param=usAAPL.OQ,day,2024-01-02,2024-01-10,320,qfq
//
// Example response (trimmed):
// {"code":0,"msg":"","data":{"usAAPL.OQ":{"qfqday":[["2024-01-02","187.15","185.64","188.44","183.89","82488700.00"]],"qt":{"usAAPL.OQ":["200","苹果","AAPL.OQ"]}}}}
//
// Example minute request:
// https://web.ifzq.gtimg.cn/appstock/app/UsMinute/query?_var=min_data_usAAPLOQ&code=usAAPL.OQ
//
// Example minute response (trimmed):
// min_data_usAAPLOQ={"code":0,"msg":"","data":{"usAAPL.OQ":{"data":{"data":["0930 228.87 1200"],"date":"20240112"},"qt":{"usAAPL.OQ":["200","苹果","AAPL.OQ"]}}}}
