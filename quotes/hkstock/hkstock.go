package hkstock

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/marianogappa/stock-quotes/quotes/common"
	"github.com/marianogappa/stock-quotes/quotes/fetch"
	"github.com/marianogappa/stock-quotes/quotes/parse"
)

// HKStock enables requesting quotes for Hong Kong listed symbols from
// Tencent's hkfqkline gateway.
type HKStock struct {
	apiURL string
	client *fetch.Client
	debug  bool
}

// NewHKStock is the constructor for HKStock
func NewHKStock(client *fetch.Client) *HKStock {
	return &HKStock{
		apiURL: "https://web.ifzq.gtimg.cn/appstock/app/hkfqkline/get",
		client: client,
	}
}

// RequestQuote requests a kline series for symbol between sdate and edate,
// both optional. days bounds the response size and fq selects the adjustment
// mode.
func (m *HKStock) RequestQuote(symbol, sdate, edate, freq string, days int, fq string) (common.Quote, error) {
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
		log.Info().Str("market", common.MarketHK).Str("symbol", symbol).Int("row_count", series.Len()).Msg("Quote request successful!")
	}

	return common.Quote{Symbol: symbol, Name: name, Series: series}, nil
}

// SetDebug sets market-wide debug logging. It's useful to know how many times requests are being sent to vendors.
func (m *HKStock) SetDebug(debug bool) {
	m.debug = debug
}

// Example request:
// https://web.ifzq.gtimg.cn/appstock/app/hkfqkline/get?param=hk00700,day,2024-01-02,2024-01-10,320,qfq
//
// Example response (trimmed):
// {"code":0,"msg":"","data":{"hk00700":{"qfqday":[["2024-01-02","295.00","296.40","299.00","294.20","14700000.00"]],"qt":{"hk00700":["100","腾讯控股","00700"]}}}}
