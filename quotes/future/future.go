package future

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/marianogappa/stock-quotes/quotes/common"
	"github.com/marianogappa/stock-quotes/quotes/fetch"
	"github.com/marianogappa/stock-quotes/quotes/parse"
)

// Future enables requesting quotes for domestic futures contracts from Sina's
// InnerFuturesNewService gateway, plus the BtcService daily endpoint for the
// fubtcusd pseudo-contract.
type Future struct {
	apiURL string
	btcURL string
	client *fetch.Client
	debug  bool
}

// NewFuture is the constructor for Future
func NewFuture(client *fetch.Client) *Future {
	return &Future{
		apiURL: "https://stock2.finance.sina.com.cn/futures/api/jsonp.php/",
		btcURL: "https://quotes.sina.cn/fx/api/openapi.php/BtcService.getDayKLine?symbol=btcbtcusd",
		client: client,
	}
}

// RequestQuote requests a kline series for the given futures symbol. BTC
// pseudo-contracts route to the BtcService daily endpoint; that endpoint has
// no intraday variant, so a BTC minute request logs a warning and yields an
// empty quote. sdate, edate, days and fq are accepted for interface parity but
// the gateway serves full history only.
func (m *Future) RequestQuote(symbol, sdate, edate, freq string, days int, fq string) (common.Quote, error) {
	if isBTC(symbol) {
		if freq == common.FreqMinute {
			log.Warn().Msgf("No minute data for %v, returning empty quote", symbol)
			return common.Quote{Symbol: symbol}, nil
		}
		return m.requestBTC(symbol)
	}

	code := strings.TrimPrefix(symbol, "fu")
	if freq == common.FreqMinute {
		return m.requestMinute(code)
	}
	return m.requestDaily(symbol, code)
}

func isBTC(symbol string) bool {
	return len(symbol) >= 5 && strings.EqualFold(symbol[2:5], "btc")
}

func (m *Future) requestDaily(symbol, code string) (common.Quote, error) {
	url := fmt.Sprintf("%vvar%%20t1nf_%v=/InnerFuturesNewService.getDailyKLine?symbol=%v", m.apiURL, code, code)
	byts, err := m.client.Get(url)
	if err != nil {
		return common.Quote{}, err
	}
	series, err := parse.FutureDaily(byts)
	if err != nil {
		return common.Quote{}, err
	}

	if m.debug {
		log.Info().Str("market", common.MarketFuture).Str("symbol", symbol).Int("row_count", series.Len()).Msg("Quote request successful!")
	}

	return common.Quote{Symbol: symbol, Name: code, Series: series}, nil
}

// Minute quotes carry the bare contract code as their symbol, without the fu
// prefix, matching what the gateway itself reports.
func (m *Future) requestMinute(code string) (common.Quote, error) {
	url := fmt.Sprintf("%vvar%%20t1nf_%v=/InnerFuturesNewService.getMinLine?symbol=%v", m.apiURL, code, code)
	byts, err := m.client.Get(url)
	if err != nil {
		return common.Quote{}, err
	}
	series, err := parse.FutureMinute(byts)
	if err != nil {
		return common.Quote{}, err
	}

	if m.debug {
		log.Info().Str("market", common.MarketFuture).Str("symbol", code).Int("row_count", series.Len()).Msg("Quote request successful!")
	}

	return common.Quote{Symbol: code, Name: code, Series: series}, nil
}

func (m *Future) requestBTC(symbol string) (common.Quote, error) {
	byts, err := m.client.Get(m.btcURL)
	if err != nil {
		return common.Quote{}, err
	}
	series, err := parse.BTCDaily(byts)
	if err != nil {
		return common.Quote{}, err
	}

	if m.debug {
		log.Info().Str("market", common.MarketFuture).Str("symbol", symbol).Int("row_count", series.Len()).Msg("Quote request successful!")
	}

	return common.Quote{Symbol: symbol, Name: "BTC", Series: series}, nil
}

// SetDebug sets market-wide debug logging. It's useful to know how many times requests are being sent to vendors.
func (m *Future) SetDebug(debug bool) {
	m.debug = debug
}

// Example daily request:
// https://stock2.finance.sina.com.cn/futures/api/jsonp.php/var%20t1nf_M2501=/InnerFuturesNewService.getDailyKLine?symbol=M2501
//
// Example daily response (trimmed):
// var t1nf_M2501=([["2024-01-02","3015.000","3040.000","3001.000","3022.000","1205410","890123","3020.000"]]);
//
// Example BTC request:
// https://quotes.sina.cn/fx/api/openapi.php/BtcService.getDayKLine?symbol=btcbtcusd
//
// Example BTC response (trimmed):
// {"result":{"status":{"code":0},"data":"2024-01-01,42000.0,43000.5,41000.2,42500.1,1234.5,52000000"}}
