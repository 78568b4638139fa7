package cnstock

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/marianogappa/stock-quotes/quotes/common"
	"github.com/marianogappa/stock-quotes/quotes/fetch"
	"github.com/marianogappa/stock-quotes/quotes/parse"
)

// CNStock enables requesting quotes for Shanghai/Shenzhen listed symbols from
// Tencent's kline gateway. BK board indices route to EastMoney instead, and pt
// plate indices to the qq proxy gateway.
type CNStock struct {
	klineURL string
	plateURL string
	boardURL string
	client   *fetch.Client
	debug    bool
}

const boardURLSuffix = "&fields1=f1%2Cf2%2Cf3%2Cf4%2Cf5&fields2=f51%2Cf52%2Cf53%2Cf54%2Cf55%2Cf56%2Cf57%2Cf58&klt=101&fqt=0&beg=19900101&end=20990101&_=1"

// NewCNStock is the constructor for CNStock
func NewCNStock(client *fetch.Client) *CNStock {
	return &CNStock{
		klineURL: "https://web.ifzq.gtimg.cn/appstock/app/newfqkline/get",
		plateURL: "https://proxy.finance.qq.com/ifzqgtimg/appstock/app/newfqkline/get",
		boardURL: "http://push2his.eastmoney.com/api/qt/stock/kline/get?cb=jQuery1124022566445873766972_1617864568131&secid=90.",
		client:   client,
	}
}

// RequestQuote requests a kline series for symbol between sdate and edate,
// both optional. days bounds the response size and fq selects the adjustment
// mode.
func (m *CNStock) RequestQuote(symbol, sdate, edate, freq string, days int, fq string) (common.Quote, error) {
	if strings.HasPrefix(symbol, "BK") {
		return m.requestBoard(symbol), nil
	}

	url := fmt.Sprintf("%v?param=%v,%v,%v,%v,%v,%v", m.klineURL, symbol, freq, sdate, edate, days, fq)
	if strings.HasPrefix(symbol, "pt") {
		url = fmt.Sprintf("%v?_var=kline_dayqfq&param=%v,%v,%v,%v,%v,%v", m.plateURL, symbol, freq, sdate, edate, days, fq)
	}

	byts, err := m.client.Get(url)
	if err != nil {
		return common.Quote{}, err
	}
	name, series, err := parse.Kline(byts, symbol, fq)
	if err != nil {
		return common.Quote{}, err
	}

	if m.debug {
		log.Info().Str("market", common.MarketCN).Str("symbol", symbol).Int("row_count", series.Len()).Msg("Quote request successful!")
	}

	return common.Quote{Symbol: symbol, Name: name, Series: series}, nil
}

// Boards are a best-effort surface: any network or shape trouble logs a
// warning and yields an empty quote rather than an error.
func (m *CNStock) requestBoard(symbol string) common.Quote {
	byts, err := m.client.Get(m.boardURL + symbol + boardURLSuffix)
	if err != nil {
		log.Warn().Msgf("Board request for %v failed: %v", symbol, err)
		return common.Quote{Symbol: symbol}
	}
	name, series, err := parse.Board(byts)
	if err != nil {
		log.Warn().Msgf("Board response for %v unusable: %v", symbol, err)
		return common.Quote{Symbol: symbol}
	}

	if m.debug {
		log.Info().Str("market", common.MarketCN).Str("symbol", symbol).Int("row_count", series.Len()).Msg("Quote request successful!")
	}

	return common.Quote{Symbol: symbol, Name: name, Series: series}
}

// SetDebug sets market-wide debug logging. It's useful to know how many times requests are being sent to vendors.
func (m *CNStock) SetDebug(debug bool) {
	m.debug = debug
}

// Example kline request:
// https://web.ifzq.gtimg.cn/appstock/app/newfqkline/get?param=sh600000,day,2024-01-02,2024-01-10,320,qfq
//
// Example response (trimmed):
// {"code":0,"msg":"","data":{"sh600000":{"qfqday":[["2024-01-02","10.10","10.30","10.40","10.00","1000.00"]],"qt":{"sh600000":["1","浦发银行","600000"]}}}}
//
// Example board request:
// http://push2his.eastmoney.com/api/qt/stock/kline/get?cb=jQuery1124022566445873766972_1617864568131&secid=90.BK0478&fields1=f1%2Cf2%2Cf3%2Cf4%2Cf5&fields2=f51%2Cf52%2Cf53%2Cf54%2Cf55%2Cf56%2Cf57%2Cf58&klt=101&fqt=0&beg=19900101&end=20990101&_=1
//
// Example board response (trimmed):
// jQuery1124022566445873766972_1617864568131({"rc":0,"data":{"code":"BK0478","name":"有色金属","klines":["2024-01-02,1530.12,1542.88,1550.01,1528.33,1234500,1890234567.00,1.42"]}});
