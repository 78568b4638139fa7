// Package lists serves the market catalogs: ranked stock lists per market,
// the ETF fund list, active futures contracts, industry plates and the
// plate membership of a single stock. Catalogs are plain snapshots, so
// nothing here touches the quote cache.
package lists

import (
	"math"
	"strconv"
	"strings"

	"github.com/marianogappa/stock-quotes/quotes/fetch"
)

// Stock is one row of the CN turnover ranking. Turnover is in units of 万 as
// the vendor reports it.
type Stock struct {
	Symbol   string
	Name     string
	Price    float64
	Turnover float64
}

// USListing is one row of the sina US category list.
type USListing struct {
	Symbol string
	Name   string
	CName  string
	Price  float64
}

// Fund is one row of the sina ETF list.
type Fund struct {
	Symbol        string
	Name          string
	ChangePercent float64
	Amount        float64
	Price         float64
}

// Industry is one row of the QQ hy2 plate ranking, optionally joined with the
// sina sw2 node id for the same plate name.
type Industry struct {
	Code     string
	Name     string
	Change   float64
	Inflow   float64
	Price    float64
	SinaNode string
}

// IndustryStock is one member of a sina industry node.
type IndustryStock struct {
	Symbol string
	Name   string
	Price  float64
}

// Plate is one concept or industry plate a stock belongs to.
type Plate struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Lists enables requesting market catalogs from the QQ, gtimg, sina and
// EastMoney public endpoints.
type Lists struct {
	cnStocksURL   string
	hkRankURL     string
	usListURL     string
	fundsURL      string
	futuresURL    string
	industriesURL string
	sinaNodesURL  string
	nodeDataURL   string
	stockInfoURL  string
	client        *fetch.Client
	debug         bool
}

// NewLists is the constructor for Lists
func NewLists(client *fetch.Client) *Lists {
	return &Lists{
		cnStocksURL:   "https://proxy.finance.qq.com/cgi/cgi-bin/rank/hs/getBoardRankList",
		hkRankURL:     "https://stock.gtimg.cn/data/hk_rank.php",
		usListURL:     "https://stock.finance.sina.com.cn/usstock/api/jsonp.php/IO.XSRV2.CallbackList['f0j3ltzVzdo2Fo4p']/US_CategoryService.getList",
		fundsURL:      "http://vip.stock.finance.sina.com.cn/quotes_service/api/jsonp.php/IO.XSRV2.CallbackList['k2WazK06NQwlhyXv']/Market_Center.getHQNodeDataSimple?page=1&num=1000&sort=amount&asc=0&node=etf_hq_fund&%5Bobject%20HTMLDivElement%5D=xm4i0",
		futuresURL:    "https://finance.sina.com.cn/futuremarket/",
		industriesURL: "https://proxy.finance.qq.com/cgi/cgi-bin/rank/pt/getRank",
		sinaNodesURL:  "https://vip.stock.finance.sina.com.cn/quotes_service/api/json_v2.php/Market_Center.getHQNodes",
		nodeDataURL:   "https://vip.stock.finance.sina.com.cn/quotes_service/api/json_v2.php/Market_Center.getHQNodeData",
		stockInfoURL:  "https://proxy.finance.qq.com/ifzqgtimg/appstock/app/stockinfo/plateNew",
		client:        client,
	}
}

// SetDebug sets catalog-wide debug logging.
func (l *Lists) SetDebug(debug bool) {
	l.debug = debug
}

// asFloat coerces a vendor cell to a float, NaN when it cannot be read as one.
// The catalog endpoints mix quoted and bare numbers across fields.
func asFloat(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return math.NaN()
}
