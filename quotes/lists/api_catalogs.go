package lists

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/marianogappa/stock-quotes/quotes/common"
	"github.com/marianogappa/stock-quotes/quotes/parse"
)

const (
	listPageSize = 200
	usPageSize   = 20
)

type rankItem struct {
	Code     string      `json:"code"`
	Name     string      `json:"name"`
	ZXJ      interface{} `json:"zxj"`
	ZDF      interface{} `json:"zdf"`
	ZLLR     interface{} `json:"zllr"`
	Turnover interface{} `json:"turnover"`
}

type rankResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		RankList []rankItem `json:"rank_list"`
	} `json:"data"`
}

func (r rankResponse) toError() error {
	msg := r.Msg
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Errorf("%w: API error: %v", common.ErrDataSource, msg)
}

// CNStocks requests the A-share ranking by turnover, paging until the last
// row's turnover drops under moneyMin yuan (the vendor reports turnover in 万)
// or the vendor runs out of rows. moneyMin <= 0 means 2e8.
func (l *Lists) CNStocks(moneyMin float64) ([]Stock, error) {
	if moneyMin <= 0 {
		moneyMin = 2e8
	}
	stocks := []Stock{}
	for offset := 0; ; offset += listPageSize {
		url := fmt.Sprintf("%v?_appver=11.17.0&board_code=aStock&sort_type=turnover&direct=down&offset=%v&count=%v",
			l.cnStocksURL, offset, listPageSize)
		byts, err := l.client.Get(url)
		if err != nil {
			return nil, err
		}
		maybeResponse := rankResponse{}
		if err := json.Unmarshal(byts, &maybeResponse); err != nil {
			return nil, fmt.Errorf("%w: invalid rank document: %v", common.ErrParse, err)
		}
		if maybeResponse.Code != 0 {
			return nil, maybeResponse.toError()
		}
		if len(maybeResponse.Data.RankList) == 0 {
			break
		}
		for _, item := range maybeResponse.Data.RankList {
			stocks = append(stocks, Stock{Symbol: item.Code, Name: item.Name, Price: asFloat(item.ZXJ), Turnover: asFloat(item.Turnover)})
		}
		if stocks[len(stocks)-1].Turnover*1e4 <= moneyMin {
			break
		}
	}

	if l.debug {
		log.Info().Str("catalog", "cn_stocks").Int("count", len(stocks)).Msg("Catalog request successful!")
	}

	return stocks, nil
}

type hkRankResponse struct {
	Data struct {
		PageData []string `json:"page_data"`
	} `json:"data"`
}

// HKTop500 requests the 500 most traded Hong Kong listings. Rows come as
// '~'-separated strings and are returned split, without further schema: the
// vendor shuffles the field layout often enough that callers key by position.
func (l *Lists) HKTop500() ([][]string, error) {
	url := l.hkRankURL + "?board=main_all&metric=amount&pageSize=500&reqPage=1&order=desc&var_name=list_data"
	byts, err := l.client.Get(url)
	if err != nil {
		return nil, err
	}
	doc, err := parse.ExtractJSON(byts)
	if err != nil {
		return nil, err
	}
	maybeResponse := hkRankResponse{}
	if err := json.Unmarshal(doc, &maybeResponse); err != nil {
		return nil, fmt.Errorf("%w: invalid hk rank document: %v", common.ErrParse, err)
	}

	rows := make([][]string, 0, len(maybeResponse.Data.PageData))
	for _, packed := range maybeResponse.Data.PageData {
		rows = append(rows, strings.Split(packed, "~"))
	}

	if l.debug {
		log.Info().Str("catalog", "hk_top500").Int("count", len(rows)).Msg("Catalog request successful!")
	}

	return rows, nil
}

type usListItem struct {
	Symbol string      `json:"symbol"`
	Name   string      `json:"name"`
	CName  string      `json:"cname"`
	Price  interface{} `json:"price"`
}

type usListResponse struct {
	Data []usListItem `json:"data"`
}

// USStocks requests US listings from the sina category service, 20 per page,
// stopping after enough pages to cover count rows. count <= 0 means 100.
func (l *Lists) USStocks(count int) ([]USListing, error) {
	if count <= 0 {
		count = 100
	}
	listings := []USListing{}
	pages := count/usPageSize + 1
	for page := 1; page <= pages; page++ {
		url := fmt.Sprintf("%v?page=%v&num=%v&sort=&asc=0&market=&id=", l.usListURL, page, usPageSize)
		byts, err := l.client.Get(url)
		if err != nil {
			return nil, err
		}
		doc, err := parse.ExtractCallback(byts)
		if err != nil {
			return nil, err
		}
		maybeResponse := usListResponse{}
		if err := json.Unmarshal(doc, &maybeResponse); err != nil {
			return nil, fmt.Errorf("%w: invalid US list document: %v", common.ErrParse, err)
		}
		for _, item := range maybeResponse.Data {
			listings = append(listings, USListing{Symbol: item.Symbol, Name: item.Name, CName: item.CName, Price: asFloat(item.Price)})
		}
	}

	if l.debug {
		log.Info().Str("catalog", "us_stocks").Int("count", len(listings)).Msg("Catalog request successful!")
	}

	return listings, nil
}

type fundItem struct {
	Symbol        string      `json:"symbol"`
	Name          string      `json:"name"`
	ChangePercent interface{} `json:"changepercent"`
	Amount        interface{} `json:"amount"`
	Trade         interface{} `json:"trade"`
}

// CNFunds requests the sina ETF list, most traded first.
func (l *Lists) CNFunds() ([]Fund, error) {
	byts, err := l.client.Get(l.fundsURL)
	if err != nil {
		return nil, err
	}
	doc, err := parse.ExtractCallback(byts)
	if err != nil {
		return nil, err
	}
	items := []fundItem{}
	if err := json.Unmarshal(doc, &items); err != nil {
		return nil, fmt.Errorf("%w: invalid fund list document: %v", common.ErrParse, err)
	}

	funds := make([]Fund, 0, len(items))
	for _, item := range items {
		funds = append(funds, Fund{
			Symbol:        item.Symbol,
			Name:          item.Name,
			ChangePercent: asFloat(item.ChangePercent),
			Amount:        asFloat(item.Amount),
			Price:         asFloat(item.Trade),
		})
	}

	if l.debug {
		log.Info().Str("catalog", "cn_funds").Int("count", len(funds)).Msg("Catalog request successful!")
	}

	return funds, nil
}

var contractHref = regexp.MustCompile(`quotes/([A-Za-z]*\d+)\.shtml`)

// CNFutures scrapes the sina futures market page for active contract codes,
// returning them fu-prefixed, first occurrence order, deduplicated.
func (l *Lists) CNFutures() ([]string, error) {
	byts, err := l.client.Get(l.futuresURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(byts))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid futuremarket page: %v", common.ErrParse, err)
	}

	seen := map[string]bool{}
	codes := []string{}
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		matches := contractHref.FindStringSubmatch(href)
		if matches == nil {
			return
		}
		code := "fu" + matches[1]
		if seen[code] {
			return
		}
		seen[code] = true
		codes = append(codes, code)
	})

	if l.debug {
		log.Info().Str("catalog", "cn_futures").Int("count", len(codes)).Msg("Catalog request successful!")
	}

	return codes, nil
}
