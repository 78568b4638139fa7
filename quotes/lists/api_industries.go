package lists

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/marianogappa/stock-quotes/quotes/common"
)

// Industries requests the QQ hy2 industry plate ranking, then joins each row
// with its sina sw2 node id by plate name. The join is best-effort: a broken
// nodes endpoint logs a warning and leaves SinaNode empty.
func (l *Lists) Industries() ([]Industry, error) {
	url := l.industriesURL + "?board_type=hy2&sort_type=price&direct=down&offset=0&count=200"
	byts, err := l.client.Get(url)
	if err != nil {
		return nil, err
	}
	maybeResponse := rankResponse{}
	if err := json.Unmarshal(byts, &maybeResponse); err != nil {
		return nil, fmt.Errorf("%w: invalid industry rank document: %v", common.ErrParse, err)
	}
	if maybeResponse.Code != 0 {
		return nil, maybeResponse.toError()
	}

	industries := make([]Industry, 0, len(maybeResponse.Data.RankList))
	for _, item := range maybeResponse.Data.RankList {
		industries = append(industries, Industry{
			Code:   item.Code,
			Name:   item.Name,
			Change: asFloat(item.ZDF),
			Inflow: asFloat(item.ZLLR),
			Price:  asFloat(item.ZXJ),
		})
	}

	nodes, err := l.sinaIndustryNodes()
	if err != nil {
		log.Warn().Msgf("Industry node join skipped: %v", err)
	} else {
		for i := range industries {
			industries[i].SinaNode = nodes[industries[i].Name]
		}
	}

	if l.debug {
		log.Info().Str("catalog", "industries").Int("count", len(industries)).Msg("Catalog request successful!")
	}

	return industries, nil
}

// The getHQNodes document is a positional tree: the sw2 plate entries sit at
// [1][0][1][3][1], each entry an array of [name, label, node].
func (l *Lists) sinaIndustryNodes() (map[string]string, error) {
	byts, err := l.client.Get(l.sinaNodesURL)
	if err != nil {
		return nil, err
	}
	var tree interface{}
	if err := json.Unmarshal(byts, &tree); err != nil {
		return nil, fmt.Errorf("%w: invalid nodes document: %v", common.ErrParse, err)
	}
	raw, ok := dig(tree, 1, 0, 1, 3, 1)
	if !ok {
		return nil, fmt.Errorf("%w: nodes document misses the sw2 branch", common.ErrParse)
	}
	entries, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: nodes document misses the sw2 branch", common.ErrParse)
	}

	nodes := map[string]string{}
	for _, e := range entries {
		entry, ok := e.([]interface{})
		if !ok || len(entry) < 3 {
			continue
		}
		name, _ := entry[0].(string)
		node, _ := entry[2].(string)
		if name != "" && node != "" {
			nodes[name] = node
		}
	}
	return nodes, nil
}

// dig walks nested []interface{} levels by index.
func dig(v interface{}, path ...int) (interface{}, bool) {
	for _, idx := range path {
		arr, ok := v.([]interface{})
		if !ok || idx >= len(arr) {
			return nil, false
		}
		v = arr[idx]
	}
	return v, true
}

type industryStockItem struct {
	Symbol string      `json:"symbol"`
	Name   string      `json:"name"`
	Trade  interface{} `json:"trade"`
}

// IndustryStocks requests the members of one sina industry node, as listed by
// Industries in SinaNode.
func (l *Lists) IndustryStocks(node string) ([]IndustryStock, error) {
	url := fmt.Sprintf("%v?page=1&num=40&sort=symbol&asc=1&node=%v&symbol=&_s_r_a=init", l.nodeDataURL, node)
	byts, err := l.client.Get(url)
	if err != nil {
		return nil, err
	}
	items := []industryStockItem{}
	if err := json.Unmarshal(byts, &items); err != nil {
		return nil, fmt.Errorf("%w: invalid node data document: %v", common.ErrParse, err)
	}

	stocks := make([]IndustryStock, 0, len(items))
	for _, item := range items {
		stocks = append(stocks, IndustryStock{Symbol: item.Symbol, Name: item.Name, Price: asFloat(item.Trade)})
	}
	return stocks, nil
}

type stockInfoResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Concept []Plate `json:"concept"`
		Plate   []Plate `json:"plate"`
	} `json:"data"`
}

// StockConcepts requests the concept plates a stock belongs to.
func (l *Lists) StockConcepts(symbol string) ([]Plate, error) {
	info, err := l.stockInfo(symbol)
	if err != nil {
		return nil, err
	}
	return info.Data.Concept, nil
}

// StockIndustry requests the industry plates a stock belongs to.
func (l *Lists) StockIndustry(symbol string) ([]Plate, error) {
	info, err := l.stockInfo(symbol)
	if err != nil {
		return nil, err
	}
	return info.Data.Plate, nil
}

func (l *Lists) stockInfo(symbol string) (stockInfoResponse, error) {
	url := fmt.Sprintf("%v?code=%v&app=wzq&zdf=1", l.stockInfoURL, symbol)
	byts, err := l.client.Get(url)
	if err != nil {
		return stockInfoResponse{}, err
	}
	maybeResponse := stockInfoResponse{}
	if err := json.Unmarshal(byts, &maybeResponse); err != nil {
		return stockInfoResponse{}, fmt.Errorf("%w: invalid stock info document: %v", common.ErrParse, err)
	}
	if maybeResponse.Code != 0 {
		msg := maybeResponse.Msg
		if msg == "" {
			msg = "unknown error"
		}
		return stockInfoResponse{}, fmt.Errorf("%w: API error: %v", common.ErrDataSource, msg)
	}
	return maybeResponse, nil
}
