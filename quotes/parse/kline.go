package parse

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/marianogappa/stock-quotes/quotes/common"
)

type klineResponse struct {
	Code int                        `json:"code"`
	Msg  string                     `json:"msg"`
	Data map[string]json.RawMessage `json:"data"`
}

func (r klineResponse) toError() error {
	msg := r.Msg
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Errorf("%w: API error: %v", common.ErrDataSource, msg)
}

// KlineColumns are the value columns of a daily/weekly/monthly candle row, in
// the order the vendors send them (after the leading date).
var KlineColumns = []string{"open", "close", "high", "low", "vol"}

// Time keys the vendor may nest the rows under, most preferred first. The
// requested adjustment decides which adjusted family is tried before the raw
// one.
var (
	qfqTimeKeys = []string{"qfqday", "day", "hfqday", "qfqweek", "week", "hfqweek", "qfqmonth", "month", "hfqmonth"}
	hfqTimeKeys = []string{"hfqday", "day", "qfqday", "hfqweek", "week", "qfqweek", "hfqmonth", "month", "qfqmonth"}
	rawTimeKeys = []string{"day", "qfqday", "hfqday", "week", "qfqweek", "hfqweek", "month", "qfqmonth", "hfqmonth"}
)

// Kline parses a Tencent fqkline document (CN, HK, US and plate markets share
// the shape) into the display name and the candle series for one symbol. The
// envelope, if any, is stripped first. A non-zero vendor code is a
// DataSourceError; everything else unexpected is a ParseError.
func Kline(body []byte, symbol, fq string) (string, common.Series, error) {
	doc, err := ExtractJSON(body)
	if err != nil {
		return "", common.Series{}, err
	}

	maybeResponse := klineResponse{}
	if err := json.Unmarshal(doc, &maybeResponse); err != nil {
		return "", common.Series{}, fmt.Errorf("%w: invalid kline document: %v", common.ErrParse, err)
	}
	if maybeResponse.Code != 0 {
		return "", common.Series{}, maybeResponse.toError()
	}

	rawSymbolData, ok := maybeResponse.Data[symbol]
	if !ok {
		return "", common.Series{}, fmt.Errorf("%w: no data for symbol %v", common.ErrParse, symbol)
	}
	symbolData := map[string]json.RawMessage{}
	if err := json.Unmarshal(rawSymbolData, &symbolData); err != nil || len(symbolData) == 0 {
		return "", common.Series{}, fmt.Errorf("%w: no data for symbol %v", common.ErrParse, symbol)
	}

	timeKeys := rawTimeKeys
	switch fq {
	case common.AdjustForward:
		timeKeys = qfqTimeKeys
	case common.AdjustBackward:
		timeKeys = hfqTimeKeys
	}
	var rawRows json.RawMessage
	found := false
	for _, key := range timeKeys {
		if raw, ok := symbolData[key]; ok {
			rawRows, found = raw, true
			break
		}
	}
	if !found {
		return "", common.Series{}, fmt.Errorf("%w: no time key found for symbol %v", common.ErrParse, symbol)
	}

	rows := [][]interface{}{}
	if err := json.Unmarshal(rawRows, &rows); err != nil {
		return "", common.Series{}, fmt.Errorf("%w: invalid kline rows for symbol %v: %v", common.ErrParse, symbol, err)
	}
	s, err := klineToSeries(rows)
	if err != nil {
		return "", common.Series{}, err
	}
	return nameFromQT(symbolData["qt"], symbol), s, nil
}

// klineToSeries maps raw kline rows to a Series. Only the first six positions
// count: date, open, close, high, low, vol. Extra trailing entries (the vendor
// sometimes appends objects) are ignored.
func klineToSeries(rows [][]interface{}) (common.Series, error) {
	s := common.Series{Columns: KlineColumns}
	for i, row := range rows {
		if len(row) < 6 {
			return common.Series{}, fmt.Errorf("%w: kline row %v has %v fields, expected at least 6! Invalid syntax from vendor", common.ErrParse, i, len(row))
		}
		date, ok := row[0].(string)
		if !ok {
			return common.Series{}, fmt.Errorf("%w: kline row %v has a non-string date! Invalid syntax from vendor", common.ErrParse, i)
		}
		values := make([]common.JSONFloat64, 0, 5)
		for _, cell := range row[1:6] {
			values = append(values, toFloat(cell))
		}
		s.Rows = append(s.Rows, common.Row{Date: common.DateString(date), Values: values})
	}
	return s, nil
}

// nameFromQT pulls the display name out of the qt block: qt[symbol][1]. The qt
// block mixes value types across keys, so only the one entry is decoded.
func nameFromQT(rawQT json.RawMessage, symbol string) string {
	if len(rawQT) == 0 {
		return ""
	}
	qt := map[string]json.RawMessage{}
	if err := json.Unmarshal(rawQT, &qt); err != nil {
		return ""
	}
	fields := []interface{}{}
	if err := json.Unmarshal(qt[symbol], &fields); err != nil || len(fields) < 2 {
		return ""
	}
	name, _ := fields[1].(string)
	return name
}

// toFloat coerces a vendor cell to a float, NaN when it cannot be read as one.
func toFloat(v interface{}) common.JSONFloat64 {
	switch x := v.(type) {
	case float64:
		return common.JSONFloat64(x)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return common.JSONFloat64(math.NaN())
		}
		return common.JSONFloat64(f)
	}
	return common.JSONFloat64(math.NaN())
}
