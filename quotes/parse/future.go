package parse

import (
	"encoding/json"
	"fmt"

	"github.com/marianogappa/stock-quotes/quotes/common"
)

// FutureDailyColumns are the value columns of a sina daily futures row, after
// the leading date: open, high, low, close, volume, position, settlement.
var FutureDailyColumns = []string{"open", "high", "low", "close", "vol", "p", "s"}

// FutureMinuteColumns are the value columns of a sina intraday futures row,
// after the leading dtime label. Non-numeric cells coerce to NaN.
var FutureMinuteColumns = []string{"close", "avg", "vol", "hold", "last_close", "cur_date"}

// FutureDaily parses the body of an InnerFuturesNewService.getDailyKLine
// response (parenthesis jsonp envelope) into a Series. A null payload is an
// empty series, not an error: the vendor answers that way for unknown codes.
func FutureDaily(body []byte) (common.Series, error) {
	doc, err := ExtractCallback(body)
	if err != nil {
		return common.Series{}, err
	}
	rows := [][]interface{}{}
	if err := json.Unmarshal(doc, &rows); err != nil {
		return common.Series{}, fmt.Errorf("%w: invalid futures kline document: %v", common.ErrParse, err)
	}
	s := common.Series{Columns: FutureDailyColumns}
	for i, row := range rows {
		if len(row) != 8 {
			return common.Series{}, fmt.Errorf("%w: futures kline row %v has %v fields, expected 8! Invalid syntax from Sina", common.ErrParse, i, len(row))
		}
		date, ok := row[0].(string)
		if !ok {
			return common.Series{}, fmt.Errorf("%w: futures kline row %v has a non-string date! Invalid syntax from Sina", common.ErrParse, i)
		}
		values := make([]common.JSONFloat64, 0, 7)
		for _, cell := range row[1:] {
			values = append(values, toFloat(cell))
		}
		s.Rows = append(s.Rows, common.Row{Date: common.DateString(date), Values: values})
	}
	return s, nil
}

// FutureMinute parses the body of an InnerFuturesNewService.getMinLine
// response into a Series keyed by the intraday dtime label.
func FutureMinute(body []byte) (common.Series, error) {
	doc, err := ExtractCallback(body)
	if err != nil {
		return common.Series{}, err
	}
	rows := [][]interface{}{}
	if err := json.Unmarshal(doc, &rows); err != nil {
		return common.Series{}, fmt.Errorf("%w: invalid futures minute document: %v", common.ErrParse, err)
	}
	s := common.Series{Columns: FutureMinuteColumns}
	for i, row := range rows {
		if len(row) != 7 {
			return common.Series{}, fmt.Errorf("%w: futures minute row %v has %v fields, expected 7! Invalid syntax from Sina", common.ErrParse, i, len(row))
		}
		dtime, ok := row[0].(string)
		if !ok {
			return common.Series{}, fmt.Errorf("%w: futures minute row %v has a non-string dtime! Invalid syntax from Sina", common.ErrParse, i)
		}
		values := make([]common.JSONFloat64, 0, 6)
		for _, cell := range row[1:] {
			values = append(values, toFloat(cell))
		}
		s.Rows = append(s.Rows, common.Row{Date: common.DateString(dtime), Values: values})
	}
	return s, nil
}
