package parse

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/marianogappa/stock-quotes/quotes/common"
)

// BoardColumns are the value columns of an EastMoney board kline row, after
// the leading date.
var BoardColumns = []string{"open", "close", "high", "low", "vol", "money", "p"}

type boardResponse struct {
	Data *struct {
		Name   string   `json:"name"`
		Klines []string `json:"klines"`
	} `json:"data"`
}

// Board parses an EastMoney board kline response (jQuery callback envelope)
// into the board's name and Series. Rows pack 8 ','-separated fields: date,
// open, close, high, low, vol, money, p.
func Board(body []byte) (string, common.Series, error) {
	doc, err := ExtractCallback(body)
	if err != nil {
		return "", common.Series{}, err
	}
	maybeResponse := boardResponse{}
	if err := json.Unmarshal(doc, &maybeResponse); err != nil {
		return "", common.Series{}, fmt.Errorf("%w: invalid board kline document: %v", common.ErrParse, err)
	}
	if maybeResponse.Data == nil {
		return "", common.Series{}, fmt.Errorf("%w: board kline document has no data! Invalid syntax from EastMoney", common.ErrParse)
	}

	s := common.Series{Columns: BoardColumns}
	for i, packed := range maybeResponse.Data.Klines {
		fields := strings.Split(packed, ",")
		if len(fields) != 8 {
			return "", common.Series{}, fmt.Errorf("%w: board kline row %v has %v fields, expected 8! Invalid syntax from EastMoney", common.ErrParse, i, len(fields))
		}
		values := make([]common.JSONFloat64, 0, 7)
		for _, cell := range fields[1:] {
			values = append(values, toFloat(cell))
		}
		s.Rows = append(s.Rows, common.Row{Date: common.DateString(fields[0]), Values: values})
	}
	return maybeResponse.Data.Name, s, nil
}
