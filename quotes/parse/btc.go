package parse

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/marianogappa/stock-quotes/quotes/common"
)

// BTCDailyColumns are the value columns of a BtcService daily row, after the
// leading date.
var BTCDailyColumns = []string{"open", "high", "low", "close", "vol", "amount"}

type btcResponse struct {
	Result struct {
		Data string `json:"data"`
	} `json:"result"`
}

// BTCDaily parses a BtcService.getDayKLine response. The payload packs rows as
// a '|'-separated list of ','-separated fields: date, open, high, low, close,
// vol, amount.
func BTCDaily(body []byte) (common.Series, error) {
	maybeResponse := btcResponse{}
	if err := json.Unmarshal(body, &maybeResponse); err != nil {
		return common.Series{}, fmt.Errorf("%w: invalid BTC kline document: %v", common.ErrParse, err)
	}
	if maybeResponse.Result.Data == "" {
		return common.Series{}, fmt.Errorf("%w: BTC kline document has no result.data! Invalid syntax from Sina", common.ErrParse)
	}

	s := common.Series{Columns: BTCDailyColumns}
	for i, packed := range strings.Split(maybeResponse.Result.Data, "|") {
		fields := strings.Split(packed, ",")
		if len(fields) != 7 {
			return common.Series{}, fmt.Errorf("%w: BTC kline row %v has %v fields, expected 7! Invalid syntax from Sina", common.ErrParse, i, len(fields))
		}
		values := make([]common.JSONFloat64, 0, 6)
		for _, cell := range fields[1:] {
			values = append(values, toFloat(cell))
		}
		s.Rows = append(s.Rows, common.Row{Date: common.DateString(fields[0]), Values: values})
	}
	return s, nil
}
