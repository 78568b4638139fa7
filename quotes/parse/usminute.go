package parse

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/marianogappa/stock-quotes/quotes/common"
)

// USMinuteColumns are the value columns of a UsMinute row, after the leading
// intraday minute label.
var USMinuteColumns = []string{"price", "volume"}

type usMinuteSymbolData struct {
	Data struct {
		Data []string `json:"data"`
		Date string   `json:"date"`
	} `json:"data"`
	QT json.RawMessage `json:"qt"`
}

// USMinute parses a UsMinute/query response (js var assignment envelope) into
// the display name and the minute series for one symbol. Rows come as
// whitespace-separated "minute price volume" strings.
func USMinute(body []byte, symbol string) (string, common.Series, error) {
	doc, err := ExtractJSON(body)
	if err != nil {
		return "", common.Series{}, err
	}

	maybeResponse := klineResponse{}
	if err := json.Unmarshal(doc, &maybeResponse); err != nil {
		return "", common.Series{}, fmt.Errorf("%w: invalid US minute document: %v", common.ErrParse, err)
	}
	if maybeResponse.Code != 0 {
		return "", common.Series{}, maybeResponse.toError()
	}
	rawSymbolData, ok := maybeResponse.Data[symbol]
	if !ok {
		return "", common.Series{}, fmt.Errorf("%w: no data for symbol %v", common.ErrParse, symbol)
	}
	symbolData := usMinuteSymbolData{}
	if err := json.Unmarshal(rawSymbolData, &symbolData); err != nil {
		return "", common.Series{}, fmt.Errorf("%w: no data for symbol %v: %v", common.ErrParse, symbol, err)
	}

	s := common.Series{Columns: USMinuteColumns}
	for i, packed := range symbolData.Data.Data {
		fields := strings.Fields(packed)
		if len(fields) != 3 {
			return "", common.Series{}, fmt.Errorf("%w: US minute row %v has %v fields, expected 3! Invalid syntax from Tencent", common.ErrParse, i, len(fields))
		}
		s.Rows = append(s.Rows, common.Row{
			Date:   common.DateString(fields[0]),
			Values: []common.JSONFloat64{toFloat(fields[1]), toFloat(fields[2])},
		})
	}
	return nameFromQT(symbolData.QT, symbol), s, nil
}
