package parse

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marianogappa/stock-quotes/quotes/common"
)

func TestKlineHappy(t *testing.T) {
	name, s, err := Kline([]byte(cnKlineFixture), "sh600000", "qfq")
	require.Nil(t, err)
	require.Equal(t, "浦发银行", name)
	require.Equal(t, KlineColumns, s.Columns)
	require.Equal(t, 2, s.Len())
	require.Equal(t, common.DateString("2024-01-02"), s.Rows[0].Date)
	require.Equal(t, common.JSONFloat64(7.12), s.Rows[0].Values[0])
	require.Equal(t, common.JSONFloat64(249000), s.Rows[0].Values[4])
}

func TestKlineStripsVarAssignEnvelope(t *testing.T) {
	name, s, err := Kline([]byte("kline_dayqfq="+cnKlineFixture), "sh600000", "qfq")
	require.Nil(t, err)
	require.Equal(t, "浦发银行", name)
	require.Equal(t, 2, s.Len())
}

func TestKlineTimeKeyPreference(t *testing.T) {
	payload := `{"code":0,"msg":"","data":{"sh600000":{
		"day":[["2024-01-02","1","1","1","1","1"]],
		"hfqday":[["2024-01-02","2","2","2","2","2"]]
	}}}`

	_, s, err := Kline([]byte(payload), "sh600000", "hfq")
	require.Nil(t, err)
	require.Equal(t, common.JSONFloat64(2), s.Rows[0].Values[0])

	_, s, err = Kline([]byte(payload), "sh600000", "qfq")
	require.Nil(t, err)
	require.Equal(t, common.JSONFloat64(1), s.Rows[0].Values[0])

	_, s, err = Kline([]byte(payload), "sh600000", "")
	require.Nil(t, err)
	require.Equal(t, common.JSONFloat64(1), s.Rows[0].Values[0])
}

func TestKlineFallsBackAcrossFrequencies(t *testing.T) {
	payload := `{"code":0,"msg":"","data":{"sh600000":{
		"qfqweek":[["2024-01-05","3","3","3","3","3"]]
	}}}`

	_, s, err := Kline([]byte(payload), "sh600000", "qfq")
	require.Nil(t, err)
	require.Equal(t, 1, s.Len())
}

func TestKlineCoercesBadCellsToNaN(t *testing.T) {
	payload := `{"code":0,"msg":"","data":{"sh600000":{
		"day":[["2024-01-02","-","7.18","7.20","7.08","249000.00"]]
	}}}`

	_, s, err := Kline([]byte(payload), "sh600000", "qfq")
	require.Nil(t, err)
	require.True(t, math.IsNaN(float64(s.Rows[0].Values[0])))
	require.Equal(t, common.JSONFloat64(7.18), s.Rows[0].Values[1])
}

func TestKlineUnhappy(t *testing.T) {
	tss := []struct {
		payload     string
		expectedErr error
	}{
		{`not json at all`, common.ErrParse},
		{`{"code":-1,"msg":"param error"}`, common.ErrDataSource},
		{`{"code":0,"msg":"","data":{}}`, common.ErrParse},
		{`{"code":0,"msg":"","data":{"sh600000":{}}}`, common.ErrParse},
		{`{"code":0,"msg":"","data":{"sh600000":{"m5":[]}}}`, common.ErrParse},
		{`{"code":0,"msg":"","data":{"sh600000":{"day":[["2024-01-02","7.12"]]}}}`, common.ErrParse},
		{`{"code":0,"msg":"","data":{"sh600000":{"day":[[20240102,"1","2","3","4","5"]]}}}`, common.ErrParse},
		{`{"code":0,"msg":"","data":{"sh600000":{"day":"not rows"}}}`, common.ErrParse},
	}
	for i, ts := range tss {
		t.Run(fmt.Sprintf("Unhappy Kline %v", i), func(t *testing.T) {
			_, _, err := Kline([]byte(ts.payload), "sh600000", "qfq")
			require.ErrorIs(t, err, ts.expectedErr)
		})
	}
}

// Trimmed from a real newfqkline response; the vendor appends a trailing object
// to some rows, which the parser must ignore.
const cnKlineFixture = `{"code":0,"msg":"","data":{"sh600000":{"qfqday":[` +
	`["2024-01-02","7.12","7.18","7.20","7.08","249000.00"],` +
	`["2024-01-03","7.18","7.15","7.22","7.10","198000.00",{"nd":"2024"}]],` +
	`"qt":{"sh600000":["1","浦发银行","600000","7.18","7.12","7.18",249000,124500,124500],"market":["2024-01-03 15:00:00"]},` +
	`"mx_price":{},"prec":"2","version":"15"}}}`
