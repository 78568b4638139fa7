package parse

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marianogappa/stock-quotes/quotes/common"
)

func TestBoardHappy(t *testing.T) {
	name, s, err := Board([]byte(boardFixture))
	require.Nil(t, err)
	require.Equal(t, "有色金属", name)
	require.Equal(t, BoardColumns, s.Columns)
	require.Equal(t, 2, s.Len())
	require.Equal(t, common.DateString("2024-01-02"), s.Rows[0].Date)
	require.Equal(t, common.JSONFloat64(1542.88), s.Rows[0].Values[1])
	require.Equal(t, common.JSONFloat64(-0.76), s.Rows[1].Values[6])
}

func TestBoardUnhappy(t *testing.T) {
	tss := []string{
		`no callback here`,
		`jQuery123(not json);`,
		`jQuery123({"rc":0,"data":null});`,
		`jQuery123({"rc":0,"data":{"name":"半导体","klines":["2024-01-02,10,11,12"]}});`,
	}
	for i, payload := range tss {
		t.Run(fmt.Sprintf("Unhappy Board %v", i), func(t *testing.T) {
			_, _, err := Board([]byte(payload))
			require.ErrorIs(t, err, common.ErrParse)
		})
	}
}

const boardFixture = `jQuery1124022566445873766972_1617864568131({"rc":0,"rt":17,"svr":2887254391,"lt":1,"full":0,` +
	`"data":{"code":"BK0478","market":90,"name":"有色金属","decimal":2,"dktotal":2865,"klines":[` +
	`"2024-01-02,1530.12,1542.88,1550.01,1528.33,1234500,1890234567.00,1.42",` +
	`"2024-01-03,1543.00,1531.20,1548.70,1529.95,1102300,1677882340.00,-0.76"]}});`
