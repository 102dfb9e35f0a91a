package simulator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krx-alertor/maps-engine/pkg/types"
)

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func testDay(i int) time.Time {
	return time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func TestLedgerBuySell(t *testing.T) {
	l := NewLedger(dec(10000))

	require.NoError(t, l.Buy(testDay(0), "A", 50, dec(100), ""))
	assert.True(t, l.Cash().Equal(dec(5000)))

	pos, ok := l.Position("A")
	require.True(t, ok)
	assert.Equal(t, int64(50), pos.Shares)
	assert.True(t, pos.HighestPrice.Equal(dec(100)))

	require.NoError(t, l.Sell(testDay(1), "A", dec(110), "rebalance"))
	assert.True(t, l.Cash().Equal(dec(10500)))
	_, ok = l.Position("A")
	assert.False(t, ok)

	trades := l.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, types.TradeActionBuy, trades[0].Action)
	assert.Equal(t, types.TradeActionSell, trades[1].Action)
	assert.Equal(t, "rebalance", trades[1].Reason)
	assert.NotEmpty(t, trades[0].ID)
}

func TestLedgerRejectsOverdraw(t *testing.T) {
	l := NewLedger(dec(1000))

	assert.Error(t, l.Buy(testDay(0), "A", 11, dec(100), ""))
	assert.True(t, l.Cash().Equal(dec(1000)))
	assert.Empty(t, l.Trades())

	assert.Error(t, l.Buy(testDay(0), "A", 0, dec(100), ""))
	assert.Error(t, l.Sell(testDay(0), "A", dec(100), ""))
}

func TestLedgerRejectsDoubleBuy(t *testing.T) {
	l := NewLedger(dec(10000))

	require.NoError(t, l.Buy(testDay(0), "A", 10, dec(100), ""))
	assert.Error(t, l.Buy(testDay(1), "A", 10, dec(100), ""))
}

func TestLedgerMarkHighestMonotone(t *testing.T) {
	l := NewLedger(dec(10000))
	require.NoError(t, l.Buy(testDay(0), "A", 10, dec(100), ""))

	l.MarkHighest("A", dec(120))
	l.MarkHighest("A", dec(110))

	pos, _ := l.Position("A")
	assert.True(t, pos.HighestPrice.Equal(dec(120)))
}

func TestLedgerTotalValueAndPeak(t *testing.T) {
	l := NewLedger(dec(10000))
	require.NoError(t, l.Buy(testDay(0), "A", 10, dec(100), ""))

	value := l.TotalValue(map[string]decimal.Decimal{"A": dec(120)})
	assert.True(t, value.Equal(dec(10200)))

	// Missing price falls back to the entry price.
	value = l.TotalValue(map[string]decimal.Decimal{})
	assert.True(t, value.Equal(dec(10000)))

	l.RecordDay(testDay(0), dec(10200))
	assert.True(t, l.Peak().Equal(dec(10200)))
	l.RecordDay(testDay(1), dec(9000))
	assert.True(t, l.Peak().Equal(dec(10200)))

	l.ResetPeak(dec(9000))
	assert.True(t, l.Peak().Equal(dec(9000)))
	require.Len(t, l.DailyValues(), 2)
}
