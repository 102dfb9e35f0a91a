package simulator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/krx-alertor/maps-engine/pkg/types"
)

func TestCAGROverOneYear(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Duration(365.25 * 24 * float64(time.Hour)))

	got := cagrPct(decimal.NewFromInt(10_000_000), decimal.NewFromInt(12_000_000), start, end)
	assert.InDelta(t, 20.0, got, 0.01)
}

func TestCAGRDegenerateInputs(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 0.0, cagrPct(decimal.NewFromInt(100), decimal.NewFromInt(120), start, start))
	assert.Equal(t, 0.0, cagrPct(decimal.Zero, decimal.NewFromInt(120), start, start.AddDate(1, 0, 0)))
	assert.Equal(t, 0.0, cagrPct(decimal.NewFromInt(100), decimal.Zero, start, start.AddDate(1, 0, 0)))
}

func valuesOf(vals ...float64) []types.DailyValue {
	daily := make([]types.DailyValue, 0, len(vals))
	for i, v := range vals {
		daily = append(daily, types.DailyValue{Date: testDay(i), TotalValue: decimal.NewFromFloat(v)})
	}
	return daily
}

func TestDailyReturns(t *testing.T) {
	returns := dailyReturns(valuesOf(100, 110, 99))
	assert.InDelta(t, 0.10, returns[0], 1e-9)
	assert.InDelta(t, -0.10, returns[1], 1e-9)

	assert.Nil(t, dailyReturns(valuesOf(100)))
}

func TestMaxDrawdown(t *testing.T) {
	// Peak at 120, trough at 90: -25%.
	dd := maxDrawdownPct(valuesOf(100, 120, 90, 110))
	assert.InDelta(t, -25.0, dd, 1e-9)

	assert.Equal(t, 0.0, maxDrawdownPct(valuesOf(100, 105, 110)))
	assert.Equal(t, 0.0, maxDrawdownPct(nil))
}
