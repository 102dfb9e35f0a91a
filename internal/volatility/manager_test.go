package volatility

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/krx-alertor/maps-engine/internal/stats"
	"github.com/krx-alertor/maps-engine/pkg/types"
)

// rangedBars builds flat bars at close 100 whose high-low ranges are the
// given values, centered on the close so the true range equals the range.
func rangedBars(ranges ...float64) []types.Bar {
	bars := make([]types.Bar, 0, len(ranges))
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, r := range ranges {
		bars = append(bars, types.Bar{
			Timestamp: base.AddDate(0, 0, i),
			Open:      decimal.NewFromInt(100),
			High:      decimal.NewFromFloat(100 + r/2),
			Low:       decimal.NewFromFloat(100 - r/2),
			Close:     decimal.NewFromInt(100),
		})
	}
	return bars
}

func newTestManager() *Manager {
	cfg := types.DefaultVolatilityConfig()
	cfg.ATRPeriod = 2
	cfg.AvgWindow = 3
	return NewManager(cfg, stats.NopSink{}, zap.NewNop())
}

func TestEvaluateInsufficientHistory(t *testing.T) {
	m := newTestManager()

	s := m.Evaluate(rangedBars(2, 2, 2))
	assert.Equal(t, Normal, s.Band)
	assert.Equal(t, 1.0, s.SizeRatio)
	assert.Equal(t, 1.0, s.Ratio)
}

func TestEvaluateHighVolatility(t *testing.T) {
	m := newTestManager()

	// Current ATR 6 against an average of 10/3: ratio 1.8 lands in the
	// high band and cuts size to 0.6.
	s := m.Evaluate(rangedBars(2, 2, 2, 10))
	assert.Equal(t, High, s.Band)
	assert.InDelta(t, 1.8, s.Ratio, 1e-9)
	assert.Equal(t, 0.6, s.SizeRatio)
}

func TestEvaluateLowVolatility(t *testing.T) {
	m := newTestManager()

	s := m.Evaluate(rangedBars(10, 10, 10, 1, 1))
	assert.Equal(t, Low, s.Band)
	assert.Less(t, s.Ratio, 0.5)
	assert.Equal(t, 1.2, s.SizeRatio)
}

func TestStatsCountAdjustments(t *testing.T) {
	m := newTestManager()

	m.Evaluate(rangedBars(2, 2))             // insufficient, not counted
	m.Evaluate(rangedBars(2, 2, 2, 2))       // normal
	m.Evaluate(rangedBars(2, 2, 2, 10))      // high
	m.Evaluate(rangedBars(10, 10, 10, 1, 1)) // low

	// Every classified day is an adjustment, the normal band included.
	s := m.Stats()
	assert.Equal(t, 1, s.NormalVolatilityDays)
	assert.Equal(t, 1, s.HighVolatilityDays)
	assert.Equal(t, 1, s.LowVolatilityDays)
	assert.Equal(t, 3, s.TotalAdjustments)
}
