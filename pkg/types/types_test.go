package types

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

func barOn(d int, close float64) Bar {
	c := decimal.NewFromFloat(close)
	return Bar{Timestamp: day(d), Open: c, High: c, Low: c, Close: c}
}

func TestPriceSeriesNormalize(t *testing.T) {
	s := &PriceSeries{
		Ticker: "069500",
		Bars:   []Bar{barOn(2, 102), barOn(0, 100), barOn(1, 101), barOn(1, 999)},
	}
	require.NoError(t, s.Normalize())

	require.Len(t, s.Bars, 3)
	assert.True(t, s.Bars[0].Timestamp.Before(s.Bars[1].Timestamp))
	assert.True(t, s.Bars[1].Timestamp.Before(s.Bars[2].Timestamp))
	// Duplicate dates keep the last bar seen.
	assert.True(t, s.Bars[1].Close.Equal(decimal.NewFromInt(999)))
}

func TestPriceSeriesNormalizeEmpty(t *testing.T) {
	s := &PriceSeries{Ticker: "069500"}
	assert.Error(t, s.Normalize())
}

func TestPriceSeriesLookups(t *testing.T) {
	s := &PriceSeries{Ticker: "069500", Bars: []Bar{barOn(0, 100), barOn(1, 101), barOn(3, 103)}}
	require.NoError(t, s.Normalize())

	assert.Len(t, s.UpTo(day(1)), 2)
	assert.Len(t, s.UpTo(day(2)), 2)
	assert.Empty(t, s.UpTo(day(-1)))

	bar, ok := s.BarAt(day(3))
	require.True(t, ok)
	assert.True(t, bar.Close.Equal(decimal.NewFromInt(103)))
	_, ok = s.BarAt(day(2))
	assert.False(t, ok)

	// Carried-forward close over the gap.
	close, ok := s.LastCloseAt(day(2))
	require.True(t, ok)
	assert.True(t, close.Equal(decimal.NewFromInt(101)))
}

func TestPriceTableDates(t *testing.T) {
	table := &PriceTable{Series: map[string]*PriceSeries{
		"A": {Ticker: "A", Bars: []Bar{barOn(0, 1), barOn(2, 1)}},
		"B": {Ticker: "B", Bars: []Bar{barOn(1, 1), barOn(2, 1), barOn(5, 1)}},
	}}

	dates := table.Dates(time.Time{}, time.Time{})
	require.Len(t, dates, 4)
	assert.Equal(t, day(0), dates[0])
	assert.Equal(t, day(5), dates[3])

	clipped := table.Dates(day(1), day(2))
	assert.Equal(t, []time.Time{day(1), day(2)}, clipped)

	assert.Equal(t, []string{"A", "B"}, table.Tickers())
}

func TestSimulationConfigValidate(t *testing.T) {
	valid := func() SimulationConfig {
		cfg := DefaultSimulationConfig()
		cfg.Tickers = []string{"069500"}
		return cfg
	}

	cfg := valid()
	assert.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		mutate func(*SimulationConfig)
	}{
		{"no tickers", func(c *SimulationConfig) { c.Tickers = nil }},
		{"zero capital", func(c *SimulationConfig) { c.InitialCapital = decimal.Zero }},
		{"inverted dates", func(c *SimulationConfig) {
			c.StartDate = day(10)
			c.EndDate = day(5)
		}},
		{"zero ma window", func(c *SimulationConfig) { c.MAWindow = 0 }},
		{"zero max positions", func(c *SimulationConfig) { c.MaxPositions = 0 }},
		{"regime periods inverted", func(c *SimulationConfig) { c.Regime.LongPeriod = 10 }},
		{"positive crash threshold", func(c *SimulationConfig) { c.Crash.SingleDayThreshold = 0.05 }},
		{"decline threshold out of range", func(c *SimulationConfig) { c.Crash.PortfolioDeclineThreshold = 1.5 }},
		{"positive stop", func(c *SimulationConfig) { c.Defense.FixedStopPct = 0.07 }},
		{"negative cooldown", func(c *SimulationConfig) { c.Defense.CooldownDays = -1 }},
		{"volatility bands inverted", func(c *SimulationConfig) {
			c.Volatility.LowThreshold = 2.0
			c.Volatility.HighThreshold = 1.0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
