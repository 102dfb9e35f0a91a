// Package types provides shared type definitions for the simulation engine.
package types

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// TradeAction represents the direction of a fill.
type TradeAction string

const (
	TradeActionBuy  TradeAction = "BUY"
	TradeActionSell TradeAction = "SELL"
)

// Bar represents a single daily candle.
type Bar struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// PriceSeries holds the ordered daily bars for one instrument.
// After Normalize the series is read-only to the engine: dates are strictly
// increasing with no duplicates.
type PriceSeries struct {
	Ticker string `json:"ticker"`
	Bars   []Bar  `json:"bars"`
}

// Normalize sorts the bars by date and drops duplicate dates, keeping the
// last bar seen for a date. It returns an error only when the series is
// empty after cleaning.
func (s *PriceSeries) Normalize() error {
	if len(s.Bars) == 0 {
		return fmt.Errorf("price series %s: no bars", s.Ticker)
	}

	sort.SliceStable(s.Bars, func(i, j int) bool {
		return s.Bars[i].Timestamp.Before(s.Bars[j].Timestamp)
	})

	deduped := s.Bars[:0]
	for _, bar := range s.Bars {
		if n := len(deduped); n > 0 && deduped[n-1].Timestamp.Equal(bar.Timestamp) {
			deduped[n-1] = bar
			continue
		}
		deduped = append(deduped, bar)
	}
	s.Bars = deduped

	return nil
}

// UpTo returns the bars with timestamps at or before asOf.
func (s *PriceSeries) UpTo(asOf time.Time) []Bar {
	idx := sort.Search(len(s.Bars), func(i int) bool {
		return s.Bars[i].Timestamp.After(asOf)
	})
	return s.Bars[:idx]
}

// BarAt returns the bar for the exact date, if one exists.
func (s *PriceSeries) BarAt(date time.Time) (Bar, bool) {
	idx := sort.Search(len(s.Bars), func(i int) bool {
		return !s.Bars[i].Timestamp.Before(date)
	})
	if idx < len(s.Bars) && s.Bars[idx].Timestamp.Equal(date) {
		return s.Bars[idx], true
	}
	return Bar{}, false
}

// LastCloseAt returns the most recent close at or before the given date.
func (s *PriceSeries) LastCloseAt(date time.Time) (decimal.Decimal, bool) {
	bars := s.UpTo(date)
	if len(bars) == 0 {
		return decimal.Zero, false
	}
	return bars[len(bars)-1].Close, true
}

// PriceTable is the full market-data input to a simulation: one series per
// candidate ticker plus an optional broad-market index series. The table is
// owned by the caller and read-only to the engine.
type PriceTable struct {
	Series map[string]*PriceSeries `json:"series"`
	Index  *PriceSeries            `json:"index,omitempty"`
}

// Tickers returns the candidate tickers in deterministic order.
func (t *PriceTable) Tickers() []string {
	tickers := make([]string, 0, len(t.Series))
	for ticker := range t.Series {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	return tickers
}

// Dates returns the sorted union of all trading dates across the candidate
// series, optionally clipped to [start, end]. Zero bounds are ignored.
func (t *PriceTable) Dates(start, end time.Time) []time.Time {
	seen := make(map[time.Time]struct{})
	for _, series := range t.Series {
		for _, bar := range series.Bars {
			seen[bar.Timestamp] = struct{}{}
		}
	}

	dates := make([]time.Time, 0, len(seen))
	for date := range seen {
		if !start.IsZero() && date.Before(start) {
			continue
		}
		if !end.IsZero() && date.After(end) {
			continue
		}
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// Trade is an immutable record of a single fill. The trade log is
// append-only.
type Trade struct {
	ID     string          `json:"id"`
	Date   time.Time       `json:"date"`
	Ticker string          `json:"ticker"`
	Action TradeAction     `json:"action"`
	Shares int64           `json:"shares"`
	Price  decimal.Decimal `json:"price"`
	Reason string          `json:"reason,omitempty"`
}

// DailyValue is one point of the portfolio value series.
type DailyValue struct {
	Date       time.Time       `json:"date"`
	TotalValue decimal.Decimal `json:"totalValue"`
}

// RegimeStats aggregates the regime detector's counters for a run.
type RegimeStats struct {
	BullDays      int     `json:"bullDays"`
	BearDays      int     `json:"bearDays"`
	NeutralDays   int     `json:"neutralDays"`
	RegimeChanges int     `json:"regimeChanges"`
	TotalDays     int     `json:"totalDays"`
	BullPct       float64 `json:"bullPct"`
	BearPct       float64 `json:"bearPct"`
	NeutralPct    float64 `json:"neutralPct"`
	CurrentRegime string  `json:"currentRegime"`
}

// CrashStats aggregates the crash detector's counters for a run.
type CrashStats struct {
	MarketCrashCount      int  `json:"marketCrashCount"`
	PortfolioDeclineCount int  `json:"portfolioDeclineCount"`
	DefenseModeDays       int  `json:"defenseModeDays"`
	InDefenseMode         bool `json:"inDefenseMode"`
}

// VolatilityStats aggregates the volatility manager's counters for a run.
type VolatilityStats struct {
	LowVolatilityDays    int `json:"lowVolatilityDays"`
	NormalVolatilityDays int `json:"normalVolatilityDays"`
	HighVolatilityDays   int `json:"highVolatilityDays"`
	TotalAdjustments     int `json:"totalAdjustments"`
}

// DefenseStats aggregates the defense system's counters for a run.
type DefenseStats struct {
	FixedStopCount     int      `json:"fixedStopCount"`
	TrailingStopCount  int      `json:"trailingStopCount"`
	PortfolioStopCount int      `json:"portfolioStopCount"`
	CooldownCount      int      `json:"cooldownCount"`
	CooldownTickers    []string `json:"cooldownTickers"`
}

// Result is the complete output of one simulation run. A degraded run (see
// the engine's failure semantics) is signalled by zero trades and an empty
// daily-value series, never by an error.
type Result struct {
	RunID          string          `json:"runId"`
	InitialCapital decimal.Decimal `json:"initialCapital"`
	FinalValue     decimal.Decimal `json:"finalValue"`
	TotalReturn    decimal.Decimal `json:"totalReturn"`
	TotalReturnPct float64         `json:"totalReturnPct"`
	CAGRPct        float64         `json:"cagrPct"`
	Volatility     float64         `json:"volatility"`
	SharpeRatio    float64         `json:"sharpeRatio"`
	MaxDrawdownPct float64         `json:"maxDrawdownPct"`
	NumTrades      int             `json:"numTrades"`
	Trades         []Trade         `json:"trades"`
	DailyValues    []DailyValue    `json:"dailyValues"`
	StartDate      time.Time       `json:"startDate"`
	EndDate        time.Time       `json:"endDate"`

	// Subsystem statistics, attached only when the defense stack is enabled.
	RegimeStats     *RegimeStats     `json:"regimeStats,omitempty"`
	CrashStats      *CrashStats      `json:"crashStats,omitempty"`
	VolatilityStats *VolatilityStats `json:"volatilityStats,omitempty"`
	DefenseStats    *DefenseStats    `json:"defenseStats,omitempty"`
}
