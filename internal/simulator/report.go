package simulator

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/krx-alertor/maps-engine/pkg/types"
	"github.com/krx-alertor/maps-engine/pkg/utils"
)

const tradingDaysPerYear = 252

// buildResult assembles the run's performance report from the ledger and
// the subsystem counters.
func (e *Engine) buildResult(runID string) *types.Result {
	daily := e.ledger.DailyValues()

	result := &types.Result{
		RunID:          runID,
		InitialCapital: e.cfg.InitialCapital,
		FinalValue:     e.cfg.InitialCapital,
		Trades:         e.ledger.Trades(),
		DailyValues:    daily,
		StartDate:      e.dates[0],
		EndDate:        e.dates[len(e.dates)-1],
	}
	result.NumTrades = len(result.Trades)

	if len(daily) > 0 {
		result.FinalValue = daily[len(daily)-1].TotalValue
		result.EndDate = daily[len(daily)-1].Date
	}

	result.TotalReturn = result.FinalValue.Sub(result.InitialCapital)
	if result.InitialCapital.GreaterThan(decimal.Zero) {
		pct, _ := result.FinalValue.Div(result.InitialCapital).
			Sub(decimal.NewFromInt(1)).Float64()
		result.TotalReturnPct = pct * 100
	}

	result.CAGRPct = cagrPct(result.InitialCapital, result.FinalValue, result.StartDate, result.EndDate)

	returns := dailyReturns(daily)
	std := utils.StdDev(returns)
	result.Volatility = std * math.Sqrt(tradingDaysPerYear) * 100
	if std > 0 {
		result.SharpeRatio = utils.Mean(returns) / std * math.Sqrt(tradingDaysPerYear)
	}
	result.MaxDrawdownPct = maxDrawdownPct(daily)

	if e.cfg.EnableDefense {
		regimeStats := e.regimes.Stats()
		crashStats := e.crashes.Stats()
		volStats := e.vol.Stats()
		defenseStats := e.defenses.Stats(result.EndDate)
		result.RegimeStats = &regimeStats
		result.CrashStats = &crashStats
		result.VolatilityStats = &volStats
		result.DefenseStats = &defenseStats
	}

	return result
}

// fallbackResult is the degraded output of a run that panicked: flat value,
// no trades, no value series.
func (e *Engine) fallbackResult(runID string) *types.Result {
	return &types.Result{
		RunID:          runID,
		InitialCapital: e.cfg.InitialCapital,
		FinalValue:     e.cfg.InitialCapital,
		TotalReturn:    decimal.Zero,
		Trades:         []types.Trade{},
		DailyValues:    []types.DailyValue{},
		StartDate:      e.dates[0],
		EndDate:        e.dates[len(e.dates)-1],
	}
}

// cagrPct annualizes the total return over the elapsed calendar days using
// a 365.25-day year. Degenerate inputs yield 0.
func cagrPct(initial, final decimal.Decimal, start, end time.Time) float64 {
	elapsedDays := end.Sub(start).Hours() / 24
	if elapsedDays <= 0 || initial.LessThanOrEqual(decimal.Zero) || final.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	growth, _ := final.Div(initial).Float64()
	return (math.Pow(growth, 365.25/elapsedDays) - 1) * 100
}

// dailyReturns converts the value series into day-over-day fractional
// returns.
func dailyReturns(daily []types.DailyValue) []float64 {
	if len(daily) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(daily)-1)
	for i := 1; i < len(daily); i++ {
		prev, _ := daily[i-1].TotalValue.Float64()
		cur, _ := daily[i].TotalValue.Float64()
		if prev <= 0 {
			continue
		}
		returns = append(returns, cur/prev-1)
	}
	return returns
}

// maxDrawdownPct returns the deepest peak-to-trough decline of the value
// series as a non-positive percentage.
func maxDrawdownPct(daily []types.DailyValue) float64 {
	var worst float64
	peak := decimal.Zero
	for _, dv := range daily {
		if dv.TotalValue.GreaterThan(peak) {
			peak = dv.TotalValue
		}
		if peak.LessThanOrEqual(decimal.Zero) {
			continue
		}
		dd, _ := dv.TotalValue.Div(peak).Sub(decimal.NewFromInt(1)).Float64()
		if dd < worst {
			worst = dd
		}
	}
	return worst * 100
}
