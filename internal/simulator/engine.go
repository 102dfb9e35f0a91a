// Package simulator runs the daily MAPS strategy simulation: a single
// deterministic pass over the trading calendar, with the risk subsystems
// applied in a fixed stage order.
package simulator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/krx-alertor/maps-engine/internal/crash"
	"github.com/krx-alertor/maps-engine/internal/defense"
	"github.com/krx-alertor/maps-engine/internal/regime"
	"github.com/krx-alertor/maps-engine/internal/stats"
	"github.com/krx-alertor/maps-engine/internal/volatility"
	"github.com/krx-alertor/maps-engine/pkg/types"
	"github.com/krx-alertor/maps-engine/pkg/utils"
)

// Engine orchestrates one simulation run. An engine is single-use and not
// safe for concurrent access; run several engines for parallel simulations.
type Engine struct {
	cfg    types.SimulationConfig
	table  *types.PriceTable
	logger *zap.Logger
	sink   stats.Sink

	ledger   *Ledger
	regimes  *regime.Detector
	vol      *volatility.Manager
	crashes  *crash.Detector
	defenses *defense.System

	universe []string
	dates    []time.Time
	dateIdx  map[time.Time]int
	stages   []DailyStage
}

// NewEngine validates the config and prepares a run over the given price
// table. Configured tickers absent from the table are dropped with a
// warning; the run needs at least one ticker with data.
func NewEngine(cfg types.SimulationConfig, table *types.PriceTable, sink stats.Sink, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = stats.NopSink{}
	}

	e := &Engine{
		cfg:    cfg,
		table:  table,
		logger: logger,
		sink:   sink,
		ledger: NewLedger(cfg.InitialCapital),
		stages: newStages(),
	}

	for _, ticker := range cfg.Tickers {
		if _, ok := table.Series[ticker]; !ok {
			logger.Warn("ticker has no price data, dropped from universe",
				zap.String("ticker", ticker))
			continue
		}
		e.universe = append(e.universe, ticker)
	}
	if len(e.universe) == 0 {
		return nil, fmt.Errorf("no configured ticker has price data")
	}

	scoped := &types.PriceTable{Series: make(map[string]*types.PriceSeries, len(e.universe))}
	for _, ticker := range e.universe {
		scoped.Series[ticker] = table.Series[ticker]
	}
	e.dates = scoped.Dates(cfg.StartDate, cfg.EndDate)
	if len(e.dates) == 0 {
		return nil, fmt.Errorf("no trading dates in the configured range")
	}
	e.dateIdx = make(map[time.Time]int, len(e.dates))
	for i, date := range e.dates {
		e.dateIdx[date] = i
	}

	if table.Index == nil {
		logger.Warn("no index series configured, regime and crash checks degraded")
	}

	e.regimes = regime.NewDetector(cfg.Regime, sink, logger)
	e.vol = volatility.NewManager(cfg.Volatility, sink, logger)
	e.crashes = crash.NewDetector(cfg.Crash, sink, logger)
	e.defenses = defense.NewSystem(cfg.Defense, e, sink, logger)

	return e, nil
}

// TradingDaysBetween counts elapsed trading days on the run's date axis.
// Dates off the axis fall back to calendar-day arithmetic.
func (e *Engine) TradingDaysBetween(from, to time.Time) int {
	i, okFrom := e.dateIdx[from]
	j, okTo := e.dateIdx[to]
	if okFrom && okTo {
		return j - i
	}
	return defense.CalendarDays{}.TradingDaysBetween(from, to)
}

// Run executes the simulation. A panic anywhere in the run is recovered
// here and converted into a flat fallback result; callers detect the
// degraded run by its zero trades and empty value series. Cancelling the
// context stops the run early with the results accumulated so far.
func (e *Engine) Run(ctx context.Context) (result *types.Result) {
	runID := utils.NewRunID()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("simulation failed, returning fallback result",
				zap.String("runId", runID),
				zap.Any("panic", r))
			e.sink.IncRunFailure()
			result = e.fallbackResult(runID)
		}
	}()

	e.logger.Info("starting simulation",
		zap.String("runId", runID),
		zap.Strings("tickers", e.universe),
		zap.Int("tradingDays", len(e.dates)),
		zap.String("initialCapital", e.cfg.InitialCapital.String()),
		zap.Bool("defenseEnabled", e.cfg.EnableDefense))

	for i, date := range e.dates {
		if ctx.Err() != nil {
			e.logger.Warn("simulation cancelled",
				zap.String("runId", runID),
				zap.Time("date", date))
			break
		}

		day := &dayState{date: date, index: i}
		for _, stage := range e.stages {
			if err := stage.Run(e, day); err != nil {
				e.logger.Warn("stage error, continuing",
					zap.Time("date", date),
					zap.String("stage", stage.Name),
					zap.Error(err))
			}
		}
	}

	result = e.buildResult(runID)
	e.logger.Info("simulation finished",
		zap.String("runId", runID),
		zap.String("finalValue", result.FinalValue.String()),
		zap.Float64("totalReturnPct", result.TotalReturnPct),
		zap.Int("trades", result.NumTrades))
	return result
}
