// Package defense implements the per-position and portfolio stop losses
// and the re-entry cooldown that follows a forced sale.
package defense

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/krx-alertor/maps-engine/internal/stats"
	"github.com/krx-alertor/maps-engine/pkg/types"
)

// Stop kinds, used as trade reasons.
const (
	StopFixed     = "fixed_stop_loss"
	StopTrailing  = "trailing_stop"
	StopPortfolio = "portfolio_stop"
)

// Calendar measures elapsed trading days between two dates. The engine
// supplies one backed by the simulation's own date axis.
type Calendar interface {
	TradingDaysBetween(from, to time.Time) int
}

// CalendarDays is the fallback calendar: plain calendar-day arithmetic.
type CalendarDays struct{}

func (CalendarDays) TradingDaysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// StopCheck is the outcome of a per-position stop evaluation.
type StopCheck struct {
	Triggered bool
	Kind      string
}

// System evaluates stops and owns the cooldown ledger for a run.
type System struct {
	cfg    types.DefenseConfig
	cal    Calendar
	sink   stats.Sink
	logger *zap.Logger

	cooldowns      map[string]time.Time
	cooldownCount  int
	fixedStops     int
	trailingStops  int
	portfolioStops int
}

// NewSystem creates a system with an empty cooldown ledger. A nil calendar
// falls back to calendar-day counting.
func NewSystem(cfg types.DefenseConfig, cal Calendar, sink stats.Sink, logger *zap.Logger) *System {
	if cal == nil {
		cal = CalendarDays{}
	}
	return &System{
		cfg:       cfg,
		cal:       cal,
		sink:      sink,
		logger:    logger,
		cooldowns: make(map[string]time.Time),
	}
}

// CheckPositionStop evaluates the fixed stop against the entry price and the
// trailing stop against the highest price seen since entry. The fixed stop
// is checked first.
func (s *System) CheckPositionStop(entry, highest, close decimal.Decimal) StopCheck {
	if entry.GreaterThan(decimal.Zero) {
		loss, _ := close.Div(entry).Sub(decimal.NewFromInt(1)).Float64()
		if loss <= s.cfg.FixedStopPct {
			s.fixedStops++
			s.sink.IncStopLoss(StopFixed)
			return StopCheck{Triggered: true, Kind: StopFixed}
		}
	}
	if highest.GreaterThan(decimal.Zero) {
		drop, _ := close.Div(highest).Sub(decimal.NewFromInt(1)).Float64()
		if drop <= s.cfg.TrailingStopPct {
			s.trailingStops++
			s.sink.IncStopLoss(StopTrailing)
			return StopCheck{Triggered: true, Kind: StopTrailing}
		}
	}
	return StopCheck{}
}

// CheckPortfolioStop reports whether total value has fallen from its peak
// past the portfolio stop threshold.
func (s *System) CheckPortfolioStop(value, peak decimal.Decimal) bool {
	if peak.LessThanOrEqual(decimal.Zero) {
		return false
	}
	decline, _ := value.Div(peak).Sub(decimal.NewFromInt(1)).Float64()
	if decline <= s.cfg.PortfolioStopPct {
		s.portfolioStops++
		s.sink.IncStopLoss(StopPortfolio)
		s.logger.Warn("portfolio stop triggered",
			zap.Float64("declinePct", decline*100))
		return true
	}
	return false
}

// RecordCooldown marks a ticker as recently stopped out on the given date.
func (s *System) RecordCooldown(ticker string, date time.Time) {
	s.cooldowns[ticker] = date
	s.cooldownCount++
	s.logger.Info("cooldown recorded",
		zap.String("ticker", ticker),
		zap.Time("date", date))
}

// InCooldown reports whether the ticker may not be repurchased on asOf.
// A ticker stopped out on day t becomes eligible once more than the
// configured number of trading days have elapsed.
func (s *System) InCooldown(ticker string, asOf time.Time) bool {
	recorded, ok := s.cooldowns[ticker]
	if !ok {
		return false
	}
	if s.cal.TradingDaysBetween(recorded, asOf) > s.cfg.CooldownDays {
		delete(s.cooldowns, ticker)
		return false
	}
	return true
}

// ActiveCooldowns returns the tickers still blocked on asOf, sorted.
func (s *System) ActiveCooldowns(asOf time.Time) []string {
	var active []string
	for ticker := range s.cooldowns {
		if s.InCooldown(ticker, asOf) {
			active = append(active, ticker)
		}
	}
	sort.Strings(active)
	return active
}

// Stats summarizes the run so far. The cooldown ticker list reflects the
// ledger as of the given date.
func (s *System) Stats(asOf time.Time) types.DefenseStats {
	return types.DefenseStats{
		FixedStopCount:     s.fixedStops,
		TrailingStopCount:  s.trailingStops,
		PortfolioStopCount: s.portfolioStops,
		CooldownCount:      s.cooldownCount,
		CooldownTickers:    s.ActiveCooldowns(asOf),
	}
}
