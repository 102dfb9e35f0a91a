// Package stats exports runtime counters from the simulation engine.
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Sink receives per-day events from the engine and its subsystems.
// Implementations must be safe for use from a single simulation goroutine;
// the engine never calls a sink concurrently within one run.
type Sink interface {
	IncRegimeDay(regime string)
	IncRegimeChange()
	IncCrashEvent(kind string)
	IncDefenseModeDay()
	IncVolatilityDay(band string)
	IncStopLoss(kind string)
	IncTrade(action string)
	IncRunFailure()
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) IncRegimeDay(string)     {}
func (NopSink) IncRegimeChange()        {}
func (NopSink) IncCrashEvent(string)    {}
func (NopSink) IncDefenseModeDay()      {}
func (NopSink) IncVolatilityDay(string) {}
func (NopSink) IncStopLoss(string)      {}
func (NopSink) IncTrade(string)         {}
func (NopSink) IncRunFailure()          {}

// PrometheusSink exposes engine events as Prometheus counters.
type PrometheusSink struct {
	regimeDays      *prometheus.CounterVec
	regimeChanges   prometheus.Counter
	crashEvents     *prometheus.CounterVec
	defenseModeDays prometheus.Counter
	volatilityDays  *prometheus.CounterVec
	stopLosses      *prometheus.CounterVec
	trades          *prometheus.CounterVec
	runFailures     prometheus.Counter
}

// NewPrometheusSink registers the engine counters with reg and returns the
// sink. Passing a fresh registry per process avoids duplicate registration.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		regimeDays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maps_regime_days_total",
			Help: "Simulated days spent in each market regime.",
		}, []string{"regime"}),
		regimeChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "maps_regime_changes_total",
			Help: "Regime transitions observed across simulations.",
		}),
		crashEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maps_crash_events_total",
			Help: "Crash detections by rule kind.",
		}, []string{"kind"}),
		defenseModeDays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "maps_defense_mode_days_total",
			Help: "Simulated days spent in defense mode.",
		}),
		volatilityDays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maps_volatility_days_total",
			Help: "Simulated days in each volatility band.",
		}, []string{"band"}),
		stopLosses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maps_stop_losses_total",
			Help: "Stop-loss executions by kind.",
		}, []string{"kind"}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maps_trades_total",
			Help: "Fills recorded by the engine.",
		}, []string{"action"}),
		runFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "maps_run_failures_total",
			Help: "Simulation runs that ended in the degraded fallback.",
		}),
	}

	reg.MustRegister(
		s.regimeDays, s.regimeChanges, s.crashEvents, s.defenseModeDays,
		s.volatilityDays, s.stopLosses, s.trades, s.runFailures,
	)
	return s
}

func (s *PrometheusSink) IncRegimeDay(regime string) { s.regimeDays.WithLabelValues(regime).Inc() }
func (s *PrometheusSink) IncRegimeChange()           { s.regimeChanges.Inc() }
func (s *PrometheusSink) IncCrashEvent(kind string)  { s.crashEvents.WithLabelValues(kind).Inc() }
func (s *PrometheusSink) IncDefenseModeDay()         { s.defenseModeDays.Inc() }
func (s *PrometheusSink) IncVolatilityDay(band string) {
	s.volatilityDays.WithLabelValues(band).Inc()
}
func (s *PrometheusSink) IncStopLoss(kind string) { s.stopLosses.WithLabelValues(kind).Inc() }
func (s *PrometheusSink) IncTrade(action string)  { s.trades.WithLabelValues(action).Inc() }
func (s *PrometheusSink) IncRunFailure()          { s.runFailures.Inc() }
