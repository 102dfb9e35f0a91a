// Package volatility scales position sizes by the market's current ATR
// relative to its recent average.
package volatility

import (
	"math"

	"go.uber.org/zap"

	"github.com/krx-alertor/maps-engine/internal/stats"
	"github.com/krx-alertor/maps-engine/pkg/types"
	"github.com/krx-alertor/maps-engine/pkg/utils"
)

// Band is a volatility classification.
type Band string

const (
	Low    Band = "low"
	Normal Band = "normal"
	High   Band = "high"
)

// Sizing is one day's volatility read.
type Sizing struct {
	Band      Band
	ATR       float64
	AvgATR    float64
	Ratio     float64
	SizeRatio float64
}

// Manager tracks volatility bands across a run.
type Manager struct {
	cfg    types.VolatilityConfig
	sink   stats.Sink
	logger *zap.Logger

	lowDays     int
	normalDays  int
	highDays    int
	adjustments int
}

// NewManager creates a manager with empty counters.
func NewManager(cfg types.VolatilityConfig, sink stats.Sink, logger *zap.Logger) *Manager {
	return &Manager{cfg: cfg, sink: sink, logger: logger}
}

// Evaluate classifies today's volatility from the index bars available so
// far and records the day. Without enough history for both the ATR window
// and its average the band is normal with a neutral size ratio and the day
// is not counted.
func (m *Manager) Evaluate(bars []types.Bar) Sizing {
	s := Sizing{Band: Normal, SizeRatio: m.cfg.NormalRatio, Ratio: 1.0}

	trs := trueRanges(bars)
	// The average needs AvgWindow ATR readings, each covering ATRPeriod
	// true ranges.
	if len(trs) < m.cfg.ATRPeriod+m.cfg.AvgWindow-1 {
		return s
	}

	s.ATR = utils.Mean(trs[len(trs)-m.cfg.ATRPeriod:])

	atrs := make([]float64, 0, m.cfg.AvgWindow)
	for i := len(trs) - m.cfg.AvgWindow; i < len(trs); i++ {
		atrs = append(atrs, utils.Mean(trs[i+1-m.cfg.ATRPeriod:i+1]))
	}
	s.AvgATR = utils.Mean(atrs)

	if s.AvgATR > 0 {
		s.Ratio = s.ATR / s.AvgATR
	}

	switch {
	case s.Ratio <= m.cfg.LowThreshold:
		s.Band = Low
		s.SizeRatio = m.cfg.LowRatio
	case s.Ratio >= m.cfg.HighThreshold:
		s.Band = High
		s.SizeRatio = m.cfg.HighRatio
	}

	m.record(s)
	return s
}

// record tallies one classified day. Every classified day counts as an
// adjustment, normal band included.
func (m *Manager) record(s Sizing) {
	m.sink.IncVolatilityDay(string(s.Band))
	m.adjustments++
	switch s.Band {
	case Low:
		m.lowDays++
	case High:
		m.highDays++
	default:
		m.normalDays++
	}
	if s.Band != Normal {
		m.logger.Debug("volatility sizing adjusted",
			zap.String("band", string(s.Band)),
			zap.Float64("ratio", s.Ratio),
			zap.Float64("sizeRatio", s.SizeRatio))
	}
}

// Stats summarizes the run so far.
func (m *Manager) Stats() types.VolatilityStats {
	return types.VolatilityStats{
		LowVolatilityDays:    m.lowDays,
		NormalVolatilityDays: m.normalDays,
		HighVolatilityDays:   m.highDays,
		TotalAdjustments:     m.adjustments,
	}
}

// trueRanges returns the true-range series for the bars. The first bar has
// no prior close, so its true range is simply high minus low.
func trueRanges(bars []types.Bar) []float64 {
	if len(bars) == 0 {
		return nil
	}
	trs := make([]float64, 0, len(bars))
	for i, bar := range bars {
		high, _ := bar.High.Float64()
		low, _ := bar.Low.Float64()
		tr := high - low
		if i > 0 {
			prevClose, _ := bars[i-1].Close.Float64()
			tr = math.Max(tr, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		}
		trs = append(trs, tr)
	}
	return trs
}
