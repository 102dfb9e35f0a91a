// Package regime classifies the broad market as bull, bear, or neutral
// using a 50/200 moving-average crossover and derives the exposure ratio
// the engine applies to new positions.
package regime

import (
	"math"

	"go.uber.org/zap"

	"github.com/krx-alertor/maps-engine/internal/stats"
	"github.com/krx-alertor/maps-engine/pkg/types"
	"github.com/krx-alertor/maps-engine/pkg/utils"
)

// Regime is a market classification.
type Regime string

const (
	Bull    Regime = "bull"
	Bear    Regime = "bear"
	Neutral Regime = "neutral"
)

// Assessment is one day's regime read.
type Assessment struct {
	Regime        Regime
	Confidence    float64
	PositionRatio float64
	ShortMA       float64
	LongMA        float64
	Diff          float64
	Defensive     bool
}

// Detector tracks the market regime across a run.
type Detector struct {
	cfg    types.RegimeConfig
	sink   stats.Sink
	logger *zap.Logger

	current     Regime
	bullDays    int
	bearDays    int
	neutralDays int
	changes     int
	totalDays   int
}

// NewDetector creates a detector starting in the neutral regime.
func NewDetector(cfg types.RegimeConfig, sink stats.Sink, logger *zap.Logger) *Detector {
	return &Detector{cfg: cfg, sink: sink, logger: logger, current: Neutral}
}

// Evaluate classifies the market from the index closes available so far and
// records the day in the detector's counters. With fewer closes than the
// long moving-average window the market is treated as neutral at baseline
// confidence and the day is not counted.
func (d *Detector) Evaluate(closes []float64) Assessment {
	a := Assessment{Regime: Neutral, Confidence: 0.5}

	if len(closes) < d.cfg.LongPeriod {
		a.PositionRatio = d.cfg.NeutralRatio
		return a
	}

	a.ShortMA = utils.Mean(closes[len(closes)-d.cfg.ShortPeriod:])
	a.LongMA = utils.Mean(closes[len(closes)-d.cfg.LongPeriod:])
	if a.LongMA > 0 {
		a.Diff = a.ShortMA/a.LongMA - 1
	}

	switch {
	case a.Diff >= d.cfg.BullThreshold:
		a.Regime = Bull
		a.Confidence = utils.Clamp01(0.5 + math.Abs(a.Diff)*10)
	case a.Diff <= d.cfg.BearThreshold:
		a.Regime = Bear
		a.Confidence = utils.Clamp01(0.5 + math.Abs(a.Diff)*10)
	}

	switch a.Regime {
	case Bull:
		a.PositionRatio = d.cfg.BullBaseRatio + (a.Confidence-0.5)*0.4
	case Bear:
		a.PositionRatio = d.cfg.BearRatio
		a.Defensive = a.Confidence >= d.cfg.DefenseMinConf
	default:
		a.PositionRatio = d.cfg.NeutralRatio
	}

	d.record(a)
	return a
}

func (d *Detector) record(a Assessment) {
	if a.Regime != d.current {
		d.changes++
		d.sink.IncRegimeChange()
		d.logger.Info("market regime changed",
			zap.String("from", string(d.current)),
			zap.String("to", string(a.Regime)),
			zap.Float64("confidence", a.Confidence))
	}
	d.current = a.Regime
	d.totalDays++
	d.sink.IncRegimeDay(string(a.Regime))

	switch a.Regime {
	case Bull:
		d.bullDays++
	case Bear:
		d.bearDays++
	default:
		d.neutralDays++
	}
}

// Current returns the most recent classification, or Neutral before the
// first counted day.
func (d *Detector) Current() Regime { return d.current }

// Stats summarizes the run so far.
func (d *Detector) Stats() types.RegimeStats {
	stats := types.RegimeStats{
		BullDays:      d.bullDays,
		BearDays:      d.bearDays,
		NeutralDays:   d.neutralDays,
		RegimeChanges: d.changes,
		TotalDays:     d.totalDays,
		CurrentRegime: string(d.Current()),
	}
	if d.totalDays > 0 {
		total := float64(d.totalDays)
		stats.BullPct = float64(d.bullDays) / total * 100
		stats.BearPct = float64(d.bearDays) / total * 100
		stats.NeutralPct = float64(d.neutralDays) / total * 100
	}
	return stats
}
