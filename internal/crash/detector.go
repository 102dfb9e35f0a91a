// Package crash watches the index and the portfolio for sharp declines and
// runs the defense-mode state machine that suppresses buying afterwards.
package crash

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/krx-alertor/maps-engine/internal/stats"
	"github.com/krx-alertor/maps-engine/pkg/types"
)

// Detection is the outcome of a crash check.
type Detection struct {
	Crash  bool
	Reason string
}

// Detector tracks crash events and defense mode across a run.
type Detector struct {
	cfg    types.CrashConfig
	sink   stats.Sink
	logger *zap.Logger

	inDefense       bool
	daysInDefense   int
	marketCrashes   int
	portfolioDrops  int
	defenseModeDays int
}

// NewDetector creates a detector outside defense mode.
func NewDetector(cfg types.CrashConfig, sink stats.Sink, logger *zap.Logger) *Detector {
	return &Detector{cfg: cfg, sink: sink, logger: logger}
}

// CheckCrash applies the crash rules in order: single-day drop on the
// index, cumulative drop over the short window, then broad decline across
// the held positions. The first rule that fires wins; both index rules and
// the holdings rule enter defense mode. With no index history only the
// holdings rule can fire.
func (d *Detector) CheckCrash(date time.Time, index []types.Bar, heldReturns map[string]float64) Detection {
	if det := d.checkSingleDay(index); det.Crash {
		d.marketCrashes++
		d.sink.IncCrashEvent("market")
		d.enterDefenseMode(date, det.Reason)
		return det
	}
	if det := d.checkShortWindow(index); det.Crash {
		d.marketCrashes++
		d.sink.IncCrashEvent("market")
		d.enterDefenseMode(date, det.Reason)
		return det
	}
	if det := d.checkPortfolioDecline(heldReturns); det.Crash {
		d.portfolioDrops++
		d.sink.IncCrashEvent("portfolio_decline")
		d.enterDefenseMode(date, det.Reason)
		return det
	}
	return Detection{}
}

func (d *Detector) checkSingleDay(index []types.Bar) Detection {
	if len(index) < 2 {
		return Detection{}
	}
	prevClose, _ := index[len(index)-2].Close.Float64()
	low, _ := index[len(index)-1].Low.Float64()
	if prevClose <= 0 {
		return Detection{}
	}
	drop := low/prevClose - 1
	if drop <= d.cfg.SingleDayThreshold {
		return Detection{Crash: true, Reason: fmt.Sprintf("single_day_crash_%.2f%%", drop*100)}
	}
	return Detection{}
}

func (d *Detector) checkShortWindow(index []types.Bar) Detection {
	window := d.cfg.ShortWindowDays
	if len(index) < window+1 {
		return Detection{}
	}
	baseClose, _ := index[len(index)-window-1].Close.Float64()
	if baseClose <= 0 {
		return Detection{}
	}
	lowest := 0.0
	for i := len(index) - window; i < len(index); i++ {
		low, _ := index[i].Low.Float64()
		if lowest == 0 || low < lowest {
			lowest = low
		}
	}
	drop := lowest/baseClose - 1
	if drop <= d.cfg.ShortWindowThreshold {
		return Detection{Crash: true, Reason: fmt.Sprintf("short_term_crash_%.2f%%", drop*100)}
	}
	return Detection{}
}

// checkPortfolioDecline fires when most of the held positions fall sharply
// on the same day.
func (d *Detector) checkPortfolioDecline(heldReturns map[string]float64) Detection {
	if len(heldReturns) == 0 {
		return Detection{}
	}
	declining := 0
	for _, ret := range heldReturns {
		if ret <= d.cfg.PortfolioDeclinePct {
			declining++
		}
	}
	ratio := float64(declining) / float64(len(heldReturns))
	if ratio >= d.cfg.PortfolioDeclineThreshold {
		return Detection{
			Crash:  true,
			Reason: fmt.Sprintf("portfolio_decline_%.1f%%", ratio*100),
		}
	}
	return Detection{}
}

func (d *Detector) enterDefenseMode(date time.Time, reason string) {
	if !d.inDefense {
		d.logger.Warn("entering defense mode",
			zap.Time("date", date),
			zap.String("reason", reason))
	}
	d.inDefense = true
	d.daysInDefense = 0
}

// UpdateDefenseMode advances the defense-mode clock by one trading day and
// exits the mode once the configured duration has passed.
func (d *Detector) UpdateDefenseMode() {
	if !d.inDefense {
		return
	}
	d.daysInDefense++
	if d.daysInDefense >= d.cfg.DefenseModeDays {
		d.inDefense = false
		d.daysInDefense = 0
		d.logger.Info("exiting defense mode")
		return
	}
	d.defenseModeDays++
	d.sink.IncDefenseModeDay()
}

// InDefenseMode reports whether buying is currently suppressed.
func (d *Detector) InDefenseMode() bool { return d.inDefense }

// Stats summarizes the run so far.
func (d *Detector) Stats() types.CrashStats {
	return types.CrashStats{
		MarketCrashCount:      d.marketCrashes,
		PortfolioDeclineCount: d.portfolioDrops,
		DefenseModeDays:       d.defenseModeDays,
		InDefenseMode:         d.inDefense,
	}
}
