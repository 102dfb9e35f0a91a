package regime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/krx-alertor/maps-engine/internal/stats"
	"github.com/krx-alertor/maps-engine/pkg/types"
)

func newTestDetector() *Detector {
	return NewDetector(types.DefaultRegimeConfig(), stats.NopSink{}, zap.NewNop())
}

// closesWith builds n flat closes at base followed by tail closes at level.
func closesWith(n int, base float64, tail int, level float64) []float64 {
	closes := make([]float64, 0, n+tail)
	for i := 0; i < n; i++ {
		closes = append(closes, base)
	}
	for i := 0; i < tail; i++ {
		closes = append(closes, level)
	}
	return closes
}

func TestEvaluateInsufficientHistory(t *testing.T) {
	d := newTestDetector()

	a := d.Evaluate(closesWith(199, 100, 0, 0))
	assert.Equal(t, Neutral, a.Regime)
	assert.Equal(t, 0.5, a.Confidence)
	assert.Equal(t, 0.8, a.PositionRatio)
	assert.False(t, a.Defensive)

	// Degraded reads do not count toward the day tallies.
	assert.Equal(t, 0, d.Stats().TotalDays)
	assert.Equal(t, 0, d.Stats().NeutralDays)
}

func TestEvaluateBull(t *testing.T) {
	d := newTestDetector()

	// Short MA 110 vs long MA 102.5: diff well above the bull threshold and
	// confidence saturates at 1.0, so the ratio hits its 1.2 ceiling.
	a := d.Evaluate(closesWith(150, 100, 50, 110))
	assert.Equal(t, Bull, a.Regime)
	assert.InDelta(t, 0.0732, a.Diff, 1e-4)
	assert.Equal(t, 1.0, a.Confidence)
	assert.InDelta(t, 1.2, a.PositionRatio, 1e-9)
	assert.False(t, a.Defensive)
}

func TestEvaluateBearDefensive(t *testing.T) {
	d := newTestDetector()

	a := d.Evaluate(closesWith(150, 100, 50, 90))
	assert.Equal(t, Bear, a.Regime)
	assert.Equal(t, 0.0, a.PositionRatio)
	assert.Equal(t, 1.0, a.Confidence)
	assert.True(t, a.Defensive)
}

func TestEvaluateBearLowConfidenceNotDefensive(t *testing.T) {
	cfg := types.DefaultRegimeConfig()
	d := NewDetector(cfg, stats.NopSink{}, zap.NewNop())

	// Short MA ~97.5 vs long MA ~99.375: diff ≈ -0.0189, inside the
	// neutral band.
	a := d.Evaluate(closesWith(150, 100, 50, 97.5))
	assert.Equal(t, Neutral, a.Regime)

	// Push just past the bear threshold: confidence stays below the
	// defense gate.
	a = d.Evaluate(closesWith(150, 100, 50, 96.5))
	assert.Equal(t, Bear, a.Regime)
	assert.Less(t, a.Confidence, cfg.DefenseMinConf)
	assert.False(t, a.Defensive)
}

func TestStatsAccumulate(t *testing.T) {
	d := newTestDetector()

	d.Evaluate(closesWith(150, 100, 50, 110)) // bull, transition from neutral
	d.Evaluate(closesWith(150, 100, 50, 110)) // bull
	d.Evaluate(closesWith(150, 100, 50, 90))  // bear, transition
	d.Evaluate(closesWith(100, 100, 0, 0))    // insufficient, not counted

	s := d.Stats()
	assert.Equal(t, 2, s.BullDays)
	assert.Equal(t, 1, s.BearDays)
	assert.Equal(t, 0, s.NeutralDays)
	assert.Equal(t, 2, s.RegimeChanges)
	assert.Equal(t, 3, s.TotalDays)
	assert.Equal(t, "bear", s.CurrentRegime)
	assert.InDelta(t, 100.0*2/3, s.BullPct, 1e-9)
}
