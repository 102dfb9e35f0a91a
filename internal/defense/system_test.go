package defense

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/krx-alertor/maps-engine/internal/stats"
	"github.com/krx-alertor/maps-engine/pkg/types"
)

func newTestSystem() *System {
	return NewSystem(types.DefaultDefenseConfig(), nil, stats.NopSink{}, zap.NewNop())
}

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func testDay(i int) time.Time {
	return time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func TestFixedStop(t *testing.T) {
	s := newTestSystem()

	chk := s.CheckPositionStop(dec(100), dec(100), dec(93))
	assert.True(t, chk.Triggered)
	assert.Equal(t, StopFixed, chk.Kind)

	chk = s.CheckPositionStop(dec(100), dec(100), dec(93.5))
	assert.False(t, chk.Triggered)
}

func TestTrailingStop(t *testing.T) {
	s := newTestSystem()

	// Up 34% from entry, but 10.7% off the 150 peak.
	chk := s.CheckPositionStop(dec(100), dec(150), dec(134))
	assert.True(t, chk.Triggered)
	assert.Equal(t, StopTrailing, chk.Kind)

	// Exactly -10% from the peak triggers too.
	chk = s.CheckPositionStop(dec(100), dec(150), dec(135))
	assert.True(t, chk.Triggered)

	chk = s.CheckPositionStop(dec(100), dec(150), dec(135.5))
	assert.False(t, chk.Triggered)
}

func TestFixedStopTakesPrecedence(t *testing.T) {
	s := newTestSystem()

	// 80 is both -20% from entry and -20% from the peak; the fixed stop
	// is checked first.
	chk := s.CheckPositionStop(dec(100), dec(100), dec(80))
	assert.Equal(t, StopFixed, chk.Kind)

	st := s.Stats(testDay(0))
	assert.Equal(t, 1, st.FixedStopCount)
	assert.Equal(t, 0, st.TrailingStopCount)
}

func TestPortfolioStop(t *testing.T) {
	s := newTestSystem()

	assert.False(t, s.CheckPortfolioStop(dec(8600), dec(10000)))
	assert.True(t, s.CheckPortfolioStop(dec(8500), dec(10000)))
	assert.Equal(t, 1, s.Stats(testDay(0)).PortfolioStopCount)
}

func TestCooldownWindow(t *testing.T) {
	s := newTestSystem()

	s.RecordCooldown("069500", testDay(0))

	for i := 1; i <= 3; i++ {
		assert.True(t, s.InCooldown("069500", testDay(i)), "day %d", i)
	}
	assert.False(t, s.InCooldown("069500", testDay(4)))

	// Expired entries are pruned.
	assert.Empty(t, s.ActiveCooldowns(testDay(4)))
	assert.False(t, s.InCooldown("unknown", testDay(1)))
}

func TestStatsListActiveCooldowns(t *testing.T) {
	s := newTestSystem()

	s.RecordCooldown("B", testDay(0))
	s.RecordCooldown("A", testDay(0))

	st := s.Stats(testDay(1))
	assert.Equal(t, 2, st.CooldownCount)
	assert.Equal(t, []string{"A", "B"}, st.CooldownTickers)
}
