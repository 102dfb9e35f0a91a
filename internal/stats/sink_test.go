package stats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusSinkCounts(t *testing.T) {
	s := NewPrometheusSink(prometheus.NewRegistry())

	s.IncRegimeDay("bull")
	s.IncRegimeDay("bull")
	s.IncRegimeChange()
	s.IncCrashEvent("market")
	s.IncDefenseModeDay()
	s.IncVolatilityDay("high")
	s.IncStopLoss("trailing_stop")
	s.IncTrade("BUY")
	s.IncRunFailure()

	assert.Equal(t, 2.0, testutil.ToFloat64(s.regimeDays.WithLabelValues("bull")))
	assert.Equal(t, 0.0, testutil.ToFloat64(s.regimeDays.WithLabelValues("bear")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.regimeChanges))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.crashEvents.WithLabelValues("market")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.defenseModeDays))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.volatilityDays.WithLabelValues("high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.stopLosses.WithLabelValues("trailing_stop")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.trades.WithLabelValues("BUY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.runFailures))
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewPrometheusSink(prometheus.NewRegistry())
		NewPrometheusSink(prometheus.NewRegistry())
	})
}
