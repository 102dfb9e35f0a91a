package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RegimeConfig controls the bull/bear/neutral market classifier.
type RegimeConfig struct {
	ShortPeriod    int     `json:"shortPeriod" mapstructure:"short_period"`
	LongPeriod     int     `json:"longPeriod" mapstructure:"long_period"`
	BullThreshold  float64 `json:"bullThreshold" mapstructure:"bull_threshold"`
	BearThreshold  float64 `json:"bearThreshold" mapstructure:"bear_threshold"`
	BullBaseRatio  float64 `json:"bullBaseRatio" mapstructure:"bull_base_ratio"`
	BearRatio      float64 `json:"bearRatio" mapstructure:"bear_ratio"`
	NeutralRatio   float64 `json:"neutralRatio" mapstructure:"neutral_ratio"`
	DefenseMinConf float64 `json:"defenseMinConf" mapstructure:"defense_min_conf"`
}

// DefaultRegimeConfig returns the standard 50/200 SMA regime settings.
func DefaultRegimeConfig() RegimeConfig {
	return RegimeConfig{
		ShortPeriod:    50,
		LongPeriod:     200,
		BullThreshold:  0.02,
		BearThreshold:  -0.02,
		BullBaseRatio:  1.0,
		BearRatio:      0.0,
		NeutralRatio:   0.8,
		DefenseMinConf: 0.85,
	}
}

// VolatilityConfig controls ATR-based position sizing.
type VolatilityConfig struct {
	ATRPeriod     int     `json:"atrPeriod" mapstructure:"atr_period"`
	AvgWindow     int     `json:"avgWindow" mapstructure:"avg_window"`
	LowThreshold  float64 `json:"lowThreshold" mapstructure:"low_threshold"`
	HighThreshold float64 `json:"highThreshold" mapstructure:"high_threshold"`
	LowRatio      float64 `json:"lowRatio" mapstructure:"low_ratio"`
	NormalRatio   float64 `json:"normalRatio" mapstructure:"normal_ratio"`
	HighRatio     float64 `json:"highRatio" mapstructure:"high_ratio"`
}

// DefaultVolatilityConfig returns the standard ATR-14 band settings.
func DefaultVolatilityConfig() VolatilityConfig {
	return VolatilityConfig{
		ATRPeriod:     14,
		AvgWindow:     60,
		LowThreshold:  0.5,
		HighThreshold: 1.5,
		LowRatio:      1.2,
		NormalRatio:   1.0,
		HighRatio:     0.6,
	}
}

// CrashConfig controls market-wide crash detection.
type CrashConfig struct {
	SingleDayThreshold        float64 `json:"singleDayThreshold" mapstructure:"single_day_threshold"`
	ShortWindowDays           int     `json:"shortWindowDays" mapstructure:"short_window_days"`
	ShortWindowThreshold      float64 `json:"shortWindowThreshold" mapstructure:"short_window_threshold"`
	PortfolioDeclineThreshold float64 `json:"portfolioDeclineThreshold" mapstructure:"portfolio_decline_threshold"`
	PortfolioDeclinePct       float64 `json:"portfolioDeclinePct" mapstructure:"portfolio_decline_pct"`
	DefenseModeDays           int     `json:"defenseModeDays" mapstructure:"defense_mode_days"`
}

// DefaultCrashConfig returns the standard crash-rule settings.
func DefaultCrashConfig() CrashConfig {
	return CrashConfig{
		SingleDayThreshold:        -0.05,
		ShortWindowDays:           3,
		ShortWindowThreshold:      -0.07,
		PortfolioDeclineThreshold: 0.6,
		PortfolioDeclinePct:       -0.05,
		DefenseModeDays:           5,
	}
}

// DefenseConfig controls the per-position and portfolio stop losses.
type DefenseConfig struct {
	FixedStopPct     float64 `json:"fixedStopPct" mapstructure:"fixed_stop_pct"`
	TrailingStopPct  float64 `json:"trailingStopPct" mapstructure:"trailing_stop_pct"`
	PortfolioStopPct float64 `json:"portfolioStopPct" mapstructure:"portfolio_stop_pct"`
	CooldownDays     int     `json:"cooldownDays" mapstructure:"cooldown_days"`
}

// DefaultDefenseConfig returns the standard stop-loss settings.
func DefaultDefenseConfig() DefenseConfig {
	return DefenseConfig{
		FixedStopPct:     -0.07,
		TrailingStopPct:  -0.10,
		PortfolioStopPct: -0.15,
		CooldownDays:     3,
	}
}

// SimulationConfig is the complete parameter set for one run.
type SimulationConfig struct {
	Tickers        []string        `json:"tickers" mapstructure:"tickers"`
	IndexTicker    string          `json:"indexTicker" mapstructure:"index_ticker"`
	StartDate      time.Time       `json:"startDate" mapstructure:"start_date"`
	EndDate        time.Time       `json:"endDate" mapstructure:"end_date"`
	InitialCapital decimal.Decimal `json:"initialCapital" mapstructure:"initial_capital"`

	CountryCode      string  `json:"countryCode" mapstructure:"country_code"`
	MAWindow         int     `json:"maWindow" mapstructure:"ma_window"`
	MaxPositions     int     `json:"maxPositions" mapstructure:"max_positions"`
	ReplaceThreshold float64 `json:"replaceThreshold" mapstructure:"replace_threshold"`
	CommissionRate   float64 `json:"commissionRate" mapstructure:"commission_rate"`
	SlippageRate     float64 `json:"slippageRate" mapstructure:"slippage_rate"`
	EnableDefense    bool    `json:"enableDefense" mapstructure:"enable_defense"`

	Regime     RegimeConfig     `json:"regime" mapstructure:"regime"`
	Volatility VolatilityConfig `json:"volatility" mapstructure:"volatility"`
	Crash      CrashConfig      `json:"crash" mapstructure:"crash"`
	Defense    DefenseConfig    `json:"defense" mapstructure:"defense"`
}

// DefaultSimulationConfig returns a config with the standard strategy
// parameters and defense enabled. Tickers and dates must be supplied by
// the caller.
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		InitialCapital:   decimal.NewFromInt(10_000_000),
		CountryCode:      "KR",
		MAWindow:         60,
		MaxPositions:     3,
		ReplaceThreshold: 0.0,
		CommissionRate:   0.00015,
		SlippageRate:     0.001,
		EnableDefense:    true,
		Regime:           DefaultRegimeConfig(),
		Volatility:       DefaultVolatilityConfig(),
		Crash:            DefaultCrashConfig(),
		Defense:          DefaultDefenseConfig(),
	}
}

// Validate checks the config for values the engine cannot run with.
func (c *SimulationConfig) Validate() error {
	if len(c.Tickers) == 0 {
		return fmt.Errorf("at least one ticker required")
	}
	if c.InitialCapital.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("initial capital must be positive, got %s", c.InitialCapital)
	}
	if !c.StartDate.IsZero() && !c.EndDate.IsZero() && c.EndDate.Before(c.StartDate) {
		return fmt.Errorf("end date %s before start date %s",
			c.EndDate.Format("2006-01-02"), c.StartDate.Format("2006-01-02"))
	}
	if c.MAWindow <= 0 {
		return fmt.Errorf("ma window must be positive, got %d", c.MAWindow)
	}
	if c.MaxPositions <= 0 {
		return fmt.Errorf("max positions must be positive, got %d", c.MaxPositions)
	}
	if c.Regime.ShortPeriod <= 0 || c.Regime.LongPeriod <= c.Regime.ShortPeriod {
		return fmt.Errorf("regime periods invalid: short=%d long=%d",
			c.Regime.ShortPeriod, c.Regime.LongPeriod)
	}
	if c.Volatility.ATRPeriod <= 0 {
		return fmt.Errorf("atr period must be positive, got %d", c.Volatility.ATRPeriod)
	}
	if c.Volatility.LowThreshold >= c.Volatility.HighThreshold {
		return fmt.Errorf("volatility thresholds invalid: low=%.2f high=%.2f",
			c.Volatility.LowThreshold, c.Volatility.HighThreshold)
	}
	if c.Crash.SingleDayThreshold >= 0 || c.Crash.ShortWindowThreshold >= 0 || c.Crash.PortfolioDeclinePct >= 0 {
		return fmt.Errorf("crash thresholds must be negative")
	}
	if c.Crash.PortfolioDeclineThreshold <= 0 || c.Crash.PortfolioDeclineThreshold > 1 {
		return fmt.Errorf("portfolio decline threshold must be in (0, 1], got %.2f",
			c.Crash.PortfolioDeclineThreshold)
	}
	if c.Crash.ShortWindowDays <= 0 || c.Crash.DefenseModeDays <= 0 {
		return fmt.Errorf("crash windows must be positive")
	}
	if c.Defense.FixedStopPct >= 0 || c.Defense.TrailingStopPct >= 0 || c.Defense.PortfolioStopPct >= 0 {
		return fmt.Errorf("stop-loss thresholds must be negative")
	}
	if c.Defense.CooldownDays < 0 {
		return fmt.Errorf("cooldown days must be non-negative, got %d", c.Defense.CooldownDays)
	}
	return nil
}
