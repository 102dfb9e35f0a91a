// Package config loads simulation settings from YAML files and environment
// variables into the typed config structs.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/krx-alertor/maps-engine/pkg/types"
)

const (
	envPrefix  = "MAPS"
	dateLayout = "2006-01-02"
)

// Load reads the config file at path (or the default search locations when
// path is empty) plus MAPS_-prefixed environment variables, layered over
// the built-in defaults. The result is validated before it is returned.
func Load(path string, logger *zap.Logger) (*types.SimulationConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("simulator")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			logger.Info("no config file found, using defaults and environment")
		} else {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		logger.Info("loaded config file", zap.String("file", v.ConfigFileUsed()))
	}

	cfg := types.DefaultSimulationConfig()
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := types.DefaultSimulationConfig()

	v.SetDefault("index_ticker", "")
	v.SetDefault("initial_capital", d.InitialCapital.String())
	v.SetDefault("country_code", d.CountryCode)
	v.SetDefault("ma_window", d.MAWindow)
	v.SetDefault("max_positions", d.MaxPositions)
	v.SetDefault("replace_threshold", d.ReplaceThreshold)
	v.SetDefault("commission_rate", d.CommissionRate)
	v.SetDefault("slippage_rate", d.SlippageRate)
	v.SetDefault("enable_defense", d.EnableDefense)

	v.SetDefault("regime.short_period", d.Regime.ShortPeriod)
	v.SetDefault("regime.long_period", d.Regime.LongPeriod)
	v.SetDefault("regime.bull_threshold", d.Regime.BullThreshold)
	v.SetDefault("regime.bear_threshold", d.Regime.BearThreshold)
	v.SetDefault("regime.bull_base_ratio", d.Regime.BullBaseRatio)
	v.SetDefault("regime.bear_ratio", d.Regime.BearRatio)
	v.SetDefault("regime.neutral_ratio", d.Regime.NeutralRatio)
	v.SetDefault("regime.defense_min_conf", d.Regime.DefenseMinConf)

	v.SetDefault("volatility.atr_period", d.Volatility.ATRPeriod)
	v.SetDefault("volatility.avg_window", d.Volatility.AvgWindow)
	v.SetDefault("volatility.low_threshold", d.Volatility.LowThreshold)
	v.SetDefault("volatility.high_threshold", d.Volatility.HighThreshold)
	v.SetDefault("volatility.low_ratio", d.Volatility.LowRatio)
	v.SetDefault("volatility.normal_ratio", d.Volatility.NormalRatio)
	v.SetDefault("volatility.high_ratio", d.Volatility.HighRatio)

	v.SetDefault("crash.single_day_threshold", d.Crash.SingleDayThreshold)
	v.SetDefault("crash.short_window_days", d.Crash.ShortWindowDays)
	v.SetDefault("crash.short_window_threshold", d.Crash.ShortWindowThreshold)
	v.SetDefault("crash.portfolio_decline_threshold", d.Crash.PortfolioDeclineThreshold)
	v.SetDefault("crash.portfolio_decline_pct", d.Crash.PortfolioDeclinePct)
	v.SetDefault("crash.defense_mode_days", d.Crash.DefenseModeDays)

	v.SetDefault("defense.fixed_stop_pct", d.Defense.FixedStopPct)
	v.SetDefault("defense.trailing_stop_pct", d.Defense.TrailingStopPct)
	v.SetDefault("defense.portfolio_stop_pct", d.Defense.PortfolioStopPct)
	v.SetDefault("defense.cooldown_days", d.Defense.CooldownDays)
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		stringToDateHook,
		toDecimalHook,
		mapstructure.StringToSliceHookFunc(","),
	)
}

// stringToDateHook parses YYYY-MM-DD strings into time.Time.
func stringToDateHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	s := data.(string)
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}

// toDecimalHook converts numeric and string values into decimal.Decimal.
func toDecimalHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(decimal.Decimal{}) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return decimal.NewFromString(v)
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	default:
		return data, nil
	}
}
