// Package signals turns an indicator frame into a per-candle entry signal.
package signals

import (
	"errors"
	"fmt"

	"breakout-backtest/services/indicators"
)

// Signal is the per-candle entry state.
type Signal int8

const (
	None  Signal = 0
	Long  Signal = 1
	Short Signal = -1
)

func (s Signal) String() string {
	switch s {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "NONE"
	}
}

// Opposite reports whether other points the other way.
func (s Signal) Opposite(other Signal) bool { return s != None && other == -s }

// Rule produces one signal per bar of the frame.
type Rule interface {
	Name() string
	Generate(frame indicators.Frame) []Signal
}

// Range is a half-open oscillator band [Min, Max).
type Range struct {
	Min float64 `json:"min" yaml:"min" mapstructure:"min"`
	Max float64 `json:"max" yaml:"max" mapstructure:"max"`
}

func (r Range) Contains(v float64) bool { return v >= r.Min && v < r.Max }

// Kind selects a rule implementation.
type Kind string

const (
	KindATRBreakout   Kind = "atr_breakout"
	KindEMACrossover  Kind = "ema_crossover"
	KindMACDCrossover Kind = "macd_crossover"
	KindBollingerRSI  Kind = "bollinger_rsi"
)

var ErrUnknownKind = errors.New("unknown signal rule")

// Filters are the volume, trend-strength and volatility gates shared by rules.
type Filters struct {
	VolumeMult   float64 `json:"volume_mult" yaml:"volume_mult" mapstructure:"volume_mult" validate:"gte=0"`
	ADXThreshold float64 `json:"adx_threshold" yaml:"adx_threshold" mapstructure:"adx_threshold" validate:"gte=0"`
	MinATRPct    float64 `json:"min_atr_pct" yaml:"min_atr_pct" mapstructure:"min_atr_pct" validate:"gte=0"`
}

func (f Filters) volumeOK(b indicators.Bar) bool {
	return b.Volume >= b.VolumeSMA*f.VolumeMult
}

func (f Filters) adxOK(b indicators.Bar) bool {
	return b.ADX >= f.ADXThreshold
}

func (f Filters) volatilityOK(b indicators.Bar) bool {
	return f.MinATRPct <= 0 || b.ATRPct() >= f.MinATRPct
}

// Window restricts signals to UTC hours [StartHour, EndHour). Zero values disable it.
type Window struct {
	Enabled   bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	StartHour int  `json:"start_hour" yaml:"start_hour" mapstructure:"start_hour" validate:"gte=0,lte=23"`
	EndHour   int  `json:"end_hour" yaml:"end_hour" mapstructure:"end_hour" validate:"gte=0,lte=24"`
}

// Config selects and parameterizes a rule.
type Config struct {
	Kind       Kind    `json:"kind" yaml:"kind" mapstructure:"kind" validate:"oneof=atr_breakout ema_crossover macd_crossover bollinger_rsi"`
	StartIndex int     `json:"start_index" yaml:"start_index" mapstructure:"start_index" validate:"gte=0"`
	BreakoutK  float64 `json:"breakout_k" yaml:"breakout_k" mapstructure:"breakout_k" validate:"gte=0"`
	LongRSI    Range   `json:"long_rsi" yaml:"long_rsi" mapstructure:"long_rsi"`
	ShortRSI   Range   `json:"short_rsi" yaml:"short_rsi" mapstructure:"short_rsi"`
	Filters    Filters `json:"filters" yaml:"filters" mapstructure:"filters"`

	UseVolumeFilter     bool `json:"use_volume_filter" yaml:"use_volume_filter" mapstructure:"use_volume_filter"`
	UseADXFilter        bool `json:"use_adx_filter" yaml:"use_adx_filter" mapstructure:"use_adx_filter"`
	UseVolatilityFilter bool `json:"use_volatility_filter" yaml:"use_volatility_filter" mapstructure:"use_volatility_filter"`

	Oversold   float64 `json:"oversold" yaml:"oversold" mapstructure:"oversold" validate:"gte=0,lte=100"`
	Overbought float64 `json:"overbought" yaml:"overbought" mapstructure:"overbought" validate:"gte=0,lte=100"`
	BandTol    float64 `json:"band_tolerance" yaml:"band_tolerance" mapstructure:"band_tolerance" validate:"gte=0,lt=1"`

	Window Window `json:"window" yaml:"window" mapstructure:"window"`
}

// DefaultConfig is the production ATR breakout setup.
func DefaultConfig() Config {
	return Config{
		Kind:       KindATRBreakout,
		StartIndex: 50,
		BreakoutK:  1.2,
		LongRSI:    Range{Min: 55, Max: 65},
		ShortRSI:   Range{Min: 35, Max: 45},
		Filters: Filters{
			VolumeMult:   2.5,
			ADXThreshold: 25,
			MinATRPct:    0.0015,
		},
		UseVolumeFilter:     true,
		UseADXFilter:        true,
		UseVolatilityFilter: true,
		Oversold:            20,
		Overbought:          80,
		BandTol:             0.0005,
	}
}

// New builds the rule described by cfg, wrapped in the hour window when enabled.
func New(cfg Config) (Rule, error) {
	var r Rule
	switch cfg.Kind {
	case KindATRBreakout:
		r = ATRBreakout{Cfg: cfg}
	case KindEMACrossover:
		r = Crossover{Label: string(KindEMACrossover), Cfg: cfg, Diff: emaDiff}
	case KindMACDCrossover:
		r = Crossover{Label: string(KindMACDCrossover), Cfg: cfg, Diff: macdDiff}
	case KindBollingerRSI:
		r = BollingerRSI{Cfg: cfg}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
	if cfg.Window.Enabled {
		r = TimeWindow{Rule: r, StartHour: cfg.Window.StartHour, EndHour: cfg.Window.EndHour}
	}
	return r, nil
}
