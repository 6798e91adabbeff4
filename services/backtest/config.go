// Package backtest wires candles, indicators, signal rules and the engine
// into one validated run.
package backtest

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"breakout-backtest/services/engine"
	"breakout-backtest/services/indicators"
	"breakout-backtest/services/signals"
)

// Config is everything one run depends on. It is copied into the Runner and
// never mutated afterwards.
type Config struct {
	Symbol     string            `json:"symbol" yaml:"symbol" mapstructure:"symbol" validate:"required"`
	Timeframe  string            `json:"timeframe" yaml:"timeframe" mapstructure:"timeframe" validate:"required"`
	Indicators indicators.Params `json:"indicators" yaml:"indicators" mapstructure:"indicators"`
	Signals    signals.Config    `json:"signals" yaml:"signals" mapstructure:"signals"`
	Engine     engine.Config     `json:"engine" yaml:"engine" mapstructure:"engine"`
}

// DefaultConfig is the production ATR breakout on BTC/USDT 1m.
func DefaultConfig() Config {
	return Config{
		Symbol:     "BTC/USDT",
		Timeframe:  "1m",
		Indicators: indicators.DefaultParams(),
		Signals:    signals.DefaultConfig(),
		Engine:     engine.DefaultConfig(),
	}
}

// Preset returns the stock configuration for a rule kind. The crossover and
// band rules use percent stops with their own reward:risk and looser filters.
func Preset(kind signals.Kind) (Config, error) {
	return DefaultConfig().WithPreset(kind)
}

// WithPreset switches c to the rule kind and applies that kind's stock
// parameters. Fields a preset does not set, such as fees, sizing and
// identity, keep c's values.
func (c Config) WithPreset(kind signals.Kind) (Config, error) {
	cfg := c
	cfg.Signals.Kind = kind
	if kind == signals.KindATRBreakout {
		return cfg, nil
	}

	f := &cfg.Signals.Filters
	f.VolumeMult, f.ADXThreshold, f.MinATRPct = 1.5, 30, 0.0015
	cfg.Engine.StopMode = engine.StopPercent
	cfg.Engine.StopPct = 0.002
	cfg.Engine.Trailing.Enabled = false
	cfg.Engine.EarlyExit.Enabled = false

	switch kind {
	case signals.KindEMACrossover:
		cfg.Indicators.EMAFast, cfg.Indicators.EMASlow = 9, 21
		cfg.Engine.TPRR = 2.5
	case signals.KindMACDCrossover:
		cfg.Engine.TPRR = 2.5
	case signals.KindBollingerRSI:
		cfg.Engine.TPRR = 2.0
	default:
		return Config{}, fmt.Errorf("%w: %q", signals.ErrUnknownKind, kind)
	}
	return cfg, nil
}

// Hash is the sha256 of the config's canonical JSON form.
func (c Config) Hash() string {
	b, _ := json.Marshal(c)
	return fmt.Sprintf("%x", sha256.Sum256(b))
}

// ConfigError reports every field that failed validation.
type ConfigError struct {
	Fields []string
	Err    error
}

func (e *ConfigError) Error() string {
	return "invalid backtest config: " + strings.Join(e.Fields, "; ")
}

func (e *ConfigError) Unwrap() error { return e.Err }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(signalRanges, signals.Config{})
	v.RegisterStructValidation(trailingMult, engine.Trailing{})
	return v
}

func signalRanges(sl validator.StructLevel) {
	c := sl.Current().Interface().(signals.Config)
	if c.LongRSI.Min >= c.LongRSI.Max {
		sl.ReportError(c.LongRSI, "LongRSI", "long_rsi", "rsi_range", "")
	}
	if c.ShortRSI.Min >= c.ShortRSI.Max {
		sl.ReportError(c.ShortRSI, "ShortRSI", "short_rsi", "rsi_range", "")
	}
	if c.Window.Enabled && c.Window.StartHour >= c.Window.EndHour {
		sl.ReportError(c.Window, "Window", "window", "hour_window", "")
	}
	if c.Oversold >= c.Overbought {
		sl.ReportError(c.Oversold, "Oversold", "oversold", "ltfield", "Overbought")
	}
}

func trailingMult(sl validator.StructLevel) {
	t := sl.Current().Interface().(engine.Trailing)
	if t.Enabled && t.Mult <= 0 {
		sl.ReportError(t.Mult, "Mult", "mult", "gt", "0")
	}
}

// Validate checks cfg and returns a *ConfigError listing every violation.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ConfigError{Fields: []string{err.Error()}, Err: err}
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return &ConfigError{Fields: fields, Err: verrs}
}
