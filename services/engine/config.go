package engine

// StopMode selects how stop and target are placed at entry.
type StopMode string

const (
	// StopATR places stop and target at multiples of the entry candle's ATR.
	StopATR StopMode = "atr"
	// StopPercent places them at a fixed fraction of the entry price.
	StopPercent StopMode = "percent"
)

type Trailing struct {
	Enabled bool    `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Mult    float64 `json:"mult" yaml:"mult" mapstructure:"mult" validate:"gte=0"`
}

// EarlyExit closes a long when RSI drops below Midline and a short when it
// rises above it.
type EarlyExit struct {
	Enabled bool    `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Midline float64 `json:"midline" yaml:"midline" mapstructure:"midline" validate:"gte=0,lte=100"`
}

// Config is fixed for the lifetime of a Simulator.
type Config struct {
	StopMode   StopMode  `json:"stop_mode" yaml:"stop_mode" mapstructure:"stop_mode" validate:"oneof=atr percent"`
	SLMult     float64   `json:"sl_mult" yaml:"sl_mult" mapstructure:"sl_mult" validate:"gt=0"`
	TPRR       float64   `json:"tp_rr" yaml:"tp_rr" mapstructure:"tp_rr" validate:"gt=0"`
	StopPct    float64   `json:"stop_pct" yaml:"stop_pct" mapstructure:"stop_pct" validate:"gt=0,lt=1"`
	RiskBudget float64   `json:"risk_budget" yaml:"risk_budget" mapstructure:"risk_budget" validate:"gt=0"`
	Fee        float64   `json:"fee" yaml:"fee" mapstructure:"fee" validate:"gte=0"`
	Trailing   Trailing  `json:"trailing" yaml:"trailing" mapstructure:"trailing"`
	EarlyExit  EarlyExit `json:"early_exit" yaml:"early_exit" mapstructure:"early_exit"`
	CloseAtEnd bool      `json:"close_at_end" yaml:"close_at_end" mapstructure:"close_at_end"`
}

// DefaultConfig mirrors the production breakout bot: 1 ATR stop, 3.5R target,
// $5 risk, $1.40 round-trip fee, 0.5 ATR trailing stop and the RSI 50 early exit.
func DefaultConfig() Config {
	return Config{
		StopMode:   StopATR,
		SLMult:     1.0,
		TPRR:       3.5,
		StopPct:    0.002,
		RiskBudget: 5.0,
		Fee:        1.4,
		Trailing:   Trailing{Enabled: true, Mult: 0.5},
		EarlyExit:  EarlyExit{Enabled: true, Midline: 50},
	}
}
