package signals

import (
	"math"

	"breakout-backtest/services/indicators"
)

func emaDiff(b indicators.Bar) float64  { return b.EMAFast - b.EMASlow }
func macdDiff(b indicators.Bar) float64 { return b.MACD - b.MACDSignal }

// Crossover fires when Diff changes sign between the previous defined bar and
// the current one: up through zero is Long, down through zero is Short. The
// previous difference is carried across filtered bars but not across bars
// where the difference is undefined.
type Crossover struct {
	Label string
	Cfg   Config
	Diff  func(indicators.Bar) float64
}

func (c Crossover) Name() string { return c.Label }

func (c Crossover) Generate(frame indicators.Frame) []Signal {
	out := make([]Signal, len(frame))
	prev, havePrev := 0.0, false
	for i, b := range frame {
		d := c.Diff(b)
		if math.IsNaN(d) {
			continue
		}
		if havePrev && i >= c.Cfg.StartIndex && c.filtersOK(b) {
			switch {
			case d > 0 && prev <= 0:
				out[i] = Long
			case d < 0 && prev >= 0:
				out[i] = Short
			}
		}
		prev, havePrev = d, true
	}
	return out
}

func (c Crossover) filtersOK(b indicators.Bar) bool {
	f := c.Cfg.Filters
	if c.Cfg.UseVolumeFilter && !f.volumeOK(b) {
		return false
	}
	if c.Cfg.UseADXFilter && !f.adxOK(b) {
		return false
	}
	if c.Cfg.UseVolatilityFilter && !f.volatilityOK(b) {
		return false
	}
	return true
}
