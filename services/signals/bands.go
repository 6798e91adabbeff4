package signals

import (
	"math"

	"breakout-backtest/services/indicators"
)

// BollingerRSI fires Long when the close touches the lower band (within
// BandTol) while RSI is below Oversold, and Short on the upper band with RSI
// above Overbought. Volume and ADX gates apply.
type BollingerRSI struct {
	Cfg Config
}

func (BollingerRSI) Name() string { return string(KindBollingerRSI) }

func (r BollingerRSI) Generate(frame indicators.Frame) []Signal {
	out := make([]Signal, len(frame))
	for i := r.Cfg.StartIndex; i < len(frame); i++ {
		b := frame[i]
		if math.IsNaN(b.BBLower) || math.IsNaN(b.BBUpper) || math.IsNaN(b.RSI) {
			continue
		}
		if r.Cfg.UseVolumeFilter && !r.Cfg.Filters.volumeOK(b) {
			continue
		}
		if r.Cfg.UseADXFilter && !r.Cfg.Filters.adxOK(b) {
			continue
		}
		switch {
		case b.Close <= b.BBLower*(1+r.Cfg.BandTol) && b.RSI < r.Cfg.Oversold:
			out[i] = Long
		case b.Close >= b.BBUpper*(1-r.Cfg.BandTol) && b.RSI > r.Cfg.Overbought:
			out[i] = Short
		}
	}
	return out
}

// TimeWindow silences the wrapped rule outside UTC hours [StartHour, EndHour).
type TimeWindow struct {
	Rule      Rule
	StartHour int
	EndHour   int
}

func (w TimeWindow) Name() string { return w.Rule.Name() + "+window" }

func (w TimeWindow) Generate(frame indicators.Frame) []Signal {
	out := w.Rule.Generate(frame)
	for i, b := range frame {
		if h := b.Time.UTC().Hour(); h < w.StartHour || h >= w.EndHour {
			out[i] = None
		}
	}
	return out
}
