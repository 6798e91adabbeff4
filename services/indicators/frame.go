package indicators

import (
	"math"

	"breakout-backtest/services/candles"
)

// Params holds every lookback the frame builder needs.
type Params struct {
	EMAFast    int     `json:"ema_fast" yaml:"ema_fast" mapstructure:"ema_fast" validate:"gt=0,ltfield=EMASlow"`
	EMASlow    int     `json:"ema_slow" yaml:"ema_slow" mapstructure:"ema_slow" validate:"gt=0"`
	ATR        int     `json:"atr" yaml:"atr" mapstructure:"atr" validate:"gt=0"`
	RSI        int     `json:"rsi" yaml:"rsi" mapstructure:"rsi" validate:"gt=0"`
	ADX        int     `json:"adx" yaml:"adx" mapstructure:"adx" validate:"gt=0"`
	VolumeSMA  int     `json:"volume_sma" yaml:"volume_sma" mapstructure:"volume_sma" validate:"gt=0"`
	BBWindow   int     `json:"bb_window" yaml:"bb_window" mapstructure:"bb_window" validate:"gt=1"`
	BBStd      float64 `json:"bb_std" yaml:"bb_std" mapstructure:"bb_std" validate:"gt=0"`
	MACDFast   int     `json:"macd_fast" yaml:"macd_fast" mapstructure:"macd_fast" validate:"gt=0,ltfield=MACDSlow"`
	MACDSlow   int     `json:"macd_slow" yaml:"macd_slow" mapstructure:"macd_slow" validate:"gt=0"`
	MACDSignal int     `json:"macd_signal" yaml:"macd_signal" mapstructure:"macd_signal" validate:"gt=0"`
}

// DefaultParams are the production periods: EMA 20/50, ATR/RSI/ADX 14,
// volume SMA 20, Bollinger 20x2, MACD 8/17/9.
func DefaultParams() Params {
	return Params{
		EMAFast:    20,
		EMASlow:    50,
		ATR:        14,
		RSI:        14,
		ADX:        14,
		VolumeSMA:  20,
		BBWindow:   20,
		BBStd:      2.0,
		MACDFast:   8,
		MACDSlow:   17,
		MACDSignal: 9,
	}
}

// Warmup is the number of leading candles before every breakout indicator is
// meaningful: the slow EMA span, or ADX's double smoothing if that is longer.
func (p Params) Warmup() int {
	w := p.EMASlow
	for _, v := range []int{2 * p.ADX, p.RSI + 1, p.ATR, p.VolumeSMA, p.BBWindow} {
		if v > w {
			w = v
		}
	}
	return w
}

// Bar bundles one candle with every indicator value computed for its index,
// so rules and the engine never index parallel slices.
type Bar struct {
	candles.Candle

	EMAFast    float64
	EMASlow    float64
	ATR        float64
	RSI        float64
	ADX        float64
	VolumeSMA  float64
	BBUpper    float64
	BBMid      float64
	BBLower    float64
	MACD       float64
	MACDSignal float64
}

// Ready reports whether every indicator the breakout rule reads is defined.
func (b Bar) Ready() bool {
	for _, v := range [...]float64{b.EMAFast, b.EMASlow, b.ATR, b.RSI, b.VolumeSMA, b.ADX} {
		if math.IsNaN(v) {
			return false
		}
	}
	return true
}

// ATRPct is ATR relative to the close, NaN when either is undefined.
func (b Bar) ATRPct() float64 { return safeDiv(b.ATR, b.Close) }

// Frame is the aligned, read-only view of one run's candles.
type Frame []Bar

// Build computes every series once and zips it with the candles.
func Build(cs []candles.Candle, p Params) Frame {
	high := candles.Column(cs, candles.Highs)
	low := candles.Column(cs, candles.Lows)
	closes := candles.Column(cs, candles.Closes)
	vol := candles.Column(cs, candles.Volumes)

	emaFast := EMA(closes, p.EMAFast)
	emaSlow := EMA(closes, p.EMASlow)
	atr := ATR(high, low, closes, p.ATR)
	rsi := RSI(closes, p.RSI)
	adx := ADX(high, low, closes, p.ADX)
	volSMA := SMA(vol, p.VolumeSMA)
	upper, mid, lower := Bollinger(closes, p.BBWindow, p.BBStd)
	macd, macdSig := MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)

	frame := make(Frame, len(cs))
	for i, c := range cs {
		frame[i] = Bar{
			Candle:     c,
			EMAFast:    emaFast[i],
			EMASlow:    emaSlow[i],
			ATR:        atr[i],
			RSI:        rsi[i],
			ADX:        adx[i],
			VolumeSMA:  volSMA[i],
			BBUpper:    upper[i],
			BBMid:      mid[i],
			BBLower:    lower[i],
			MACD:       macd[i],
			MACDSignal: macdSig[i],
		}
	}
	return frame
}

// Candles returns the raw candles behind the frame.
func (f Frame) Candles() []candles.Candle {
	out := make([]candles.Candle, len(f))
	for i, b := range f {
		out[i] = b.Candle
	}
	return out
}
