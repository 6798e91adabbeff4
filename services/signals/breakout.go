package signals

import (
	"fmt"
	"time"

	"breakout-backtest/services/indicators"
)

// ATRBreakout fires long when an uptrend (fast EMA above slow EMA) closes
// above fastEMA + k*ATR with RSI inside the long band, and short on the mirror
// image. Volume and ADX gates apply to both sides. Each candle is judged on
// its own values only.
type ATRBreakout struct {
	Cfg Config
}

func (ATRBreakout) Name() string { return string(KindATRBreakout) }

func (r ATRBreakout) Generate(frame indicators.Frame) []Signal {
	out := make([]Signal, len(frame))
	for i := r.Cfg.StartIndex; i < len(frame); i++ {
		out[i] = r.evaluate(frame[i]).Signal
	}
	return out
}

// Trend is the EMA regime of a bar.
type Trend string

const (
	Uptrend   Trend = "UPTREND"
	Downtrend Trend = "DOWNTREND"
	Sideways  Trend = "SIDEWAYS"
)

type verdict struct {
	Signal     Signal
	Trend      Trend
	LongLevel  float64
	ShortLevel float64
	VolumeOK   bool
	ADXOK      bool
	Reason     string
	Undefined  bool
}

func (r ATRBreakout) evaluate(b indicators.Bar) verdict {
	if !b.Ready() {
		return verdict{Undefined: true, Reason: "indicators still warming up"}
	}
	v := verdict{
		LongLevel:  b.EMAFast + r.Cfg.BreakoutK*b.ATR,
		ShortLevel: b.EMAFast - r.Cfg.BreakoutK*b.ATR,
		VolumeOK:   !r.Cfg.UseVolumeFilter || r.Cfg.Filters.volumeOK(b),
		ADXOK:      !r.Cfg.UseADXFilter || r.Cfg.Filters.adxOK(b),
	}
	filtersOK := v.VolumeOK && v.ADXOK

	switch {
	case b.EMAFast > b.EMASlow:
		v.Trend = Uptrend
		switch {
		case b.Close <= v.LongLevel:
			v.Reason = fmt.Sprintf("waiting for breakout above %.2f", v.LongLevel)
		case !r.Cfg.LongRSI.Contains(b.RSI):
			v.Reason = fmt.Sprintf("breakout detected but RSI %.1f not in [%g, %g)", b.RSI, r.Cfg.LongRSI.Min, r.Cfg.LongRSI.Max)
		case !filtersOK:
			v.Reason = "breakout detected but volume or ADX filter failed"
		default:
			v.Signal = Long
			v.Reason = fmt.Sprintf("close broke above fast EMA + %gxATR with RSI %.1f", r.Cfg.BreakoutK, b.RSI)
		}
	case b.EMAFast < b.EMASlow:
		v.Trend = Downtrend
		switch {
		case b.Close >= v.ShortLevel:
			v.Reason = fmt.Sprintf("waiting for breakout below %.2f", v.ShortLevel)
		case !r.Cfg.ShortRSI.Contains(b.RSI):
			v.Reason = fmt.Sprintf("breakout detected but RSI %.1f not in [%g, %g)", b.RSI, r.Cfg.ShortRSI.Min, r.Cfg.ShortRSI.Max)
		case !filtersOK:
			v.Reason = "breakout detected but volume or ADX filter failed"
		default:
			v.Signal = Short
			v.Reason = fmt.Sprintf("close broke below fast EMA - %gxATR with RSI %.1f", r.Cfg.BreakoutK, b.RSI)
		}
	default:
		v.Trend = Sideways
		v.Reason = "fast EMA equals slow EMA, no trend"
	}
	return v
}

// Inspection describes the breakout rule's view of the latest candle, the
// payload of production signal notifications.
type Inspection struct {
	Time        time.Time `json:"candle_time"`
	Signal      Signal    `json:"signal"`
	Direction   string    `json:"direction"`
	Reason      string    `json:"signal_reason"`
	Trend       Trend     `json:"trend"`
	Price       float64   `json:"current_price"`
	EMAFast     float64   `json:"ema_fast"`
	EMASlow     float64   `json:"ema_slow"`
	ATR         float64   `json:"atr"`
	RSI         float64   `json:"rsi"`
	ADX         float64   `json:"adx"`
	Volume      float64   `json:"volume"`
	VolumeAvg   float64   `json:"volume_avg"`
	VolumeRatio float64   `json:"volume_ratio"`
	LongLevel   float64   `json:"breakout_long"`
	ShortLevel  float64   `json:"breakout_short"`
	VolumeOK    bool      `json:"volume_ok"`
	ADXOK       bool      `json:"adx_ok"`
	StopLoss    float64   `json:"stop_loss,omitempty"`
	TakeProfit  float64   `json:"take_profit,omitempty"`
}

// Inspect evaluates the last bar of frame with the breakout rule. slMult and
// tpRR place the suggested stop and target when a signal fires. ok is false
// when the frame is shorter than StartIndex+1 or the last bar is not ready.
func Inspect(frame indicators.Frame, cfg Config, slMult, tpRR float64) (Inspection, bool) {
	if len(frame) == 0 || len(frame) <= cfg.StartIndex {
		return Inspection{Reason: "insufficient data"}, false
	}
	b := frame[len(frame)-1]
	v := ATRBreakout{Cfg: cfg}.evaluate(b)
	if v.Undefined {
		return Inspection{Time: b.Time, Reason: v.Reason}, false
	}
	in := Inspection{
		Time:       b.Time,
		Signal:     v.Signal,
		Direction:  v.Signal.String(),
		Reason:     v.Reason,
		Trend:      v.Trend,
		Price:      b.Close,
		EMAFast:    b.EMAFast,
		EMASlow:    b.EMASlow,
		ATR:        b.ATR,
		RSI:        b.RSI,
		ADX:        b.ADX,
		Volume:     b.Volume,
		VolumeAvg:  b.VolumeSMA,
		LongLevel:  v.LongLevel,
		ShortLevel: v.ShortLevel,
		VolumeOK:   v.VolumeOK,
		ADXOK:      v.ADXOK,
	}
	if b.VolumeSMA > 0 {
		in.VolumeRatio = b.Volume / b.VolumeSMA
	}
	switch v.Signal {
	case Long:
		in.StopLoss = b.Close - slMult*b.ATR
		in.TakeProfit = b.Close + tpRR*b.ATR
	case Short:
		in.StopLoss = b.Close + slMult*b.ATR
		in.TakeProfit = b.Close - tpRR*b.ATR
	}
	return in, true
}
