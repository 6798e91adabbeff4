// Package indicators computes the numeric series the signal rules read.
// Every function is pure; NaN marks an undefined value (warm-up prefix or a
// division by zero) and callers must skip indices where a series they need is NaN.
package indicators

import (
	"math"

	"github.com/markcheno/go-talib"
)

// NaN is the undefined marker shared by every series.
var NaN = math.NaN()

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = NaN
	}
	return out
}

func hasNaN(src []float64) bool {
	for _, v := range src {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func safeDiv(num, den float64) float64 {
	if den == 0 || math.IsNaN(num) || math.IsNaN(den) {
		return NaN
	}
	return num / den
}

// SMA is a rolling mean over window values. The first window-1 entries are
// NaN, as is any window that contains a NaN.
func SMA(src []float64, window int) []float64 {
	if window <= 1 {
		out := make([]float64, len(src))
		copy(out, src)
		return out
	}
	if len(src) < window {
		return nanSeries(len(src))
	}
	if !hasNaN(src) {
		out := talib.Sma(src, window)
		for i := 0; i < window-1; i++ {
			out[i] = NaN
		}
		return out
	}

	out := nanSeries(len(src))
	sum, bad := 0.0, 0
	for i, v := range src {
		if math.IsNaN(v) {
			bad++
		} else {
			sum += v
		}
		if i >= window {
			old := src[i-window]
			if math.IsNaN(old) {
				bad--
			} else {
				sum -= old
			}
		}
		if i >= window-1 && bad == 0 {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// EMA uses alpha = 2/(span+1) and is seeded with the first defined value, so
// it is defined from that index on.
func EMA(src []float64, span int) []float64 {
	out := nanSeries(len(src))
	if span < 1 {
		return out
	}
	alpha := 2.0 / float64(span+1)
	prev, seeded := 0.0, false
	for i, v := range src {
		if math.IsNaN(v) {
			if seeded {
				out[i] = prev
			}
			continue
		}
		if !seeded {
			prev, seeded = v, true
		} else {
			prev = alpha*v + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out
}

// RSI is 100 - 100/(1+rs) where rs is the rolling mean of gains over the
// rolling mean of losses. No losses with some gains gives 100; a flat
// window gives NaN.
func RSI(close []float64, window int) []float64 {
	n := len(close)
	gains, losses := nanSeries(n), nanSeries(n)
	for i := 1; i < n; i++ {
		d := close[i] - close[i-1]
		gains[i] = math.Max(d, 0)
		losses[i] = math.Max(-d, 0)
	}
	avgGain, avgLoss := SMA(gains, window), SMA(losses, window)

	out := nanSeries(n)
	for i := range out {
		g, l := avgGain[i], avgLoss[i]
		switch {
		case math.IsNaN(g) || math.IsNaN(l):
		case l == 0 && g == 0:
		case l == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+g/l)
		}
	}
	return out
}

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|); the first
// value has no previous close and is high-low.
func TrueRange(high, low, close []float64) []float64 {
	n := len(close)
	if n == 0 {
		return nil
	}
	if n == 1 {
		return []float64{high[0] - low[0]}
	}
	tr := talib.TRange(high, low, close)
	tr[0] = high[0] - low[0]
	return tr
}

// ATR is the rolling mean of the true range.
func ATR(high, low, close []float64, period int) []float64 {
	return SMA(TrueRange(high, low, close), period)
}

// ADX averages DX = 100*|+DI - -DI|/(+DI + -DI), where each DI is the rolling
// mean of its directional movement over ATR. Any zero denominator leaves the
// affected values NaN.
func ADX(high, low, close []float64, period int) []float64 {
	n := len(close)
	plusDM, minusDM := nanSeries(n), nanSeries(n)
	for i := 1; i < n; i++ {
		plusDM[i] = math.Max(high[i]-high[i-1], 0)
		minusDM[i] = math.Max(low[i-1]-low[i], 0)
	}
	atr := ATR(high, low, close, period)
	plusAvg, minusAvg := SMA(plusDM, period), SMA(minusDM, period)

	dx := nanSeries(n)
	for i := 0; i < n; i++ {
		pdi := 100 * safeDiv(plusAvg[i], atr[i])
		mdi := 100 * safeDiv(minusAvg[i], atr[i])
		dx[i] = 100 * safeDiv(math.Abs(pdi-mdi), pdi+mdi)
	}
	return SMA(dx, period)
}

// Bollinger returns the upper, middle and lower bands: SMA +/- nStd population
// standard deviations.
func Bollinger(close []float64, window int, nStd float64) (upper, mid, lower []float64) {
	n := len(close)
	mid = SMA(close, window)
	upper, lower = nanSeries(n), nanSeries(n)
	if window < 2 || n < window || hasNaN(close) {
		return upper, mid, lower
	}
	std := talib.StdDev(close, window, 1)
	for i := window - 1; i < n; i++ {
		upper[i] = mid[i] + nStd*std[i]
		lower[i] = mid[i] - nStd*std[i]
	}
	return upper, mid, lower
}

// MACD returns EMA(fast)-EMA(slow) and the EMA(signal) of that line.
func MACD(close []float64, fast, slow, signal int) (line, sig []float64) {
	f, s := EMA(close, fast), EMA(close, slow)
	line = make([]float64, len(close))
	for i := range line {
		line[i] = f[i] - s[i]
	}
	return line, EMA(line, signal)
}
