package indicators

import (
	"math"
	"testing"
	"time"

	"breakout-backtest/services/candles"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestSMAWarmupAndValues(t *testing.T) {
	out := SMA([]float64{1, 2, 3, 4, 5}, 3)
	if !math.IsNaN(out[0]) || !math.IsNaN(out[1]) {
		t.Fatalf("expected NaN warm-up, got %v", out[:2])
	}
	if !approx(out[2], 2) || !approx(out[4], 4) {
		t.Fatalf("unexpected SMA values: %v", out)
	}
}

func TestSMAWindowWithNaN(t *testing.T) {
	out := SMA([]float64{NaN, 2, 4, 6, NaN, 8, 10, 12}, 2)
	want := []float64{NaN, NaN, 3, 5, NaN, NaN, 9, 11}
	for i := range want {
		if math.IsNaN(want[i]) != math.IsNaN(out[i]) || (!math.IsNaN(want[i]) && !approx(want[i], out[i])) {
			t.Fatalf("index %d: want %v got %v", i, want[i], out[i])
		}
	}
}

func TestSMAShortInput(t *testing.T) {
	out := SMA([]float64{1, 2}, 5)
	if len(out) != 2 || !math.IsNaN(out[0]) || !math.IsNaN(out[1]) {
		t.Fatalf("expected all NaN, got %v", out)
	}
}

func TestEMASeededWithFirstValue(t *testing.T) {
	out := EMA([]float64{10, 20}, 3)
	if out[0] != 10 {
		t.Fatalf("expected seed 10, got %v", out[0])
	}
	// alpha = 0.5
	if !approx(out[1], 15) {
		t.Fatalf("expected 15, got %v", out[1])
	}
}

func TestRSIExtremes(t *testing.T) {
	up := []float64{1, 2, 3, 4, 5, 6}
	rsi := RSI(up, 3)
	if !math.IsNaN(rsi[2]) || rsi[3] != 100 {
		t.Fatalf("rising series: %v", rsi)
	}
	flat := []float64{5, 5, 5, 5, 5}
	for i, v := range RSI(flat, 3) {
		if !math.IsNaN(v) {
			t.Fatalf("flat series index %d should be NaN, got %v", i, v)
		}
	}
	mixed := RSI([]float64{10, 11, 10, 11}, 3)
	// gains 1,0,1 losses 0,1,0 -> rs 2 -> 66.67
	if !approx(mixed[3], 100-100/3.0) {
		t.Fatalf("expected %v got %v", 100-100/3.0, mixed[3])
	}
}

func TestTrueRangeAndATR(t *testing.T) {
	high := []float64{10, 12, 11}
	low := []float64{8, 9, 7}
	closes := []float64{9, 11, 8}
	tr := TrueRange(high, low, closes)
	if tr[0] != 2 || tr[1] != 3 || tr[2] != 4 {
		t.Fatalf("unexpected true range %v", tr)
	}
	atr := ATR(high, low, closes, 2)
	if !math.IsNaN(atr[0]) || !approx(atr[1], 2.5) || !approx(atr[2], 3.5) {
		t.Fatalf("unexpected ATR %v", atr)
	}
}

func TestADXFlatMarketIsUndefined(t *testing.T) {
	n := 40
	high, low, closes := make([]float64, n), make([]float64, n), make([]float64, n)
	for i := range closes {
		high[i], low[i], closes[i] = 100, 100, 100
	}
	for i, v := range ADX(high, low, closes, 14) {
		if !math.IsNaN(v) {
			t.Fatalf("index %d: expected NaN for zero ATR, got %v", i, v)
		}
	}
}

func TestADXTrendingMarket(t *testing.T) {
	n := 40
	high, low, closes := make([]float64, n), make([]float64, n), make([]float64, n)
	for i := range closes {
		base := 100 + float64(i)
		high[i], low[i], closes[i] = base+1, base-1, base
	}
	adx := ADX(high, low, closes, 14)
	if !math.IsNaN(adx[26]) {
		t.Fatalf("expected NaN before index 27, got %v", adx[26])
	}
	// only upward movement: +DI > 0, -DI = 0 -> DX = 100
	if !approx(adx[27], 100) || !approx(adx[n-1], 100) {
		t.Fatalf("expected ADX 100, got %v / %v", adx[27], adx[n-1])
	}
}

func TestBollingerConstantSeries(t *testing.T) {
	closes := []float64{5, 5, 5, 5}
	upper, mid, lower := Bollinger(closes, 3, 2)
	if !math.IsNaN(upper[1]) {
		t.Fatalf("expected warm-up NaN, got %v", upper[1])
	}
	if !approx(upper[3], 5) || !approx(mid[3], 5) || !approx(lower[3], 5) {
		t.Fatalf("unexpected bands %v %v %v", upper[3], mid[3], lower[3])
	}
}

func TestBollingerPopulationStd(t *testing.T) {
	closes := []float64{1, 3}
	upper, mid, lower := Bollinger(closes, 2, 1)
	// mean 2, population std 1
	if !approx(mid[1], 2) || !approx(upper[1], 3) || !approx(lower[1], 1) {
		t.Fatalf("unexpected bands %v %v %v", upper[1], mid[1], lower[1])
	}
}

func TestMACDLine(t *testing.T) {
	closes := []float64{1, 1, 1, 1}
	line, sig := MACD(closes, 2, 3, 2)
	for i := range line {
		if line[i] != 0 || sig[i] != 0 {
			t.Fatalf("flat input should give zero MACD, got %v %v", line, sig)
		}
	}
}

func TestBuildAlignsAndWarmup(t *testing.T) {
	p := DefaultParams()
	if p.Warmup() != 50 {
		t.Fatalf("expected warm-up 50, got %d", p.Warmup())
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cs := make([]candles.Candle, 80)
	for i := range cs {
		c := 100 + float64(i)
		cs[i] = candles.Candle{Time: base.Add(time.Duration(i) * time.Minute), Open: c, High: c + 2, Low: c - 2, Close: c, Volume: 10}
	}
	frame := Build(cs, p)
	if len(frame) != len(cs) {
		t.Fatalf("frame length %d != %d", len(frame), len(cs))
	}
	if frame[5].Ready() {
		t.Fatal("bar 5 should still be warming up")
	}
	if !frame[p.Warmup()].Ready() {
		t.Fatalf("bar %d should be ready: %+v", p.Warmup(), frame[p.Warmup()])
	}
	if frame[60].Close != cs[60].Close || frame.Candles()[60] != cs[60] {
		t.Fatal("frame misaligned with candles")
	}
}
