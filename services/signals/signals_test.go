package signals

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"breakout-backtest/services/candles"
	"breakout-backtest/services/indicators"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// readyBar is a bar in an uptrend whose close sits exactly on the long level.
func readyBar(i int) indicators.Bar {
	return indicators.Bar{
		Candle:     candles.Candle{Time: t0.Add(time.Duration(i) * time.Hour), Open: 100, High: 101, Low: 99, Close: 100, Volume: 30},
		EMAFast:    100,
		EMASlow:    95,
		ATR:        2,
		RSI:        60,
		ADX:        30,
		VolumeSMA:  10,
		BBUpper:    110,
		BBMid:      100,
		BBLower:    90,
		MACD:       0,
		MACDSignal: 0,
	}
}

func frameOf(n int) indicators.Frame {
	f := make(indicators.Frame, n)
	for i := range f {
		f[i] = readyBar(i)
	}
	return f
}

func testConfig(kind Kind) Config {
	cfg := DefaultConfig()
	cfg.Kind = kind
	cfg.StartIndex = 0
	return cfg
}

func TestRangeIsHalfOpen(t *testing.T) {
	r := Range{Min: 55, Max: 65}
	if !r.Contains(55) || r.Contains(65) || !r.Contains(64.999) || r.Contains(54.9) {
		t.Fatal("range should be [55, 65)")
	}
	if r.Contains(math.NaN()) {
		t.Fatal("NaN must never be inside a range")
	}
}

func TestBreakoutLongAndShort(t *testing.T) {
	f := frameOf(3)
	f[1].Close = 103 // above 100 + 1.2*2
	f[2].EMAFast, f[2].EMASlow = 100, 105
	f[2].Close = 97
	f[2].RSI = 40

	rule := ATRBreakout{Cfg: testConfig(KindATRBreakout)}
	got := rule.Generate(f)
	want := []Signal{None, Long, Short}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bar %d: want %v got %v", i, want[i], got[i])
		}
	}
}

func TestBreakoutRequiresStrictLevelCross(t *testing.T) {
	f := frameOf(1)
	f[0].Close = f[0].EMAFast + 1.2*f[0].ATR
	if got := (ATRBreakout{Cfg: testConfig(KindATRBreakout)}).Generate(f); got[0] != None {
		t.Fatalf("close on the level must not fire, got %v", got[0])
	}
}

func TestBreakoutRSIUpperBoundExcluded(t *testing.T) {
	f := frameOf(1)
	f[0].Close = 103
	f[0].RSI = 65
	if got := (ATRBreakout{Cfg: testConfig(KindATRBreakout)}).Generate(f); got[0] != None {
		t.Fatalf("RSI at band max must not fire, got %v", got[0])
	}
}

func TestBreakoutFilters(t *testing.T) {
	cfg := testConfig(KindATRBreakout)
	f := frameOf(2)
	f[0].Close, f[1].Close = 103, 103
	f[0].Volume = 20 // below 2.5 * 10
	f[1].ADX = 20

	if got := (ATRBreakout{Cfg: cfg}).Generate(f); got[0] != None || got[1] != None {
		t.Fatalf("filters should block both bars, got %v", got)
	}
	cfg.UseVolumeFilter, cfg.UseADXFilter = false, false
	if got := (ATRBreakout{Cfg: cfg}).Generate(f); got[0] != Long || got[1] != Long {
		t.Fatalf("disabled filters should let both fire, got %v", got)
	}
}

func TestBreakoutSidewaysAndUndefined(t *testing.T) {
	f := frameOf(2)
	f[0].EMASlow = f[0].EMAFast
	f[0].Close = 200
	f[1].ATR = math.NaN()
	f[1].Close = 200
	got := (ATRBreakout{Cfg: testConfig(KindATRBreakout)}).Generate(f)
	if got[0] != None || got[1] != None {
		t.Fatalf("sideways and undefined bars must be None, got %v", got)
	}
}

func TestBreakoutHonoursStartIndex(t *testing.T) {
	f := frameOf(4)
	for i := range f {
		f[i].Close = 103
	}
	cfg := testConfig(KindATRBreakout)
	cfg.StartIndex = 2
	got := (ATRBreakout{Cfg: cfg}).Generate(f)
	if got[0] != None || got[1] != None || got[2] != Long || got[3] != Long {
		t.Fatalf("unexpected signals %v", got)
	}
}

func TestEMACrossover(t *testing.T) {
	f := frameOf(5)
	diffs := []float64{-1, 1, 2, -1, -2}
	for i, d := range diffs {
		f[i].EMAFast = 100 + d
		f[i].EMASlow = 100
	}
	rule, err := New(testConfig(KindEMACrossover))
	if err != nil {
		t.Fatal(err)
	}
	got := rule.Generate(f)
	want := []Signal{None, Long, None, Short, None}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bar %d: want %v got %v (all %v)", i, want[i], got[i], got)
		}
	}
}

func TestCrossoverFirstBarNeverFires(t *testing.T) {
	f := frameOf(1)
	f[0].EMAFast = 101
	if got := (Crossover{Label: "ema", Cfg: testConfig(KindEMACrossover), Diff: emaDiff}).Generate(f); got[0] != None {
		t.Fatalf("first bar has no previous difference, got %v", got[0])
	}
}

func TestCrossoverSkipsUndefinedDiff(t *testing.T) {
	f := frameOf(3)
	f[0].MACD, f[0].MACDSignal = -1, 0
	f[1].MACD = math.NaN()
	f[2].MACD, f[2].MACDSignal = 1, 0
	got := (Crossover{Label: "macd", Cfg: testConfig(KindMACDCrossover), Diff: macdDiff}).Generate(f)
	if got[1] != None || got[2] != Long {
		t.Fatalf("cross should compare against last defined diff, got %v", got)
	}
}

func TestCrossoverFilteredBarStillAdvancesPrevious(t *testing.T) {
	f := frameOf(3)
	for i := range f {
		f[i].EMASlow = 100
	}
	f[0].EMAFast = 99
	f[1].EMAFast = 101
	f[1].ADX = 5
	f[2].EMAFast = 102
	cfg := testConfig(KindEMACrossover)
	got := (Crossover{Label: "ema", Cfg: cfg, Diff: emaDiff}).Generate(f)
	if got[1] != None || got[2] != None {
		t.Fatalf("filtered cross must be lost, got %v", got)
	}
	cfg.UseADXFilter = false
	if got := (Crossover{Label: "ema", Cfg: cfg, Diff: emaDiff}).Generate(f); got[1] != Long {
		t.Fatalf("expected long with the ADX gate off, got %v", got)
	}
}

func TestCrossoverVolatilityFilter(t *testing.T) {
	f := frameOf(2)
	f[0].EMAFast, f[0].EMASlow = 99, 100
	f[1].EMAFast, f[1].EMASlow = 101, 100
	f[1].ATR = 0.01 // 0.0001 of price
	cfg := testConfig(KindEMACrossover)
	if got := (Crossover{Label: "ema", Cfg: cfg, Diff: emaDiff}).Generate(f); got[1] != None {
		t.Fatalf("low volatility should block, got %v", got[1])
	}
	cfg.UseVolatilityFilter = false
	if got := (Crossover{Label: "ema", Cfg: cfg, Diff: emaDiff}).Generate(f); got[1] != Long {
		t.Fatalf("expected long with volatility gate off, got %v", got[1])
	}
}

func TestBollingerRSI(t *testing.T) {
	f := frameOf(3)
	f[0].Close, f[0].RSI = 90, 15
	f[1].Close, f[1].RSI = 110, 85
	f[2].Close, f[2].RSI = 90, 30
	got := (BollingerRSI{Cfg: testConfig(KindBollingerRSI)}).Generate(f)
	want := []Signal{Long, Short, None}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bar %d: want %v got %v", i, want[i], got[i])
		}
	}
}

func TestBollingerBandTolerance(t *testing.T) {
	f := frameOf(1)
	f[0].Close, f[0].RSI = 90.04, 10 // within 0.0005 of 90
	if got := (BollingerRSI{Cfg: testConfig(KindBollingerRSI)}).Generate(f); got[0] != Long {
		t.Fatalf("close within tolerance should fire, got %v", got[0])
	}
}

func TestTimeWindow(t *testing.T) {
	f := frameOf(24)
	for i := range f {
		f[i].Close = 103
	}
	cfg := testConfig(KindATRBreakout)
	cfg.Window = Window{Enabled: true, StartHour: 8, EndHour: 16}
	rule, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(rule.Name(), "+window") {
		t.Fatalf("expected wrapped rule, got %s", rule.Name())
	}
	got := rule.Generate(f)
	for i, s := range got {
		inside := i >= 8 && i < 16
		if inside != (s == Long) {
			t.Fatalf("hour %d: got %v", i, s)
		}
	}
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New(Config{Kind: "ichimoku"})
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestInspect(t *testing.T) {
	f := frameOf(3)
	f[2].Close = 103
	cfg := testConfig(KindATRBreakout)
	in, ok := Inspect(f, cfg, 1.0, 2.0)
	if !ok {
		t.Fatal("expected inspection")
	}
	if in.Signal != Long || in.Direction != "LONG" || in.Trend != Uptrend {
		t.Fatalf("unexpected inspection %+v", in)
	}
	if in.StopLoss != 101 || in.TakeProfit != 107 || in.VolumeRatio != 3 {
		t.Fatalf("unexpected levels %+v", in)
	}

	cfg.StartIndex = 10
	if _, ok := Inspect(f, cfg, 1, 2); ok {
		t.Fatal("short frame should not inspect")
	}
	f[2].RSI = math.NaN()
	if in, ok := Inspect(f, testConfig(KindATRBreakout), 1, 2); ok || in.Reason == "" {
		t.Fatalf("undefined bar should fail with reason, got %+v", in)
	}
}
