package backtest

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"breakout-backtest/services/candles"
	"breakout-backtest/services/engine"
	"breakout-backtest/services/signals"
)

// risingCandles climbs one point per minute with a constant 2-point range,
// so ATR settles at exactly 2 and RSI at 100.
func risingCandles(n int) []candles.Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cs := make([]candles.Candle, n)
	for i := range cs {
		c := 100 + float64(i)
		cs[i] = candles.Candle{Time: base.Add(time.Duration(i) * time.Minute), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 10}
	}
	return cs
}

func trendConfig() Config {
	cfg := DefaultConfig()
	cfg.Signals.UseVolumeFilter = false
	cfg.Signals.UseADXFilter = false
	cfg.Signals.LongRSI = signals.Range{Min: 0, Max: 101}
	return cfg
}

func TestRunRisingSeries(t *testing.T) {
	r, err := New(trendConfig())
	if err != nil {
		t.Fatal(err)
	}
	rep := r.Run(risingCandles(80))
	if rep.Diagnostics.Reason != nil {
		t.Fatalf("unexpected reason %v", rep.Diagnostics.Reason)
	}
	if len(rep.Trades) != 3 {
		t.Fatalf("expected 3 trades, got %d: %+v", len(rep.Trades), rep.Trades)
	}
	first := rep.Trades[0]
	if first.EntryPrice != 150 || first.ExitPrice != 157 || first.ExitReason != engine.ExitTarget {
		t.Fatalf("unexpected first trade %+v", first)
	}
	for _, tr := range rep.Trades {
		if math.Abs(tr.Profit-16.1) > 1e-9 {
			t.Fatalf("expected profit 16.1, got %v", tr.Profit)
		}
	}
	if rep.Open == nil || rep.Open.EntryIndex != 74 {
		t.Fatalf("expected a position still open from candle 74, got %+v", rep.Open)
	}
	if rep.Result.TradeCount != 3 || rep.Result.WinRate != 1 {
		t.Fatalf("unexpected result %+v", rep.Result)
	}
	if rep.DataChecksum == "" || rep.ConfigHash != r.Config().Hash() || len(rep.Frame) != 80 {
		t.Fatal("report metadata missing")
	}
	if rep.Events.Count(engine.EventEntry) != 4 {
		t.Fatalf("expected 4 entries in the log, got %d", rep.Events.Count(engine.EventEntry))
	}
}

func TestRunTwiceIsIdentical(t *testing.T) {
	r, err := New(trendConfig())
	if err != nil {
		t.Fatal(err)
	}
	cs := risingCandles(120)
	a, b := r.Run(cs), r.Run(cs)
	if !reflect.DeepEqual(a.Trades, b.Trades) || a.Result.TotalProfit != b.Result.TotalProfit {
		t.Fatal("runs differ")
	}
}

func TestRunInsufficientData(t *testing.T) {
	r, _ := New(DefaultConfig())
	rep := r.Run(risingCandles(40))
	if !errors.Is(rep.Diagnostics.Reason, engine.ErrInsufficientData) {
		t.Fatalf("expected insufficient data, got %v", rep.Diagnostics.Reason)
	}
	if len(rep.Trades) != 0 || rep.Result.TradeCount != 0 {
		t.Fatal("expected empty report")
	}
}

func TestRunNonMonotonic(t *testing.T) {
	r, _ := New(trendConfig())
	cs := risingCandles(80)
	cs[70], cs[71] = cs[71], cs[70]
	rep := r.Run(cs)
	if !errors.Is(rep.Diagnostics.Reason, engine.ErrNonMonotonic) || len(rep.Trades) != 0 {
		t.Fatalf("expected empty non-monotonic report, got %+v", rep.Diagnostics)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cases := map[string]func(*Config){
		"negative fee":      func(c *Config) { c.Engine.Fee = -1 },
		"zero sl mult":      func(c *Config) { c.Engine.SLMult = 0 },
		"zero risk":         func(c *Config) { c.Engine.RiskBudget = 0 },
		"bad stop mode":     func(c *Config) { c.Engine.StopMode = "ticks" },
		"inverted rsi band": func(c *Config) { c.Signals.LongRSI = signals.Range{Min: 70, Max: 60} },
		"ema order":         func(c *Config) { c.Indicators.EMAFast = 60 },
		"trailing mult":     func(c *Config) { c.Engine.Trailing = engine.Trailing{Enabled: true} },
		"unknown kind":      func(c *Config) { c.Signals.Kind = "ichimoku" },
		"empty window": func(c *Config) {
			c.Signals.Window = signals.Window{Enabled: true, StartHour: 10, EndHour: 10}
		},
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		_, err := New(cfg)
		var ce *ConfigError
		if !errors.As(err, &ce) || len(ce.Fields) == 0 {
			t.Errorf("%s: expected ConfigError, got %v", name, err)
		}
	}
	if _, err := New(DefaultConfig()); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestPresets(t *testing.T) {
	for _, kind := range []signals.Kind{signals.KindATRBreakout, signals.KindEMACrossover, signals.KindMACDCrossover, signals.KindBollingerRSI} {
		cfg, err := Preset(kind)
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("%s preset invalid: %v", kind, err)
		}
	}
	bb, _ := Preset(signals.KindBollingerRSI)
	if bb.Engine.StopMode != engine.StopPercent || bb.Engine.TPRR != 2.0 {
		t.Fatalf("unexpected bollinger preset %+v", bb.Engine)
	}
	if _, err := Preset("ichimoku"); !errors.Is(err, signals.ErrUnknownKind) {
		t.Fatalf("expected unknown kind, got %v", err)
	}
}

func TestWithPresetKeepsBaseFields(t *testing.T) {
	base := DefaultConfig()
	base.Symbol = "ETH/USDT"
	base.Engine.Fee = 0.2
	base.Engine.RiskBudget = 12
	base.Signals.UseVolumeFilter = false

	cfg, err := base.WithPreset(signals.KindEMACrossover)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Symbol != "ETH/USDT" || cfg.Engine.Fee != 0.2 || cfg.Engine.RiskBudget != 12 || cfg.Signals.UseVolumeFilter {
		t.Fatalf("preset overwrote base fields: %+v", cfg)
	}
	if cfg.Signals.Kind != signals.KindEMACrossover || cfg.Indicators.EMAFast != 9 || cfg.Engine.TPRR != 2.5 || cfg.Engine.StopMode != engine.StopPercent {
		t.Fatalf("preset fields not applied: %+v", cfg)
	}
	if base.Signals.Kind != signals.KindATRBreakout {
		t.Fatal("WithPreset must not modify its receiver")
	}
}

func TestHashTracksConfig(t *testing.T) {
	a, b := DefaultConfig(), DefaultConfig()
	if a.Hash() != b.Hash() {
		t.Fatal("equal configs must hash equally")
	}
	b.Engine.TPRR = 2
	if a.Hash() == b.Hash() {
		t.Fatal("hash ignored a parameter change")
	}
}

func TestManifestReproduces(t *testing.T) {
	cfg := trendConfig()
	cs := risingCandles(80)
	m := NewManifest("", cfg, cs)
	if m.JobID == "" || m.Candles != 80 || m.FirstCandle != cs[0].UnixMilli() {
		t.Fatalf("unexpected manifest %+v", m)
	}
	r, _ := New(cfg)
	if !m.Reproduces(r.Run(cs)) {
		t.Fatal("manifest should match its own run")
	}
	if m.Reproduces(r.Run(risingCandles(81))) {
		t.Fatal("different data must not match")
	}
}

func TestInspectLatestCandle(t *testing.T) {
	r, _ := New(trendConfig())
	in, ok := r.Inspect(risingCandles(80))
	if !ok || in.Signal != signals.Long || in.Trend != signals.Uptrend {
		t.Fatalf("unexpected inspection %+v", in)
	}
	if in.StopLoss != in.Price-2 || in.TakeProfit != in.Price+7 {
		t.Fatalf("unexpected levels %+v", in)
	}
	if _, ok := r.Inspect(risingCandles(10)); ok {
		t.Fatal("short input must not inspect")
	}
}
