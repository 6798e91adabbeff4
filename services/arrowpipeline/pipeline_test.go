package arrowpipeline

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"

	"breakout-backtest/services/candles"
	"breakout-backtest/services/engine"
	"breakout-backtest/services/indicators"
)

func series(n int) []candles.Candle {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]candles.Candle, n)
	for i := range out {
		c := 100 + float64(i)
		out[i] = candles.Candle{Time: t0.Add(time.Duration(i) * 15 * time.Minute), Open: c - 0.5, High: c + 1, Low: c - 1, Close: c, Volume: 10 + float64(i)}
	}
	return out
}

func TestCandlesRoundTrip(t *testing.T) {
	p := NewPipeline(2, nil)
	in := series(5)
	data, err := p.EncodeCandles("BTC/USDT", in)
	if err != nil {
		t.Fatal(err)
	}

	r, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	batches := 0
	for r.Next() {
		batches++
	}
	r.Release()
	if batches != 3 {
		t.Fatalf("expected 3 record batches of at most 2 rows, got %d", batches)
	}

	sym, out, err := p.DecodeCandles(data)
	if err != nil {
		t.Fatal(err)
	}
	if sym != "BTC/USDT" || len(out) != len(in) {
		t.Fatalf("got %s with %d candles", sym, len(out))
	}
	for i := range in {
		got, want := out[i], in[i]
		if !got.Time.Equal(want.Time) || got.Open != want.Open || got.High != want.High ||
			got.Low != want.Low || got.Close != want.Close || got.Volume != want.Volume {
			t.Fatalf("candle %d differs: %+v vs %+v", i, out[i], in[i])
		}
	}
}

func TestFrameWritesNullsForWarmup(t *testing.T) {
	p := NewPipeline(0, nil)
	frame := indicators.Build(series(40), indicators.DefaultParams())
	data, err := p.EncodeFrame("ETH/USDT", frame)
	if err != nil {
		t.Fatal(err)
	}

	r, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Release()
	if !r.Next() {
		t.Fatal("no record")
	}
	rec := r.Record()
	if rec.NumRows() != 40 || int(rec.NumCols()) != len(candleFields)+len(indicatorFields) {
		t.Fatalf("unexpected shape %dx%d", rec.NumRows(), rec.NumCols())
	}
	sma := rec.Column(r.Schema().FieldIndices("volume_sma")[0]).(*array.Float64)
	if !sma.IsNull(0) {
		t.Fatal("first volume SMA should be null during warmup")
	}
	if sma.IsNull(39) || sma.Value(39) != frame[39].VolumeSMA {
		t.Fatalf("last volume SMA should be %v", frame[39].VolumeSMA)
	}
	if v, ok := r.Schema().Metadata().GetValue("symbol"); !ok || v != "ETH/USDT" {
		t.Fatalf("missing symbol metadata")
	}

	_, back, err := p.DecodeCandles(data)
	if err != nil || len(back) != 40 {
		t.Fatalf("frame stream should decode as candles: %v", err)
	}
}

func TestEncodeTrades(t *testing.T) {
	p := NewPipeline(0, nil)
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	trades := []engine.Trade{
		{EntryTime: t0, ExitTime: t0.Add(time.Hour), Direction: engine.Long, EntryPrice: 100, ExitPrice: 107, Quantity: 2.5, Profit: 16.1, ExitReason: engine.ExitTarget, BarsHeld: 4},
		{EntryTime: t0.Add(2 * time.Hour), ExitTime: t0.Add(3 * time.Hour), Direction: engine.Short, EntryPrice: 110, ExitPrice: 112, Quantity: 2.5, Profit: -6.4, ExitReason: engine.ExitStop, BarsHeld: 4},
	}
	data, err := p.EncodeTrades(trades)
	if err != nil {
		t.Fatal(err)
	}
	r, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Release()
	if !r.Next() {
		t.Fatal("no record")
	}
	rec := r.Record()
	dir := rec.Column(2).(*array.String)
	profit := rec.Column(8).(*array.Float64)
	if rec.NumRows() != 2 || dir.Value(1) != "SHORT" || profit.Value(0) != 16.1 {
		t.Fatalf("unexpected trade columns")
	}

	if _, _, err := p.DecodeCandles(data); !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
}

func TestEmptyStreamKeepsSchema(t *testing.T) {
	p := NewPipeline(0, nil)
	data, err := p.EncodeTrades(nil)
	if err != nil {
		t.Fatal(err)
	}
	r, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Release()
	if r.Next() || len(r.Schema().Fields()) != 12 {
		t.Fatal("expected schema-only stream")
	}
}
