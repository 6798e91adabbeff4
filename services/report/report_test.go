package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"breakout-backtest/services/engine"
)

func sampleTrades() []engine.Trade {
	t0 := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	return []engine.Trade{
		{EntryTime: t0, ExitTime: t0.Add(2 * time.Minute), Direction: engine.Long, EntryPrice: 1000, ExitPrice: 1020,
			Quantity: 0.5, Stop: 990, Target: 1020, ExitReason: engine.ExitTarget, BarsHeld: 2, Profit: 8.6},
		{EntryTime: t0.Add(5 * time.Minute), ExitTime: t0.Add(6 * time.Minute), Direction: engine.Short, EntryPrice: 1000, ExitPrice: 1010,
			Quantity: 0.5, Stop: 1010, Target: 980, ExitReason: engine.ExitStop, BarsHeld: 1, Profit: -6.4},
	}
}

func TestWriteTradesCSV(t *testing.T) {
	trades := sampleTrades()
	var buf bytes.Buffer
	if err := WriteTradesCSV(&buf, trades, engine.Summarize(trades)); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(buf.String(), "\n")
	if !strings.HasPrefix(lines[0], "entry_time_utc,exit_time_utc,direction") {
		t.Fatalf("unexpected header %q", lines[0])
	}
	want := "2024-02-01T10:00:00.000Z,2024-02-01T10:02:00.000Z,LONG,1000.0000,1020.0000,0.5,990.0000,1020.0000,take_profit,2,8.60,2.0000,false"
	if lines[1] != want {
		t.Fatalf("unexpected row\n got %s\nwant %s", lines[1], want)
	}
	if !strings.Contains(lines[2], ",SHORT,") || !strings.HasSuffix(lines[2], ",-6.40,-1.0000,false") {
		t.Fatalf("unexpected short row %q", lines[2])
	}
	out := buf.String()
	for _, s := range []string{"# Summary", "total_trades,2", "win_rate_pct,50.00", "net_pnl_usd,2.20", "avg_loss_usd,-6.40"} {
		if !strings.Contains(out, s) {
			t.Fatalf("summary missing %q:\n%s", s, out)
		}
	}
}

func TestExportCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	if err := ExportCSV(path, nil, engine.Summarize(nil)); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "total_trades,0") {
		t.Fatalf("unexpected file:\n%s", b)
	}
}

func TestFormatSummary(t *testing.T) {
	s := FormatSummary("atr_breakout", engine.Summarize(sampleTrades()))
	for _, want := range []string{"=== ATR_BREAKOUT ===", "Total Trades: 2 (long 1 / short 1)", "Win Rate: 50.00%", "Net PnL: $2.20", "Exits: stop_loss=1 take_profit=1"} {
		if !strings.Contains(s, want) {
			t.Fatalf("summary missing %q:\n%s", want, s)
		}
	}
}

func TestFormatOpen(t *testing.T) {
	if FormatOpen(nil, 0, time.Time{}) != "" {
		t.Fatal("nil position should render empty")
	}
	p := &engine.Position{Direction: engine.Long, EntryPrice: 100, Quantity: 2, Stop: 98, Target: 104}
	if s := FormatOpen(p, 101, time.Unix(0, 0)); !strings.Contains(s, "unrealized $2.00") {
		t.Fatalf("unexpected %q", s)
	}
}
