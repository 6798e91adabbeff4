// Package report renders trades and summaries for people: CSV exports and
// console text.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"breakout-backtest/services/engine"
)

const timeLayout = "2006-01-02T15:04:05.000Z"

func money(v float64) string { return decimal.NewFromFloat(v).StringFixed(2) }

func price(v float64) string { return decimal.NewFromFloat(v).StringFixed(4) }

func qty(v float64) string { return decimal.NewFromFloat(v).Round(8).String() }

func pct(v float64) string { return decimal.NewFromFloat(v).Mul(decimal.NewFromInt(100)).StringFixed(2) }

// WriteTradesCSV writes one row per trade followed by a "# Summary" block.
func WriteTradesCSV(w io.Writer, trades []engine.Trade, result engine.StrategyResult) error {
	writer := csv.NewWriter(w)

	header := []string{
		"entry_time_utc", "exit_time_utc", "direction", "entry_price", "exit_price",
		"quantity", "stop", "target", "exit_reason", "bars_held", "pnl_usd", "pnl_pct", "open_ended",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, t := range trades {
		pnlPct := decimal.Zero
		if t.EntryPrice != 0 {
			move := decimal.NewFromFloat(t.ExitPrice).Sub(decimal.NewFromFloat(t.EntryPrice))
			pnlPct = move.Div(decimal.NewFromFloat(t.EntryPrice)).Mul(decimal.NewFromInt(int64(t.Direction) * 100))
		}
		record := []string{
			t.EntryTime.UTC().Format(timeLayout),
			t.ExitTime.UTC().Format(timeLayout),
			t.Direction.String(),
			price(t.EntryPrice),
			price(t.ExitPrice),
			qty(t.Quantity),
			price(t.Stop),
			price(t.Target),
			string(t.ExitReason),
			strconv.Itoa(t.BarsHeld),
			money(t.Profit),
			pnlPct.StringFixed(4),
			strconv.FormatBool(t.OpenEnded),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	summary := [][]string{
		{""},
		{"# Summary"},
		{"total_trades", strconv.Itoa(result.TradeCount)},
		{"wins", strconv.Itoa(result.Wins)},
		{"losses", strconv.Itoa(result.Losses)},
		{"win_rate_pct", pct(result.WinRate)},
		{"net_pnl_usd", money(result.TotalProfit)},
		{"avg_win_usd", money(result.AvgWin)},
		{"avg_loss_usd", money(result.AvgLoss)},
		{"expectancy", money(result.Expectancy)},
		{"max_drawdown_usd", money(result.MaxDrawdown)},
		{"profit_factor", decimal.NewFromFloat(result.ProfitFactor).StringFixed(3)},
		{"avg_bars_held", decimal.NewFromFloat(result.AvgBarsHeld).StringFixed(1)},
	}
	if err := writer.WriteAll(summary); err != nil {
		return err
	}
	return writer.Error()
}

// ExportCSV writes the trade CSV to filename.
func ExportCSV(filename string, trades []engine.Trade, result engine.StrategyResult) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := WriteTradesCSV(file, trades, result); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// FormatSummary renders the console summary of a run.
func FormatSummary(name string, r engine.StrategyResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n=== %s ===\n", strings.ToUpper(name))
	fmt.Fprintf(&b, "Total Trades: %d (long %d / short %d)\n", r.TradeCount, r.LongCount, r.ShortCount)
	fmt.Fprintf(&b, "Wins: %d\n", r.Wins)
	fmt.Fprintf(&b, "Losses: %d\n", r.Losses)
	fmt.Fprintf(&b, "Win Rate: %s%%\n", pct(r.WinRate))
	fmt.Fprintf(&b, "Net PnL: $%s\n", money(r.TotalProfit))
	fmt.Fprintf(&b, "Average Win: $%s\n", money(r.AvgWin))
	fmt.Fprintf(&b, "Average Loss: $%s\n", money(r.AvgLoss))
	fmt.Fprintf(&b, "Expectancy: $%s\n", money(r.Expectancy))
	fmt.Fprintf(&b, "Max Drawdown: $%s\n", money(r.MaxDrawdown))
	fmt.Fprintf(&b, "Profit Factor: %s\n", decimal.NewFromFloat(r.ProfitFactor).StringFixed(3))
	if len(r.ExitCounts) > 0 {
		reasons := make([]string, 0, len(r.ExitCounts))
		for k := range r.ExitCounts {
			reasons = append(reasons, string(k))
		}
		sort.Strings(reasons)
		parts := make([]string, len(reasons))
		for i, k := range reasons {
			parts[i] = fmt.Sprintf("%s=%d", k, r.ExitCounts[engine.ExitReason(k)])
		}
		fmt.Fprintf(&b, "Exits: %s\n", strings.Join(parts, " "))
	}
	b.WriteString("===================\n")
	return b.String()
}

// FormatOpen describes a position left open at the end of the data.
func FormatOpen(p *engine.Position, last float64, at time.Time) string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("Open %s since %s at %s, stop %s, target %s, unrealized $%s at %s",
		p.Direction, p.EntryTime.UTC().Format(timeLayout), price(p.EntryPrice),
		price(p.Stop), price(p.Target), money(p.Unrealized(last)), at.UTC().Format(timeLayout))
}
