package notify

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"breakout-backtest/services/backtest"
	"breakout-backtest/services/engine"
	"breakout-backtest/services/signals"
)

var printer = message.NewPrinter(language.English)

func usd(v float64) string { return printer.Sprintf("$%.2f", v) }

func pctOf(part, whole float64) string {
	if whole == 0 {
		return "0.00%"
	}
	return decimal.NewFromFloat(part).Div(decimal.NewFromFloat(whole)).Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}

// FormatSignal renders a fired signal as Telegram HTML. It returns "" for
// a NONE inspection.
func FormatSignal(cfg backtest.Config, in signals.Inspection) string {
	var head string
	switch in.Signal {
	case signals.Long:
		head = "🟢 LONG SIGNAL - BUY NOW"
	case signals.Short:
		head = "🔴 SHORT SIGNAL - SELL NOW"
	default:
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>🚀 ATR BREAKOUT SIGNAL</b> %s %s\n", html.EscapeString(cfg.Symbol), html.EscapeString(cfg.Timeframe))
	fmt.Fprintf(&b, "⏰ Time: %s\n", in.Time.UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "💰 Price: %s\n", usd(in.Price))
	fmt.Fprintf(&b, "📊 Trend: %s\n\n", in.Trend)
	fmt.Fprintf(&b, "<b>%s</b>\n\n", head)
	fmt.Fprintf(&b, "💵 Entry: %s\n", usd(in.Price))
	fmt.Fprintf(&b, "🛑 Stop Loss: %s (%s)\n", usd(in.StopLoss), pctOf(in.StopLoss-in.Price, in.Price))
	fmt.Fprintf(&b, "🎯 Take Profit: %s (%s)\n", usd(in.TakeProfit), pctOf(in.TakeProfit-in.Price, in.Price))
	fmt.Fprintf(&b, "⚖️ Risk:Reward = 1:%g\n\n", cfg.Engine.TPRR)
	b.WriteString("<b>📈 Indicators:</b>\n")
	fmt.Fprintf(&b, "• EMA%d: %s\n", cfg.Indicators.EMAFast, usd(in.EMAFast))
	fmt.Fprintf(&b, "• EMA%d: %s\n", cfg.Indicators.EMASlow, usd(in.EMASlow))
	fmt.Fprintf(&b, "• ATR: %s\n", usd(in.ATR))
	fmt.Fprintf(&b, "• RSI: %.2f\n", in.RSI)
	fmt.Fprintf(&b, "• ADX: %.2f\n", in.ADX)
	b.WriteString(printer.Sprintf("• Volume: %.0f (%.2f× avg)\n\n", in.Volume, in.VolumeRatio))
	fmt.Fprintf(&b, "📝 %s\n", html.EscapeString(in.Reason))
	return b.String()
}

// FormatResult renders a run summary as Telegram HTML.
func FormatResult(name string, r engine.StrategyResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>📊 %s</b>\n", html.EscapeString(name))
	fmt.Fprintf(&b, "Trades: %d (W %d / L %d)\n", r.TradeCount, r.Wins, r.Losses)
	fmt.Fprintf(&b, "Win rate: %s%%\n", decimal.NewFromFloat(r.WinRate).Mul(decimal.NewFromInt(100)).StringFixed(2))
	fmt.Fprintf(&b, "Net PnL: %s\n", usd(r.TotalProfit))
	fmt.Fprintf(&b, "Avg win / loss: %s / %s\n", usd(r.AvgWin), usd(r.AvgLoss))
	fmt.Fprintf(&b, "Max drawdown: %s\n", usd(r.MaxDrawdown))
	fmt.Fprintf(&b, "Profit factor: %s\n", decimal.NewFromFloat(r.ProfitFactor).StringFixed(2))
	return b.String()
}

// FormatStartup announces a signal bot and its parameters.
func FormatStartup(cfg backtest.Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>🤖 %s bot started</b>\n", html.EscapeString(string(cfg.Signals.Kind)))
	fmt.Fprintf(&b, "Symbol: %s %s\n", html.EscapeString(cfg.Symbol), html.EscapeString(cfg.Timeframe))
	b.WriteString("\n<b>Strategy Parameters:</b>\n")
	fmt.Fprintf(&b, "• Breakout k: %g\n", cfg.Signals.BreakoutK)
	fmt.Fprintf(&b, "• SL: %g ATR, TP R:R %g\n", cfg.Engine.SLMult, cfg.Engine.TPRR)
	fmt.Fprintf(&b, "• RSI long %g-%g, short %g-%g\n", cfg.Signals.LongRSI.Min, cfg.Signals.LongRSI.Max, cfg.Signals.ShortRSI.Min, cfg.Signals.ShortRSI.Max)
	fmt.Fprintf(&b, "• Volume ×%g, ADX ≥ %g\n", cfg.Signals.Filters.VolumeMult, cfg.Signals.Filters.ADXThreshold)
	return b.String()
}
