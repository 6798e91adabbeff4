package engine

// StrategyResult summarizes a trade sequence. Every rate and average is 0 for
// an empty sequence.
type StrategyResult struct {
	TotalProfit  float64            `json:"total_profit"`
	TradeCount   int                `json:"trade_count"`
	Wins         int                `json:"wins"`
	Losses       int                `json:"losses"`
	WinRate      float64            `json:"win_rate"`
	AvgWin       float64            `json:"avg_win"`
	AvgLoss      float64            `json:"avg_loss"`
	GrossProfit  float64            `json:"gross_profit"`
	GrossLoss    float64            `json:"gross_loss"`
	ProfitFactor float64            `json:"profit_factor"`
	Expectancy   float64            `json:"expectancy"`
	MaxDrawdown  float64            `json:"max_drawdown"`
	AvgBarsHeld  float64            `json:"avg_bars_held"`
	LongCount    int                `json:"long_count"`
	ShortCount   int                `json:"short_count"`
	ExitCounts   map[ExitReason]int `json:"exit_counts"`
}

// Summarize aggregates trades. A trade wins only with strictly positive
// profit; break-even trades count as losses. AvgLoss is the mean of the
// non-positive profits and so is never positive. GrossLoss is reported as a
// magnitude. MaxDrawdown is the deepest fall of cumulative profit from its
// running peak, starting from zero.
func Summarize(trades []Trade) StrategyResult {
	r := StrategyResult{ExitCounts: map[ExitReason]int{}}
	if len(trades) == 0 {
		return r
	}

	var lossSum, equity, peak float64
	var bars int
	for _, t := range trades {
		r.TotalProfit += t.Profit
		if t.Profit > 0 {
			r.Wins++
			r.GrossProfit += t.Profit
		} else {
			r.Losses++
			lossSum += t.Profit
		}
		if t.Direction == Long {
			r.LongCount++
		} else {
			r.ShortCount++
		}
		r.ExitCounts[t.ExitReason]++
		bars += t.BarsHeld

		equity += t.Profit
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > r.MaxDrawdown {
			r.MaxDrawdown = dd
		}
	}

	r.TradeCount = len(trades)
	r.WinRate = float64(r.Wins) / float64(r.TradeCount)
	r.GrossLoss = -lossSum
	if r.Wins > 0 {
		r.AvgWin = r.GrossProfit / float64(r.Wins)
	}
	if r.Losses > 0 {
		r.AvgLoss = lossSum / float64(r.Losses)
	}
	if r.GrossLoss > 0 {
		r.ProfitFactor = r.GrossProfit / r.GrossLoss
	}
	r.Expectancy = r.WinRate*r.AvgWin + (1-r.WinRate)*r.AvgLoss
	r.AvgBarsHeld = float64(bars) / float64(r.TradeCount)
	return r
}
