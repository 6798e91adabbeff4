package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"breakout-backtest/services/backtest"
	"breakout-backtest/services/signals"
)

// SignalEntry is the JSON record written for every fired signal.
type SignalEntry struct {
	Timestamp      time.Time      `json:"timestamp"`
	Symbol         string         `json:"symbol"`
	Timeframe      string         `json:"timeframe"`
	Signal         string         `json:"signal"`
	CandleTime     time.Time      `json:"candle_time"`
	Price          float64        `json:"price"`
	StopLoss       float64        `json:"stop_loss"`
	TakeProfit     float64        `json:"take_profit"`
	Indicators     map[string]any `json:"indicators"`
	BreakoutLevels map[string]any `json:"breakout_levels"`
	Filters        map[string]any `json:"filters"`
	Trend          signals.Trend  `json:"trend"`
	RiskReward     map[string]any `json:"risk_reward"`
	StrategyParams map[string]any `json:"strategy_params"`
	Reason         string         `json:"signal_reason"`
}

// NewSignalEntry snapshots an inspection together with the parameters that
// produced it.
func NewSignalEntry(cfg backtest.Config, in signals.Inspection, now time.Time) SignalEntry {
	slDist := math.Abs(in.StopLoss - in.Price)
	tpDist := math.Abs(in.TakeProfit - in.Price)
	var slPct, tpPct float64
	if in.Price != 0 {
		slPct, tpPct = slDist/in.Price*100, tpDist/in.Price*100
	}
	return SignalEntry{
		Timestamp:  now.UTC(),
		Symbol:     cfg.Symbol,
		Timeframe:  cfg.Timeframe,
		Signal:     in.Direction,
		CandleTime: in.Time.UTC(),
		Price:      in.Price,
		StopLoss:   in.StopLoss,
		TakeProfit: in.TakeProfit,
		Indicators: map[string]any{
			"ema_fast": in.EMAFast, "ema_slow": in.EMASlow, "atr": in.ATR, "rsi": in.RSI, "adx": in.ADX,
		},
		BreakoutLevels: map[string]any{"long": in.LongLevel, "short": in.ShortLevel},
		Filters: map[string]any{
			"volume_ok": in.VolumeOK, "adx_ok": in.ADXOK, "volume": in.Volume,
			"volume_avg": in.VolumeAvg, "volume_ratio": in.VolumeRatio,
		},
		Trend: in.Trend,
		RiskReward: map[string]any{
			"ratio": cfg.Engine.TPRR, "stop_loss_distance": slDist, "take_profit_distance": tpDist,
			"stop_loss_pct": slPct, "take_profit_pct": tpPct,
		},
		StrategyParams: map[string]any{
			"breakout_k":        cfg.Signals.BreakoutK,
			"sl_mult":           cfg.Engine.SLMult,
			"tp_rr":             cfg.Engine.TPRR,
			"rsi_long_min":      cfg.Signals.LongRSI.Min,
			"rsi_long_max":      cfg.Signals.LongRSI.Max,
			"rsi_short_min":     cfg.Signals.ShortRSI.Min,
			"rsi_short_max":     cfg.Signals.ShortRSI.Max,
			"volume_multiplier": cfg.Signals.Filters.VolumeMult,
			"adx_threshold":     cfg.Signals.Filters.ADXThreshold,
		},
		Reason: in.Reason,
	}
}

// SignalLog appends indented JSON entries separated by a rule line. Only
// KindSignal messages carrying a SignalEntry are written.
type SignalLog struct {
	mu   sync.Mutex
	Path string
}

func (l *SignalLog) Notify(_ context.Context, msg Message) error {
	entry, ok := msg.Payload.(SignalEntry)
	if msg.Kind != KindSignal || !ok || entry.Signal == signals.None.String() {
		return nil
	}
	return l.Append(entry)
}

func (l *SignalLog) Append(e SignalEntry) error {
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode signal: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if dir := filepath.Dir(l.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open signal log: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%s\n\n%s\n\n", b, strings.Repeat("=", 80)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
