package server

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"breakout-backtest/services/candles"
)

// Source loads the candles of one symbol and interval with open time in
// [from, to). Zero bounds are open.
type Source interface {
	LoadCandles(ctx context.Context, symbol, interval string, from, to time.Time) ([]candles.Candle, error)
}

// CSVSource serves every file matching Pattern regardless of symbol, the way
// the CLI does for single-market data directories. Candles repeated across
// files keep the copy from the later file.
type CSVSource struct {
	Pattern string
	Logger  *zap.Logger
}

func (s CSVSource) LoadCandles(ctx context.Context, _, _ string, from, to time.Time) ([]candles.Candle, error) {
	paths, err := candles.Glob(s.Pattern)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files match %q", s.Pattern)
	}
	var all []candles.Candle
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cs, err := candles.LoadCSV(p)
		if err != nil {
			return nil, err
		}
		all = append(all, cs...)
	}
	candles.SortByTime(all)
	all, dropped := candles.Dedupe(all)
	if dropped > 0 && s.Logger != nil {
		s.Logger.Warn("Dropped duplicate candles",
			zap.String("pattern", s.Pattern),
			zap.Int("dropped", dropped),
		)
	}
	return window(all, from, to), nil
}

func window(cs []candles.Candle, from, to time.Time) []candles.Candle {
	out := cs[:0:0]
	for _, c := range cs {
		if !from.IsZero() && c.Time.Before(from) {
			continue
		}
		if !to.IsZero() && !c.Time.Before(to) {
			continue
		}
		out = append(out, c)
	}
	return out
}
