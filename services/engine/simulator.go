// Package engine runs the single-position state machine over an indicator
// frame and aggregates the closed trades.
package engine

import (
	"math"

	"breakout-backtest/services/indicators"
	"breakout-backtest/services/signals"
)

// Diagnostics counts the non-fatal conditions met during a run.
type Diagnostics struct {
	Candles            int    `json:"candles"`
	Processed          int    `json:"processed"`
	UndefinedSkipped   int    `json:"undefined_skipped"`
	DegenerateRejected int    `json:"degenerate_rejected"`
	Reason             error  `json:"-"`
	ReasonText         string `json:"reason,omitempty"`
}

func (d *Diagnostics) fail(err error) {
	d.Reason = err
	d.ReasonText = err.Error()
}

// Outcome is everything a run produced. Open is the position still held when
// the data ran out, nil when flat or when CloseAtEnd closed it.
type Outcome struct {
	Trades      []Trade     `json:"trades"`
	Open        *Position   `json:"open,omitempty"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

type Simulator struct {
	cfg   Config
	log   *EventLog
	rules []exitRule
}

func NewSimulator(cfg Config, log *EventLog) *Simulator {
	return &Simulator{cfg: cfg, log: log, rules: exitRules(cfg)}
}

// Run folds the frame candle by candle. sigs must be aligned with frame.
// Entries and exits both fill at the candle close.
func (s *Simulator) Run(frame indicators.Frame, sigs []signals.Signal) Outcome {
	out := Outcome{Trades: []Trade{}, Diagnostics: Diagnostics{Candles: len(frame)}}
	if len(sigs) != len(frame) {
		out.Diagnostics.fail(ErrLengthMismatch)
		return out
	}
	for i := 1; i < len(frame); i++ {
		if !frame[i].Time.After(frame[i-1].Time) {
			out.Diagnostics.fail(ErrNonMonotonic)
			return out
		}
	}

	var pos *Position
	last := -1
	for i, b := range frame {
		if s.cfg.StopMode == StopATR && math.IsNaN(b.ATR) {
			out.Diagnostics.UndefinedSkipped++
			s.log.Append(Event{Ts: b.UnixMilli(), Index: i, Type: EventCandleSkipped, Details: map[string]string{
				"indicator": "atr",
				"error":     ErrUndefinedIndicator.Error(),
			}})
			continue
		}
		out.Diagnostics.Processed++
		last = i

		if pos != nil {
			if t, closed := s.step(pos, i, b, sigs[i]); closed {
				out.Trades = append(out.Trades, t)
				pos = nil
			}
			continue
		}

		dir, ok := directionOf(sigs[i])
		if !ok {
			continue
		}
		p, err := s.open(dir, i, b)
		if err != nil {
			out.Diagnostics.DegenerateRejected++
			s.log.Append(Event{Ts: b.UnixMilli(), Index: i, Type: EventEntryRejected, Details: map[string]string{
				"direction": dir.String(),
				"error":     err.Error(),
			}})
			continue
		}
		pos = p
	}

	if pos != nil {
		if s.cfg.CloseAtEnd && last >= 0 {
			t := s.close(pos, last, frame[last], ExitEndOfData)
			t.OpenEnded = true
			out.Trades = append(out.Trades, t)
		} else {
			out.Open = pos
		}
	}
	return out
}

// open sizes a new position so that hitting the initial stop loses RiskBudget.
func (s *Simulator) open(dir Direction, i int, b indicators.Bar) (*Position, error) {
	entry := b.Close
	sign := dir.Sign()

	var stop, target float64
	switch s.cfg.StopMode {
	case StopPercent:
		stop = entry * (1 - sign*s.cfg.StopPct)
		target = entry * (1 + sign*s.cfg.StopPct*s.cfg.TPRR)
	default:
		stop = entry - sign*s.cfg.SLMult*b.ATR
		target = entry + sign*s.cfg.TPRR*b.ATR
	}

	risk := math.Abs(entry - stop)
	if !(risk > 0) || math.IsInf(risk, 0) {
		return nil, ErrDegenerateRisk
	}

	p := &Position{
		Direction:       dir,
		EntryPrice:      entry,
		EntryTime:       b.Time,
		EntryIndex:      i,
		Stop:            stop,
		InitialStop:     stop,
		Target:          target,
		Quantity:        s.cfg.RiskBudget / risk,
		TrailingExtreme: entry,
	}
	s.log.Append(Event{Ts: b.UnixMilli(), Index: i, Type: EventEntry, Details: map[string]string{
		"direction": dir.String(),
		"price":     fmtFloat(entry),
		"stop":      fmtFloat(stop),
		"target":    fmtFloat(target),
		"quantity":  fmtFloat(p.Quantity),
	}})
	return p, nil
}

// step advances an open position by one candle.
func (s *Simulator) step(p *Position, i int, b indicators.Bar, sig signals.Signal) (Trade, bool) {
	if s.cfg.Trailing.Enabled && ratchet(p, b, s.cfg.Trailing.Mult) {
		s.log.Append(Event{Ts: b.UnixMilli(), Index: i, Type: EventStopMoved, Details: map[string]string{
			"stop": fmtFloat(p.Stop),
		}})
	}
	for _, r := range s.rules {
		if r.hit(p, b, sig) {
			return s.close(p, i, b, r.reason), true
		}
	}
	return Trade{}, false
}

func (s *Simulator) close(p *Position, i int, b indicators.Bar, reason ExitReason) Trade {
	t := Trade{
		EntryTime:  p.EntryTime,
		EntryPrice: p.EntryPrice,
		ExitTime:   b.Time,
		ExitPrice:  b.Close,
		Direction:  p.Direction,
		Quantity:   p.Quantity,
		Profit:     p.Unrealized(b.Close) - s.cfg.Fee,
		Stop:       p.Stop,
		Target:     p.Target,
		ExitReason: reason,
		BarsHeld:   i - p.EntryIndex,
	}
	s.log.Append(Event{Ts: b.UnixMilli(), Index: i, Type: EventExit, Details: map[string]string{
		"reason": string(reason),
		"price":  fmtFloat(b.Close),
		"profit": fmtFloat(t.Profit),
	}})
	return t
}
