package engine

import (
	"breakout-backtest/services/indicators"
	"breakout-backtest/services/signals"
)

// exitRule is one exit predicate. Rules are evaluated in slice order and the
// first hit closes the position.
type exitRule struct {
	reason ExitReason
	hit    func(p *Position, b indicators.Bar, sig signals.Signal) bool
}

func exitRules(cfg Config) []exitRule {
	rules := make([]exitRule, 0, 4)
	if cfg.EarlyExit.Enabled {
		mid := cfg.EarlyExit.Midline
		rules = append(rules, exitRule{ExitEarly, func(p *Position, b indicators.Bar, _ signals.Signal) bool {
			if p.Direction == Long {
				return b.RSI < mid
			}
			return b.RSI > mid
		}})
	}
	return append(rules,
		exitRule{ExitStop, stopHit},
		exitRule{ExitTarget, targetHit},
		exitRule{ExitReversal, reversalHit},
	)
}

func stopHit(p *Position, b indicators.Bar, _ signals.Signal) bool {
	if p.Direction == Long {
		return b.Close <= p.Stop
	}
	return b.Close >= p.Stop
}

func targetHit(p *Position, b indicators.Bar, _ signals.Signal) bool {
	if p.Direction == Long {
		return b.Close >= p.Target
	}
	return b.Close <= p.Target
}

func reversalHit(p *Position, _ indicators.Bar, sig signals.Signal) bool {
	d, ok := directionOf(sig)
	return ok && d != p.Direction
}

// ratchet tightens the stop toward the best close seen since entry. It
// reports whether the stop moved. An undefined ATR leaves the stop alone.
func ratchet(p *Position, b indicators.Bar, mult float64) bool {
	if p.Direction == Long {
		if b.Close > p.TrailingExtreme {
			p.TrailingExtreme = b.Close
		}
		if cand := p.TrailingExtreme - mult*b.ATR; cand > p.Stop {
			p.Stop = cand
			return true
		}
		return false
	}
	if b.Close < p.TrailingExtreme {
		p.TrailingExtreme = b.Close
	}
	if cand := p.TrailingExtreme + mult*b.ATR; cand < p.Stop {
		p.Stop = cand
		return true
	}
	return false
}
