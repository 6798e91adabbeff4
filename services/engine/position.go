package engine

import (
	"fmt"
	"time"

	"breakout-backtest/services/signals"
)

type Direction int8

const (
	Long  Direction = 1
	Short Direction = -1
)

func (d Direction) Sign() float64 { return float64(d) }

func (d Direction) String() string {
	if d == Short {
		return "SHORT"
	}
	return "LONG"
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "LONG":
		*d = Long
	case "SHORT":
		*d = Short
	default:
		return fmt.Errorf("unknown direction %q", b)
	}
	return nil
}

// directionOf maps an entry signal onto a position side.
func directionOf(s signals.Signal) (Direction, bool) {
	switch s {
	case signals.Long:
		return Long, true
	case signals.Short:
		return Short, true
	}
	return 0, false
}

type ExitReason string

const (
	ExitEarly     ExitReason = "early_exit"
	ExitStop      ExitReason = "stop_loss"
	ExitTarget    ExitReason = "take_profit"
	ExitReversal  ExitReason = "reversal"
	ExitEndOfData ExitReason = "end_of_data"
)

// Position is the single open trade. Stop may only move in the protective
// direction once set.
type Position struct {
	Direction       Direction `json:"direction"`
	EntryPrice      float64   `json:"entry_price"`
	EntryTime       time.Time `json:"entry_time"`
	EntryIndex      int       `json:"entry_index"`
	Stop            float64   `json:"stop"`
	InitialStop     float64   `json:"initial_stop"`
	Target          float64   `json:"target"`
	Quantity        float64   `json:"quantity"`
	TrailingExtreme float64   `json:"trailing_extreme"`
}

// Risk is the entry-to-initial-stop distance.
func (p Position) Risk() float64 {
	r := p.EntryPrice - p.InitialStop
	if r < 0 {
		return -r
	}
	return r
}

// Unrealized is the mark-to-market profit at price, before fees.
func (p Position) Unrealized(price float64) float64 {
	return (price - p.EntryPrice) * p.Quantity * p.Direction.Sign()
}

// Trade is a closed position.
type Trade struct {
	EntryTime  time.Time  `json:"entry_time"`
	EntryPrice float64    `json:"entry_price"`
	ExitTime   time.Time  `json:"exit_time"`
	ExitPrice  float64    `json:"exit_price"`
	Direction  Direction  `json:"direction"`
	Quantity   float64    `json:"quantity"`
	Profit     float64    `json:"profit"`
	Stop       float64    `json:"stop"`
	Target     float64    `json:"target"`
	ExitReason ExitReason `json:"exit_reason"`
	BarsHeld   int        `json:"bars_held"`
	OpenEnded  bool       `json:"open_ended"`
}
