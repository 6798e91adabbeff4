// Package candles holds the OHLCV record consumed by the backtester and the
// helpers that load, order-check and resample candle series.
package candles

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

var (
	ErrEmptyInput   = errors.New("no candles parsed")
	ErrNonMonotonic = errors.New("candle timestamps are not strictly increasing")
	ErrInvalidStep  = errors.New("resample step must be a positive multiple of a minute")
)

// Candle represents one OHLCV bar. Treat it as immutable once loaded.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// UnixMilli returns the bar open time in epoch milliseconds.
func (c Candle) UnixMilli() int64 { return c.Time.UnixMilli() }

// SortByTime orders candles ascending by open time.
func SortByTime(cs []Candle) {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].Time.Before(cs[j].Time) })
}

// Dedupe drops candles sharing an open time with their successor, so the
// last copy wins. cs must be sorted. It returns the kept slice and the number
// dropped.
func Dedupe(cs []Candle) ([]Candle, int) {
	if len(cs) < 2 {
		return cs, 0
	}
	out := cs[:0]
	for i, c := range cs {
		if i+1 < len(cs) && cs[i+1].Time.Equal(c.Time) {
			continue
		}
		out = append(out, c)
	}
	return out, len(cs) - len(out)
}

// CheckOrder reports ErrNonMonotonic when two consecutive candles are not
// strictly increasing in time.
func CheckOrder(cs []Candle) error {
	for i := 1; i < len(cs); i++ {
		if !cs[i].Time.After(cs[i-1].Time) {
			return fmt.Errorf("%w: index %d (%s) follows %s", ErrNonMonotonic, i,
				cs[i].Time.UTC().Format(time.RFC3339), cs[i-1].Time.UTC().Format(time.RFC3339))
		}
	}
	return nil
}

// DetectGaps returns the open time of every candle that is followed by a
// jump larger than step. Gaps are tolerated by the engine; this is reporting only.
func DetectGaps(cs []Candle, step time.Duration) (gaps []time.Time) {
	for i := 1; i < len(cs); i++ {
		if cs[i].Time.Sub(cs[i-1].Time) > step {
			gaps = append(gaps, cs[i-1].Time)
		}
	}
	return gaps
}

// Checksum fingerprints a candle series so cached results can be tied to the
// exact data they were computed from.
func Checksum(cs []Candle) string {
	h := sha256.New()
	var buf [8]byte
	for _, c := range cs {
		binary.LittleEndian.PutUint64(buf[:], uint64(c.Time.UnixMilli()))
		h.Write(buf[:])
		for _, v := range [...]float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			h.Write(buf[:])
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Column extracts one field of every candle into a new slice.
func Column(cs []Candle, field func(Candle) float64) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = field(c)
	}
	return out
}

func Opens(c Candle) float64   { return c.Open }
func Highs(c Candle) float64   { return c.High }
func Lows(c Candle) float64    { return c.Low }
func Closes(c Candle) float64  { return c.Close }
func Volumes(c Candle) float64 { return c.Volume }
