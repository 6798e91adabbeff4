package candles

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseStep accepts cadences like "5m", "15min", "1h" or a bare number of minutes.
func ParseStep(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	mult := time.Minute
	switch {
	case strings.HasSuffix(s, "min"):
		s = strings.TrimSuffix(s, "min")
	case strings.HasSuffix(s, "m"):
		s = strings.TrimSuffix(s, "m")
	case strings.HasSuffix(s, "h"):
		s = strings.TrimSuffix(s, "h")
		mult = time.Hour
	case strings.HasSuffix(s, "d"):
		s = strings.TrimSuffix(s, "d")
		mult = 24 * time.Hour
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidStep, s)
	}
	return time.Duration(n) * mult, nil
}

// Resample aggregates candles into epoch-aligned buckets of width step:
// open first, high max, low min, close last, volume summed.
// Input must already be sorted.
func Resample(cs []Candle, step time.Duration) ([]Candle, error) {
	if step <= 0 || step%time.Minute != 0 {
		return nil, ErrInvalidStep
	}
	stepMs := step.Milliseconds()
	out := make([]Candle, 0, len(cs)/int(step/time.Minute)+1)
	for _, c := range cs {
		bucket := (c.UnixMilli() / stepMs) * stepMs
		if n := len(out); n > 0 && out[n-1].UnixMilli() == bucket {
			agg := &out[n-1]
			if c.High > agg.High {
				agg.High = c.High
			}
			if c.Low < agg.Low {
				agg.Low = c.Low
			}
			agg.Close = c.Close
			agg.Volume += c.Volume
			continue
		}
		nb := c
		nb.Time = time.UnixMilli(bucket).UTC()
		out = append(out, nb)
	}
	return out, nil
}
