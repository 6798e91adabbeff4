package engine

import "errors"

// None of these abort a run. They are recorded in Diagnostics and the run
// returns whatever it produced.
var (
	ErrInsufficientData   = errors.New("insufficient data for indicator warm-up")
	ErrDegenerateRisk     = errors.New("stop distance is not positive")
	ErrUndefinedIndicator = errors.New("indicator undefined at candle")
	ErrNonMonotonic       = errors.New("candle timestamps not strictly increasing")
	ErrLengthMismatch     = errors.New("signal count does not match frame length")
)
