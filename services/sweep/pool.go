// Package sweep runs many independent backtests over the same candles:
// exhaustive grids and the step-wise optimizer.
package sweep

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"breakout-backtest/services/backtest"
	"breakout-backtest/services/candles"
	"breakout-backtest/services/engine"
)

// Candidate is one configuration to evaluate.
type Candidate struct {
	Index  int             `json:"index"`
	Label  string          `json:"label"`
	Config backtest.Config `json:"config"`
}

// Outcome is a finished candidate.
type Outcome struct {
	Candidate
	Result engine.StrategyResult `json:"result"`
	Err    error                 `json:"-"`
}

// Pool fans candidates out over a fixed number of workers. Every worker builds
// its own Runner and Simulator; the candle slice is shared read-only.
type Pool struct {
	Workers  int
	Logger   *zap.Logger
	OnResult func(Outcome)
}

func (p Pool) workers(n int) int {
	w := p.Workers
	if w <= 0 {
		w = runtime.NumCPU()
	}
	if w > n {
		w = n
	}
	return w
}

// Run evaluates every candidate and returns the outcomes in candidate order.
// A cancelled context stops dispatch; the error is ctx.Err().
func (p Pool) Run(ctx context.Context, cs []candles.Candle, cands []Candidate) ([]Outcome, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cands) == 0 {
		return nil, nil
	}

	candChan := make(chan int, len(cands))
	resultChan := make(chan Outcome, len(cands))

	var wg sync.WaitGroup
	n := p.workers(len(cands))
	for i := 0; i < n; i++ {
		wg.Add(1)
		go p.worker(ctx, i, logger, cs, cands, candChan, resultChan, &wg)
	}

dispatch:
	for i := range cands {
		select {
		case <-ctx.Done():
			break dispatch
		case candChan <- i:
		}
	}
	close(candChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	out := make([]Outcome, len(cands))
	done := 0
	for o := range resultChan {
		out[o.Index] = o
		done++
		if p.OnResult != nil {
			p.OnResult(o)
		}
	}
	if err := ctx.Err(); err != nil {
		return out[:0], err
	}
	if done != len(cands) {
		return nil, fmt.Errorf("sweep finished %d of %d candidates", done, len(cands))
	}
	return out, nil
}

func (p Pool) worker(
	ctx context.Context,
	workerID int,
	logger *zap.Logger,
	cs []candles.Candle,
	cands []Candidate,
	candChan <-chan int,
	resultChan chan<- Outcome,
	wg *sync.WaitGroup,
) {
	defer wg.Done()

	for i := range candChan {
		if ctx.Err() != nil {
			return
		}
		c := cands[i]
		c.Index = i
		logger.Debug("Worker evaluating candidate",
			zap.Int("worker_id", workerID),
			zap.Int("index", i),
			zap.String("label", c.Label),
		)

		o := Outcome{Candidate: c}
		r, err := backtest.New(c.Config)
		if err != nil {
			o.Err = fmt.Errorf("candidate %d (%s): %w", i, c.Label, err)
		} else {
			o.Result = r.Run(cs).Result
		}
		resultChan <- o
	}
}
