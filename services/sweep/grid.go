package sweep

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"breakout-backtest/services/backtest"
	"breakout-backtest/services/candles"
	"breakout-backtest/services/signals"
)

// Grid lists the values to try per parameter. An empty list keeps the base
// config's value.
type Grid struct {
	BreakoutK    []float64       `json:"breakout_k" yaml:"breakout_k"`
	SLMult       []float64       `json:"sl_mult" yaml:"sl_mult"`
	TPRR         []float64       `json:"tp_rr" yaml:"tp_rr"`
	VolumeMult   []float64       `json:"volume_mult" yaml:"volume_mult"`
	ADXThreshold []float64       `json:"adx_threshold" yaml:"adx_threshold"`
	TrailingMult []float64       `json:"trailing_mult" yaml:"trailing_mult"`
	LongRSI      []signals.Range `json:"long_rsi" yaml:"long_rsi"`
	ShortRSI     []signals.Range `json:"short_rsi" yaml:"short_rsi"`
}

type axis struct {
	name  string
	n     int
	apply func(c *backtest.Config, i int) string
}

func floatAxis(name string, vals []float64, set func(*backtest.Config, float64)) axis {
	return axis{name: name, n: len(vals), apply: func(c *backtest.Config, i int) string {
		set(c, vals[i])
		return fmt.Sprintf("%s=%g", name, vals[i])
	}}
}

func rangeAxis(name string, vals []signals.Range, set func(*backtest.Config, signals.Range)) axis {
	return axis{name: name, n: len(vals), apply: func(c *backtest.Config, i int) string {
		set(c, vals[i])
		return fmt.Sprintf("%s=%g-%g", name, vals[i].Min, vals[i].Max)
	}}
}

func (g Grid) axes() []axis {
	all := []axis{
		floatAxis("k", g.BreakoutK, func(c *backtest.Config, v float64) { c.Signals.BreakoutK = v }),
		floatAxis("sl", g.SLMult, func(c *backtest.Config, v float64) { c.Engine.SLMult = v }),
		floatAxis("rr", g.TPRR, func(c *backtest.Config, v float64) { c.Engine.TPRR = v }),
		floatAxis("vol", g.VolumeMult, func(c *backtest.Config, v float64) { c.Signals.Filters.VolumeMult = v }),
		floatAxis("adx", g.ADXThreshold, func(c *backtest.Config, v float64) { c.Signals.Filters.ADXThreshold = v }),
		floatAxis("trail", g.TrailingMult, func(c *backtest.Config, v float64) { c.Engine.Trailing.Mult = v }),
		rangeAxis("rsi_long", g.LongRSI, func(c *backtest.Config, r signals.Range) { c.Signals.LongRSI = r }),
		rangeAxis("rsi_short", g.ShortRSI, func(c *backtest.Config, r signals.Range) { c.Signals.ShortRSI = r }),
	}
	out := all[:0]
	for _, a := range all {
		if a.n > 0 {
			out = append(out, a)
		}
	}
	return out
}

// MaxCandidates bounds how many configurations one grid may expand to.
const MaxCandidates = 100000

// ErrGridTooLarge is returned for grids above MaxCandidates.
var ErrGridTooLarge = errors.New("grid too large")

// Size is the number of candidates Expand produces. Products that would
// overflow saturate at math.MaxInt.
func (g Grid) Size() int {
	n := 1
	for _, a := range g.axes() {
		if n > math.MaxInt/a.n {
			return math.MaxInt
		}
		n *= a.n
	}
	return n
}

// Expand returns the cartesian product applied on top of base. The last
// listed parameter varies fastest. Grids above MaxCandidates expand to nil.
func (g Grid) Expand(base backtest.Config) []Candidate {
	if g.Size() > MaxCandidates {
		return nil
	}
	axes := g.axes()
	out := make([]Candidate, 0, g.Size())
	idx := make([]int, len(axes))
	for {
		cfg := base
		labels := make([]string, len(axes))
		for a := range axes {
			labels[a] = axes[a].apply(&cfg, idx[a])
		}
		label := strings.Join(labels, " ")
		if label == "" {
			label = "base"
		}
		out = append(out, Candidate{Index: len(out), Label: label, Config: cfg})

		a := len(axes) - 1
		for ; a >= 0; a-- {
			idx[a]++
			if idx[a] < axes[a].n {
				break
			}
			idx[a] = 0
		}
		if a < 0 {
			return out
		}
	}
}

// Options filter and trim a grid ranking.
type Options struct {
	MinTrades int `json:"min_trades" yaml:"min_trades"`
	MaxTrades int `json:"max_trades" yaml:"max_trades"`
	Top       int `json:"top" yaml:"top"`
}

func (o Options) admits(trades int) bool {
	if trades < o.MinTrades {
		return false
	}
	return o.MaxTrades <= 0 || trades <= o.MaxTrades
}

// RunGrid evaluates the grid and ranks admitted outcomes by total profit,
// highest first, ties in candidate order. Candidates whose config fails
// validation are dropped from the ranking.
func RunGrid(ctx context.Context, pool Pool, cs []candles.Candle, base backtest.Config, g Grid, opts Options) ([]Outcome, error) {
	if n := g.Size(); n > MaxCandidates {
		return nil, fmt.Errorf("%w: %d candidates, limit is %d", ErrGridTooLarge, n, MaxCandidates)
	}
	outs, err := pool.Run(ctx, cs, g.Expand(base))
	if err != nil {
		return nil, err
	}
	ranked := make([]Outcome, 0, len(outs))
	for _, o := range outs {
		if o.Err == nil && opts.admits(o.Result.TradeCount) {
			ranked = append(ranked, o)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Result.TotalProfit > ranked[j].Result.TotalProfit
	})
	if opts.Top > 0 && len(ranked) > opts.Top {
		ranked = ranked[:opts.Top]
	}
	return ranked, nil
}

// GridFile is the on-disk form of a grid sweep.
type GridFile struct {
	Grid    Grid    `yaml:"grid"`
	Options Options `yaml:"options"`
}

// LoadGrid reads a YAML grid file.
func LoadGrid(path string) (GridFile, error) {
	var f GridFile
	b, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("failed to read grid file: %w", err)
	}
	if err := yaml.Unmarshal(b, &f); err != nil {
		return f, fmt.Errorf("failed to parse grid file %s: %w", path, err)
	}
	if n := f.Grid.Size(); n > MaxCandidates {
		return f, fmt.Errorf("%w: %s expands to %d candidates", ErrGridTooLarge, path, n)
	}
	return f, nil
}
