package sweep

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"breakout-backtest/services/backtest"
	"breakout-backtest/services/candles"
	"breakout-backtest/services/engine"
	"breakout-backtest/services/signals"
)

// RSIPair is one long/short RSI band combination.
type RSIPair struct {
	Long  signals.Range `json:"long" yaml:"long"`
	Short signals.Range `json:"short" yaml:"short"`
}

// Start is the optimizer's initial point.
type Start struct {
	BreakoutK  float64       `json:"breakout_k" yaml:"breakout_k"`
	TPRR       float64       `json:"tp_rr" yaml:"tp_rr"`
	LongRSI    signals.Range `json:"long_rsi" yaml:"long_rsi"`
	ShortRSI   signals.Range `json:"short_rsi" yaml:"short_rsi"`
	VolumeMult float64       `json:"volume_mult" yaml:"volume_mult"`
	ADX        float64       `json:"adx" yaml:"adx"`
}

// Plan drives Optimize. Steps run in order: reward:risk, breakout k, RSI
// bands, then volume x ADX jointly.
type Plan struct {
	Start     Start     `json:"start" yaml:"start"`
	TPRR      []float64 `json:"tp_rr" yaml:"tp_rr"`
	BreakoutK []float64 `json:"breakout_k" yaml:"breakout_k"`
	RSI       []RSIPair `json:"rsi" yaml:"rsi"`
	Volume    []float64 `json:"volume_mult" yaml:"volume_mult"`
	ADX       []float64 `json:"adx" yaml:"adx"`
	MinTrades int       `json:"min_trades" yaml:"min_trades"`
	MaxTrades int       `json:"max_trades" yaml:"max_trades"`
}

func DefaultPlan() Plan {
	return Plan{
		Start: Start{
			BreakoutK:  1.0,
			TPRR:       2.0,
			LongRSI:    signals.Range{Min: 55, Max: 65},
			ShortRSI:   signals.Range{Min: 35, Max: 45},
			VolumeMult: 1.5,
			ADX:        30,
		},
		TPRR:      []float64{1.5, 2.0, 2.5, 3.0, 3.5},
		BreakoutK: []float64{0.8, 1.0, 1.2, 1.5, 2.0},
		RSI: []RSIPair{
			{signals.Range{Min: 50, Max: 70}, signals.Range{Min: 30, Max: 50}},
			{signals.Range{Min: 52, Max: 68}, signals.Range{Min: 32, Max: 48}},
			{signals.Range{Min: 55, Max: 65}, signals.Range{Min: 35, Max: 45}},
			{signals.Range{Min: 50, Max: 65}, signals.Range{Min: 35, Max: 50}},
			{signals.Range{Min: 52, Max: 70}, signals.Range{Min: 30, Max: 48}},
			{signals.Range{Min: 48, Max: 68}, signals.Range{Min: 32, Max: 52}},
		},
		Volume:    []float64{1.2, 1.5, 2.0, 2.5},
		ADX:       []float64{25, 30, 35, 40},
		MinTrades: 10,
		MaxTrades: 500,
	}
}

// LoadPlan reads a YAML plan; fields left out keep DefaultPlan values.
func LoadPlan(path string) (Plan, error) {
	p := DefaultPlan()
	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read plan: %w", err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("failed to parse plan %s: %w", path, err)
	}
	return p, nil
}

func (p Plan) admits(r engine.StrategyResult) bool {
	return r.TradeCount >= p.MinTrades && (p.MaxTrades <= 0 || r.TradeCount <= p.MaxTrades)
}

// StepReport records what one step tried and kept.
type StepReport struct {
	Name      string                `json:"name"`
	Tried     int                   `json:"tried"`
	Improved  bool                  `json:"improved"`
	BestLabel string                `json:"best_label"`
	Result    engine.StrategyResult `json:"result"`
}

// Optimization is the final point and the path to it.
type Optimization struct {
	Config  backtest.Config       `json:"config"`
	Result  engine.StrategyResult `json:"result"`
	Initial engine.StrategyResult `json:"initial"`
	Steps   []StepReport          `json:"steps"`
}

type step struct {
	name  string
	cands []Candidate
}

func (p Plan) step(name string, best backtest.Config, n int, apply func(*backtest.Config, int) string) step {
	s := step{name: name, cands: make([]Candidate, n)}
	for i := 0; i < n; i++ {
		cfg := best
		s.cands[i] = Candidate{Index: i, Label: apply(&cfg, i), Config: cfg}
	}
	return s
}

// Optimize walks the plan one parameter group at a time. Within a step the
// candidates run in parallel and are then accepted in order: a candidate
// replaces the best only if its profit is strictly higher and its trade count
// lies within [MinTrades, MaxTrades]. The initial point is accepted as the
// starting best whatever its trade count.
func Optimize(ctx context.Context, pool Pool, cs []candles.Candle, base backtest.Config, p Plan) (Optimization, error) {
	logger := pool.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	best := base
	best.Signals.BreakoutK = p.Start.BreakoutK
	best.Engine.TPRR = p.Start.TPRR
	best.Signals.LongRSI = p.Start.LongRSI
	best.Signals.ShortRSI = p.Start.ShortRSI
	best.Signals.Filters.VolumeMult = p.Start.VolumeMult
	best.Signals.Filters.ADXThreshold = p.Start.ADX

	r, err := backtest.New(best)
	if err != nil {
		return Optimization{}, fmt.Errorf("initial config: %w", err)
	}
	opt := Optimization{Config: best, Result: r.Run(cs).Result}
	opt.Initial = opt.Result

	steps := []func(backtest.Config) step{
		func(b backtest.Config) step {
			return p.step("reward_risk", b, len(p.TPRR), func(c *backtest.Config, i int) string {
				c.Engine.TPRR = p.TPRR[i]
				return fmt.Sprintf("rr=%g", p.TPRR[i])
			})
		},
		func(b backtest.Config) step {
			return p.step("breakout_k", b, len(p.BreakoutK), func(c *backtest.Config, i int) string {
				c.Signals.BreakoutK = p.BreakoutK[i]
				return fmt.Sprintf("k=%g", p.BreakoutK[i])
			})
		},
		func(b backtest.Config) step {
			return p.step("rsi_bands", b, len(p.RSI), func(c *backtest.Config, i int) string {
				c.Signals.LongRSI, c.Signals.ShortRSI = p.RSI[i].Long, p.RSI[i].Short
				return fmt.Sprintf("long=%g-%g short=%g-%g", p.RSI[i].Long.Min, p.RSI[i].Long.Max, p.RSI[i].Short.Min, p.RSI[i].Short.Max)
			})
		},
		func(b backtest.Config) step {
			return p.step("volume_adx", b, len(p.Volume)*len(p.ADX), func(c *backtest.Config, i int) string {
				v, a := p.Volume[i/len(p.ADX)], p.ADX[i%len(p.ADX)]
				c.Signals.Filters.VolumeMult, c.Signals.Filters.ADXThreshold = v, a
				return fmt.Sprintf("vol=%g adx=%g", v, a)
			})
		},
	}

	for _, build := range steps {
		s := build(opt.Config)
		rep := StepReport{Name: s.name, Tried: len(s.cands)}
		outs, err := pool.Run(ctx, cs, s.cands)
		if err != nil {
			return opt, err
		}
		for _, o := range outs {
			if o.Err != nil {
				logger.Warn("Optimizer candidate rejected", zap.String("step", s.name), zap.String("label", o.Label), zap.Error(o.Err))
				continue
			}
			if o.Result.TotalProfit > opt.Result.TotalProfit && p.admits(o.Result) {
				opt.Config, opt.Result = o.Config, o.Result
				rep.Improved, rep.BestLabel = true, o.Label
			}
		}
		rep.Result = opt.Result
		opt.Steps = append(opt.Steps, rep)
		logger.Info("Optimizer step finished",
			zap.String("step", s.name),
			zap.Int("tried", rep.Tried),
			zap.Bool("improved", rep.Improved),
			zap.Float64("profit", opt.Result.TotalProfit),
			zap.Int("trades", opt.Result.TradeCount),
		)
	}
	return opt, nil
}
