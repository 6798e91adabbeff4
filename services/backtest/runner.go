package backtest

import (
	"breakout-backtest/services/candles"
	"breakout-backtest/services/engine"
	"breakout-backtest/services/indicators"
	"breakout-backtest/services/signals"
)

// Report is the full product of one run.
type Report struct {
	Config       Config                `json:"config"`
	Strategy     string                `json:"strategy"`
	Trades       []engine.Trade        `json:"trades"`
	Result       engine.StrategyResult `json:"result"`
	Open         *engine.Position      `json:"open,omitempty"`
	Diagnostics  engine.Diagnostics    `json:"diagnostics"`
	Events       *engine.EventLog      `json:"-"`
	Frame        indicators.Frame      `json:"-"`
	Candles      int                   `json:"candles"`
	DataChecksum string                `json:"data_checksum"`
	ConfigHash   string                `json:"config_hash"`
}

// Runner executes a validated Config. It holds no per-run state and may be
// shared by concurrent callers.
type Runner struct {
	cfg  Config
	rule signals.Rule
	hash string
}

// New validates cfg eagerly so that malformed settings never reach a run.
func New(cfg Config) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rule, err := signals.New(cfg.Signals)
	if err != nil {
		return nil, &ConfigError{Fields: []string{err.Error()}, Err: err}
	}
	return &Runner{cfg: cfg, rule: rule, hash: cfg.Hash()}, nil
}

func (r *Runner) Config() Config { return r.cfg }

// MinCandles is the shortest input that can produce a signal.
func (r *Runner) MinCandles() int { return r.cfg.Indicators.Warmup() }

// Run backtests cs. Input shorter than the warm-up or out of order yields an
// empty report whose Diagnostics carry the reason.
func (r *Runner) Run(cs []candles.Candle) *Report {
	rep := &Report{
		Config:     r.cfg,
		Strategy:   r.rule.Name(),
		Trades:     []engine.Trade{},
		Result:     engine.Summarize(nil),
		Events:     &engine.EventLog{},
		Candles:    len(cs),
		ConfigHash: r.hash,
	}
	rep.Diagnostics.Candles = len(cs)
	if len(cs) < r.MinCandles() {
		rep.Diagnostics.Reason = engine.ErrInsufficientData
		rep.Diagnostics.ReasonText = engine.ErrInsufficientData.Error()
		return rep
	}
	if err := candles.CheckOrder(cs); err != nil {
		rep.Diagnostics.Reason = engine.ErrNonMonotonic
		rep.Diagnostics.ReasonText = err.Error()
		return rep
	}
	rep.DataChecksum = candles.Checksum(cs)

	frame := indicators.Build(cs, r.cfg.Indicators)
	sigs := r.rule.Generate(frame)
	out := engine.NewSimulator(r.cfg.Engine, rep.Events).Run(frame, sigs)

	rep.Frame = frame
	rep.Trades = out.Trades
	rep.Open = out.Open
	rep.Diagnostics = out.Diagnostics
	rep.Result = engine.Summarize(out.Trades)
	return rep
}

// Inspect reports the breakout rule's view of the latest candle of cs, with
// stop and target placed by the engine's ATR multiples.
func (r *Runner) Inspect(cs []candles.Candle) (signals.Inspection, bool) {
	if len(cs) < r.MinCandles() {
		return signals.Inspection{Reason: "insufficient data"}, false
	}
	frame := indicators.Build(cs, r.cfg.Indicators)
	return signals.Inspect(frame, r.cfg.Signals, r.cfg.Engine.SLMult, r.cfg.Engine.TPRR)
}
