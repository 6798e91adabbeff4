// Package proto defines the wire messages of backtest.v1.BacktestService.
// Messages travel as JSON through a registered gRPC codec, so the same types
// serve the REST API.
package proto

import "encoding/json"

type BacktestRequest struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	// Preset selects a strategy kind's defaults before Config is applied.
	Preset    string `json:"preset,omitempty"`
	StartTime int64  `json:"start_time,omitempty"`
	EndTime   int64  `json:"end_time,omitempty"`
	// Config is a partial strategy config merged over the preset.
	Config json.RawMessage `json:"config,omitempty"`
	// Candles, when present, replace the server's data source.
	Candles []*Candle `json:"candles,omitempty"`
}

type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

type ExecutedTrade struct {
	EntryTime  int64  `json:"entry_time"`
	ExitTime   int64  `json:"exit_time"`
	Direction  string `json:"direction"`
	EntryPrice string `json:"entry_price"`
	ExitPrice  string `json:"exit_price"`
	Stop       string `json:"stop"`
	Target     string `json:"target"`
	Quantity   string `json:"quantity"`
	Profit     string `json:"profit"`
	ExitReason string `json:"exit_reason"`
	BarsHeld   int32  `json:"bars_held"`
	OpenEnded  bool   `json:"open_ended,omitempty"`
}

type OpenPosition struct {
	EntryTime  int64  `json:"entry_time"`
	Direction  string `json:"direction"`
	EntryPrice string `json:"entry_price"`
	Stop       string `json:"stop"`
	Target     string `json:"target"`
	Quantity   string `json:"quantity"`
	Unrealized string `json:"unrealized"`
}

type Summary struct {
	TotalProfit  string `json:"total_profit"`
	TradeCount   int32  `json:"trade_count"`
	Wins         int32  `json:"wins"`
	Losses       int32  `json:"losses"`
	WinRate      string `json:"win_rate"`
	AvgWin       string `json:"avg_win"`
	AvgLoss      string `json:"avg_loss"`
	ProfitFactor string `json:"profit_factor"`
	Expectancy   string `json:"expectancy"`
	MaxDrawdown  string `json:"max_drawdown"`
}

type Diagnostics struct {
	Candles            int32  `json:"candles"`
	Processed          int32  `json:"processed"`
	UndefinedSkipped   int32  `json:"undefined_skipped"`
	DegenerateRejected int32  `json:"degenerate_rejected"`
	Reason             string `json:"reason,omitempty"`
}

type RunManifest struct {
	JobId         string `json:"job_id"`
	ConfigHash    string `json:"config_hash"`
	DataChecksum  string `json:"data_checksum"`
	EngineVersion string `json:"engine_version"`
	Candles       int64  `json:"candles"`
	FirstCandle   int64  `json:"first_candle"`
	LastCandle    int64  `json:"last_candle"`
	CreatedAt     int64  `json:"created_at"`
}

type BacktestResponse struct {
	JobId         string           `json:"job_id"`
	ExecutionTime int64            `json:"execution_time_ms"`
	Strategy      string           `json:"strategy"`
	Summary       *Summary         `json:"summary"`
	Trades        []*ExecutedTrade `json:"trades"`
	Open          *OpenPosition    `json:"open,omitempty"`
	Diagnostics   *Diagnostics     `json:"diagnostics"`
	Manifest      *RunManifest     `json:"manifest"`
}
