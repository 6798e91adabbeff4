package backtest

import (
	"time"

	"github.com/google/uuid"

	"breakout-backtest/services/candles"
)

// EngineVersion is stamped into every manifest.
const EngineVersion = "1.0.0"

// Manifest pins down everything needed to reproduce a run bit for bit.
type Manifest struct {
	JobID         string `json:"job_id"`
	Config        Config `json:"config"`
	ConfigHash    string `json:"config_hash"`
	DataChecksum  string `json:"data_checksum"`
	Candles       int    `json:"candles"`
	FirstCandle   int64  `json:"first_candle_ms"`
	LastCandle    int64  `json:"last_candle_ms"`
	EngineVersion string `json:"engine_version"`
	CreatedAt     int64  `json:"created_at"`
}

// NewManifest describes a run of cfg over cs. An empty jobID gets a fresh UUID.
func NewManifest(jobID string, cfg Config, cs []candles.Candle) Manifest {
	if jobID == "" {
		jobID = uuid.NewString()
	}
	m := Manifest{
		JobID:         jobID,
		Config:        cfg,
		ConfigHash:    cfg.Hash(),
		DataChecksum:  candles.Checksum(cs),
		Candles:       len(cs),
		EngineVersion: EngineVersion,
		CreatedAt:     time.Now().UnixMilli(),
	}
	if len(cs) > 0 {
		m.FirstCandle = cs[0].UnixMilli()
		m.LastCandle = cs[len(cs)-1].UnixMilli()
	}
	return m
}

// Reproduces reports whether rep came from the same config and data.
func (m Manifest) Reproduces(rep *Report) bool {
	return rep != nil && rep.ConfigHash == m.ConfigHash && rep.DataChecksum == m.DataChecksum
}
