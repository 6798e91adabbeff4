package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"breakout-backtest/services/backtest"
)

var ErrNotFound = errors.New("run not found")

// Connect opens a Postgres pool through the pgx stdlib driver.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// RunRecord is one persisted backtest. Config and Result hold JSON.
type RunRecord struct {
	ID           string          `db:"id" json:"id"`
	Symbol       string          `db:"symbol" json:"symbol"`
	Timeframe    string          `db:"timeframe" json:"timeframe"`
	Strategy     string          `db:"strategy" json:"strategy"`
	ConfigHash   string          `db:"config_hash" json:"config_hash"`
	DataChecksum string          `db:"data_checksum" json:"data_checksum"`
	Candles      int             `db:"candles" json:"candles"`
	Trades       int             `db:"trades" json:"trades"`
	TotalProfit  float64         `db:"total_profit" json:"total_profit"`
	WinRate      float64         `db:"win_rate" json:"win_rate"`
	Config       json.RawMessage `db:"config" json:"config"`
	Result       json.RawMessage `db:"result" json:"result"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// NewRunRecord flattens a report for storage.
func NewRunRecord(id string, rep *backtest.Report, now time.Time) (RunRecord, error) {
	cfg, err := json.Marshal(rep.Config)
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to encode config: %w", err)
	}
	res, err := json.Marshal(rep.Result)
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to encode result: %w", err)
	}
	return RunRecord{
		ID:           id,
		Symbol:       rep.Config.Symbol,
		Timeframe:    rep.Config.Timeframe,
		Strategy:     rep.Strategy,
		ConfigHash:   rep.ConfigHash,
		DataChecksum: rep.DataChecksum,
		Candles:      rep.Candles,
		Trades:       rep.Result.TradeCount,
		TotalProfit:  rep.Result.TotalProfit,
		WinRate:      rep.Result.WinRate,
		Config:       cfg,
		Result:       res,
		CreatedAt:    now.UTC(),
	}, nil
}

const runsSchema = `
CREATE TABLE IF NOT EXISTS backtest_runs (
	id            TEXT PRIMARY KEY,
	symbol        TEXT NOT NULL,
	timeframe     TEXT NOT NULL,
	strategy      TEXT NOT NULL,
	config_hash   TEXT NOT NULL,
	data_checksum TEXT NOT NULL,
	candles       INTEGER NOT NULL,
	trades        INTEGER NOT NULL,
	total_profit  DOUBLE PRECISION NOT NULL,
	win_rate      DOUBLE PRECISION NOT NULL,
	config        JSONB NOT NULL,
	result        JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS backtest_runs_hash_idx ON backtest_runs (config_hash, data_checksum);
`

// RunRepository handles database operations for backtest runs
type RunRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewRunRepository(db *sqlx.DB, logger *zap.Logger) *RunRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunRepository{db: db, logger: logger}
}

func (r *RunRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, runsSchema); err != nil {
		return fmt.Errorf("failed to migrate backtest_runs: %w", err)
	}
	return nil
}

// Save inserts rec, replacing any row with the same id.
func (r *RunRepository) Save(ctx context.Context, rec RunRecord) error {
	query := `
		INSERT INTO backtest_runs (
			id, symbol, timeframe, strategy, config_hash, data_checksum,
			candles, trades, total_profit, win_rate, config, result, created_at
		) VALUES (
			:id, :symbol, :timeframe, :strategy, :config_hash, :data_checksum,
			:candles, :trades, :total_profit, :win_rate, :config, :result, :created_at
		)
		ON CONFLICT (id) DO UPDATE SET
			trades = EXCLUDED.trades,
			total_profit = EXCLUDED.total_profit,
			win_rate = EXCLUDED.win_rate,
			result = EXCLUDED.result
	`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		r.logger.Error("Failed to save run", zap.String("id", rec.ID), zap.Error(err))
		return err
	}
	return nil
}

func (r *RunRepository) Get(ctx context.Context, id string) (*RunRecord, error) {
	query := `
		SELECT id, symbol, timeframe, strategy, config_hash, data_checksum,
		       candles, trades, total_profit, win_rate, config, result, created_at
		FROM backtest_runs
		WHERE id = $1
	`
	var rec RunRecord
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get run", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return &rec, nil
}

// List returns the most recent runs first.
func (r *RunRepository) List(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, symbol, timeframe, strategy, config_hash, data_checksum,
		       candles, trades, total_profit, win_rate, config, result, created_at
		FROM backtest_runs
		ORDER BY created_at DESC
		LIMIT $1
	`
	recs := []RunRecord{}
	if err := r.db.SelectContext(ctx, &recs, query, limit); err != nil {
		r.logger.Error("Failed to list runs", zap.Error(err))
		return nil, err
	}
	return recs, nil
}
