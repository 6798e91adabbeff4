// Package clickhouse reads and writes candle series in ClickHouse. Reads use
// the native protocol; bulk inserts go through the HTTP interface.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"breakout-backtest/services/candles"
)

// Options configures the native-protocol client.
type Options struct {
	Addr        []string
	Database    string
	Table       string
	Username    string
	Password    string
	DialTimeout time.Duration
}

type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

type Client struct {
	conn   driver.Conn
	table  string
	logger *zap.Logger
	query  func(ctx context.Context, query string, args ...any) (Rows, error)
}

func NewClient(ctx context.Context, opts Options, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := ch.Open(&ch.Options{
		Addr: opts.Addr,
		Auth: ch.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		DialTimeout: opts.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	c := &Client{conn: conn, table: qualified(opts.Database, opts.Table), logger: logger}
	c.query = func(ctx context.Context, q string, args ...any) (Rows, error) {
		return conn.Query(ctx, q, args...)
	}
	return c, nil
}

// LoadCandles returns the candles of symbol/interval with open time in
// [from, to), ordered by time. A zero to means no upper bound.
func (c *Client) LoadCandles(ctx context.Context, symbol, interval string, from, to time.Time) ([]candles.Candle, error) {
	args := []any{symbol, interval, uint64(from.UnixMilli())}
	bound := ""
	if !to.IsZero() {
		bound = " AND open_time_ms < ?"
		args = append(args, uint64(to.UnixMilli()))
	}
	q := fmt.Sprintf(`
		SELECT open_time_ms, open, high, low, close, volume
		FROM %s FINAL
		WHERE symbol = ? AND interval = ? AND open_time_ms >= ?%s
		ORDER BY open_time_ms`, c.table, bound)

	start := time.Now()
	rows, err := c.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("candle query failed: %w", err)
	}
	defer rows.Close()

	var out []candles.Candle
	for rows.Next() {
		var (
			ts               uint64
			o, h, l, cl, vol decimal.Decimal
		)
		if err := rows.Scan(&ts, &o, &h, &l, &cl, &vol); err != nil {
			return nil, fmt.Errorf("candle scan failed: %w", err)
		}
		out = append(out, candles.Candle{
			Time:   time.UnixMilli(int64(ts)).UTC(),
			Open:   o.InexactFloat64(),
			High:   h.InexactFloat64(),
			Low:    l.InexactFloat64(),
			Close:  cl.InexactFloat64(),
			Volume: vol.InexactFloat64(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	c.logger.Debug("Loaded candles",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("rows", len(out)),
		zap.Duration("took", time.Since(start)))
	return out, nil
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func qualified(db, table string) string {
	if db == "" {
		return table
	}
	return db + "." + table
}
