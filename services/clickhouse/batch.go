package clickhouse

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"breakout-backtest/services/candles"
)

// Row is one candle in JSONEachRow form. Prices travel as decimal strings so
// nothing is lost before ClickHouse casts them.
type Row struct {
	Symbol     string          `json:"symbol"`
	Interval   string          `json:"interval"`
	OpenTimeMs uint64          `json:"open_time_ms"`
	Open       decimal.Decimal `json:"open"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Close      decimal.Decimal `json:"close"`
	Volume     decimal.Decimal `json:"volume"`
	Source     string          `json:"source"`
}

func RowOf(symbol, interval, source string, c candles.Candle) Row {
	return Row{
		Symbol:     symbol,
		Interval:   interval,
		OpenTimeMs: uint64(c.UnixMilli()),
		Open:       decimal.NewFromFloat(c.Open),
		High:       decimal.NewFromFloat(c.High),
		Low:        decimal.NewFromFloat(c.Low),
		Close:      decimal.NewFromFloat(c.Close),
		Volume:     decimal.NewFromFloat(c.Volume),
		Source:     source,
	}
}

// BatchClient handles ClickHouse HTTP batch inserts with compression
type BatchClient struct {
	baseURL    string
	username   string
	password   string
	table      string
	httpClient *http.Client
	buffer     []Row
	batchSize  int
	logger     *zap.Logger

	// MaxElapsed bounds retries of one flush.
	MaxElapsed time.Duration
}

func NewBatchClient(baseURL, username, password, table string, batchSize int, logger *zap.Logger) *BatchClient {
	if batchSize <= 0 {
		batchSize = 10000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchClient{
		baseURL:   baseURL,
		username:  username,
		password:  password,
		table:     table,
		batchSize: batchSize,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		buffer:     make([]Row, 0, batchSize),
		logger:     logger,
		MaxElapsed: 30 * time.Second,
	}
}

func (c *BatchClient) Add(ctx context.Context, row Row) error {
	c.buffer = append(c.buffer, row)
	if len(c.buffer) >= c.batchSize {
		return c.Flush(ctx)
	}
	return nil
}

// AddCandles buffers a whole series, flushing as batches fill.
func (c *BatchClient) AddCandles(ctx context.Context, symbol, interval, source string, cs []candles.Candle) error {
	for _, cd := range cs {
		if err := c.Add(ctx, RowOf(symbol, interval, source, cd)); err != nil {
			return err
		}
	}
	return nil
}

func (c *BatchClient) Flush(ctx context.Context) error {
	if len(c.buffer) == 0 {
		return nil
	}

	// JSONEachRow: one object per line, gzipped once and replayed on retry
	var buf bytes.Buffer
	gzWriter := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gzWriter)
	for _, row := range c.buffer {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
	}
	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("gzip error: %w", err)
	}
	body := buf.Bytes()

	query := fmt.Sprintf("INSERT INTO %s FORMAT JSONEachRow", c.table)
	settings := "input_format_null_as_default=1&date_time_input_format=best_effort"
	target := fmt.Sprintf("%s/?query=%s&%s", c.baseURL, url.QueryEscape(query), settings)

	err := c.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("request error: %w", err))
		}
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		req.Header.Set("Content-Encoding", "gzip")
		req.Header.Set("X-ClickHouse-Settings", "max_insert_block_size=1000000,input_format_allow_errors_num=0,insert_deduplicate=1")
		return c.do(req)
	})
	if err != nil {
		return err
	}

	c.logger.Debug("Flushed candle batch", zap.String("table", c.table), zap.Int("rows", len(c.buffer)))
	c.buffer = c.buffer[:0]
	return nil
}

// Exec runs a statement that returns no rows, such as DDL.
func (c *BatchClient) Exec(ctx context.Context, query string) error {
	return c.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/", bytes.NewReader([]byte(query)))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("request error: %w", err))
		}
		req.Header.Set("Content-Type", "text/plain; charset=utf-8")
		return c.do(req)
	})
}

func (c *BatchClient) Close(ctx context.Context) error {
	return c.Flush(ctx)
}

func (c *BatchClient) do(req *http.Request) error {
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	msg, _ := io.ReadAll(resp.Body)
	err = fmt.Errorf("clickhouse error %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	if resp.StatusCode >= 500 {
		return err
	}
	return backoff.Permanent(err)
}

func (c *BatchClient) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = c.MaxElapsed
	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		c.logger.Warn("ClickHouse request failed, retrying", zap.Error(err), zap.Duration("wait", wait))
	})
}
