// Package arrowpipeline serializes candles, indicator frames and trades as
// Apache Arrow IPC streams for columnar consumers (notebooks, DuckDB, Polars).
package arrowpipeline

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"go.uber.org/zap"

	"breakout-backtest/services/candles"
	"breakout-backtest/services/engine"
	"breakout-backtest/services/indicators"
)

var ErrMissingColumn = errors.New("arrow stream is missing a candle column")

var candleFields = []arrow.Field{
	{Name: "symbol", Type: arrow.BinaryTypes.String},
	{Name: "timestamp", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "open", Type: arrow.PrimitiveTypes.Float64},
	{Name: "high", Type: arrow.PrimitiveTypes.Float64},
	{Name: "low", Type: arrow.PrimitiveTypes.Float64},
	{Name: "close", Type: arrow.PrimitiveTypes.Float64},
	{Name: "volume", Type: arrow.PrimitiveTypes.Float64},
}

// Indicator columns are nullable; undefined warmup values are written as null.
var indicatorFields = []arrow.Field{
	{Name: "ema_fast", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "ema_slow", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "atr", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "rsi", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "adx", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "volume_sma", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "bb_upper", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "bb_mid", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "bb_lower", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "macd", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "macd_signal", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
}

var tradeSchema = arrow.NewSchema([]arrow.Field{
	{Name: "entry_time", Type: arrow.PrimitiveTypes.Int64},
	{Name: "exit_time", Type: arrow.PrimitiveTypes.Int64},
	{Name: "direction", Type: arrow.BinaryTypes.String},
	{Name: "entry_price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "exit_price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "stop", Type: arrow.PrimitiveTypes.Float64},
	{Name: "target", Type: arrow.PrimitiveTypes.Float64},
	{Name: "quantity", Type: arrow.PrimitiveTypes.Float64},
	{Name: "profit", Type: arrow.PrimitiveTypes.Float64},
	{Name: "exit_reason", Type: arrow.BinaryTypes.String},
	{Name: "bars_held", Type: arrow.PrimitiveTypes.Int32},
	{Name: "open_ended", Type: arrow.FixedWidthTypes.Boolean},
}, nil)

// Pipeline handles Arrow IPC encoding
type Pipeline struct {
	batchSize  int
	memoryPool memory.Allocator
	logger     *zap.Logger
}

// NewPipeline creates a pipeline writing record batches of at most batchSize rows.
func NewPipeline(batchSize int, logger *zap.Logger) *Pipeline {
	if batchSize <= 0 {
		batchSize = 8192
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		batchSize:  batchSize,
		memoryPool: memory.NewGoAllocator(),
		logger:     logger,
	}
}

// EncodeCandles writes the raw OHLCV series.
func (p *Pipeline) EncodeCandles(symbol string, cs []candles.Candle) ([]byte, error) {
	schema := arrow.NewSchema(candleFields, nil)
	return p.encode(schema, len(cs), func(b *array.RecordBuilder, i int) {
		appendCandle(b, symbol, cs[i])
	})
}

// EncodeFrame writes candles and every indicator series side by side.
func (p *Pipeline) EncodeFrame(symbol string, frame indicators.Frame) ([]byte, error) {
	fields := append(append([]arrow.Field{}, candleFields...), indicatorFields...)
	md := arrow.NewMetadata([]string{"symbol"}, []string{symbol})
	schema := arrow.NewSchema(fields, &md)
	return p.encode(schema, len(frame), func(b *array.RecordBuilder, i int) {
		bar := frame[i]
		appendCandle(b, symbol, bar.Candle)
		col := len(candleFields)
		for _, v := range [...]float64{bar.EMAFast, bar.EMASlow, bar.ATR, bar.RSI, bar.ADX, bar.VolumeSMA,
			bar.BBUpper, bar.BBMid, bar.BBLower, bar.MACD, bar.MACDSignal} {
			fb := b.Field(col).(*array.Float64Builder)
			if math.IsNaN(v) {
				fb.AppendNull()
			} else {
				fb.Append(v)
			}
			col++
		}
	})
}

// EncodeTrades writes closed trades; times are epoch milliseconds.
func (p *Pipeline) EncodeTrades(trades []engine.Trade) ([]byte, error) {
	return p.encode(tradeSchema, len(trades), func(b *array.RecordBuilder, i int) {
		t := trades[i]
		b.Field(0).(*array.Int64Builder).Append(t.EntryTime.UnixMilli())
		b.Field(1).(*array.Int64Builder).Append(t.ExitTime.UnixMilli())
		b.Field(2).(*array.StringBuilder).Append(t.Direction.String())
		b.Field(3).(*array.Float64Builder).Append(t.EntryPrice)
		b.Field(4).(*array.Float64Builder).Append(t.ExitPrice)
		b.Field(5).(*array.Float64Builder).Append(t.Stop)
		b.Field(6).(*array.Float64Builder).Append(t.Target)
		b.Field(7).(*array.Float64Builder).Append(t.Quantity)
		b.Field(8).(*array.Float64Builder).Append(t.Profit)
		b.Field(9).(*array.StringBuilder).Append(string(t.ExitReason))
		b.Field(10).(*array.Int32Builder).Append(int32(t.BarsHeld))
		b.Field(11).(*array.BooleanBuilder).Append(t.OpenEnded)
	})
}

func appendCandle(b *array.RecordBuilder, symbol string, c candles.Candle) {
	b.Field(0).(*array.StringBuilder).Append(symbol)
	b.Field(1).(*array.Uint64Builder).Append(uint64(c.UnixMilli()))
	b.Field(2).(*array.Float64Builder).Append(c.Open)
	b.Field(3).(*array.Float64Builder).Append(c.High)
	b.Field(4).(*array.Float64Builder).Append(c.Low)
	b.Field(5).(*array.Float64Builder).Append(c.Close)
	b.Field(6).(*array.Float64Builder).Append(c.Volume)
}

// encode emits one record batch per batchSize rows. An empty input still
// produces a valid stream carrying the schema.
func (p *Pipeline) encode(schema *arrow.Schema, n int, row func(*array.RecordBuilder, int)) ([]byte, error) {
	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(p.memoryPool))

	b := array.NewRecordBuilder(p.memoryPool, schema)
	defer b.Release()

	batches := 0
	for start := 0; start < n; start += p.batchSize {
		end := min(start+p.batchSize, n)
		for i := start; i < end; i++ {
			row(b, i)
		}
		record := b.NewRecord()
		err := writer.Write(record)
		record.Release()
		if err != nil {
			writer.Close()
			return nil, fmt.Errorf("failed to write Arrow record: %w", err)
		}
		batches++
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close Arrow writer: %w", err)
	}

	p.logger.Debug("Encoded Arrow stream", zap.Int("rows", n), zap.Int("batches", batches), zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

// DecodeCandles reads candles back from a stream written by EncodeCandles or
// EncodeFrame. Indicator columns are ignored.
func (p *Pipeline) DecodeCandles(data []byte) (symbol string, out []candles.Candle, err error) {
	reader, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(p.memoryPool))
	if err != nil {
		return "", nil, fmt.Errorf("failed to open Arrow stream: %w", err)
	}
	defer reader.Release()

	idx := make(map[string]int, len(candleFields))
	for _, f := range candleFields {
		found := reader.Schema().FieldIndices(f.Name)
		if len(found) == 0 {
			return "", nil, fmt.Errorf("%w: %s", ErrMissingColumn, f.Name)
		}
		idx[f.Name] = found[0]
	}

	for reader.Next() {
		rec := reader.Record()
		syms := rec.Column(idx["symbol"]).(*array.String)
		ts := rec.Column(idx["timestamp"]).(*array.Uint64)
		col := func(name string) *array.Float64 { return rec.Column(idx[name]).(*array.Float64) }
		o, h, l, c, v := col("open"), col("high"), col("low"), col("close"), col("volume")
		for i := 0; i < int(rec.NumRows()); i++ {
			if symbol == "" {
				symbol = syms.Value(i)
			}
			out = append(out, candles.Candle{
				Time:   time.UnixMilli(int64(ts.Value(i))).UTC(),
				Open:   o.Value(i),
				High:   h.Value(i),
				Low:    l.Value(i),
				Close:  c.Value(i),
				Volume: v.Value(i),
			})
		}
	}
	if err := reader.Err(); err != nil {
		return "", nil, fmt.Errorf("failed to read Arrow stream: %w", err)
	}
	return symbol, out, nil
}
