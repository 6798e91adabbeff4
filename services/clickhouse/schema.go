package clickhouse

import (
	"fmt"
	"strings"
	"time"
)

// Schema returns the DDL of the candle table. Rows are deduplicated per
// (symbol, interval, open_time_ms), keeping the latest insert.
func Schema(db, table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s
(
    symbol        LowCardinality(String),
    interval      LowCardinality(String),
    open_time_ms  UInt64,
    open          Decimal128(18),
    high          Decimal128(18),
    low           Decimal128(18),
    close         Decimal128(18),
    volume        Decimal128(18),
    source        LowCardinality(String),
    ingested_at   DateTime DEFAULT now()
)
ENGINE = ReplacingMergeTree(ingested_at)
PARTITION BY (symbol, interval, toYYYYMM(toDateTime(intDiv(open_time_ms, 1000))))
ORDER BY (symbol, interval, open_time_ms)`, qualified(db, table))
}

// DatabaseSchema creates the database holding the candle table.
func DatabaseSchema(db string) string {
	return fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db)
}

// DeriveQuery aggregates the 1m candles of symbol into step-sized candles
// inside ClickHouse. Open is the first open, close the last close.
func DeriveQuery(db, table, symbol, interval string, step time.Duration) string {
	ms := step.Milliseconds()
	t := qualified(db, table)
	return fmt.Sprintf(`INSERT INTO %[1]s (symbol, interval, open_time_ms, open, high, low, close, volume, source)
SELECT
    symbol,
    '%[3]s' AS interval,
    intDiv(open_time_ms, %[4]d) * %[4]d AS bucket,
    argMin(open, open_time_ms) AS open,
    max(high) AS high,
    min(low) AS low,
    argMax(close, open_time_ms) AS close,
    sum(volume) AS volume,
    'derived' AS source
FROM %[1]s FINAL
WHERE symbol = '%[2]s' AND interval = '1m'
GROUP BY symbol, bucket
ORDER BY bucket`, t, literal(symbol), literal(interval), ms)
}

var literalEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func literal(s string) string { return literalEscaper.Replace(s) }
