package clickhouse

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"breakout-backtest/services/candles"
)

func sampleCandles() []candles.Candle {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []candles.Candle{
		{Time: t0, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 3},
		{Time: t0.Add(time.Minute), Open: 100.5, High: 102, Low: 100, Close: 101.25, Volume: 4},
		{Time: t0.Add(2 * time.Minute), Open: 101.25, High: 101.5, Low: 100.75, Close: 101, Volume: 1.5},
	}
}

func TestBatchFlushRetriesAndEncodes(t *testing.T) {
	var calls int32
	var got []Row
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if u, p, ok := r.BasicAuth(); !ok || u != "ingest" || p != "secret" {
			t.Errorf("missing basic auth")
		}
		if !strings.Contains(r.URL.Query().Get("query"), "INSERT INTO market.candles FORMAT JSONEachRow") {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		if r.Header.Get("Content-Encoding") != "gzip" {
			t.Errorf("body not gzipped")
		}
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			t.Error(err)
			return
		}
		sc := bufio.NewScanner(zr)
		for sc.Scan() {
			var row Row
			if err := json.Unmarshal(sc.Bytes(), &row); err != nil {
				t.Errorf("bad row %q: %v", sc.Text(), err)
			}
			got = append(got, row)
		}
	}))
	defer srv.Close()

	c := NewBatchClient(srv.URL, "ingest", "secret", "market.candles", 10, nil)
	ctx := context.Background()
	if err := c.AddCandles(ctx, "BTCUSDT", "1m", "csv", sampleCandles()); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatal("batch should not flush before it is full")
	}
	if err := c.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected one retry, got %d calls", calls)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(got))
	}
	if got[1].OpenTimeMs != 1704067260000 || !got[1].Close.Equal(decimal.RequireFromString("101.25")) || got[1].Symbol != "BTCUSDT" {
		t.Fatalf("unexpected row %+v", got[1])
	}
	if err := c.Flush(ctx); err != nil || atomic.LoadInt32(&calls) != 2 {
		t.Fatal("empty flush must not hit the server")
	}
}

func TestBatchFlushesWhenFull(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	c := NewBatchClient(srv.URL, "", "", "candles", 2, nil)
	if err := c.AddCandles(context.Background(), "X", "1m", "csv", sampleCandles()); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&calls) != 1 || len(c.buffer) != 1 {
		t.Fatalf("calls=%d buffered=%d", calls, len(c.buffer))
	}
}

func TestExecClientErrorIsFinal(t *testing.T) {
	var calls int32
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("Code: 62. Syntax error"))
	}))
	defer srv.Close()

	c := NewBatchClient(srv.URL, "", "", "candles", 2, nil)
	err := c.Exec(context.Background(), Schema("market", "candles"))
	if err == nil || !strings.Contains(err.Error(), "Syntax error") {
		t.Fatalf("unexpected error %v", err)
	}
	if calls != 1 {
		t.Fatalf("4xx must not be retried, got %d calls", calls)
	}
	if !strings.HasPrefix(body, "CREATE TABLE IF NOT EXISTS market.candles") {
		t.Fatalf("unexpected statement %q", body)
	}
}

func TestDeriveQueryEscapes(t *testing.T) {
	q := DeriveQuery("market", "candles", "BTC'USDT", "15m", 15*time.Minute)
	if !strings.Contains(q, "intDiv(open_time_ms, 900000) * 900000") {
		t.Fatalf("bucket size missing:\n%s", q)
	}
	if !strings.Contains(q, `symbol = 'BTC\'USDT'`) {
		t.Fatalf("symbol not escaped:\n%s", q)
	}
}

type fakeRows struct {
	rows [][]any
	i    int
	err  error
}

func (f *fakeRows) Next() bool { f.i++; return f.i <= len(f.rows) }

func (f *fakeRows) Scan(dest ...any) error {
	row := f.rows[f.i-1]
	*(dest[0].(*uint64)) = row[0].(uint64)
	for k := 1; k < len(dest); k++ {
		*(dest[k].(*decimal.Decimal)) = decimal.RequireFromString(row[k].(string))
	}
	return nil
}

func (f *fakeRows) Err() error   { return f.err }
func (f *fakeRows) Close() error { return nil }

func TestLoadCandles(t *testing.T) {
	var gotQuery string
	var gotArgs []any
	c := &Client{table: "market.candles", logger: zap.NewNop()}
	c.query = func(_ context.Context, q string, args ...any) (Rows, error) {
		gotQuery, gotArgs = q, args
		return &fakeRows{rows: [][]any{
			{uint64(1704067200000), "100", "101", "99", "100.5", "3"},
			{uint64(1704067260000), "100.5", "102", "100", "101.25", "4"},
		}}, nil
	}

	from := time.UnixMilli(1704067200000)
	cs, err := c.LoadCandles(context.Background(), "BTCUSDT", "1m", from, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(cs) != 2 || cs[1].Close != 101.25 || !cs[1].Time.Equal(from.Add(time.Minute)) {
		t.Fatalf("unexpected candles %+v", cs)
	}
	if len(gotArgs) != 3 || strings.Contains(gotQuery, "open_time_ms < ?") {
		t.Fatalf("open-ended range should not bind an upper bound: %q %v", gotQuery, gotArgs)
	}

	_, _ = c.LoadCandles(context.Background(), "BTCUSDT", "1m", from, from.Add(time.Hour))
	if len(gotArgs) != 4 || gotArgs[3] != uint64(1704070800000) {
		t.Fatalf("unexpected args %v", gotArgs)
	}

	boom := errors.New("boom")
	c.query = func(context.Context, string, ...any) (Rows, error) { return &fakeRows{err: boom}, nil }
	if _, err := c.LoadCandles(context.Background(), "BTCUSDT", "1m", from, time.Time{}); !errors.Is(err, boom) {
		t.Fatalf("expected row error, got %v", err)
	}
}
