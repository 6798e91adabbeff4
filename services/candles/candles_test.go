package candles

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestReadCSVMillisAndHeader(t *testing.T) {
	in := "timestamp,open,high,low,close,volume\n" +
		"1700000060000,2,3,1,2.5,10\n" +
		"1700000000000,1,2,0.5,1.5,5\n" +
		"garbage,row\n"
	cs, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(cs) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(cs))
	}
	if cs[0].UnixMilli() != 1700000000000 || cs[1].Close != 2.5 {
		t.Fatalf("unexpected candles: %+v", cs)
	}
}

func TestReadCSVDatetimeColumn(t *testing.T) {
	in := "datetime,open,high,low,close,volume\n" +
		"2024-01-01 00:00:00,100,101,99,100.5,3\n" +
		"\"2024-01-01 00:01:00\",\"100.5\",102,100,101,4\n"
	cs, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)
	if len(cs) != 2 || !cs[1].Time.Equal(want) || cs[1].Open != 100.5 {
		t.Fatalf("unexpected candles: %+v", cs)
	}
}

func TestReadCSVUTF16(t *testing.T) {
	text := "timestamp,open,high,low,close,volume\n1700000000000,1,2,0.5,1.5,5\n"
	buf := []byte{0xFF, 0xFE}
	for _, r := range text {
		buf = append(buf, byte(r), 0)
	}
	cs, err := ReadCSV(bytes.NewReader(buf))
	if err != nil {
		t.Fatal(err)
	}
	if len(cs) != 1 || cs[0].Close != 1.5 {
		t.Fatalf("unexpected candles: %+v", cs)
	}
}

func TestReadCSVEmpty(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("timestamp,open,high,low,close,volume\n")); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cs := []Candle{
		{Time: base, Open: 1, High: 2, Low: 0.5, Close: 1.25, Volume: 7},
		{Time: base.Add(time.Minute), Open: 1.25, High: 3, Low: 1, Close: 2, Volume: 8},
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, cs); err != nil {
		t.Fatal(err)
	}
	got, err := ReadCSV(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if Checksum(got) != Checksum(cs) {
		t.Fatal("checksum changed across write/read")
	}
}

func TestCheckOrder(t *testing.T) {
	base := time.Unix(0, 0).UTC()
	ok := []Candle{{Time: base}, {Time: base.Add(time.Minute)}}
	if err := CheckOrder(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dup := []Candle{{Time: base}, {Time: base}}
	if err := CheckOrder(dup); !errors.Is(err, ErrNonMonotonic) {
		t.Fatalf("expected ErrNonMonotonic, got %v", err)
	}
}

func TestDedupe(t *testing.T) {
	base := time.Unix(0, 0).UTC()
	cs := []Candle{
		{Time: base, Close: 1},
		{Time: base.Add(time.Minute), Close: 2},
		{Time: base.Add(time.Minute), Close: 3},
		{Time: base.Add(2 * time.Minute), Close: 4},
	}
	out, dropped := Dedupe(cs)
	if dropped != 1 || len(out) != 3 || out[1].Close != 3 {
		t.Fatalf("unexpected dedupe: dropped=%d %+v", dropped, out)
	}
	if err := CheckOrder(out); err != nil {
		t.Fatal(err)
	}
	if one, n := Dedupe(cs[:1]); n != 0 || len(one) != 1 {
		t.Fatalf("single candle should pass through, got %d %d", len(one), n)
	}
}

func TestDetectGaps(t *testing.T) {
	base := time.Unix(0, 0).UTC()
	cs := []Candle{{Time: base}, {Time: base.Add(time.Minute)}, {Time: base.Add(5 * time.Minute)}}
	gaps := DetectGaps(cs, time.Minute)
	if len(gaps) != 1 || !gaps[0].Equal(base.Add(time.Minute)) {
		t.Fatalf("unexpected gaps: %v", gaps)
	}
}

func TestResample(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var cs []Candle
	for i := 0; i < 6; i++ {
		f := float64(i)
		cs = append(cs, Candle{Time: base.Add(time.Duration(i) * time.Minute), Open: f, High: f + 1, Low: f - 1, Close: f + 0.5, Volume: 1})
	}
	out, err := Resample(cs, 3*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(out))
	}
	b := out[1]
	if b.Open != 3 || b.High != 6 || b.Low != 2 || b.Close != 5.5 || b.Volume != 3 {
		t.Fatalf("unexpected bucket: %+v", b)
	}
}

func TestParseStep(t *testing.T) {
	cases := map[string]time.Duration{"5m": 5 * time.Minute, "15min": 15 * time.Minute, "1h": time.Hour, "30": 30 * time.Minute}
	for in, want := range cases {
		got, err := ParseStep(in)
		if err != nil || got != want {
			t.Fatalf("ParseStep(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseStep("abc"); err == nil {
		t.Fatal("expected error for invalid step")
	}
}

func TestGlob(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a/x.csv", "a/b/y.csv", "z.txt"} {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	got, err := Glob(filepath.ToSlash(dir) + "/**/*.csv")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %v", got)
	}
}
