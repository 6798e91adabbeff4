package candles

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// LoadCSV reads a candle file from disk. See ReadCSV for the accepted format.
func LoadCSV(path string) ([]Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	cs, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cs, nil
}

// ReadCSV parses rows of time,open,high,low,close,volume. The time column is
// either epoch milliseconds (seconds are accepted too) or a UTC datetime.
// A header row, quoted fields and UTF-16 files with a BOM are tolerated;
// rows that fail to parse are skipped. The result is sorted by time.
func ReadCSV(r io.Reader) ([]Candle, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if b, _ := br.Peek(2); len(b) == 2 && ((b[0] == 0xFF && b[1] == 0xFE) || (b[0] == 0xFE && b[1] == 0xFF)) {
		src = transform.NewReader(br, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
	}

	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	out := make([]Candle, 0, 1_000)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil || len(rec) < 6 {
			continue
		}
		c, ok := parseRecord(rec)
		if !ok {
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, ErrEmptyInput
	}
	SortByTime(out)
	return out, nil
}

func parseRecord(rec []string) (Candle, bool) {
	ts, ok := parseTime(rec[0])
	if !ok {
		return Candle{}, false
	}
	var vals [5]float64
	for i := range vals {
		v, err := strconv.ParseFloat(strings.TrimSpace(strings.Trim(rec[i+1], `"`)), 64)
		if err != nil {
			return Candle{}, false
		}
		vals[i] = v
	}
	return Candle{Time: ts, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4]}, true
}

func parseTime(raw string) (time.Time, bool) {
	s := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
	s = strings.Trim(s, `"`)
	if s == "" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		// ten digits or fewer cannot be a millisecond timestamp after 1973
		if n < 100_000_000_000 {
			return time.Unix(n, 0).UTC(), true
		}
		return time.UnixMilli(n).UTC(), true
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// WriteCSV writes candles with an epoch-millisecond time column, the format
// ReadCSV and the ClickHouse export share.
func WriteCSV(w io.Writer, cs []Candle) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, c := range cs {
		rec := []string{
			strconv.FormatInt(c.UnixMilli(), 10),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Glob expands a data-file pattern such as "data/**/*.csv". A pattern without
// meta characters is returned as-is so a plain missing path still errors at open.
func Glob(pattern string) ([]string, error) {
	if !strings.ContainsAny(pattern, "*?[{") {
		return []string{pattern}, nil
	}
	base, rest := doublestar.SplitPattern(filepath.ToSlash(pattern))
	matches, err := doublestar.Glob(os.DirFS(base), rest)
	if err != nil {
		return nil, fmt.Errorf("invalid data pattern %q: %w", pattern, err)
	}
	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		paths = append(paths, filepath.Join(base, filepath.FromSlash(m)))
	}
	sort.Strings(paths)
	return paths, nil
}
