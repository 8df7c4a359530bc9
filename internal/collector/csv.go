package collector

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"ZoneSentinel/internal/model"
)

// CSVProvider reads {Dir}/{SYMBOL}_{TF}.csv files with a header row. Column
// names are matched case-insensitively; time may be RFC3339, a plain
// "2006-01-02 15:04:05" stamp, a date, or unix seconds.
type CSVProvider struct {
	Dir string
}

func NewCSVProvider(dir string) *CSVProvider {
	return &CSVProvider{Dir: dir}
}

func (p *CSVProvider) Name() string { return "csv" }

// Path returns the file the provider reads for symbol and tf.
func (p *CSVProvider) Path(symbol string, tf model.Timeframe) string {
	return filepath.Join(p.Dir, fmt.Sprintf("%s_%s.csv", strings.ToUpper(symbol), tf))
}

func (p *CSVProvider) Bars(ctx context.Context, symbol string, tf model.Timeframe) ([]model.OHLCV, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := p.Path(symbol, tf)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, model.ErrNoData)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bars, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: %w", path, model.ErrNoData)
	}
	return bars, nil
}

// ErrMalformedRow marks a data row whose time, open or close is missing or
// unparsable.
var ErrMalformedRow = errors.New("malformed csv row")

// ReadCSV parses OHLCV rows. A row without a parsable time, open or close
// fails the whole read with ErrMalformedRow and its line number; high, low
// and volume fall back when absent. The result is sorted, deduplicated by
// time and indexed.
func ReadCSV(r io.Reader) ([]model.OHLCV, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var headers []string
	var out []model.OHLCV
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if headers == nil {
			headers = rec
			continue
		}
		row := make(map[string]string, len(headers))
		for j, h := range headers {
			if j < len(rec) {
				row[strings.ToLower(strings.TrimSpace(h))] = strings.TrimSpace(rec[j])
			}
		}
		line, _ := cr.FieldPos(0)
		ts := first(row, "time", "timestamp", "date", "datetime")
		op, cp := first(row, "open"), first(row, "close")
		if ts == "" || op == "" || cp == "" {
			return nil, fmt.Errorf("line %d: missing time, open or close: %w", line, ErrMalformedRow)
		}
		t, err := parseTimeFlexible(ts)
		if err != nil {
			return nil, fmt.Errorf("line %d: %v: %w", line, err, ErrMalformedRow)
		}
		o, err1 := strconv.ParseFloat(op, 64)
		c, err2 := strconv.ParseFloat(cp, 64)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("line %d: bad open %q or close %q: %w", line, op, cp, ErrMalformedRow)
		}
		h := parseOr(first(row, "high"), max(o, c))
		l := parseOr(first(row, "low"), min(o, c))
		v := parseOr(first(row, "volume", "vol"), 0)
		out = append(out, model.OHLCV{Time: t, Open: o, High: h, Low: l, Close: c, Volume: v})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	dedup := out[:0]
	for i, b := range out {
		if i > 0 && b.Time.Equal(dedup[len(dedup)-1].Time) {
			dedup[len(dedup)-1] = b
			continue
		}
		dedup = append(dedup, b)
	}
	for i := range dedup {
		dedup[i].Index = i
	}
	return dedup, nil
}

func first(row map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := row[k]; v != "" {
			return v
		}
	}
	return ""
}

func parseOr(s string, def float64) float64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTimeFlexible accepts the layouts above or unix seconds, always UTC.
func parseTimeFlexible(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time: %s", s)
}
