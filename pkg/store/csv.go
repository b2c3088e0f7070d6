// Package store persists enriched daily bars to a single CSV dataset.
package store

import (
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

	"github.com/zeromicro/go-zero/core/logx"

	"eod-collector/pkg/market"
)

// Mode selects how Write treats an existing dataset.
type Mode int

const (
	// ModeOverwrite replaces the file with the given rows.
	ModeOverwrite Mode = iota
	// ModeMerge folds the rows into the existing file; new rows win on key collisions.
	ModeMerge
)

func (m Mode) String() string {
	switch m {
	case ModeOverwrite:
		return "overwrite"
	case ModeMerge:
		return "merge"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Header is the dataset column order.
var Header = []string{
	"date", "open", "high", "low", "close", "volume", "quote_volume", "trades", "symbol",
	"market_cap", "circulating_supply", "total_supply", "max_supply",
}

// ErrCorrupt marks an existing dataset that cannot be parsed.
var ErrCorrupt = errors.New("store: corrupt dataset")

// CSVStore owns the dataset file. It assumes a single writer.
type CSVStore struct {
	path string
}

// NewCSVStore returns a store for path.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Path returns the dataset file.
func (s *CSVStore) Path() string {
	return s.path
}

// Write persists rows according to mode and returns the number of rows now in
// the file. Empty rows leave the file untouched.
func (s *CSVStore) Write(rows []market.EnrichedBar, mode Mode) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	out := rows
	if mode == ModeMerge {
		existing, err := s.Read()
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return 0, err
		}
		out = make([]market.EnrichedBar, 0, len(existing)+len(rows))
		out = append(out, existing...)
		out = append(out, rows...)
	}
	out = dedupe(out)
	sortRows(out)

	if err := s.writeFile(out); err != nil {
		return 0, err
	}
	logx.Infof("store: wrote %d rows (%d new) to %s mode=%s", len(out), len(rows), s.path, mode)
	return len(out), nil
}

// Read loads every row of the dataset. A missing file returns an error
// matching os.ErrNotExist.
func (s *CSVStore) Read() ([]market.EnrichedBar, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", s.path, err)
	}
	defer file.Close()
	rows, err := decode(file)
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", s.path, err)
	}
	return rows, nil
}

func (s *CSVStore) writeFile(rows []market.EnrichedBar) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+"-*")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	if err := encode(tmp, rows); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("store: write %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store: replace %s: %w", s.path, err)
	}
	return nil
}

// dedupe keeps the last row for each (date, symbol) key.
func dedupe(rows []market.EnrichedBar) []market.EnrichedBar {
	last := make(map[market.BarKey]int, len(rows))
	for i, row := range rows {
		last[row.Key()] = i
	}
	out := make([]market.EnrichedBar, 0, len(last))
	for i, row := range rows {
		if last[row.Key()] == i {
			out = append(out, row)
		}
	}
	return out
}

func sortRows(rows []market.EnrichedBar) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Symbol != rows[j].Symbol {
			return rows[i].Symbol < rows[j].Symbol
		}
		return rows[i].Date.Before(rows[j].Date)
	})
}

func encode(w io.Writer, rows []market.EnrichedBar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(formatRow(row)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatRow(row market.EnrichedBar) []string {
	return []string{
		row.Date.UTC().Format(market.DateLayout),
		formatFloat(row.Open),
		formatFloat(row.High),
		formatFloat(row.Low),
		formatFloat(row.Close),
		formatFloat(row.Volume),
		formatFloat(row.QuoteVolume),
		strconv.FormatInt(row.Trades, 10),
		row.Symbol,
		formatOptional(row.MarketCap),
		formatOptional(row.CirculatingSupply),
		formatOptional(row.TotalSupply),
		formatOptional(row.MaxSupply),
	}
}

// formatFloat uses the shortest representation that parses back to v.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

// decode maps columns by header name, so files missing the optional
// enrichment columns still load.
func decode(r io.Reader) ([]market.EnrichedBar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, required := range []string{"date", "symbol"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrCorrupt, required)
		}
	}

	var rows []market.EnrichedBar
	line := 1
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrCorrupt, line, err)
		}
		row, err := parseRow(record, index)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrCorrupt, line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(record []string, index map[string]int) (market.EnrichedBar, error) {
	cell := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var row market.EnrichedBar
	date, err := time.Parse(market.DateLayout, cell("date"))
	if err != nil {
		return row, fmt.Errorf("date %q: %v", cell("date"), err)
	}
	row.Date = date
	row.Symbol = cell("symbol")
	if row.Symbol == "" {
		return row, errors.New("empty symbol")
	}

	floats := []struct {
		name string
		dst  *float64
	}{
		{"open", &row.Open},
		{"high", &row.High},
		{"low", &row.Low},
		{"close", &row.Close},
		{"volume", &row.Volume},
		{"quote_volume", &row.QuoteVolume},
	}
	for _, f := range floats {
		raw := cell(f.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return row, fmt.Errorf("%s %q: %v", f.name, raw, err)
		}
		*f.dst = v
	}
	if raw := cell("trades"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			// Files written by other tools may carry trades as a float.
			v, ferr := strconv.ParseFloat(raw, 64)
			if ferr != nil {
				return row, fmt.Errorf("trades %q: %v", raw, err)
			}
			n = int64(v)
		}
		row.Trades = n
	}

	optionals := []struct {
		name string
		dst  **float64
	}{
		{"market_cap", &row.MarketCap},
		{"circulating_supply", &row.CirculatingSupply},
		{"total_supply", &row.TotalSupply},
		{"max_supply", &row.MaxSupply},
	}
	for _, f := range optionals {
		raw := cell(f.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return row, fmt.Errorf("%s %q: %v", f.name, raw, err)
		}
		*f.dst = market.Float(v)
	}
	return row, nil
}
