package store

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"sort"

	"github.com/shopspring/decimal"

	"eod-collector/pkg/market"
)

// ErrNoData is returned when there is no dataset to summarise.
var ErrNoData = errors.New("store: no data file found")

const topSymbols = 10

// Summary describes a dataset.
type Summary struct {
	TotalRecords     int              `json:"total_records"`
	UniqueSymbols    int              `json:"unique_symbols"`
	DateRange        DateRange        `json:"date_range"`
	TopByVolume      []SymbolVolume   `json:"top_10_symbols_by_volume"`
	DataCompleteness DataCompleteness `json:"data_completeness"`
}

// DateRange spans the earliest and latest bar dates.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// SymbolVolume is the summed base volume of one symbol.
type SymbolVolume struct {
	Symbol string          `json:"symbol"`
	Volume decimal.Decimal `json:"volume"`
}

// MarshalJSON writes the volume as a JSON number, not decimal's quoted string.
func (v SymbolVolume) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Symbol string      `json:"symbol"`
		Volume json.Number `json:"volume"`
	}{Symbol: v.Symbol, Volume: json.Number(v.Volume.String())})
}

// DataCompleteness describes how many rows each symbol has.
type DataCompleteness struct {
	RowsPerSymbol RowStats `json:"rows_per_symbol"`
}

// RowStats are descriptive statistics over per-symbol row counts.
type RowStats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   int     `json:"min"`
	P25   float64 `json:"25%"`
	P50   float64 `json:"50%"`
	P75   float64 `json:"75%"`
	Max   int     `json:"max"`
}

// Summary reads the dataset and summarises it.
func (s *CSVStore) Summary() (Summary, error) {
	rows, err := s.Read()
	if errors.Is(err, os.ErrNotExist) {
		return Summary{}, ErrNoData
	}
	if err != nil {
		return Summary{}, err
	}
	if len(rows) == 0 {
		return Summary{}, ErrNoData
	}
	return Summarize(rows), nil
}

// Summarize computes the summary of rows.
func Summarize(rows []market.EnrichedBar) Summary {
	summary := Summary{TotalRecords: len(rows), TopByVolume: []SymbolVolume{}}
	if len(rows) == 0 {
		return summary
	}

	volumes := make(map[string]decimal.Decimal)
	counts := make(map[string]int)
	start, end := rows[0].Date, rows[0].Date
	for _, row := range rows {
		volumes[row.Symbol] = volumes[row.Symbol].Add(decimal.NewFromFloat(row.Volume))
		counts[row.Symbol]++
		if row.Date.Before(start) {
			start = row.Date
		}
		if row.Date.After(end) {
			end = row.Date
		}
	}
	summary.UniqueSymbols = len(counts)
	summary.DateRange = DateRange{
		Start: start.UTC().Format(market.DateLayout),
		End:   end.UTC().Format(market.DateLayout),
	}

	ranked := make([]SymbolVolume, 0, len(volumes))
	for symbol, volume := range volumes {
		ranked = append(ranked, SymbolVolume{Symbol: symbol, Volume: volume})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if c := ranked[i].Volume.Cmp(ranked[j].Volume); c != 0 {
			return c > 0
		}
		return ranked[i].Symbol < ranked[j].Symbol
	})
	if len(ranked) > topSymbols {
		ranked = ranked[:topSymbols]
	}
	summary.TopByVolume = ranked
	summary.DataCompleteness.RowsPerSymbol = rowStats(counts)
	return summary
}

// rowStats uses the sample standard deviation, zero for a single symbol, and
// linearly interpolated quartiles.
func rowStats(counts map[string]int) RowStats {
	stats := RowStats{Count: len(counts), Min: math.MaxInt}
	total := 0
	sorted := make([]int, 0, len(counts))
	for _, n := range counts {
		sorted = append(sorted, n)
		total += n
		if n < stats.Min {
			stats.Min = n
		}
		if n > stats.Max {
			stats.Max = n
		}
	}
	stats.Mean = float64(total) / float64(len(counts))
	if len(counts) > 1 {
		var sq float64
		for _, n := range counts {
			d := float64(n) - stats.Mean
			sq += d * d
		}
		stats.Std = math.Sqrt(sq / float64(len(counts)-1))
	}
	sort.Ints(sorted)
	stats.P25 = quantile(sorted, 0.25)
	stats.P50 = quantile(sorted, 0.5)
	stats.P75 = quantile(sorted, 0.75)
	return stats
}

func quantile(sorted []int, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	if lo+1 >= len(sorted) {
		return float64(sorted[lo])
	}
	frac := pos - float64(lo)
	return float64(sorted[lo]) + frac*float64(sorted[lo+1]-sorted[lo])
}
