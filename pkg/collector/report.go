package collector

import (
	"sort"
	"time"

	"eod-collector/pkg/journal"
)

// State is a symbol's position in the collection state machine.
type State string

const (
	StatePending   State = "PENDING"
	StateFetched   State = "FETCHED"
	StateEnriched  State = "ENRICHED"
	StatePersisted State = "PERSISTED"
	StateFailed    State = "FAILED"
	StateSkipped   State = "SKIPPED"
)

// Tally counts symbols per category. Fetched counts every symbol that got
// bars, including those later skipped or persisted.
type Tally struct {
	Pending   int `json:"pending"`
	Fetched   int `json:"fetched"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Persisted int `json:"persisted"`
}

// Report is the outcome of a run. Every symbol appears in States; failed and
// skipped symbols carry a reason.
type Report struct {
	Mode        string
	Started     time.Time
	Finished    time.Time
	Batches     int
	States      map[string]State
	Failed      map[string]string
	Skipped     map[string]string
	RowsWritten int
	Interrupted bool
}

func newReport(mode string, symbols []string, started time.Time) *Report {
	r := &Report{
		Mode:    mode,
		Started: started,
		States:  make(map[string]State, len(symbols)),
		Failed:  make(map[string]string),
		Skipped: make(map[string]string),
	}
	for _, symbol := range symbols {
		r.States[symbol] = StatePending
	}
	return r
}

func (r *Report) fail(symbol, reason string) {
	r.States[symbol] = StateFailed
	r.Failed[symbol] = reason
}

func (r *Report) skip(symbol, reason string) {
	r.States[symbol] = StateSkipped
	r.Skipped[symbol] = reason
}

// Tally counts the symbols of the whole run.
func (r *Report) Tally() Tally {
	return tally(r.States, nil)
}

func tally(states map[string]State, only []string) Tally {
	var t Tally
	count := func(state State) {
		switch state {
		case StatePending:
			t.Pending++
		case StateFailed:
			t.Failed++
		case StateSkipped:
			t.Fetched++
			t.Skipped++
		case StatePersisted:
			t.Fetched++
			t.Persisted++
		case StateFetched, StateEnriched:
			t.Fetched++
		}
	}
	if only == nil {
		for _, state := range states {
			count(state)
		}
		return t
	}
	for _, symbol := range only {
		count(states[symbol])
	}
	return t
}

// Success reports whether at least one symbol was persisted.
func (r *Report) Success() bool {
	return r.Tally().Persisted > 0
}

// FailedSymbols returns failed symbols sorted.
func (r *Report) FailedSymbols() []string {
	return sortedKeys(r.Failed)
}

// SkippedSymbols returns skipped symbols sorted.
func (r *Report) SkippedSymbols() []string {
	return sortedKeys(r.Skipped)
}

// Record converts the report into a journal entry.
func (r *Report) Record(runErr error) *journal.RunRecord {
	t := r.Tally()
	rec := &journal.RunRecord{
		Timestamp:  r.Started,
		Mode:       r.Mode,
		DurationMs: r.Finished.Sub(r.Started).Milliseconds(),
		Symbols:    len(r.States),
		Batches:    r.Batches,
		Counts: map[string]int{
			string(StatePending):   t.Pending,
			string(StateFetched):   t.Fetched,
			string(StateFailed):    t.Failed,
			string(StateSkipped):   t.Skipped,
			string(StatePersisted): t.Persisted,
		},
		RowsWritten: r.RowsWritten,
		Failed:      r.FailedSymbols(),
		Skipped:     r.Skipped,
		Interrupted: r.Interrupted,
		Success:     r.Success() && runErr == nil,
	}
	if runErr != nil {
		rec.ErrorMessage = runErr.Error()
	}
	return rec
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// preview lists up to n symbols, enough to attribute small failure sets in logs.
func preview(symbols []string, n int) []string {
	if len(symbols) <= n {
		return symbols
	}
	return symbols[:n]
}
