package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RunRecord captures one collection run for audit and later inspection.
type RunRecord struct {
	Timestamp    time.Time         `json:"timestamp"`
	Mode         string            `json:"mode"`
	RunNumber    int               `json:"run_number"`
	DurationMs   int64             `json:"duration_ms"`
	Symbols      int               `json:"symbols"`
	Batches      int               `json:"batches"`
	Counts       map[string]int    `json:"counts"`
	RowsWritten  int               `json:"rows_written"`
	Failed       []string          `json:"failed,omitempty"`
	Skipped      map[string]string `json:"skipped,omitempty"`
	Interrupted  bool              `json:"interrupted,omitempty"`
	Success      bool              `json:"success"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Extra        map[string]any    `json:"extra,omitempty"`
}

// Writer persists run records to a directory as JSON files (journal style).
type Writer struct {
	dir   string
	seq   int
	nowFn func() time.Time
}

// NewWriter constructs a journal writer.
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "journal"
	}
	return &Writer{dir: dir, nowFn: time.Now}
}

// Dir returns the journal directory.
func (w *Writer) Dir() string {
	return w.dir
}

// WriteRun writes a run record to a timestamped JSON file.
func (w *Writer) WriteRun(rec *RunRecord) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("journal: nil record")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = w.nowFn()
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("journal: create %s: %w", w.dir, err)
	}
	w.seq++
	rec.RunNumber = w.seq
	name := fmt.Sprintf("run_%s_%s_%05d.json", rec.Mode, rec.Timestamp.UTC().Format("20060102_150405"), w.seq)
	path := filepath.Join(w.dir, name)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
