package controller

import (
	"fmt"
	"os"
	"sync"

	"github.com/gocarina/gocsv"
)

// HistoryLog appends period records to a CSV file so a run's production
// history can be inspected after the process exits. Records accumulate in
// memory and the whole file is rewritten on each append; flush periods are
// long enough that the file stays small.
type HistoryLog struct {
	mu      sync.Mutex
	path    string
	records []PeriodRecord
}

// NewHistoryLog creates a history log writing to path.
func NewHistoryLog(path string) *HistoryLog {
	return &HistoryLog{path: path}
}

// Append adds one period record and rewrites the CSV file.
func (h *HistoryLog) Append(rec PeriodRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, rec)

	file, err := os.Create(h.path)
	if err != nil {
		return fmt.Errorf("failed to create history file: %w", err)
	}
	defer file.Close()

	if err := gocsv.MarshalFile(&h.records, file); err != nil {
		return fmt.Errorf("failed to write history CSV: %w", err)
	}

	return nil
}

// Len returns the number of records written so far.
func (h *HistoryLog) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}
