package exec

import (
	"sync"
	"time"
)

// Record is one entry in the per-task execution log.
type Record struct {
	TaskID       string    `json:"task_id,omitempty"`
	Command      string    `json:"command"`
	Status       Status    `json:"status"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	EdgesAdded   []string  `json:"edges_added,omitempty"`
	EdgesRemoved []string  `json:"edges_removed,omitempty"`
	ErrorReason  string    `json:"error_reason,omitempty"`
}

// RecordLog is an append-only log of execution attempts for one task.
type RecordLog struct {
	mu      sync.Mutex
	records []Record
}

func NewRecordLog() *RecordLog {
	return &RecordLog{}
}

func (l *RecordLog) Append(r Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, r)
}

// Snapshot returns a copy of the log contents.
func (l *RecordLog) Snapshot() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Record{}, l.records...)
}

// Reset clears the log for the next task.
func (l *RecordLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
}

func (l *RecordLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
