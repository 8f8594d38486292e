// Package models provides the data structures shared by the Snowcap import
// pipeline: raw source rows, transformed capture events, batch windows and
// checkpoint cursors.
package models

import "fmt"

// ImportMode selects between an open-ended import that follows table growth
// and a bounded import of the rows present at first startup.
type ImportMode string

const (
	// ModeContinuous keeps importing on a fixed cadence forever.
	ModeContinuous ImportMode = "continuous"
	// ModeHistorical stops once the offset passes the total-rows snapshot
	// captured at first successful startup.
	ModeHistorical ImportMode = "historical"
)

// RawRow is an ordered mapping from column name to scalar value, one per
// fetched record. Column order follows the result set so transforms that
// iterate columns are deterministic.
type RawRow struct {
	Columns []string
	Values  map[string]interface{}
}

// NewRawRow creates a RawRow preserving the given column order.
func NewRawRow(columns []string) *RawRow {
	return &RawRow{
		Columns: columns,
		Values:  make(map[string]interface{}, len(columns)),
	}
}

// Get returns the value for a column and whether the column exists.
func (r *RawRow) Get(column string) (interface{}, bool) {
	v, ok := r.Values[column]
	return v, ok
}

// Set stores a value, appending the column to the order if it is new.
func (r *RawRow) Set(column string, value interface{}) {
	if _, exists := r.Values[column]; !exists {
		r.Columns = append(r.Columns, column)
	}
	r.Values[column] = value
}

// Event is a transformed capture event. An event is emittable only when Name
// is non-empty; everything else is forwarded to the sink verbatim.
type Event struct {
	Name       string                 `json:"event"`
	DistinctID interface{}            `json:"distinct_id,omitempty"`
	Timestamp  interface{}            `json:"timestamp,omitempty"`
	Properties map[string]interface{} `json:"properties"`
}

// Emittable reports whether the event has the minimal shape required by the
// capture sink.
func (e *Event) Emittable() bool {
	return e != nil && e.Name != ""
}

// BatchWindow is one fetch window. Consecutive successful batches satisfy
// next.Offset == prev.Offset + prev.Limit: no gaps, no overlap.
type BatchWindow struct {
	Offset int64
	Limit  int64
}

// Next returns the window immediately following this one.
func (w BatchWindow) Next() BatchWindow {
	return BatchWindow{Offset: w.Offset + w.Limit, Limit: w.Limit}
}

func (w BatchWindow) String() string {
	return fmt.Sprintf("[%d, %d)", w.Offset, w.Offset+w.Limit)
}

// RetryState is the payload of a self-scheduled job invocation. A fresh
// (non-retry) batch carries AttemptsSoFar == 0 and no pinned offset.
type RetryState struct {
	AttemptsSoFar int
	// Offset pins the window being retried. Nil for fresh batches, which
	// compute their offset from the checkpoint store instead.
	Offset *int64
}

// IsRetry reports whether this invocation retries a previously failed window.
func (s RetryState) IsRetry() bool {
	return s.Offset != nil
}

// Cursor is the durable checkpoint state owned by the checkpoint store.
type Cursor struct {
	// Offset is monotonically non-decreasing across successful batches.
	Offset int64 `json:"import_offset"`
	// TotalRowsSnapshot bounds a historical import. Captured once, on first
	// successful startup in historical mode, never changed thereafter.
	TotalRowsSnapshot *int64     `json:"total_rows_snapshot,omitempty"`
	Mode              ImportMode `json:"mode"`
}
