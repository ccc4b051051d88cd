package query

import (
	"context"
	"time"
)

// Result is one materialized execution. It is built once by the engine adapter and never
// mutated afterwards, so it can be shared across goroutines by value.
type Result struct {
	Columns       []string
	Rows          [][]CellValue
	Success       bool
	Error         string
	ExecutionTime time.Duration
	TotalRows     int
}

// Failed builds an unsuccessful result carrying message.
func Failed(message string) Result {
	return Result{Success: false, Error: message}
}

func (r Result) ExecutionTimeMs() int64 {
	return r.ExecutionTime.Milliseconds()
}

// Cell returns the value at (row, col). Rows may be narrower than Columns, so callers
// must check ok before using the value.
func (r Result) Cell(row, col int) (CellValue, bool) {
	if row < 0 || row >= len(r.Rows) || col < 0 {
		return CellValue{}, false
	}
	cells := r.Rows[row]
	if col >= len(cells) {
		return CellValue{}, false
	}
	return cells[col], true
}

// ColumnIndex returns the position of the first column named name, or -1.
func (r Result) ColumnIndex(name string) int {
	for i, column := range r.Columns {
		if column == name {
			return i
		}
	}
	return -1
}

// Engine is the narrow surface the asynchronous executor needs from an adapter.
type Engine interface {
	Execute(ctx context.Context, sql string) Result
	Interrupt() bool
}
