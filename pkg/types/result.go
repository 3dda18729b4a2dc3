package types

import "time"

// Operation is the benchmarked workload kind.
type Operation string

const (
	OperationInsert Operation = "Insert"
	OperationQuery  Operation = "Query"
)

// BenchmarkResult is the timing of one (strategy, operation) pair.
// Results are values and are not modified after the runner records them.
type BenchmarkResult struct {
	Name      string
	Operation Operation
	Elapsed   time.Duration
}

// Seconds returns the elapsed wall-clock time in seconds.
func (r BenchmarkResult) Seconds() float64 {
	return r.Elapsed.Seconds()
}
