// Package report renders benchmark results to files, the console and object
// storage.
package report

import (
	"context"
	"errors"

	"github.com/idbench/idbench/pkg/types"
)

// Sink receives the ordered results of a run. Partial result sets are
// written the same way as complete ones.
type Sink interface {
	Write(ctx context.Context, results []types.BenchmarkResult) error
}

// MultiSink writes to every sink in order. A failing sink does not stop the
// ones after it; all errors are returned joined.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, results []types.BenchmarkResult) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, results); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
