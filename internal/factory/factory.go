// Package factory constructs benchmark records for each key strategy.
package factory

import (
	"fmt"
	"time"

	benchErrors "github.com/idbench/idbench/internal/errors"
	"github.com/idbench/idbench/pkg/types"
)

// Factory builds records. The monotonic generator is passed in explicitly and
// shared by both ULID strategies; everything else is stateless.
type Factory struct {
	ulids *types.MonotonicGenerator
	now   func() time.Time
}

// Option configures a Factory.
type Option func(*Factory)

// WithClock sets the source of createdOn timestamps.
func WithClock(now func() time.Time) Option {
	return func(f *Factory) {
		f.now = now
	}
}

// New creates a factory drawing ULIDs from gen.
func New(gen *types.MonotonicGenerator, opts ...Option) *Factory {
	f := &Factory{
		ulids: gen,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create constructs one record for the strategy. createdOn is taken from the
// factory clock at construction time, in UTC. Integer records carry a zero id
// until the storage layer assigns one.
func (f *Factory) Create(s types.Strategy) (types.Record, error) {
	if s == types.StrategyULIDString || s == types.StrategyULIDBinary {
		return f.createULID(s)
	}
	created := f.now().UTC()

	switch s {
	case types.StrategyInt:
		return &types.IntRecord{Created: created}, nil

	case types.StrategyGUIDv4, types.StrategyGUIDv4ClusterOnDate:
		id, err := types.NewRandomWideID()
		if err != nil {
			return nil, benchErrors.NewCodecError("generate random wide id", err)
		}
		return &types.WideIDRecord{Kind: s, ID: id, Created: created}, nil

	case types.StrategyGUIDv7:
		id, err := types.NewTimeOrderedWideID()
		if err != nil {
			return nil, benchErrors.NewCodecError("generate time-ordered wide id", err)
		}
		return &types.WideIDRecord{Kind: s, ID: id, Created: created}, nil
	}

	return nil, benchErrors.NewInvalidArgument(benchErrors.ErrCategoryBenchmark,
		fmt.Sprintf("unknown strategy %s", s))
}

// createULID reads the clock under the generator lock, so concurrent callers
// cannot overtake each other between the reading and the issued id.
func (f *Factory) createULID(s types.Strategy) (types.Record, error) {
	id, at, err := f.ulids.GenerateAt(f.now)
	if err != nil {
		return nil, benchErrors.NewCodecError("generate monotonic id", err)
	}
	created := at.UTC()
	if s == types.StrategyULIDString {
		return &types.ULIDTextRecord{ID: id.String(), Created: created}, nil
	}
	return &types.ULIDBinaryRecord{ID: id, Created: created}, nil
}

// CreateBatch constructs n records for the strategy.
func (f *Factory) CreateBatch(s types.Strategy, n int) ([]types.Record, error) {
	batch := make([]types.Record, 0, n)
	for i := 0; i < n; i++ {
		r, err := f.Create(s)
		if err != nil {
			return nil, err
		}
		batch = append(batch, r)
	}
	return batch, nil
}

// ClockRegressions reports how many clock regressions the shared generator
// has absorbed.
func (f *Factory) ClockRegressions() uint64 {
	return f.ulids.Regressions()
}
