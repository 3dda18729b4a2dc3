// Package bench drives the insert and query benchmarks across key strategies.
package bench

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	benchErrors "github.com/idbench/idbench/internal/errors"
	"github.com/idbench/idbench/internal/factory"
	"github.com/idbench/idbench/internal/logging"
	"github.com/idbench/idbench/internal/observability"
	"github.com/idbench/idbench/internal/schema"
	"github.com/idbench/idbench/internal/store"
	"github.com/idbench/idbench/pkg/types"
)

// Options is the workload of one run.
type Options struct {
	InsertCount int
	BatchSize   int
	PageSkip    int
	PageTake    int
	// ParallelInserts runs the insert phases of all strategies concurrently.
	// Query phases always run one at a time.
	ParallelInserts bool
	// Strategies to run, in the order results are reported. Empty means all.
	Strategies []types.Strategy
}

// Runner executes benchmark runs against a store.
type Runner struct {
	store   store.Store
	factory *factory.Factory
	opts    Options
	logger  *logging.Logger
	metrics *observability.Metrics
	echoMu  sync.Mutex
	echo    io.Writer
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithEcho prints one line per finished phase to w.
func WithEcho(w io.Writer) Option {
	return func(r *Runner) {
		r.echo = w
	}
}

// New creates a runner. The options are validated here so a run never
// starts with a workload it cannot complete.
func New(st store.Store, f *factory.Factory, opts Options, ropts ...Option) (*Runner, error) {
	if opts.InsertCount < 0 {
		return nil, invalid("insert count must not be negative, got %d", opts.InsertCount)
	}
	if opts.BatchSize <= 0 {
		return nil, invalid("batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.PageSkip < 0 || opts.PageTake < 0 {
		return nil, invalid("invalid page skip=%d take=%d", opts.PageSkip, opts.PageTake)
	}
	if len(opts.Strategies) == 0 {
		opts.Strategies = types.AllStrategies()
	}
	for _, s := range opts.Strategies {
		if !s.Valid() {
			return nil, invalid("unknown strategy %s", s)
		}
	}

	r := &Runner{
		store:   st,
		factory: f,
		opts:    opts,
		logger:  logging.Nop(),
	}
	for _, o := range ropts {
		o(r)
	}
	r.logger = r.logger.WithComponent("bench")
	return r, nil
}

// Setup creates the table of every selected strategy.
func (r *Runner) Setup(ctx context.Context) error {
	descriptors, err := schema.All(r.opts.Strategies)
	if err != nil {
		return benchErrors.NewInternalError("resolve descriptors", err)
	}
	for _, d := range descriptors {
		if err := r.store.CreateSchema(ctx, d); err != nil {
			return fmt.Errorf("setup %s: %w", d.Strategy, err)
		}
		r.logger.DebugContext(ctx, "table ready",
			"strategy", d.Strategy.String(),
			"table", d.Table,
			"clustering", string(d.Clustering),
		)
	}
	return nil
}

// Run executes Setup, every insert phase and then every query phase.
// Results are returned in declaration order, inserts first. On failure the
// results gathered so far are returned together with the error.
func (r *Runner) Run(ctx context.Context) ([]types.BenchmarkResult, error) {
	if err := r.Setup(ctx); err != nil {
		return nil, err
	}
	r.echof("InsertCount=%d, BatchSize=%d\n", r.opts.InsertCount, r.opts.BatchSize)
	defer r.reportClock(ctx)

	results := make([]types.BenchmarkResult, 0, 2*len(r.opts.Strategies))

	inserts, err := r.runInserts(ctx)
	results = append(results, inserts...)
	if err != nil {
		return results, err
	}

	for _, s := range r.opts.Strategies {
		d, err := schema.For(s)
		if err != nil {
			return results, benchErrors.NewInternalError("resolve descriptor", err)
		}
		elapsed, _, err := r.RunQueryBenchmark(ctx, s, d.OrderColumn(), r.opts.PageSkip, r.opts.PageTake)
		if err != nil {
			return results, err
		}
		results = append(results, types.BenchmarkResult{
			Name:      s.String(),
			Operation: types.OperationQuery,
			Elapsed:   elapsed,
		})
	}

	return results, nil
}

func (r *Runner) runInserts(ctx context.Context) ([]types.BenchmarkResult, error) {
	strategies := r.opts.Strategies

	if !r.opts.ParallelInserts {
		results := make([]types.BenchmarkResult, 0, len(strategies))
		for _, s := range strategies {
			elapsed, err := r.RunInsertBenchmark(ctx, s, r.opts.InsertCount, r.opts.BatchSize)
			if err != nil {
				return results, err
			}
			results = append(results, insertResult(s, elapsed))
		}
		return results, nil
	}

	elapsed := make([]time.Duration, len(strategies))
	done := make([]bool, len(strategies))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range strategies {
		g.Go(func() error {
			d, err := r.RunInsertBenchmark(gctx, s, r.opts.InsertCount, r.opts.BatchSize)
			if err != nil {
				return err
			}
			elapsed[i], done[i] = d, true
			return nil
		})
	}
	err := g.Wait()

	results := make([]types.BenchmarkResult, 0, len(strategies))
	for i, s := range strategies {
		if done[i] {
			results = append(results, insertResult(s, elapsed[i]))
		}
	}
	return results, err
}

// RunInsertBenchmark inserts total records in batches of at most batchSize
// and returns the wall-clock time from the first batch to the last
// acknowledgement. Record construction is inside the timed region.
func (r *Runner) RunInsertBenchmark(ctx context.Context, s types.Strategy, total, batchSize int) (time.Duration, error) {
	if total < 0 {
		return 0, invalid("insert count must not be negative, got %d", total)
	}
	if batchSize <= 0 {
		return 0, invalid("batch size must be positive, got %d", batchSize)
	}
	d, err := schema.For(s)
	if err != nil {
		return 0, invalid("%v", err)
	}

	counter, canCount := r.store.(store.Counter)
	var before int64
	if canCount {
		if before, err = counter.Count(ctx, d.Table); err != nil {
			return 0, fmt.Errorf("%s insert: %w", s, err)
		}
	}

	latency := observability.NewLatencyRecorder()
	batches := 0

	start := time.Now()
	for left := total; left > 0; {
		n := min(batchSize, left)
		batch, err := r.factory.CreateBatch(s, n)
		if err != nil {
			return time.Since(start), r.phaseFailed(ctx, s, types.OperationInsert, start, err)
		}

		sent := time.Now()
		if err := r.store.BulkInsert(ctx, d.Table, batch); err != nil {
			return time.Since(start), r.phaseFailed(ctx, s, types.OperationInsert, start, err)
		}
		took := time.Since(sent)
		latency.Record(took)
		r.metrics.ObserveBatch(s.String(), n, took)

		batches++
		left -= n
	}
	elapsed := time.Since(start)

	if canCount {
		after, err := counter.Count(ctx, d.Table)
		if err != nil {
			return elapsed, fmt.Errorf("%s insert: %w", s, err)
		}
		if after-before != int64(total) {
			return elapsed, benchErrors.NewInternalError(
				fmt.Sprintf("%s insert: table %s grew by %d rows, want %d", s, d.Table, after-before, total), nil)
		}
	}

	sum := latency.Summary()
	r.logger.LogPhase(ctx, logging.PhaseStats{
		Strategy:  s.String(),
		Operation: string(types.OperationInsert),
		Elapsed:   elapsed,
		Rows:      int64(total),
		Batches:   batches,
		P50:       sum.P50,
		P99:       sum.P99,
		Max:       sum.Max,
	}, nil)
	r.metrics.ObservePhase(s.String(), string(types.OperationInsert), elapsed)
	r.echof("%s INSERT => %.2fs\n", s, elapsed.Seconds())
	return elapsed, nil
}

// RunQueryBenchmark issues one ordered page query and returns its
// wall-clock time, including materializing the rows, and the rows.
func (r *Runner) RunQueryBenchmark(ctx context.Context, s types.Strategy, orderColumn string, skip, take int) (time.Duration, []types.Record, error) {
	d, err := schema.For(s)
	if err != nil {
		return 0, nil, invalid("%v", err)
	}

	start := time.Now()
	rows, err := r.store.Query(ctx, d.Table, orderColumn, skip, take)
	elapsed := time.Since(start)
	if err != nil {
		return elapsed, nil, r.phaseFailed(ctx, s, types.OperationQuery, start, err)
	}

	r.logger.LogPhase(ctx, logging.PhaseStats{
		Strategy:  s.String(),
		Operation: string(types.OperationQuery),
		Elapsed:   elapsed,
		Rows:      int64(len(rows)),
	}, nil)
	r.metrics.ObservePhase(s.String(), string(types.OperationQuery), elapsed)
	r.metrics.ObserveQuery(s.String(), len(rows))
	r.echof("%s QUERY => %.2fs\n", s, elapsed.Seconds())
	return elapsed, rows, nil
}

func (r *Runner) phaseFailed(ctx context.Context, s types.Strategy, op types.Operation, start time.Time, err error) error {
	r.logger.LogPhase(ctx, logging.PhaseStats{
		Strategy:  s.String(),
		Operation: string(op),
		Elapsed:   time.Since(start),
	}, err)
	return fmt.Errorf("%s %s: %w", s, op, err)
}

func (r *Runner) reportClock(ctx context.Context) {
	n := r.factory.ClockRegressions()
	r.logger.LogClockRegressions(ctx, n)
	r.metrics.SetClockRegressions(n)
}

func (r *Runner) echof(format string, args ...any) {
	if r.echo == nil {
		return
	}
	r.echoMu.Lock()
	defer r.echoMu.Unlock()
	fmt.Fprintf(r.echo, format, args...)
}

func insertResult(s types.Strategy, elapsed time.Duration) types.BenchmarkResult {
	return types.BenchmarkResult{
		Name:      s.String(),
		Operation: types.OperationInsert,
		Elapsed:   elapsed,
	}
}

func invalid(format string, args ...any) error {
	return benchErrors.NewInvalidArgument(benchErrors.ErrCategoryBenchmark, fmt.Sprintf(format, args...))
}
