// Package app wires configuration, storage, the runner and the result sinks
// into one benchmark run.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/idbench/idbench/internal/bench"
	"github.com/idbench/idbench/internal/config"
	"github.com/idbench/idbench/internal/factory"
	"github.com/idbench/idbench/internal/logging"
	"github.com/idbench/idbench/internal/observability"
	"github.com/idbench/idbench/internal/report"
	"github.com/idbench/idbench/internal/storage"
	"github.com/idbench/idbench/internal/store"
	"github.com/idbench/idbench/pkg/types"
)

// App manages the lifecycle of one benchmark run.
type App struct {
	cfg    *config.Config
	logger *logging.Logger
	stdout io.Writer

	// Shared resources
	metrics   *observability.Metrics
	store     *store.SQLiteStore
	publisher *report.PublishingSink

	// Lifecycle
	mu      sync.Mutex
	running bool
}

// Option configures an App.
type Option func(*App)

// WithStdout sets where phase echoes and the result table are printed.
func WithStdout(w io.Writer) Option {
	return func(a *App) {
		a.stdout = w
	}
}

// WithLogger overrides the logger built from the configuration.
func WithLogger(l *logging.Logger) Option {
	return func(a *App) {
		a.logger = l
	}
}

// New creates a new App with the given configuration.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	// Resolve paths and validate
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	a := &App{
		cfg:    cfg,
		stdout: os.Stdout,
	}
	for _, o := range opts {
		o(a)
	}
	if a.logger == nil {
		level, err := logging.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		a.logger = logging.New(os.Stderr, cfg.Log.Format, level)
	}
	return a, nil
}

// Run executes the benchmark and writes the results to every configured
// sink. Results gathered before a failure are still written, and returned
// together with the error.
func (a *App) Run(ctx context.Context) ([]types.BenchmarkResult, error) {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil, fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	if err := a.initSharedResources(ctx); err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize shared resources: %w", err)
	}
	defer a.cleanup()

	runner, err := a.newRunner()
	if err != nil {
		return nil, err
	}

	log := a.logger.WithComponent("app")
	log.InfoContext(ctx, "benchmark starting",
		"insert_count", a.cfg.Benchmark.InsertCount,
		"batch_size", a.cfg.Benchmark.BatchSize,
		"page_skip", a.cfg.Benchmark.PageSkip,
		"page_take", a.cfg.Benchmark.PageTake,
		"parallel_inserts", a.cfg.Benchmark.ParallelInserts,
		"database", a.cfg.Database.Path,
	)

	results, runErr := runner.Run(ctx)
	if runErr != nil {
		log.ErrorContext(ctx, "benchmark aborted",
			"completed_phases", len(results),
			"error", runErr,
		)
	}

	// Outputs are written even when the run was cancelled.
	outCtx := context.WithoutCancel(ctx)
	outErr := a.writeOutputs(outCtx, results)
	if outErr != nil {
		log.ErrorContext(ctx, "failed to write results", "error", outErr)
	}

	return results, errors.Join(runErr, outErr)
}

// initSharedResources opens the database, the metrics registry and the
// publish target.
func (a *App) initSharedResources(ctx context.Context) error {
	a.metrics = observability.NewMetrics()
	retryLog := a.logger.WithComponent("store")

	st, err := store.Open(store.Options{
		Path:        a.cfg.Database.Path,
		BusyTimeout: a.cfg.Database.BusyTimeout,
		Reset:       a.cfg.Database.Reset,
		Retry: store.RetryPolicy{
			MaxRetries: a.cfg.Database.MaxRetries,
			BaseDelay:  a.cfg.Database.RetryBaseDelay,
		},
		OnRetry: func(op string, attempt int, err error) {
			retryLog.LogRetry(op, attempt, err)
			a.metrics.IncRetry(op)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.store = st
	a.logger.DebugContext(ctx, "database opened", "path", a.cfg.Database.Path)

	objects, err := a.openPublishTarget(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize publish target: %w", err)
	}
	if objects != nil {
		var attachments []string
		if a.cfg.Output.MetricsPath != "" {
			attachments = append(attachments, a.cfg.Output.MetricsPath)
		}
		a.publisher, err = report.NewPublishingSink(objects, a.cfg.Publish.Prefix,
			report.WithAttachments(attachments...),
			report.WithPublishLogger(a.logger),
		)
		if err != nil {
			return err
		}
		a.logger.InfoContext(ctx, "publishing enabled",
			"type", a.cfg.Publish.Type,
			"prefix", a.cfg.Publish.Prefix,
			"run_id", a.publisher.RunID(),
		)
	}
	return nil
}

func (a *App) openPublishTarget(ctx context.Context) (storage.ObjectStorage, error) {
	switch a.cfg.Publish.Type {
	case config.PublishNone:
		return nil, nil
	case config.PublishLocal:
		return storage.NewLocalStorage(a.cfg.Publish.Path)
	case config.PublishS3:
		s3Cfg := a.cfg.Publish.S3
		return storage.NewS3Storage(ctx, s3Cfg.Bucket, storage.S3Config{
			Region:       s3Cfg.Region,
			Endpoint:     s3Cfg.Endpoint,
			UsePathStyle: s3Cfg.UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unsupported publish type: %s", a.cfg.Publish.Type)
	}
}

func (a *App) newRunner() (*bench.Runner, error) {
	strategies, err := a.cfg.SelectedStrategies()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	f := factory.New(types.NewMonotonicGenerator())
	return bench.New(a.store, f, bench.Options{
		InsertCount:     a.cfg.Benchmark.InsertCount,
		BatchSize:       a.cfg.Benchmark.BatchSize,
		PageSkip:        a.cfg.Benchmark.PageSkip,
		PageTake:        a.cfg.Benchmark.PageTake,
		ParallelInserts: a.cfg.Benchmark.ParallelInserts,
		Strategies:      strategies,
	},
		bench.WithLogger(a.logger),
		bench.WithMetrics(a.metrics),
		bench.WithEcho(a.stdout),
	)
}

// writeOutputs writes the metrics textfile first so the publisher can
// attach it, then every result sink.
func (a *App) writeOutputs(ctx context.Context, results []types.BenchmarkResult) error {
	var errs []error
	if path := a.cfg.Output.MetricsPath; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		} else {
			var size int64
			if info, err := os.Stat(path); err == nil {
				size = info.Size()
			}
			a.logger.WithComponent("report").LogArtifact(ctx, "metrics", path, size)
		}
	}

	if err := a.sinks().Write(ctx, results); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) sinks() report.MultiSink {
	var sinks report.MultiSink
	if a.cfg.Output.CSVPath != "" {
		sinks = append(sinks, report.NewCSVSink(a.cfg.Output.CSVPath, a.logger, a.stdout))
	}
	if a.cfg.Output.Console {
		sinks = append(sinks, report.NewConsoleSink(a.stdout))
	}
	if a.publisher != nil {
		sinks = append(sinks, a.publisher)
	}
	return sinks
}

// RunID returns the id results are published under, or "" when publishing
// is disabled.
func (a *App) RunID() string {
	if a.publisher == nil {
		return ""
	}
	return a.publisher.RunID()
}

// cleanup closes the database. Safe to call more than once.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close database", "error", err)
		}
		a.store = nil
	}
}
