// Package logging provides the structured logger used across the benchmark.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Logger wraps slog.Logger with benchmark-specific helpers.
type Logger struct {
	*slog.Logger
}

// New creates a Logger writing to w in the given format ("text" or "json").
func New(w io.Writer, format string, level slog.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(handler)}
}

// Nop returns a Logger that discards all output.
func Nop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))}
}

// ParseLevel resolves debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("logging: invalid level %q", s)
	}
	return level, nil
}

// WithComponent tags every entry with the emitting component.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{Logger: l.Logger.With("component", name)}
}

// PhaseStats is what a completed benchmark phase reports.
type PhaseStats struct {
	Strategy  string
	Operation string
	Elapsed   time.Duration
	Rows      int64
	Batches   int
	P50       time.Duration
	P99       time.Duration
	Max       time.Duration
}

// LogPhase logs a completed or failed benchmark phase.
func (l *Logger) LogPhase(ctx context.Context, s PhaseStats, err error) {
	if err != nil {
		l.ErrorContext(ctx, "phase failed",
			"strategy", s.Strategy,
			"operation", s.Operation,
			"elapsed", s.Elapsed,
			"error", err,
		)
		return
	}

	attrs := []any{
		"strategy", s.Strategy,
		"operation", s.Operation,
		"elapsed", s.Elapsed.Round(time.Millisecond),
		"rows", humanize.Comma(s.Rows),
	}
	if secs := s.Elapsed.Seconds(); secs > 0 && s.Rows > 0 {
		attrs = append(attrs, "rows_per_sec", humanize.CommafWithDigits(float64(s.Rows)/secs, 0))
	}
	if s.Batches > 0 {
		attrs = append(attrs,
			"batches", s.Batches,
			"batch_p50", s.P50,
			"batch_p99", s.P99,
			"batch_max", s.Max,
		)
	}
	l.InfoContext(ctx, "phase completed", attrs...)
}

// LogRetry logs a transient storage failure that is about to be retried.
func (l *Logger) LogRetry(op string, attempt int, err error) {
	l.Warn("retrying storage operation",
		"op", op,
		"attempt", attempt+1,
		"error", err,
	)
}

// LogClockRegressions logs the number of clock regressions the monotonic
// generator absorbed. Zero is not logged.
func (l *Logger) LogClockRegressions(ctx context.Context, n uint64) {
	if n == 0 {
		return
	}
	l.WarnContext(ctx, "clock moved backwards during id generation; ids were clamped",
		"regressions", n,
	)
}

// LogArtifact logs a written or published result artifact.
func (l *Logger) LogArtifact(ctx context.Context, kind, location string, size int64) {
	l.InfoContext(ctx, "artifact written",
		"kind", kind,
		"location", location,
		"size", humanize.Bytes(uint64(size)),
	)
}
