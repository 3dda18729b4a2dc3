// Package observability tracks benchmark latencies and exposes them as
// Prometheus metrics.
package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Latencies are recorded in microseconds between 1µs and maxTrackable.
const (
	maxTrackable     = int64(10 * time.Minute / time.Microsecond)
	significantFigs  = 3
	minTrackableMics = 1
)

// LatencyRecorder keeps an HDR histogram of operation latencies.
// It is safe for concurrent use.
type LatencyRecorder struct {
	mu        sync.Mutex
	histogram *hdrhistogram.Histogram
}

// LatencySummary is a point-in-time view of a LatencyRecorder.
type LatencySummary struct {
	Count int64
	Min   time.Duration
	Mean  time.Duration
	P50   time.Duration
	P90   time.Duration
	P99   time.Duration
	Max   time.Duration
}

// NewLatencyRecorder creates an empty recorder.
func NewLatencyRecorder() *LatencyRecorder {
	return &LatencyRecorder{
		histogram: hdrhistogram.New(minTrackableMics, maxTrackable, significantFigs),
	}
}

// Record adds one latency sample. Values outside the trackable range are
// clamped to it.
func (r *LatencyRecorder) Record(d time.Duration) {
	v := d.Microseconds()
	if v < minTrackableMics {
		v = minTrackableMics
	}
	if v > maxTrackable {
		v = maxTrackable
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// v is clamped into the histogram's trackable range above.
	if err := r.histogram.RecordValue(v); err != nil {
		panic(fmt.Sprintf("latency histogram rejected clamped value %d: %v", v, err))
	}
}

// Summary returns the current distribution.
func (r *LatencyRecorder) Summary() LatencySummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.histogram
	if h.TotalCount() == 0 {
		return LatencySummary{}
	}
	return LatencySummary{
		Count: h.TotalCount(),
		Min:   micros(h.Min()),
		Mean:  time.Duration(h.Mean() * float64(time.Microsecond)),
		P50:   micros(h.ValueAtQuantile(50)),
		P90:   micros(h.ValueAtQuantile(90)),
		P99:   micros(h.ValueAtQuantile(99)),
		Max:   micros(h.Max()),
	}
}

// Reset discards all samples.
func (r *LatencyRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histogram.Reset()
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}
