package report

import (
	"context"
	"fmt"
	"io"
	"math"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/idbench/idbench/pkg/types"
)

// ConsoleSink prints results as an aligned table. Each row also shows the
// elapsed time relative to the first strategy of the same operation.
type ConsoleSink struct {
	w io.Writer
}

// NewConsoleSink creates a sink writing to w.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

func (s *ConsoleSink) Write(ctx context.Context, results []types.BenchmarkResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	baseline := make(map[types.Operation]float64)
	tw := tabwriter.NewWriter(s.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tSECONDS\tRELATIVE")
	for _, r := range results {
		base, ok := baseline[r.Operation]
		if !ok {
			base = r.Seconds()
			baseline[r.Operation] = base
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Name, r.Operation, formatSeconds(r), relative(r.Seconds(), base))
	}
	return tw.Flush()
}

func relative(v, base float64) string {
	if base <= 0 {
		return "-"
	}
	return humanize.FtoaWithDigits(v/base, 2) + "x"
}

func secondsToDuration(secs float64) time.Duration {
	return time.Duration(math.Round(secs * float64(time.Second)))
}
