package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/idbench/idbench/internal/logging"
	"github.com/idbench/idbench/pkg/types"
)

var csvHeader = []string{"Name", "Type", "Seconds"}

// CSVSink writes results to a CSV file with the header Name,Type,Seconds.
type CSVSink struct {
	path   string
	logger *logging.Logger
	echo   io.Writer
}

// NewCSVSink creates a sink writing to path. When echo is non-nil a
// confirmation line is printed to it after every write.
func NewCSVSink(path string, logger *logging.Logger, echo io.Writer) *CSVSink {
	if logger == nil {
		logger = logging.Nop()
	}
	return &CSVSink{path: path, logger: logger.WithComponent("report"), echo: echo}
}

// Path returns the output file path.
func (s *CSVSink) Path() string {
	return s.path
}

// Write replaces the file atomically: rows go to a temporary file in the
// same directory which is then renamed over the target.
func (s *CSVSink) Write(ctx context.Context, results []types.BenchmarkResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create csv directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".results-*.csv")
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, results); err != nil {
		tmp.Close()
		return fmt.Errorf("write csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close csv: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("rename csv: %w", err)
	}

	var size int64
	if info, err := os.Stat(s.path); err == nil {
		size = info.Size()
	}
	s.logger.LogArtifact(ctx, "csv", s.path, size)
	if s.echo != nil {
		fmt.Fprintf(s.echo, "CSV written: %s\n", s.path)
	}
	return nil
}

// WriteCSV writes the header and one row per result to w.
func WriteCSV(w io.Writer, results []types.BenchmarkResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range results {
		row := []string{r.Name, string(r.Operation), formatSeconds(r)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a file written by WriteCSV. Seconds are restored with the
// two-decimal precision they were written with.
func ReadCSV(r io.Reader) ([]types.BenchmarkResult, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("missing header")
	}
	for i, h := range csvHeader {
		if len(records[0]) != len(csvHeader) || records[0][i] != h {
			return nil, fmt.Errorf("unexpected header %v", records[0])
		}
	}

	results := make([]types.BenchmarkResult, 0, len(records)-1)
	for line, rec := range records[1:] {
		secs, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+2, err)
		}
		op := types.Operation(rec[1])
		if op != types.OperationInsert && op != types.OperationQuery {
			return nil, fmt.Errorf("line %d: unknown type %q", line+2, rec[1])
		}
		results = append(results, types.BenchmarkResult{
			Name:      rec[0],
			Operation: op,
			Elapsed:   secondsToDuration(secs),
		})
	}
	return results, nil
}

func formatSeconds(r types.BenchmarkResult) string {
	return strconv.FormatFloat(r.Seconds(), 'f', 2, 64)
}
