package output

import (
	"context"
	"encoding/csv"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/recordsift/recordsift/internal/errhandling"
	"github.com/recordsift/recordsift/internal/logger"
	"github.com/recordsift/recordsift/internal/pathutil"
	"github.com/recordsift/recordsift/pkg/job"
	"github.com/recordsift/recordsift/pkg/table"
)

// ErrNilConfig is returned when an output module is built from a nil configuration.
var ErrNilConfig = errors.New("output configuration is nil")

// CSVOutput writes a table as delimited text in the same format it was read
// in: same delimiter, header row only if the source had one.
type CSVOutput struct {
	path string
}

// NewCSVOutputFromConfig creates a CSV output module from configuration.
func NewCSVOutputFromConfig(cfg *job.ModuleConfig) (*CSVOutput, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	return NewCSVOutput(cfg.String("path", job.DefaultOutputPath)), nil
}

// NewCSVOutput creates a CSV output module writing to path.
func NewCSVOutput(path string) *CSVOutput {
	if path == "" {
		path = job.DefaultOutputPath
	}
	return &CSVOutput{path: path}
}

// Destination returns the output path.
func (o *CSVOutput) Destination() string {
	return o.path
}

// Send writes the table to a temp file and renames it over the destination.
func (o *CSVOutput) Send(ctx context.Context, tbl *table.Table) (int, error) {
	start := time.Now()

	f, err := createAtomic(o.path)
	if err != nil {
		return 0, err
	}
	defer f.Abort()

	w := csv.NewWriter(f)
	w.Comma = tbl.Comma()

	if tbl.HasHeader {
		if err := w.Write(tbl.Columns); err != nil {
			return 0, errhandling.NewIOError(o.path, "writing header: "+err.Error(), err)
		}
	}
	for i, row := range tbl.Rows {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		if err := w.Write(row); err != nil {
			return 0, errhandling.NewIOError(o.path, "writing record: "+err.Error(), err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, errhandling.NewIOError(o.path, "flushing records: "+err.Error(), err)
	}

	if err := f.Commit(); err != nil {
		return 0, err
	}

	attrs := []any{
		slog.String("module_type", "csv"),
		slog.String("path", o.path),
		slog.Int("records", tbl.Len()),
		slog.Duration("duration", time.Since(start)),
	}
	if info, err := os.Stat(o.path); err == nil {
		attrs = append(attrs, slog.Float64("size_mb", pathutil.SizeMB(info.Size())))
	}
	logger.Info("records written", attrs...)
	return tbl.Len(), nil
}

// Preview describes the file Send would write.
func (o *CSVOutput) Preview(tbl *table.Table, sampleRows int) *job.OutputPreview {
	return preview("csv", o.path, tbl, tbl.HasHeader, sampleRows)
}

// Close releases resources (no-op, the file is closed by Send).
func (o *CSVOutput) Close() error {
	return nil
}

// Verify CSVOutput implements PreviewableModule
var _ PreviewableModule = (*CSVOutput)(nil)
