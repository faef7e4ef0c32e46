// Package filter provides implementations for filter modules.
// Filter modules select rows of a record table. Every module returns a new
// table in source order and leaves its input untouched.
package filter

import (
	"context"
	"log/slog"

	"github.com/recordsift/recordsift/internal/errhandling"
	"github.com/recordsift/recordsift/internal/logger"
	"github.com/recordsift/recordsift/pkg/table"
)

// Error handling modes shared by the row predicate filters.
const (
	OnErrorFail = "fail"
	OnErrorSkip = "skip"
	OnErrorLog  = "log"
)

// Module represents a filter module that selects rows.
type Module interface {
	// Process returns the rows to keep.
	Process(ctx context.Context, tbl *table.Table) (*table.Table, error)
}

// normalizeOnError maps an empty or unknown onError value to fail.
func normalizeOnError(moduleType, onError string) string {
	switch onError {
	case "":
		return OnErrorFail
	case OnErrorFail, OnErrorSkip, OnErrorLog:
		return onError
	default:
		logger.Warn("invalid onError value; defaulting to fail",
			slog.String("module_type", moduleType),
			slog.String("on_error", onError),
		)
		return OnErrorFail
	}
}

// rowPredicate decides whether a row is kept. recordIdx is the row position
// in the input table.
type rowPredicate func(ctx context.Context, rec map[string]string, recordIdx int) (bool, error)

// selectRows applies keep to every row, honouring onError, and logs the
// outcome under moduleType.
func selectRows(ctx context.Context, moduleType, onError string, tbl *table.Table, keep rowPredicate) (*table.Table, error) {
	if tbl == nil {
		return nil, errhandling.NewSchemaError("", "", moduleType+" filter received no record table")
	}
	out := tbl.Derive(tbl.Len())
	errorCount := 0

	for recordIdx, row := range tbl.Rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ok, err := keep(ctx, tbl.Record(row), recordIdx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errorCount++
			switch onError {
			case OnErrorSkip:
				logger.Warn("skipping record due to filter error",
					slog.String("module_type", moduleType),
					slog.Int("record_index", recordIdx),
					slog.String("error", err.Error()),
				)
				continue
			case OnErrorLog:
				logger.Error("filter error (continuing)",
					slog.String("module_type", moduleType),
					slog.Int("record_index", recordIdx),
					slog.String("error", err.Error()),
				)
				continue
			default:
				return nil, err
			}
		}
		if ok {
			out.Rows = append(out.Rows, row.Clone())
		}
	}

	logger.Debug("filter processing completed",
		slog.String("module_type", moduleType),
		slog.Int("input_records", tbl.Len()),
		slog.Int("output_records", out.Len()),
		slog.Int("error_count", errorCount),
	)
	return out, nil
}
