package filter

import (
	"context"
	"log/slog"

	"github.com/recordsift/recordsift/internal/errhandling"
	"github.com/recordsift/recordsift/internal/logger"
	"github.com/recordsift/recordsift/pkg/table"
)

// FilterRecords returns the rows of tbl whose joinKey value is in ids, in
// their original order and with all their fields. Rows with an empty or
// missing join-key cell never match. tbl is not modified.
//
// A table without a joinKey column is a schema error.
func FilterRecords(tbl *table.Table, joinKey string, ids table.KeySet) (*table.Table, error) {
	if tbl == nil {
		return nil, errhandling.NewSchemaError("", joinKey, "record table is empty")
	}
	pos := tbl.Index(joinKey)
	if pos < 0 {
		return nil, errhandling.NewSchemaError("", joinKey, "join key column not found in record table")
	}

	out := tbl.Derive(0)
	for _, row := range tbl.Rows {
		key := row.Cell(pos)
		if key == "" || !ids.Has(key) {
			continue
		}
		out.Rows = append(out.Rows, row.Clone())
	}
	return out, nil
}

// DuplicateKeys returns the joinKey values that occur on more than one row,
// in order of first repetition.
func DuplicateKeys(tbl *table.Table, joinKey string) []string {
	pos := tbl.Index(joinKey)
	if pos < 0 {
		return nil
	}
	seen := make(map[string]int, tbl.Len())
	var dups []string
	for _, row := range tbl.Rows {
		key := row.Cell(pos)
		seen[key]++
		if seen[key] == 2 {
			dups = append(dups, key)
		}
	}
	return dups
}

// ActiveModule keeps the rows whose join key is in the active identifier set.
type ActiveModule struct {
	joinKey string
	ids     table.KeySet
}

// NewActiveModule creates the active-record filter for a loaded identifier set.
func NewActiveModule(joinKey string, ids table.KeySet) *ActiveModule {
	return &ActiveModule{joinKey: joinKey, ids: ids}
}

// Process applies FilterRecords.
func (m *ActiveModule) Process(ctx context.Context, tbl *table.Table) (*table.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := FilterRecords(tbl, m.joinKey, m.ids)
	if err != nil {
		return nil, err
	}
	logger.Debug("active filter applied",
		slog.String("join_key", m.joinKey),
		slog.Int("identifiers", m.ids.Len()),
		slog.Int("input_records", tbl.Len()),
		slog.Int("output_records", out.Len()),
	)
	return out, nil
}

// Verify ActiveModule implements Module
var _ Module = (*ActiveModule)(nil)
