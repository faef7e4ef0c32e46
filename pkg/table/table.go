// Package table provides the in-memory tabular types shared by the recordsift
// runtime: a record table, the layout describing its fields, and the key set
// used to select rows.
//
// This package is importable by external projects that want to reuse the
// filtered tables produced by the runtime.
package table

// Row is a single record. Cells are aligned with Table.Columns by position.
// A row may be shorter or longer than the column list when the source file
// is ragged; missing cells read as empty strings.
type Row []string

// Table is an ordered sequence of rows sharing a set of named fields.
type Table struct {
	// Columns are the field names in position order.
	Columns []string

	// Rows holds the records in source order.
	Rows []Row

	// HasHeader reports whether the source carried a header row.
	// Writers mirror it so the output keeps the input's format.
	HasHeader bool

	// Delimiter is the field separator of the source file (0 means ',').
	Delimiter rune
}

// New creates an empty table with the given columns.
func New(columns []string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{Columns: cols, HasHeader: true, Delimiter: ','}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of the named field, or -1 if absent.
func (t *Table) Index(field string) int {
	if t == nil {
		return -1
	}
	for i, c := range t.Columns {
		if c == field {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the table has the named field.
func (t *Table) HasColumn(field string) bool {
	return t.Index(field) >= 0
}

// Cell returns the value at the given position of a row, or "" when the row
// is too short.
func (r Row) Cell(pos int) string {
	if pos < 0 || pos >= len(r) {
		return ""
	}
	return r[pos]
}

// Clone returns a copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Record returns the row as a field name to value map. Fields missing from a
// short row map to "". Extra cells beyond the known columns are dropped.
func (t *Table) Record(r Row) map[string]string {
	rec := make(map[string]string, len(t.Columns))
	for i, c := range t.Columns {
		rec[c] = r.Cell(i)
	}
	return rec
}

// Derive returns an empty table with the same columns and format as t.
// Used by filters that build a new table instead of mutating their input.
func (t *Table) Derive(capacity int) *Table {
	out := &Table{
		Columns:   make([]string, len(t.Columns)),
		Rows:      make([]Row, 0, capacity),
		HasHeader: t.HasHeader,
		Delimiter: t.Delimiter,
	}
	copy(out.Columns, t.Columns)
	return out
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := t.Derive(len(t.Rows))
	for _, r := range t.Rows {
		out.Rows = append(out.Rows, r.Clone())
	}
	return out
}

// Comma returns the effective delimiter.
func (t *Table) Comma() rune {
	if t == nil || t.Delimiter == 0 {
		return ','
	}
	return t.Delimiter
}
