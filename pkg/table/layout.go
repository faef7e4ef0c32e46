package table

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Layout errors. They describe a malformed layout definition, not a mismatch
// between a layout and a file.
var (
	ErrEmptyLayout       = errors.New("layout has no fields")
	ErrEmptyFieldName    = errors.New("layout field name is empty")
	ErrDuplicateField    = errors.New("layout field name is duplicated")
	ErrDuplicatePosition = errors.New("layout position is duplicated")
	ErrPositionGap       = errors.New("layout positions are not contiguous from 0")
)

// Field binds a field name to its zero-based position in a row.
type Field struct {
	Name     string `json:"name" yaml:"name"`
	Position int    `json:"position" yaml:"position"`
}

// Layout enumerates field name ⇄ position for a file whose columns are
// identified by position rather than by a header row.
type Layout struct {
	// Name identifies built-in layouts; empty for inline ones.
	Name   string  `json:"name,omitempty" yaml:"name,omitempty"`
	Fields []Field `json:"fields" yaml:"fields"`
}

// LayoutFromNames builds a layout whose positions follow the slice order.
func LayoutFromNames(name string, fields ...string) Layout {
	l := Layout{Name: name, Fields: make([]Field, len(fields))}
	for i, f := range fields {
		l.Fields[i] = Field{Name: f, Position: i}
	}
	return l
}

// Validate checks that names are non-empty and unique and that positions are
// unique and cover 0..n-1.
func (l Layout) Validate() error {
	if len(l.Fields) == 0 {
		return ErrEmptyLayout
	}
	names := make(map[string]struct{}, len(l.Fields))
	positions := make(map[int]struct{}, len(l.Fields))
	for i, f := range l.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("%w (field %d)", ErrEmptyFieldName, i)
		}
		if _, dup := names[f.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateField, f.Name)
		}
		names[f.Name] = struct{}{}
		if _, dup := positions[f.Position]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicatePosition, f.Position)
		}
		positions[f.Position] = struct{}{}
	}
	for p := 0; p < len(l.Fields); p++ {
		if _, ok := positions[p]; !ok {
			return fmt.Errorf("%w: position %d missing", ErrPositionGap, p)
		}
	}
	return nil
}

// Columns returns the field names ordered by position.
// The layout must be valid.
func (l Layout) Columns() []string {
	fields := make([]Field, len(l.Fields))
	copy(fields, l.Fields)
	sort.Slice(fields, func(i, j int) bool { return fields[i].Position < fields[j].Position })
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}
	return cols
}

// Mismatch describes a layout field that does not sit at its declared position
// in a header row.
type Mismatch struct {
	Field    Field
	Found    string
	Position int
}

// Check compares a header row against the layout and returns every field that
// is not where the layout says it is.
func (l Layout) Check(header []string) []Mismatch {
	var out []Mismatch
	for _, f := range l.Fields {
		found := ""
		if f.Position < len(header) {
			found = header[f.Position]
		}
		if found != f.Name {
			out = append(out, Mismatch{Field: f, Found: found, Position: f.Position})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}
