package input

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/recordsift/recordsift/internal/errhandling"
	"github.com/recordsift/recordsift/internal/logger"
	"github.com/recordsift/recordsift/internal/pathutil"
	"github.com/recordsift/recordsift/pkg/job"
	"github.com/recordsift/recordsift/pkg/table"
)

// Error types for the CSV input module
var (
	ErrCSVNilConfig        = errors.New("csv input configuration is nil")
	ErrCSVInvalidDelimiter = errors.New("csv delimiter must be a single character")
)

// utf8BOM is stripped from the start of the file.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// cancelCheckInterval is how many rows are read between context checks.
const cancelCheckInterval = 4096

// CSVInputConfig holds configuration for the CSV input module.
type CSVInputConfig struct {
	// Path is the record table file
	Path string
	// Delimiter is the field separator (default ',')
	Delimiter rune
	// Header reports whether the first row names the fields (default true)
	Header bool
	// Layout optionally pins field names to positions
	Layout *table.Layout
}

// CSVInput reads a delimited text file into a table.
type CSVInput struct {
	config CSVInputConfig
}

// NewCSVInputFromConfig creates a CSV input module from a module configuration
// and the job's resolved layout (nil when the job declares none).
func NewCSVInputFromConfig(cfg *job.ModuleConfig, layout *table.Layout) (*CSVInput, error) {
	if cfg == nil {
		return nil, ErrCSVNilConfig
	}

	delim, err := ParseDelimiter(cfg.String("delimiter", ","))
	if err != nil {
		return nil, err
	}

	return NewCSVInput(CSVInputConfig{
		Path:      cfg.String("path", job.DefaultRecordsPath),
		Delimiter: delim,
		Header:    cfg.Bool("header", true),
		Layout:    layout,
	})
}

// NewCSVInput creates a CSV input module.
func NewCSVInput(config CSVInputConfig) (*CSVInput, error) {
	if config.Path == "" {
		config.Path = job.DefaultRecordsPath
	}
	if config.Delimiter == 0 {
		config.Delimiter = ','
	}
	if config.Layout != nil {
		if err := config.Layout.Validate(); err != nil {
			return nil, errhandling.NewConfigError(fmt.Sprintf("invalid layout: %v", err), err)
		}
	}
	return &CSVInput{config: config}, nil
}

// ParseDelimiter converts a configured delimiter into a rune. "tab" and "\t"
// both mean a tab character.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return ',', nil
	case "tab", `\t`:
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) || r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
		return 0, fmt.Errorf("%w: %q", ErrCSVInvalidDelimiter, s)
	}
	return r, nil
}

// Source returns the record file path.
func (c *CSVInput) Source() string {
	return c.config.Path
}

// Fetch reads the whole file. A missing file is a resource-not-found error;
// a header that disagrees with the layout, or a headerless file without a
// layout, is a schema error.
func (c *CSVInput) Fetch(ctx context.Context) (*table.Table, error) {
	path := c.config.Path

	if !c.config.Header && c.config.Layout == nil {
		return nil, errhandling.NewSchemaError(path, "", "file has no header row and no layout was given")
	}

	info, err := pathutil.RequireFile(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errhandling.ClassifyFileError(path, err)
	}
	defer func() { _ = f.Close() }()

	br := bufio.NewReader(f)
	if err := skipBOM(br); err != nil {
		return nil, errhandling.ClassifyFileError(path, err)
	}

	r := csv.NewReader(br)
	r.Comma = c.config.Delimiter
	r.FieldsPerRecord = -1

	tbl, err := c.readTable(ctx, r)
	if err != nil {
		return nil, err
	}

	logger.Info("record table loaded",
		slog.String("path", path),
		slog.Float64("size_mb", pathutil.SizeMB(info.Size())),
		slog.Int("columns", len(tbl.Columns)),
		slog.Int("records", tbl.Len()),
	)
	return tbl, nil
}

func (c *CSVInput) readTable(ctx context.Context, r *csv.Reader) (*table.Table, error) {
	path := c.config.Path

	var columns []string
	if c.config.Header {
		header, err := r.Read()
		switch {
		case errors.Is(err, io.EOF):
			header = nil
		case err != nil:
			return nil, errhandling.ClassifyFileError(path, err)
		}
		if c.config.Layout != nil {
			if err := checkHeader(path, *c.config.Layout, header); err != nil {
				return nil, err
			}
		}
		columns = header
	} else {
		columns = c.config.Layout.Columns()
	}

	tbl := table.New(columns)
	tbl.HasHeader = c.config.Header
	tbl.Delimiter = c.config.Delimiter

	for n := 0; ; n++ {
		if n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errhandling.ClassifyFileError(path, err)
		}
		tbl.Rows = append(tbl.Rows, table.Row(rec))
	}
	return tbl, nil
}

// checkHeader reports the first layout field that is not at its declared
// position in the header row.
func checkHeader(path string, layout table.Layout, header []string) error {
	mismatches := layout.Check(header)
	if len(mismatches) == 0 {
		return nil
	}
	m := mismatches[0]
	msg := fmt.Sprintf("expected at position %d, found %q", m.Position, m.Found)
	if m.Found == "" && m.Position >= len(header) {
		msg = fmt.Sprintf("expected at position %d, but the header has only %d fields", m.Position, len(header))
	}
	if len(mismatches) > 1 {
		others := make([]string, 0, len(mismatches)-1)
		for _, o := range mismatches[1:] {
			others = append(others, o.Field.Name)
		}
		msg += fmt.Sprintf(" (also misplaced: %s)", strings.Join(others, ", "))
	}
	return errhandling.NewSchemaError(path, m.Field.Name, msg)
}

func skipBOM(br *bufio.Reader) error {
	head, err := br.Peek(len(utf8BOM))
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if bytes.Equal(head, utf8BOM) {
		_, err = br.Discard(len(utf8BOM))
		return err
	}
	return nil
}

// Close releases resources (no-op, the file is closed after Fetch).
func (c *CSVInput) Close() error {
	return nil
}

// Verify CSVInput implements Module
var _ Module = (*CSVInput)(nil)
