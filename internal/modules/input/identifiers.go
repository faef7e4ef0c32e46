package input

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/recordsift/recordsift/internal/errhandling"
	"github.com/recordsift/recordsift/internal/logger"
	"github.com/recordsift/recordsift/internal/pathutil"
	"github.com/recordsift/recordsift/pkg/job"
	"github.com/recordsift/recordsift/pkg/table"
)

// maxIdentifierLine is the longest identifier-list line accepted (1MB).
const maxIdentifierLine = 1024 * 1024

// ParseIdentifiers reads a line-delimited identifier list. Each line is
// trimmed, empty lines are skipped, and the text before the first delimiter
// is kept. A line without the delimiter is the identifier as a whole.
func ParseIdentifiers(r io.Reader, delimiter string) (table.KeySet, error) {
	if delimiter == "" {
		delimiter = job.DefaultIDDelimiter
	}

	ids := table.NewKeySet()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxIdentifierLine)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id, _, _ := strings.Cut(line, delimiter)
		ids.Add(id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading identifier list: %w", err)
	}
	return ids, nil
}

// ParseIdentifiersFile opens path and parses it with ParseIdentifiers.
// A missing file yields a resource-not-found error.
func ParseIdentifiersFile(path, delimiter string) (table.KeySet, error) {
	info, err := pathutil.RequireFile(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errhandling.ClassifyFileError(path, err)
	}
	defer func() { _ = f.Close() }()

	ids, err := ParseIdentifiers(f, delimiter)
	if err != nil {
		return nil, errhandling.NewIOError(path, err.Error(), err)
	}

	logger.Debug("identifier list loaded",
		slog.String("path", path),
		slog.Float64("size_mb", pathutil.SizeMB(info.Size())),
		slog.Int("identifiers", ids.Len()),
	)
	return ids, nil
}

// IdentifierFile loads the active identifier set from a file.
type IdentifierFile struct {
	path      string
	delimiter string
}

// NewIdentifierFile creates an identifier source from the job configuration.
// Empty fields fall back to the legacy defaults.
func NewIdentifierFile(src job.IdentifierSource) *IdentifierFile {
	path := src.Path
	if path == "" {
		path = job.DefaultIdentifiersPath
	}
	delimiter := src.Delimiter
	if delimiter == "" {
		delimiter = job.DefaultIDDelimiter
	}
	return &IdentifierFile{path: path, delimiter: delimiter}
}

// Load parses the identifier file.
func (s *IdentifierFile) Load(ctx context.Context) (table.KeySet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ParseIdentifiersFile(s.path, s.delimiter)
}

// Source returns the identifier file path.
func (s *IdentifierFile) Source() string {
	return s.path
}
