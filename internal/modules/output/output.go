// Package output provides implementations for output modules.
// Output modules write the filtered table to its destination. A failed write
// never leaves a partial file; an existing destination is left untouched.
package output

import (
	"context"
	"fmt"
	"os"

	"github.com/recordsift/recordsift/internal/errhandling"
	"github.com/recordsift/recordsift/internal/pathutil"
	"github.com/recordsift/recordsift/pkg/job"
	"github.com/recordsift/recordsift/pkg/table"
)

// DefaultPreviewRows is the number of rows included in a dry-run preview.
const DefaultPreviewRows = 5

// Module represents an output module that writes a table to a destination.
type Module interface {
	// Send writes every row of tbl.
	// Returns the number of rows written and any error.
	Send(ctx context.Context, tbl *table.Table) (int, error)

	// Close releases any resources held by the module.
	Close() error
}

// PreviewableModule is implemented by outputs that can describe what they
// would write without touching the filesystem (dry-run mode).
type PreviewableModule interface {
	Module
	Preview(tbl *table.Table, sampleRows int) *job.OutputPreview
}

// preview builds the preview shared by the file-based outputs.
func preview(format, destination string, tbl *table.Table, header bool, sampleRows int) *job.OutputPreview {
	p := &job.OutputPreview{
		Format:      format,
		Destination: destination,
		Columns:     append([]string(nil), tbl.Columns...),
		Header:      header,
		RecordCount: tbl.Len(),
	}
	if sampleRows < 0 {
		sampleRows = DefaultPreviewRows
	}
	for i := 0; i < sampleRows && i < tbl.Len(); i++ {
		p.Sample = append(p.Sample, tbl.Rows[i].Clone())
	}
	return p
}

// atomicFile is a temporary file next to its destination. Commit renames it
// into place; Abort removes it.
type atomicFile struct {
	*os.File
	dest string
	done bool
}

func createAtomic(dest string) (*atomicFile, error) {
	dir, pattern := pathutil.TempSibling(dest)
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, errhandling.ClassifyFileError(dest, err)
	}
	return &atomicFile{File: f, dest: dest}, nil
}

// Commit flushes and closes the temp file, then renames it over dest.
func (a *atomicFile) Commit() error {
	if a.done {
		return nil
	}
	a.done = true
	tmp := a.Name()
	if err := a.Sync(); err != nil {
		_ = a.File.Close()
		_ = os.Remove(tmp)
		return errhandling.NewIOError(a.dest, fmt.Sprintf("sync failed: %v", err), err)
	}
	if err := a.File.Close(); err != nil {
		_ = os.Remove(tmp)
		return errhandling.NewIOError(a.dest, fmt.Sprintf("close failed: %v", err), err)
	}
	return renameInto(tmp, a.dest)
}

// Abort closes and removes the temp file. Safe to call after Commit.
func (a *atomicFile) Abort() {
	if a.done {
		return
	}
	a.done = true
	_ = a.File.Close()
	_ = os.Remove(a.Name())
}

func renameInto(tmp, dest string) error {
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return errhandling.NewIOError(dest, fmt.Sprintf("rename failed: %v", err), err)
	}
	return nil
}
