// Package pathutil provides shared path validation helpers.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/recordsift/recordsift/internal/errhandling"
)

// ValidateFilePath validates a file path for path traversal and invalid characters.
// Uses segment-based detection so that "scripts/../etc/passwd" is rejected before
// cleaning (cleaned path would be "etc/passwd" and could bypass a simple ".." check).
// Returns an error if the path is empty, contains null bytes, or has ".." in any segment.
func ValidateFilePath(filePath string) error {
	if filePath == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.Contains(filePath, "\x00") {
		return fmt.Errorf("file path contains invalid characters")
	}

	normalized := filepath.ToSlash(filePath)
	segments := strings.Split(normalized, "/")
	for _, segment := range segments {
		if segment == ".." {
			return fmt.Errorf("file path contains path traversal: %q", filePath)
		}
	}
	return nil
}

// RequireFile stats path and returns its FileInfo. A missing file yields a
// resource-not-found error; a directory or any other stat failure yields an
// io error.
func RequireFile(path string) (os.FileInfo, error) {
	if path == "" {
		return nil, errhandling.NewConfigError("file path cannot be empty", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, errhandling.ClassifyFileError(path, err)
	}
	if info.IsDir() {
		return nil, errhandling.NewIOError(path, "is a directory, expected a file", nil)
	}
	return info, nil
}

// SizeMB converts a byte count to megabytes for diagnostics.
func SizeMB(size int64) float64 {
	return float64(size) / (1024 * 1024)
}

// TempSibling returns a path for a temporary file next to dest, so that a
// later os.Rename stays on the same filesystem.
func TempSibling(dest string) (dir, pattern string) {
	dir = filepath.Dir(dest)
	pattern = "." + filepath.Base(dest) + ".*.tmp"
	return dir, pattern
}
