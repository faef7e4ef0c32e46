// Package errhandling provides error types and classification helpers.
// This file defines error categories, classification functions, and helper utilities
// shared by the input, filter and output modules and by the CLI exit-code mapping.
package errhandling

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// ErrorCategory represents the type/category of an error.
// Categories decide how the CLI reports a failure and which exit code it uses.
type ErrorCategory string

// Error categories for classification.
const (
	// CategoryResourceNotFound represents a missing input file.
	// Fatal: the run aborts before anything is written.
	CategoryResourceNotFound ErrorCategory = "resource_not_found"

	// CategorySchema represents an expected field missing from a table, or a
	// header that disagrees with the configured layout.
	CategorySchema ErrorCategory = "schema"

	// CategoryIO represents read/write failures other than a missing file
	// (permissions, malformed CSV, full disk).
	CategoryIO ErrorCategory = "io"

	// CategoryConfig represents an invalid job or module configuration.
	CategoryConfig ErrorCategory = "config"

	// CategoryCanceled represents a run interrupted through its context.
	CategoryCanceled ErrorCategory = "canceled"

	// CategoryUnknown represents unclassified errors.
	CategoryUnknown ErrorCategory = "unknown"
)

// Sentinel errors matched through errors.Is against any ClassifiedError of the
// same category.
var (
	// ErrResourceNotFound matches every CategoryResourceNotFound error.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrSchema matches every CategorySchema error.
	ErrSchema = errors.New("schema error")
)

// ClassifiedError wraps an error with classification metadata.
type ClassifiedError struct {
	// Category is the error classification category.
	Category ErrorCategory

	// Message is a human-readable error message.
	Message string

	// Path is the file the error relates to, if any.
	Path string

	// Field is the table field the error relates to, if any.
	Field string

	// OriginalErr is the underlying error that was classified.
	OriginalErr error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	switch {
	case e.Path != "" && e.Field != "":
		return fmt.Sprintf("%s error: %s: field %q: %s", e.Category, e.Path, e.Field, e.Message)
	case e.Path != "":
		return fmt.Sprintf("%s error: %s: %s", e.Category, e.Path, e.Message)
	case e.Field != "":
		return fmt.Sprintf("%s error: field %q: %s", e.Category, e.Field, e.Message)
	default:
		return fmt.Sprintf("%s error: %s", e.Category, e.Message)
	}
}

// Unwrap returns the original error for use with errors.Is and errors.As.
func (e *ClassifiedError) Unwrap() error {
	return e.OriginalErr
}

// Is lets errors.Is match the category sentinels.
func (e *ClassifiedError) Is(target error) bool {
	switch target {
	case ErrResourceNotFound:
		return e.Category == CategoryResourceNotFound
	case ErrSchema:
		return e.Category == CategorySchema
	}
	return false
}

// NewResourceNotFoundError creates a ClassifiedError for a missing input file.
func NewResourceNotFoundError(path string, originalErr error) *ClassifiedError {
	return &ClassifiedError{
		Category:    CategoryResourceNotFound,
		Message:     "file does not exist",
		Path:        path,
		OriginalErr: originalErr,
	}
}

// NewSchemaError creates a ClassifiedError for a missing or misplaced field.
func NewSchemaError(path, field, message string) *ClassifiedError {
	return &ClassifiedError{
		Category: CategorySchema,
		Message:  message,
		Path:     path,
		Field:    field,
	}
}

// NewIOError creates a ClassifiedError for read/write failures.
func NewIOError(path, message string, originalErr error) *ClassifiedError {
	return &ClassifiedError{
		Category:    CategoryIO,
		Message:     message,
		Path:        path,
		OriginalErr: originalErr,
	}
}

// NewConfigError creates a ClassifiedError for invalid configuration.
func NewConfigError(message string, originalErr error) *ClassifiedError {
	return &ClassifiedError{
		Category:    CategoryConfig,
		Message:     message,
		OriginalErr: originalErr,
	}
}

// ClassifyFileError classifies an error returned by os.Open/os.Stat and
// friends for the given path.
//
// Classification rules:
//   - fs.ErrNotExist: resource not found
//   - *csv.ParseError: io, with line information kept in the message
//   - anything else: io
func ClassifyFileError(path string, err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	if errors.Is(err, fs.ErrNotExist) {
		return NewResourceNotFoundError(path, err)
	}

	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return NewIOError(path, fmt.Sprintf("malformed CSV at line %d, column %d: %v",
			parseErr.Line, parseErr.Column, parseErr.Err), err)
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return NewIOError(path, fmt.Sprintf("%s failed: %v", pathErr.Op, pathErr.Err), err)
	}

	return NewIOError(path, err.Error(), err)
}

// ClassifyError classifies any error into a ClassifiedError.
// Already classified errors are returned as they are.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return &ClassifiedError{
			Category: CategoryUnknown,
			Message:  "nil error",
		}
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ClassifiedError{
			Category:    CategoryCanceled,
			Message:     err.Error(),
			OriginalErr: err,
		}
	}

	if errors.Is(err, fs.ErrNotExist) {
		return &ClassifiedError{
			Category:    CategoryResourceNotFound,
			Message:     err.Error(),
			OriginalErr: err,
		}
	}

	return &ClassifiedError{
		Category:    CategoryUnknown,
		Message:     err.Error(),
		OriginalErr: err,
	}
}

// IsFatal returns true if the error is an expected way for a run to abort
// (missing input, bad schema, IO, config or cancellation). Errors that
// classify as unknown are not fatal: they point at a defect and are reported
// as unexpected.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	switch ClassifyError(err).Category {
	case CategoryResourceNotFound, CategorySchema, CategoryIO, CategoryConfig, CategoryCanceled:
		return true
	default:
		return false
	}
}

// GetErrorCategory returns the error category for a given error.
// Returns CategoryUnknown for nil or unclassified errors.
func GetErrorCategory(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Category
	}

	return CategoryUnknown
}
