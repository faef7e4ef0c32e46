// Package cli provides CLI output formatting and display functions.
package cli

import (
	"fmt"
	"io"

	"github.com/recordsift/recordsift/internal/config"
	"github.com/recordsift/recordsift/internal/errhandling"
)

// Exit codes
const (
	ExitSuccess          = 0
	ExitValidationError  = 1
	ExitParseError       = 2
	ExitRuntimeError     = 3
	ExitResourceNotFound = 4
	ExitSchemaError      = 5
)

// ExitCodeFor maps a run error to the process exit code: missing inputs and
// schema errors get their own codes, invalid jobs count as validation errors
// and everything else is a runtime error.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	switch errhandling.GetErrorCategory(err) {
	case errhandling.CategoryResourceNotFound:
		return ExitResourceNotFound
	case errhandling.CategorySchema:
		return ExitSchemaError
	case errhandling.CategoryConfig:
		return ExitValidationError
	default:
		return ExitRuntimeError
	}
}

// ExitCodeForResult maps job file errors to exit codes: parse errors win over
// validation errors.
func ExitCodeForResult(result *config.Result) int {
	switch {
	case result == nil || result.IsValid():
		return ExitSuccess
	case len(result.ParseErrors) > 0:
		return ExitParseError
	default:
		return ExitValidationError
	}
}

// PrintParseErrors prints parse errors.
func PrintParseErrors(w io.Writer, errors []config.ParseError, verbose bool) {
	fmt.Fprintln(w, failure("✗ Parse errors:"))
	for _, err := range errors {
		location := formatErrorLocation(err.Path, err.Line, err.Column)
		if location != "" {
			fmt.Fprintf(w, "  %s: %s\n", location, err.Message)
		} else {
			fmt.Fprintf(w, "  %s\n", err.Message)
		}
		if verbose && err.Type != "" {
			fmt.Fprintf(w, "    Type: %s\n", err.Type)
		}
	}
}

// formatErrorLocation formats the error location string (path:line:column).
func formatErrorLocation(path string, line, column int) string {
	if path == "" {
		return ""
	}

	location := path
	if line > 0 {
		location += fmt.Sprintf(":%d", line)
		if column > 0 {
			location += fmt.Sprintf(":%d", column)
		}
	}
	return location
}

// PrintValidationErrors prints validation errors, compact unless verbose.
func PrintValidationErrors(w io.Writer, errors []config.ValidationError, verbose, quiet bool) {
	fmt.Fprintln(w, failure("✗ Validation errors:"))
	for _, err := range errors {
		path := err.Path
		if path == "" {
			path = "/"
		}

		if verbose {
			fmt.Fprintf(w, "  %s:\n", path)
			fmt.Fprintf(w, "    Message: %s\n", err.Message)
			if err.Type != "" {
				fmt.Fprintf(w, "    Type: %s\n", err.Type)
			}
			continue
		}

		msg := err.Message
		if len(msg) > 80 {
			msg = msg[:77] + "..."
		}
		fmt.Fprintf(w, "  %s: %s\n", path, msg)
	}

	if !quiet && !verbose {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Hint: Use --verbose for detailed error information")
	}
}

// PrintJobErrors prints the errors of a job file.
func PrintJobErrors(w io.Writer, result *config.Result, verbose, quiet bool) {
	if len(result.ParseErrors) > 0 {
		PrintParseErrors(w, result.ParseErrors, verbose)
		return
	}
	PrintValidationErrors(w, result.ValidationErrors, verbose, quiet)
}
