// Package job provides public types describing a recordsift job and the
// result of running it.
// This package is intended to be importable by external projects that need
// to drive the runtime or read its results.
package job

import (
	"time"

	"github.com/recordsift/recordsift/pkg/table"
)

// Default file names of the legacy export, used when a job does not name its
// resources.
const (
	DefaultIdentifiersPath = "z_active_users.txt"
	DefaultRecordsPath     = "z_raw_data.csv"
	DefaultOutputPath      = "z_raw_data_active.csv"
	DefaultJoinKey         = "login"
	DefaultIDDelimiter     = ":"
)

// Job represents a complete filtering job: where the active identifiers and
// the raw records come from, which field joins them, which extra filters run
// and where the result goes.
type Job struct {
	// ID is the unique identifier for this job (defaults to Name)
	ID string `json:"id"`

	// Name is the human-readable name of the job
	Name string `json:"name"`

	// Description provides additional context about the job
	Description string `json:"description,omitempty"`

	// JoinKey is the field matched against the identifier set
	JoinKey string `json:"joinKey"`

	// Identifiers describes the active identifier list
	Identifiers IdentifierSource `json:"identifiers"`

	// Records defines the record table input module
	Records *ModuleConfig `json:"records"`

	// Layout is the resolved field ⇄ position layout of the record table, if any
	Layout *table.Layout `json:"layout,omitempty"`

	// Filters is an ordered list of extra filters applied after the active filter
	Filters []ModuleConfig `json:"filters,omitempty"`

	// Output defines the destination module
	Output *ModuleConfig `json:"output"`

	// CreatedAt is when the job was loaded
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// IdentifierSource locates the active identifier list.
type IdentifierSource struct {
	// Path is the identifier-list file
	Path string `json:"path"`

	// Delimiter separates the identifier from the rest of the line
	Delimiter string `json:"delimiter"`
}

// ModuleConfig represents the configuration for a job module.
// Modules can be record inputs, filters, or outputs.
type ModuleConfig struct {
	// Type identifies the module type (e.g., "csv", "condition", "sqlite")
	Type string `json:"type"`

	// Config contains the module-specific configuration
	Config map[string]interface{} `json:"config"`
}

// String returns a config value as a string, or def when absent.
func (m *ModuleConfig) String(key, def string) string {
	if m == nil || m.Config == nil {
		return def
	}
	if v, ok := m.Config[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Bool returns a config value as a bool, or def when absent.
func (m *ModuleConfig) Bool(key string, def bool) bool {
	if m == nil || m.Config == nil {
		return def
	}
	if v, ok := m.Config[key].(bool); ok {
		return v
	}
	return def
}

// Execution status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusDryRun  = "dry-run"
)

// ExecutionResult represents the result of a job execution.
type ExecutionResult struct {
	// JobID is the ID of the executed job
	JobID string `json:"jobId"`

	// Status is the execution status ("success", "error", "dry-run")
	Status string `json:"status"`

	// StartedAt is when execution started
	StartedAt time.Time `json:"startedAt"`

	// CompletedAt is when execution completed
	CompletedAt time.Time `json:"completedAt"`

	// IdentifiersLoaded is the number of distinct active identifiers
	IdentifiersLoaded int `json:"identifiersLoaded"`

	// RecordsRead is the number of rows in the record table
	RecordsRead int `json:"recordsRead"`

	// RecordsMatched is the number of rows kept by the active filter
	RecordsMatched int `json:"recordsMatched"`

	// RecordsWritten is the number of rows sent to the output
	RecordsWritten int `json:"recordsWritten"`

	// DuplicateKeys lists join-key values that occur more than once in the output
	DuplicateKeys []string `json:"duplicateKeys,omitempty"`

	// Destination is where the output was (or would have been) written
	Destination string `json:"destination,omitempty"`

	// Error contains error details if execution failed
	Error *ExecutionError `json:"error,omitempty"`

	// DryRunPreview describes what would have been written (only set in dry-run mode)
	DryRunPreview *OutputPreview `json:"dryRunPreview,omitempty"`
}

// RecordsRemoved returns the number of rows dropped by all filters.
func (r *ExecutionResult) RecordsRemoved() int {
	return r.RecordsRead - r.RecordsWritten
}

// Duration returns the wall time of the execution.
func (r *ExecutionResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// OutputPreview describes the output that a dry run skipped.
type OutputPreview struct {
	// Format is the output module type
	Format string `json:"format"`

	// Destination is the output path
	Destination string `json:"destination"`

	// Columns are the fields that would be written
	Columns []string `json:"columns"`

	// Header reports whether a header row would be written
	Header bool `json:"header"`

	// RecordCount is the number of rows that would be written
	RecordCount int `json:"recordCount"`

	// Sample holds the first rows that would be written
	Sample []table.Row `json:"sample,omitempty"`
}

// ExecutionError contains details about an execution failure.
type ExecutionError struct {
	// Code is the error code
	Code string `json:"code"`

	// Category is the error classification (resource_not_found, schema, ...)
	Category string `json:"category"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Stage is the stage where the error occurred
	Stage string `json:"stage,omitempty"`

	// Unexpected marks errors outside every known category
	Unexpected bool `json:"unexpected,omitempty"`
}
