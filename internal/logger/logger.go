// Package logger provides structured logging functionality.
// It wraps the standard log/slog package for consistent logging across the runtime.
//
// The package provides execution context helpers for job logging: execution
// start/end, stage start/end, and metrics. All helpers use structured logging
// with consistent field names (snake_case).
//
// The package supports two output formats:
//   - JSON (default): Machine-readable structured logging
//   - Human: Human-readable console output with colors and prefixes
//
// Logs go to stderr so that stdout stays free for command results.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger is the default logger instance.
var Logger *slog.Logger

var (
	mu     sync.Mutex
	output io.Writer = os.Stderr
	level            = slog.LevelInfo
	format           = FormatJSON
)

func init() {
	Logger = newLogger(output, level, format)
}

// OutputFormat represents the log output format
type OutputFormat int

const (
	// FormatJSON is the default machine-readable JSON format
	FormatJSON OutputFormat = iota
	// FormatHuman is a human-readable console format with colors and prefixes
	FormatHuman
)

// ParseFormat maps a flag value ("json", "human") to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "human", "text", "console":
		return FormatHuman, nil
	default:
		return FormatJSON, fmt.Errorf("unknown log format %q (want json or human)", s)
	}
}

func newLogger(w io.Writer, lvl slog.Level, f OutputFormat) *slog.Logger {
	return slog.New(newHandler(w, lvl, f))
}

func newHandler(w io.Writer, lvl slog.Level, f OutputFormat) slog.Handler {
	if f == FormatHuman {
		return NewHumanHandler(w, &HumanHandlerOptions{
			Level:     lvl,
			UseColors: isTerminal(w),
		})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
}

// SetLevel configures the logging level.
func SetLevel(lvl slog.Level) {
	SetLevelAndFormat(lvl, currentFormat())
}

// SetLevelAndFormat sets both the log level and format.
func SetLevelAndFormat(lvl slog.Level, f OutputFormat) {
	mu.Lock()
	defer mu.Unlock()
	level = lvl
	format = f
	Logger = newLogger(output, level, format)
}

// SetOutput redirects console logging. Mostly useful in tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	Logger = newLogger(output, level, format)
}

func currentFormat() OutputFormat {
	mu.Lock()
	defer mu.Unlock()
	return format
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

// =============================================================================
// Execution Context Types
// =============================================================================

// ExecutionContext contains context information for job execution logging.
type ExecutionContext struct {
	// JobID is the unique identifier for the job (required)
	JobID string
	// JobName is the human-readable name of the job
	JobName string
	// Stage is the current execution stage (identifiers, records, filter, output)
	Stage string
	// ModuleType is the type of module being executed (csv, condition, sqlite, ...)
	ModuleType string
	// DryRun indicates if this is a dry-run execution
	DryRun bool
}

// StageError contains structured error information for stage logging.
type StageError struct {
	// Code is the error code (e.g., RECORDS_FAILED)
	Code string
	// Category is the error category (resource_not_found, schema, ...)
	Category string
	// Message is the human-readable error message
	Message string
}

// ExecutionMetrics contains counts and timings for one execution.
type ExecutionMetrics struct {
	TotalDuration       time.Duration
	IdentifiersDuration time.Duration
	RecordsDuration     time.Duration
	FilterDuration      time.Duration
	OutputDuration      time.Duration
	IdentifiersLoaded   int
	RecordsRead         int
	RecordsMatched      int
	RecordsWritten      int
	DuplicateKeys       int
}

// RecordsRemoved returns how many rows the filters dropped.
func (m ExecutionMetrics) RecordsRemoved() int {
	return m.RecordsRead - m.RecordsWritten
}

// =============================================================================
// Execution Context Helpers
// =============================================================================

// WithExecution returns a logger with execution context attached.
// Only non-empty fields are included in the log output.
func WithExecution(ctx ExecutionContext) *slog.Logger {
	return Logger.With(buildContextAttrs(ctx)...)
}

// LogExecutionStart logs the start of a job execution.
func LogExecutionStart(ctx ExecutionContext) {
	Logger.Info("execution started", buildContextAttrs(ctx)...)
}

// LogExecutionEnd logs the completion of a job execution.
func LogExecutionEnd(ctx ExecutionContext, status string, recordsWritten int, duration time.Duration) {
	attrs := buildContextAttrs(ctx)
	attrs = append(attrs,
		slog.String("status", status),
		slog.Int("records_written", recordsWritten),
		slog.Duration("duration", duration),
	)
	Logger.Info("execution completed", attrs...)
}

// LogStageStart logs the start of a job stage.
func LogStageStart(ctx ExecutionContext) {
	Logger.Debug("stage started", buildContextAttrs(ctx)...)
}

// LogStageEnd logs the completion of a job stage.
// If err is non-nil, logs as an error with error details.
func LogStageEnd(ctx ExecutionContext, recordCount int, duration time.Duration, err *StageError) {
	attrs := buildContextAttrs(ctx)
	attrs = append(attrs,
		slog.Int("record_count", recordCount),
		slog.Duration("duration", duration),
	)

	if err != nil {
		attrs = append(attrs,
			slog.String("error_code", err.Code),
			slog.String("error_category", err.Category),
			slog.String("error", err.Message),
		)
		Logger.Error("stage failed", attrs...)
		return
	}
	Logger.Info("stage completed", attrs...)
}

// LogMetrics logs execution counts and timings.
func LogMetrics(ctx ExecutionContext, metrics ExecutionMetrics) {
	attrs := buildContextAttrs(ctx)
	attrs = append(attrs,
		slog.Duration("total_duration", metrics.TotalDuration),
		slog.Duration("identifiers_duration", metrics.IdentifiersDuration),
		slog.Duration("records_duration", metrics.RecordsDuration),
		slog.Duration("filter_duration", metrics.FilterDuration),
		slog.Duration("output_duration", metrics.OutputDuration),
		slog.Int("identifiers_loaded", metrics.IdentifiersLoaded),
		slog.Int("records_read", metrics.RecordsRead),
		slog.Int("records_matched", metrics.RecordsMatched),
		slog.Int("records_written", metrics.RecordsWritten),
		slog.Int("records_removed", metrics.RecordsRemoved()),
		slog.Int("duplicate_keys", metrics.DuplicateKeys),
	)
	Logger.Info("execution metrics", attrs...)
}

// LogError logs an error with execution context and its unwrap chain.
func LogError(message string, ctx ExecutionContext, err error) {
	attrs := buildContextAttrs(ctx)
	if err != nil {
		attrs = append(attrs,
			slog.String("error", err.Error()),
			slog.String("error_type", fmt.Sprintf("%T", err)),
		)

		chain := []string{err.Error()}
		for cur := errors.Unwrap(err); cur != nil; cur = errors.Unwrap(cur) {
			chain = append(chain, cur.Error())
		}
		if len(chain) > 1 {
			attrs = append(attrs, slog.String("error_chain", strings.Join(chain, " -> ")))
		}
	}
	Logger.Error(message, attrs...)
}

// buildContextAttrs builds a slice of slog attributes from an ExecutionContext.
// Only non-empty fields are included.
func buildContextAttrs(ctx ExecutionContext) []any {
	attrs := make([]any, 0, 5)

	attrs = append(attrs, slog.String("job_id", ctx.JobID))
	if ctx.JobName != "" && ctx.JobName != ctx.JobID {
		attrs = append(attrs, slog.String("job_name", ctx.JobName))
	}
	if ctx.Stage != "" {
		attrs = append(attrs, slog.String("stage", ctx.Stage))
	}
	if ctx.ModuleType != "" {
		attrs = append(attrs, slog.String("module_type", ctx.ModuleType))
	}
	if ctx.DryRun {
		attrs = append(attrs, slog.Bool("dry_run", true))
	}
	return attrs
}

// isTerminal returns true if the writer is a terminal (supports colors)
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		fi, err := f.Stat()
		if err != nil {
			return false
		}
		return (fi.Mode() & os.ModeCharDevice) != 0
	}
	return false
}
