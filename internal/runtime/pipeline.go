// Package runtime provides the job execution engine.
// It runs the stages of a job in order: identifiers, records, active filter,
// extra filters, output. The first failing stage aborts the run and nothing
// is written.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/recordsift/recordsift/internal/errhandling"
	"github.com/recordsift/recordsift/internal/factory"
	"github.com/recordsift/recordsift/internal/logger"
	"github.com/recordsift/recordsift/internal/modules/filter"
	"github.com/recordsift/recordsift/internal/modules/input"
	"github.com/recordsift/recordsift/internal/modules/output"
	"github.com/recordsift/recordsift/pkg/job"
	"github.com/recordsift/recordsift/pkg/table"
)

// Error codes for job execution errors
const (
	ErrCodeInvalidJob        = "INVALID_JOB"
	ErrCodeIdentifiersFailed = "IDENTIFIERS_FAILED"
	ErrCodeRecordsFailed     = "RECORDS_FAILED"
	ErrCodeFilterFailed      = "FILTER_FAILED"
	ErrCodeOutputFailed      = "OUTPUT_FAILED"
)

// Stage names used in logs and execution errors
const (
	StageSetup       = "setup"
	StageIdentifiers = "identifiers"
	StageRecords     = "records"
	StageFilter      = "filter"
	StageOutput      = "output"
)

// identifierSampleSize is how many identifiers are logged after loading.
const identifierSampleSize = 5

// ErrNilJob is returned when the job is nil.
var ErrNilJob = errors.New("job is nil")

// Executor runs jobs.
//
// The Executor only talks to modules through their interfaces (input.Module,
// filter.Module, output.Module); modules are built per job by the factory.
type Executor struct {
	dryRun      bool
	previewRows int
	log         *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithDryRun skips the output stage and reports a preview instead.
func WithDryRun(dryRun bool) Option {
	return func(e *Executor) { e.dryRun = dryRun }
}

// WithPreviewRows sets how many rows a dry-run preview samples.
func WithPreviewRows(n int) Option {
	return func(e *Executor) { e.previewRows = n }
}

// WithLogger sets the logger used for the executor's own diagnostics
// (identifier sample, first rows, duplicate keys). Stage and metrics lines
// always go through the logger package.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// NewExecutor creates an executor.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{previewRows: output.DefaultPreviewRows}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) diagLogger() *slog.Logger {
	if e.log != nil {
		return e.log
	}
	return logger.Logger
}

// run carries the state of one execution.
type run struct {
	job     *job.Job
	result  *job.ExecutionResult
	ctx     logger.ExecutionContext
	metrics logger.ExecutionMetrics
	started time.Time
}

// Execute runs a job.
//
// Execution flow:
//  1. Build the record input, filter and output modules
//  2. Load the active identifier set
//  3. Load the record table
//  4. Keep the rows whose join key is an active identifier
//  5. Apply the extra filters in order
//  6. Write the result (or preview it in dry-run mode)
//
// The returned result is always non-nil; on failure it carries the stage,
// code and category of the error, which is also returned.
func (e *Executor) Execute(ctx context.Context, j *job.Job) (*job.ExecutionResult, error) {
	r := &run{
		job:     j,
		started: time.Now(),
		result:  &job.ExecutionResult{Status: job.StatusError},
	}
	r.result.StartedAt = r.started

	if j == nil {
		logger.Error("job execution failed: nil job")
		return e.fail(r, StageSetup, ErrCodeInvalidJob, ErrNilJob)
	}

	r.result.JobID = j.ID
	r.ctx = logger.ExecutionContext{JobID: j.ID, JobName: j.Name, DryRun: e.dryRun}
	logger.LogExecutionStart(r.ctx)

	modules, err := factory.CreateModules(j)
	if err != nil {
		return e.fail(r, StageSetup, ErrCodeInvalidJob, err)
	}
	defer e.closeModule(r, "output", modules.Output)

	ids, err := e.loadIdentifiers(ctx, r)
	if err != nil {
		e.closeModule(r, "records", modules.Records)
		return e.fail(r, StageIdentifiers, ErrCodeIdentifiersFailed, err)
	}

	records, err := e.loadRecords(ctx, r, modules.Records)
	// The record table is fully in memory once loaded.
	e.closeModule(r, "records", modules.Records)
	if err != nil {
		return e.fail(r, StageRecords, ErrCodeRecordsFailed, err)
	}

	kept, err := e.applyFilters(ctx, r, records, ids, modules.Filters)
	if err != nil {
		return e.fail(r, StageFilter, ErrCodeFilterFailed, err)
	}

	if dups := filter.DuplicateKeys(kept, e.joinKey(j)); len(dups) > 0 {
		r.result.DuplicateKeys = dups
		r.metrics.DuplicateKeys = len(dups)
		e.diagLogger().Warn("join key occurs on more than one record",
			slog.String("job_id", j.ID),
			slog.String("join_key", e.joinKey(j)),
			slog.Int("count", len(dups)),
			slog.Any("keys", sample(dups, identifierSampleSize)),
		)
	}

	if err := e.writeOutput(ctx, r, modules.Output, kept); err != nil {
		return e.fail(r, StageOutput, ErrCodeOutputFailed, err)
	}

	return e.finalize(r), nil
}

func (e *Executor) joinKey(j *job.Job) string {
	if j.JoinKey == "" {
		return job.DefaultJoinKey
	}
	return j.JoinKey
}

// loadIdentifiers loads the active identifier set.
func (e *Executor) loadIdentifiers(ctx context.Context, r *run) (table.KeySet, error) {
	stageCtx := r.stage(StageIdentifiers, "file")
	logger.LogStageStart(stageCtx)

	src := input.NewIdentifierFile(r.job.Identifiers)
	start := time.Now()
	ids, err := src.Load(ctx)
	r.metrics.IdentifiersDuration = time.Since(start)
	if err != nil {
		logStageFailure(stageCtx, ErrCodeIdentifiersFailed, r.metrics.IdentifiersDuration, err)
		return nil, fmt.Errorf("loading identifiers from %s: %w", src.Source(), err)
	}

	r.result.IdentifiersLoaded = ids.Len()
	r.metrics.IdentifiersLoaded = ids.Len()
	logger.LogStageEnd(stageCtx, ids.Len(), r.metrics.IdentifiersDuration, nil)
	e.diagLogger().Info("active identifiers loaded",
		slog.String("job_id", r.job.ID),
		slog.String("path", src.Source()),
		slog.Int("count", ids.Len()),
		slog.Any("sample", ids.Sample(identifierSampleSize)),
	)
	return ids, nil
}

// loadRecords fetches the record table.
func (e *Executor) loadRecords(ctx context.Context, r *run, in input.Module) (*table.Table, error) {
	stageCtx := r.stage(StageRecords, moduleType(r.job.Records))
	logger.LogStageStart(stageCtx)

	start := time.Now()
	tbl, err := in.Fetch(ctx)
	r.metrics.RecordsDuration = time.Since(start)
	if err != nil {
		logStageFailure(stageCtx, ErrCodeRecordsFailed, r.metrics.RecordsDuration, err)
		if d, ok := in.(input.Describer); ok {
			return nil, fmt.Errorf("loading records from %s: %w", d.Source(), err)
		}
		return nil, fmt.Errorf("loading records: %w", err)
	}

	r.result.RecordsRead = tbl.Len()
	r.metrics.RecordsRead = tbl.Len()
	logger.LogStageEnd(stageCtx, tbl.Len(), r.metrics.RecordsDuration, nil)
	return tbl, nil
}

// applyFilters runs the active filter and then the extra filters.
func (e *Executor) applyFilters(ctx context.Context, r *run, tbl *table.Table, ids table.KeySet, extra []filter.Module) (*table.Table, error) {
	stageCtx := r.stage(StageFilter, "active")
	logger.LogStageStart(stageCtx)
	start := time.Now()
	defer func() { r.metrics.FilterDuration = time.Since(start) }()

	joinKey := e.joinKey(r.job)
	current, err := filter.NewActiveModule(joinKey, ids).Process(ctx, tbl)
	if err != nil {
		logStageFailure(stageCtx, ErrCodeFilterFailed, time.Since(start), err)
		return nil, fmt.Errorf("filtering on %q: %w", joinKey, err)
	}
	r.result.RecordsMatched = current.Len()
	r.metrics.RecordsMatched = current.Len()
	logger.LogStageEnd(stageCtx, current.Len(), time.Since(start), nil)

	for i, m := range extra {
		if m == nil {
			continue
		}
		filterCtx := r.stage(StageFilter, r.job.Filters[i].Type)
		filterStart := time.Now()
		next, err := m.Process(ctx, current)
		if err != nil {
			logStageFailure(filterCtx, ErrCodeFilterFailed, time.Since(filterStart), err)
			return nil, fmt.Errorf("filter %d (%s): %w", i, r.job.Filters[i].Type, err)
		}
		logger.LogStageEnd(filterCtx, next.Len(), time.Since(filterStart), nil)
		current = next
	}

	if e.diagLogger().Enabled(ctx, slog.LevelDebug) {
		for i := 0; i < identifierSampleSize && i < current.Len(); i++ {
			e.diagLogger().Debug("kept record",
				slog.String("job_id", r.job.ID),
				slog.Int("index", i),
				slog.Any("record", current.Record(current.Rows[i])),
			)
		}
	}
	return current, nil
}

// writeOutput sends the table to the output module, or previews it in
// dry-run mode.
func (e *Executor) writeOutput(ctx context.Context, r *run, out output.Module, tbl *table.Table) error {
	stageCtx := r.stage(StageOutput, moduleType(r.job.Output))
	if d, ok := out.(interface{ Destination() string }); ok {
		r.result.Destination = d.Destination()
	}

	if e.dryRun {
		if p, ok := out.(output.PreviewableModule); ok {
			r.result.DryRunPreview = p.Preview(tbl, e.previewRows)
		}
		r.result.RecordsWritten = tbl.Len()
		logger.WithExecution(stageCtx).Info("dry-run: output skipped",
			slog.String("destination", r.result.Destination),
			slog.Int("records_would_write", tbl.Len()),
		)
		return nil
	}

	logger.LogStageStart(stageCtx)
	start := time.Now()
	written, err := out.Send(ctx, tbl)
	r.metrics.OutputDuration = time.Since(start)
	if err != nil {
		logStageFailure(stageCtx, ErrCodeOutputFailed, r.metrics.OutputDuration, err)
		return fmt.Errorf("writing output: %w", err)
	}

	r.result.RecordsWritten = written
	logger.LogStageEnd(stageCtx, written, r.metrics.OutputDuration, nil)
	return nil
}

// fail records err in the result and logs the end of the execution.
func (e *Executor) fail(r *run, stage, code string, err error) (*job.ExecutionResult, error) {
	r.result.CompletedAt = time.Now()
	r.result.Status = job.StatusError
	r.result.Error = buildExecutionError(code, stage, err)
	if r.job != nil {
		msg := "job execution failed"
		if r.result.Error.Unexpected {
			msg = "job execution failed with an unexpected error"
		}
		logger.LogError(msg, r.ctx, err)
		logger.LogExecutionEnd(r.ctx, job.StatusError, r.result.RecordsWritten, r.result.Duration())
	}
	return r.result, err
}

// finalize marks the execution as successful and logs its metrics.
func (e *Executor) finalize(r *run) *job.ExecutionResult {
	r.result.Status = job.StatusSuccess
	if e.dryRun {
		r.result.Status = job.StatusDryRun
	}
	r.result.CompletedAt = time.Now()
	r.result.Error = nil

	r.metrics.TotalDuration = r.result.Duration()
	r.metrics.RecordsWritten = r.result.RecordsWritten

	logger.LogExecutionEnd(r.ctx, r.result.Status, r.result.RecordsWritten, r.metrics.TotalDuration)
	logger.LogMetrics(r.ctx, r.metrics)
	return r.result
}

func (r *run) stage(stage, moduleType string) logger.ExecutionContext {
	c := r.ctx
	c.Stage = stage
	c.ModuleType = moduleType
	return c
}

// closeModule closes a module and logs any error.
func (e *Executor) closeModule(r *run, name string, m interface{ Close() error }) {
	if m == nil {
		return
	}
	if err := m.Close(); err != nil {
		logger.Warn("failed to close module",
			slog.String("job_id", r.result.JobID),
			slog.String("module", name),
			slog.String("error", err.Error()),
		)
	}
}

// buildExecutionError creates an ExecutionError with the error's category.
func buildExecutionError(code, stage string, err error) *job.ExecutionError {
	return &job.ExecutionError{
		Code:       code,
		Category:   string(errhandling.ClassifyError(err).Category),
		Message:    err.Error(),
		Stage:      stage,
		Unexpected: !errhandling.IsFatal(err),
	}
}

func logStageFailure(stageCtx logger.ExecutionContext, code string, d time.Duration, err error) {
	logger.LogStageEnd(stageCtx, 0, d, &logger.StageError{
		Code:     code,
		Category: string(errhandling.ClassifyError(err).Category),
		Message:  err.Error(),
	})
}

func moduleType(cfg *job.ModuleConfig) string {
	if cfg == nil || cfg.Type == "" {
		return "csv"
	}
	return cfg.Type
}

func sample(keys []string, n int) []string {
	if len(keys) > n {
		return keys[:n]
	}
	return keys
}
