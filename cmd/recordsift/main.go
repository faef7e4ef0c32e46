// Package main provides the CLI entry point for recordsift.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/recordsift/recordsift/internal/cli"
	"github.com/recordsift/recordsift/internal/config"
	"github.com/recordsift/recordsift/internal/logger"
	"github.com/recordsift/recordsift/internal/modules/output"
	"github.com/recordsift/recordsift/internal/runtime"
	"github.com/recordsift/recordsift/pkg/job"
)

// Build information (set via ldflags during build)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// exitError carries the process exit code of a command that already reported
// its failure.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	logger.CloseLogFile()

	var exit *exitError
	switch {
	case err == nil:
		return cli.ExitSuccess
	case errors.As(err, &exit):
		return exit.code
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return cli.ExitValidationError
	}
}

// app holds the flags of one CLI invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	// Global flags
	verbose   bool
	quiet     bool
	logFormat string
	logFile   string

	// Execution flags
	dryRun      bool
	previewRows int

	filter filterFlags
}

type filterFlags struct {
	identifiers string
	idDelimiter string
	records     string
	delimiter   string
	noHeader    bool
	layout      string
	joinKey     string
	where       []string
	output      string
	format      string
	table       string
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "recordsift",
		Short: "recordsift - keep the records of active identifiers",
		Long: `recordsift filters a delimited record table down to the rows whose join key
appears in a list of active identifiers. Row order and every field are kept.

Examples:
  # Run the legacy export in the current directory
  recordsift filter

  # Name the files explicitly
  recordsift filter --identifiers ids.txt --records raw.csv --output active.csv

  # Run a job file
  recordsift run job.yaml

  # Validate a job file
  recordsift validate --verbose job.json`,
		SilenceErrors:     true,
		PersistentPreRunE: a.configureLogging,
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose output")
	root.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "Suppress non-error output")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "json", "Log format on stderr (json or human)")
	root.PersistentFlags().StringVar(&a.logFile, "log-file", "", "Also write JSON logs to this file")

	root.AddCommand(a.filterCommand(), a.runCommand(), a.validateCommand(), a.layoutCommand(), a.versionCommand())
	return root
}

func (a *app) configureLogging(_ *cobra.Command, _ []string) error {
	format, err := logger.ParseFormat(a.logFormat)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	} else if a.quiet {
		level = slog.LevelError
	}

	logger.SetOutput(a.stderr)
	logger.SetLevelAndFormat(level, format)
	if a.logFile != "" {
		if err := logger.SetLogFile(a.logFile, level, format); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) addExecutionFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&a.dryRun, "dry-run", false, "Filter and preview without writing the output")
	cmd.Flags().IntVar(&a.previewRows, "preview-rows", output.DefaultPreviewRows, "Rows shown in the dry-run preview")
}

func (a *app) filterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Filter a record table against an identifier list",
		Long: `Filter a record table against an identifier list.

Every flag defaults to the legacy export: identifiers from z_active_users.txt
(one "id:rest" per line), records from z_raw_data.csv joined on "login",
and the result written to z_raw_data_active.csv.

Exit codes:
  0 - Records filtered and written
  1 - Invalid flags
  3 - Runtime errors
  4 - An input file is missing
  5 - The record table lacks the join key or disagrees with the layout

Examples:
  recordsift filter
  recordsift filter --join-key email --delimiter ';'
  recordsift filter --no-header --layout subscriber-legacy
  recordsift filter --no-header --layout login,email,plan
  recordsift filter --where 'estado == "PE"' --format sqlite`,
		Args: cobra.NoArgs,
		RunE: a.runFilter,
	}

	f := &a.filter
	cmd.Flags().StringVar(&f.identifiers, "identifiers", job.DefaultIdentifiersPath, "Active identifier list")
	cmd.Flags().StringVar(&f.idDelimiter, "id-delimiter", job.DefaultIDDelimiter, "Separator ending the identifier on each line")
	cmd.Flags().StringVar(&f.records, "records", job.DefaultRecordsPath, "Record table")
	cmd.Flags().StringVar(&f.delimiter, "delimiter", ",", "Field separator of the record table (\"tab\" for tabs)")
	cmd.Flags().BoolVar(&f.noHeader, "no-header", false, "The record table has no header row (requires --layout)")
	cmd.Flags().StringVar(&f.layout, "layout", "", "Built-in layout name or comma-separated field names (\"login,\" for a single field)")
	cmd.Flags().StringVar(&f.joinKey, "join-key", job.DefaultJoinKey, "Field matched against the identifiers")
	cmd.Flags().StringArrayVar(&f.where, "where", nil, "Keep only rows matching this expression (repeatable)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Output path (default z_raw_data_active.csv, or .db for sqlite)")
	cmd.Flags().StringVar(&f.format, "format", "csv", "Output format (csv or sqlite)")
	cmd.Flags().StringVar(&f.table, "table", output.DefaultSQLiteTable, "Table name for sqlite output")
	a.addExecutionFlags(cmd)
	return cmd
}

func (a *app) runFilter(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

	j, err := a.filter.job()
	if err != nil {
		fmt.Fprintf(a.stderr, "✗ %v\n", err)
		return &exitError{code: cli.ExitValidationError}
	}
	return a.execute(cmd.Context(), j)
}

// layoutFlag reads --layout: a built-in layout name, or field names joined by
// commas. A trailing comma marks a single field ("login,").
func layoutFlag(value string) (interface{}, error) {
	if !strings.Contains(value, ",") {
		return value, nil
	}
	var names []string
	for _, name := range strings.Split(value, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("invalid --layout: %q names no fields", value)
	}
	return names, nil
}

// job builds a job from the filter flags on top of the legacy defaults.
func (f *filterFlags) job() (*job.Job, error) {
	j := config.DefaultJob()
	j.JoinKey = f.joinKey
	j.Identifiers.Path = f.identifiers
	j.Identifiers.Delimiter = f.idDelimiter

	j.Records.Config["path"] = f.records
	j.Records.Config["delimiter"] = f.delimiter
	j.Records.Config["header"] = !f.noHeader

	if f.layout != "" {
		raw, err := layoutFlag(f.layout)
		if err != nil {
			return nil, err
		}
		layout, err := config.ResolveLayout(raw)
		if err != nil {
			if _, named := raw.(string); named {
				return nil, fmt.Errorf("invalid --layout: %w (use %q for a single-field layout)", err, f.layout+",")
			}
			return nil, fmt.Errorf("invalid --layout: %w", err)
		}
		j.Layout = layout
	}

	for _, expr := range f.where {
		j.Filters = append(j.Filters, job.ModuleConfig{
			Type:   "condition",
			Config: map[string]interface{}{"expression": expr},
		})
	}

	switch f.format {
	case "csv":
		path := f.output
		if path == "" {
			path = job.DefaultOutputPath
		}
		j.Output = &job.ModuleConfig{Type: "csv", Config: map[string]interface{}{"path": path}}
	case "sqlite":
		j.Output = &job.ModuleConfig{Type: "sqlite", Config: map[string]interface{}{
			"path":  f.output,
			"table": f.table,
		}}
	default:
		return nil, fmt.Errorf("unknown --format %q (want csv or sqlite)", f.format)
	}
	return j, nil
}

func (a *app) runCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <job-file>",
		Short: "Run a job file",
		Long: `Run a job defined in a JSON or YAML job file.

The job file is first validated against the schema.
If validation fails, the job is not executed.

Exit codes:
  0 - Job executed successfully
  1 - Validation errors
  2 - Parse errors
  3 - Runtime errors
  4 - An input file is missing
  5 - The record table lacks the join key or disagrees with the layout

Examples:
  recordsift run job.json
  recordsift run --verbose job.yaml
  recordsift run --dry-run job.json`,
		Args: cobra.ExactArgs(1),
		RunE: a.runJob,
	}
	a.addExecutionFlags(cmd)
	return cmd
}

func (a *app) runJob(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	path := args[0]

	if !a.quiet {
		fmt.Fprintf(a.stdout, "Loading job: %s\n", path)
	}

	j, result, err := config.LoadJob(path)
	if err != nil {
		cli.PrintJobErrors(a.stderr, result, a.verbose, a.quiet)
		return &exitError{code: cli.ExitCodeForResult(result)}
	}

	if !a.quiet {
		fmt.Fprintf(a.stdout, "✓ Job loaded successfully (format: %s)\n", result.Format)
	}
	if a.verbose {
		cli.PrintJobSummary(a.stdout, j)
	}
	return a.execute(cmd.Context(), j)
}

func (a *app) execute(ctx context.Context, j *job.Job) error {
	if !a.quiet {
		if a.dryRun {
			fmt.Fprintln(a.stdout, "Filtering records (dry-run mode - output will not be written)...")
		} else {
			fmt.Fprintln(a.stdout, "Filtering records...")
		}
	}

	executor := runtime.NewExecutor(
		runtime.WithDryRun(a.dryRun),
		runtime.WithPreviewRows(a.previewRows),
	)
	result, err := executor.Execute(ctx, j)

	cli.PrintExecutionResult(a.stdout, a.stderr, result, err, cli.OutputOptions{
		Verbose: a.verbose,
		Quiet:   a.quiet,
		DryRun:  a.dryRun,
	})
	if err != nil {
		return &exitError{code: cli.ExitCodeFor(err)}
	}
	return nil
}

func (a *app) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <job-file>",
		Short: "Validate a job file",
		Long: `Validate a job file against the schema.

Supports both JSON and YAML formats. The format is auto-detected
based on file extension (.json, .yaml, .yml) or content.

Exit codes:
  0 - Job file is valid
  1 - Validation errors (schema violations, unknown layouts)
  2 - Parse errors (invalid JSON/YAML syntax)

Examples:
  recordsift validate job.json
  recordsift validate --verbose job.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: a.runValidate,
	}
}

func (a *app) runValidate(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	path := args[0]

	if !a.quiet {
		fmt.Fprintf(a.stdout, "Validating job: %s\n", path)
	}

	j, result, err := config.LoadJob(path)
	if err != nil {
		cli.PrintJobErrors(a.stderr, result, a.verbose, a.quiet)
		return &exitError{code: cli.ExitCodeForResult(result)}
	}

	if !a.quiet {
		fmt.Fprintf(a.stdout, "✓ Job file is valid (format: %s)\n", result.Format)
		if a.verbose {
			cli.PrintJobSummary(a.stdout, j)
		}
	}
	return nil
}

func (a *app) layoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "layout [name]",
		Short: "List built-in layouts or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if len(args) == 0 {
				cli.PrintLayoutNames(a.stdout, config.BuiltinLayoutNames())
				return nil
			}
			layout, ok := config.BuiltinLayout(args[0])
			if !ok {
				fmt.Fprintf(a.stderr, "✗ Unknown layout %q (available: %s)\n",
					args[0], strings.Join(config.BuiltinLayoutNames(), ", "))
				return &exitError{code: cli.ExitValidationError}
			}
			cli.PrintLayout(a.stdout, layout)
			return nil
		},
	}
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print version, commit hash, and build date information.",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(a.stdout, "Version: %s\n", version)
			fmt.Fprintf(a.stdout, "Commit: %s\n", commit)
			fmt.Fprintf(a.stdout, "Build Date: %s\n", buildDate)
		},
	}
}
