package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/recordsift/recordsift/internal/logger"
	"github.com/recordsift/recordsift/pkg/job"
	"github.com/recordsift/recordsift/pkg/table"
)

var (
	success = color.New(color.FgGreen).SprintFunc()
	failure = color.New(color.FgRed).SprintFunc()
	warning = color.New(color.FgYellow).SprintFunc()
	heading = color.New(color.FgCyan, color.Bold).SprintFunc()
)

// maxPreviewWidth caps the cell width of the dry-run sample table.
const maxPreviewWidth = 24

// OutputOptions configures CLI output behavior.
type OutputOptions struct {
	Verbose bool
	Quiet   bool
	DryRun  bool
}

// PrintExecutionResult displays the job execution result. Failures go to
// errW, the summary to w.
func PrintExecutionResult(w, errW io.Writer, result *job.ExecutionResult, err error, opts OutputOptions) {
	if result == nil {
		fmt.Fprintln(errW, failure("✗ No execution result available"))
		return
	}

	if err != nil {
		fmt.Fprintln(errW, failure("✗ Job execution failed"))
		if result.Error != nil {
			fmt.Fprintf(errW, "  Stage: %s\n", result.Error.Stage)
			fmt.Fprintf(errW, "  Category: %s\n", result.Error.Category)
			fmt.Fprintf(errW, "  Error: %s\n", result.Error.Message)
			if result.Error.Unexpected {
				fmt.Fprintln(errW, warning("  ⚠ Unexpected error: the failure matches no known category"))
			}
		} else {
			fmt.Fprintf(errW, "  Error: %v\n", err)
		}
		return
	}

	if opts.Quiet {
		return
	}

	if result.Status == job.StatusDryRun {
		fmt.Fprintln(w, success("✓ Job checked (dry-run)"))
	} else {
		fmt.Fprintln(w, success("✓ Job executed successfully"))
	}
	fmt.Fprintf(w, "  Active identifiers: %d\n", result.IdentifiersLoaded)
	fmt.Fprintf(w, "  Records read: %d\n", result.RecordsRead)
	fmt.Fprintf(w, "  Records kept: %d\n", result.RecordsWritten)
	fmt.Fprintf(w, "  Records removed: %d\n", result.RecordsRemoved())
	if result.Destination != "" && result.Status != job.StatusDryRun {
		fmt.Fprintf(w, "  Output: %s\n", result.Destination)
	}
	if n := len(result.DuplicateKeys); n > 0 {
		fmt.Fprintln(w, warning(fmt.Sprintf("  ⚠ %d join keys occur more than once: %s", n, summarize(result.DuplicateKeys, 5))))
	}
	if opts.Verbose {
		fmt.Fprintf(w, "  Duration: %v\n", result.Duration())
		fmt.Fprintf(w, "  Summary: %s\n", logger.FormatMetricsHuman(logger.ExecutionMetrics{
			TotalDuration:     result.Duration(),
			IdentifiersLoaded: result.IdentifiersLoaded,
			RecordsRead:       result.RecordsRead,
			RecordsMatched:    result.RecordsMatched,
			RecordsWritten:    result.RecordsWritten,
			DuplicateKeys:     len(result.DuplicateKeys),
		}))
	}

	if result.DryRunPreview != nil {
		PrintDryRunPreview(w, result.DryRunPreview, opts.Verbose)
	}
}

// PrintDryRunPreview displays what a dry run would have written.
func PrintDryRunPreview(w io.Writer, preview *job.OutputPreview, verbose bool) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, heading("Dry-Run Preview (what would have been written):"))
	fmt.Fprintf(w, "  Destination: %s (%s)\n", preview.Destination, preview.Format)
	fmt.Fprintf(w, "  Records: %d\n", preview.RecordCount)
	fmt.Fprintf(w, "  Columns: %d", len(preview.Columns))
	if preview.Header {
		fmt.Fprint(w, " (with header row)")
	}
	fmt.Fprintln(w)

	if len(preview.Sample) > 0 {
		fmt.Fprintln(w)
		renderRows(w, preview.Columns, preview.Sample, verbose)
		if rest := preview.RecordCount - len(preview.Sample); rest > 0 {
			fmt.Fprintf(w, "  ... (%d more records)\n", rest)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "ℹ No file was written (dry-run mode)")
}

// renderRows prints sample rows as a table. Cells are truncated unless
// verbose.
func renderRows(w io.Writer, columns []string, rows []table.Row, verbose bool) {
	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	tw.SetHeader(columns)
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i := range columns {
			cells[i] = row.Cell(i)
			if !verbose {
				cells[i] = truncate(cells[i], maxPreviewWidth)
			}
		}
		tw.Append(cells)
	}
	tw.Render()
}

// PrintLayout prints a layout as a position ⇄ field table.
func PrintLayout(w io.Writer, layout table.Layout) {
	name := layout.Name
	if name == "" {
		name = "inline"
	}
	fmt.Fprintln(w, heading(fmt.Sprintf("Layout %s (%d fields)", name, len(layout.Fields))))

	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeader([]string{"Position", "Field"})
	for i, col := range layout.Columns() {
		tw.Append([]string{strconv.Itoa(i), col})
	}
	tw.Render()
}

// PrintLayoutNames lists the built-in layouts.
func PrintLayoutNames(w io.Writer, names []string) {
	fmt.Fprintln(w, heading("Built-in layouts:"))
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", name)
	}
}

// PrintJobSummary prints the resources a job reads and writes.
func PrintJobSummary(w io.Writer, j *job.Job) {
	if j == nil {
		return
	}
	fmt.Fprintf(w, "  Job: %s\n", j.Name)
	if j.Description != "" {
		fmt.Fprintf(w, "  Description: %s\n", j.Description)
	}
	fmt.Fprintf(w, "  Join key: %s\n", j.JoinKey)
	fmt.Fprintf(w, "  Identifiers: %s\n", j.Identifiers.Path)
	if j.Records != nil {
		fmt.Fprintf(w, "  Records: %s (%s)\n", j.Records.String("path", job.DefaultRecordsPath), j.Records.Type)
	}
	if j.Layout != nil {
		fmt.Fprintf(w, "  Layout: %s (%d fields)\n", layoutName(j.Layout), len(j.Layout.Fields))
	}
	if len(j.Filters) > 0 {
		types := make([]string, len(j.Filters))
		for i, f := range j.Filters {
			types[i] = f.Type
		}
		fmt.Fprintf(w, "  Filters: %s\n", strings.Join(types, ", "))
	}
	if j.Output != nil {
		fmt.Fprintf(w, "  Output: %s (%s)\n", j.Output.String("path", job.DefaultOutputPath), j.Output.Type)
	}
}

func layoutName(l *table.Layout) string {
	if l.Name == "" {
		return "inline"
	}
	return l.Name
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

func summarize(values []string, n int) string {
	if len(values) <= n {
		return strings.Join(values, ", ")
	}
	return fmt.Sprintf("%s, ... (+%d)", strings.Join(values[:n], ", "), len(values)-n)
}
