package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/recordsift/recordsift/internal/logger"
)

// captureJSON redirects the package logger to a buffer for the duration of the test.
func captureJSON(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.SetLevelAndFormat(level, logger.FormatJSON)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
		logger.SetLevelAndFormat(slog.LevelInfo, logger.FormatJSON)
	})
	return &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("Failed to parse JSON log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLoggerInitialization(t *testing.T) {
	if logger.Logger == nil {
		t.Fatal("Logger should be initialized on package load")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    logger.OutputFormat
		wantErr bool
	}{
		{"", logger.FormatJSON, false},
		{"json", logger.FormatJSON, false},
		{"HUMAN", logger.FormatHuman, false},
		{"console", logger.FormatHuman, false},
		{"xml", logger.FormatJSON, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := logger.ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSetLevelFiltersDebug(t *testing.T) {
	buf := captureJSON(t, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("shown", "key", "value")

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d: %s", len(entries), buf.String())
	}
	if entries[0]["msg"] != "shown" || entries[0]["key"] != "value" {
		t.Errorf("unexpected entry: %v", entries[0])
	}

	logger.SetLevel(slog.LevelDebug)
	logger.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Error("debug message should be logged after SetLevel(Debug)")
	}
}

func TestExecutionHelpers(t *testing.T) {
	buf := captureJSON(t, slog.LevelDebug)
	ctx := logger.ExecutionContext{JobID: "active-subscribers", Stage: "records", ModuleType: "csv", DryRun: true}

	logger.LogExecutionStart(ctx)
	logger.LogStageEnd(ctx, 42, 15*time.Millisecond, nil)
	logger.LogStageEnd(ctx, 0, time.Millisecond, &logger.StageError{
		Code: "RECORDS_FAILED", Category: "schema", Message: "missing login",
	})
	logger.LogMetrics(ctx, logger.ExecutionMetrics{RecordsRead: 10, RecordsWritten: 7})

	entries := decodeLines(t, buf)
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e["job_id"] != "active-subscribers" {
			t.Errorf("missing job_id in %v", e)
		}
		if e["dry_run"] != true {
			t.Errorf("missing dry_run in %v", e)
		}
	}
	if entries[1]["record_count"] != float64(42) {
		t.Errorf("record_count = %v", entries[1]["record_count"])
	}
	if entries[2]["level"] != "ERROR" || entries[2]["error_category"] != "schema" {
		t.Errorf("failed stage entry = %v", entries[2])
	}
	if entries[3]["records_removed"] != float64(3) {
		t.Errorf("records_removed = %v", entries[3]["records_removed"])
	}
}

func TestLogErrorIncludesChain(t *testing.T) {
	buf := captureJSON(t, slog.LevelInfo)

	base := errors.New("no such file")
	logger.LogError("run failed", logger.ExecutionContext{JobID: "j"}, fmt.Errorf("loading identifiers: %w", base))

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	chain, _ := entries[0]["error_chain"].(string)
	if !strings.Contains(chain, "loading identifiers") || !strings.Contains(chain, "-> no such file") {
		t.Errorf("error_chain = %q", chain)
	}
}

func TestHumanHandler(t *testing.T) {
	var buf bytes.Buffer
	h := logger.NewHumanHandler(&buf, &logger.HumanHandlerOptions{Level: slog.LevelInfo})
	l := slog.New(h).With("job_id", "j1")

	l.Info("stage completed", "duration", 1500*time.Millisecond)
	l.Warn("duplicate join keys", "count", 2)
	l.Debug("not shown")

	out := buf.String()
	if !strings.Contains(out, "✓ stage completed") {
		t.Errorf("completion line should use ✓: %q", out)
	}
	if !strings.Contains(out, "duration=1.50s") {
		t.Errorf("duration should be humanized: %q", out)
	}
	if !strings.Contains(out, "⚠ duplicate join keys count=2 job_id=j1") {
		t.Errorf("warning line malformed: %q", out)
	}
	if strings.Contains(out, "not shown") {
		t.Error("debug line should be filtered")
	}
	if strings.Contains(out, "\033[") {
		t.Error("colors should be off when UseColors is false")
	}

	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error level should be enabled")
	}
}

func TestHumanHandlerGroups(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(logger.NewHumanHandler(&buf, nil)).WithGroup("output").With("path", "out.csv")
	l.Info("records written")
	if !strings.Contains(buf.String(), "output.path=out.csv") {
		t.Errorf("group prefix missing: %q", buf.String())
	}
}

func TestFormatMetricsHuman(t *testing.T) {
	got := logger.FormatMetricsHuman(logger.ExecutionMetrics{
		TotalDuration:     250 * time.Millisecond,
		IdentifiersLoaded: 3,
		RecordsRead:       10,
		RecordsWritten:    4,
		DuplicateKeys:     1,
	})
	want := "Kept 4 of 10 records (6 removed) against 3 active identifiers in 250ms, 1 duplicated keys"
	if got != want {
		t.Errorf("FormatMetricsHuman() = %q, want %q", got, want)
	}
}

func TestSetLogFile(t *testing.T) {
	var console bytes.Buffer
	logger.SetOutput(&console)
	t.Cleanup(func() {
		logger.CloseLogFile()
		logger.SetOutput(os.Stderr)
		logger.SetLevelAndFormat(slog.LevelInfo, logger.FormatJSON)
	})

	path := filepath.Join(t.TempDir(), "recordsift.log")
	if err := logger.SetLogFile(path, slog.LevelInfo, logger.FormatHuman); err != nil {
		t.Fatalf("SetLogFile() error = %v", err)
	}
	logger.Info("records written", "count", 3)
	logger.CloseLogFile()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("file log should be JSON: %v (%q)", err, data)
	}
	if entry["msg"] != "records written" {
		t.Errorf("file entry = %v", entry)
	}
	if !strings.Contains(console.String(), "✓ records written count=3") {
		t.Errorf("console should use the human format: %q", console.String())
	}
}
