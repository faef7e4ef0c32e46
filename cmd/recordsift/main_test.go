package main

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"

	"github.com/recordsift/recordsift/internal/cli"
	"github.com/recordsift/recordsift/internal/logger"
)

// testFixturePath returns the path to test fixtures
func testFixturePath(filename string) string {
	return filepath.Join("..", "..", "internal", "config", "testdata", filename)
}

// runCLI runs the CLI in-process and returns stdout, stderr, and exit code
func runCLI(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()
	color.NoColor = true
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
		logger.SetLevelAndFormat(slog.LevelInfo, logger.FormatJSON)
	})

	var outBuf, errBuf bytes.Buffer
	exitCode = run(context.Background(), args, &outBuf, &errBuf)
	return outBuf.String(), errBuf.String(), exitCode
}

type files struct {
	dir         string
	identifiers string
	records     string
	output      string
}

func writeFiles(t *testing.T, ids, records string) files {
	t.Helper()
	dir := t.TempDir()
	f := files{
		dir:         dir,
		identifiers: filepath.Join(dir, "z_active_users.txt"),
		records:     filepath.Join(dir, "z_raw_data.csv"),
		output:      filepath.Join(dir, "z_raw_data_active.csv"),
	}
	if err := os.WriteFile(f.identifiers, []byte(ids), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f.records, []byte(records), 0o644); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f files) args(extra ...string) []string {
	return append([]string{"filter",
		"--identifiers", f.identifiers,
		"--records", f.records,
		"--output", f.output,
	}, extra...)
}

const (
	exampleIDs     = "alice:x\nbob:y\n"
	exampleRecords = "login,name\nalice,A\ncarol,C\nbob,B\n"
)

func TestCLI_Help(t *testing.T) {
	stdout, _, exitCode := runCLI(t, "--help")

	if exitCode != cli.ExitSuccess {
		t.Errorf("expected exit code 0, got %d", exitCode)
	}
	for _, want := range []string{"recordsift", "filter", "run", "validate", "layout"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("expected help to contain %q", want)
		}
	}
}

func TestCLI_Version(t *testing.T) {
	stdout, _, exitCode := runCLI(t, "version")
	if exitCode != cli.ExitSuccess {
		t.Fatalf("expected exit code 0, got %d", exitCode)
	}
	if !strings.Contains(stdout, "Version: dev") || !strings.Contains(stdout, "Build Date:") {
		t.Errorf("unexpected version output: %q", stdout)
	}
}

func TestCLI_Filter(t *testing.T) {
	f := writeFiles(t, exampleIDs, exampleRecords)

	stdout, stderr, exitCode := runCLI(t, f.args()...)
	if exitCode != cli.ExitSuccess {
		t.Fatalf("expected exit code 0, got %d\nstderr: %s", exitCode, stderr)
	}

	got, err := os.ReadFile(f.output)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if want := "login,name\nalice,A\nbob,B\n"; string(got) != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if !strings.Contains(stdout, "Records removed: 1") {
		t.Errorf("summary missing from stdout: %s", stdout)
	}
	if !strings.Contains(stderr, `"msg":"execution completed"`) {
		t.Errorf("JSON logs should go to stderr: %s", stderr)
	}
}

func TestCLI_FilterOptions(t *testing.T) {
	f := writeFiles(t, "a1|ignored\n", "id;email\na1;one@example.com\nb2;two@example.com\n")

	_, stderr, exitCode := runCLI(t, f.args("--join-key", "id", "--delimiter", ";", "--id-delimiter", "|", "-q")...)
	if exitCode != cli.ExitSuccess {
		t.Fatalf("expected exit code 0, got %d\nstderr: %s", exitCode, stderr)
	}
	got, _ := os.ReadFile(f.output)
	if want := "id;email\na1;one@example.com\n"; string(got) != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestCLI_FilterHeaderlessWithLayout(t *testing.T) {
	f := writeFiles(t, exampleIDs, "alice,A\ncarol,C\nbob,B\n")

	_, stderr, exitCode := runCLI(t, f.args("--no-header", "--layout", "login, name", "-q")...)
	if exitCode != cli.ExitSuccess {
		t.Fatalf("expected exit code 0, got %d\nstderr: %s", exitCode, stderr)
	}
	got, _ := os.ReadFile(f.output)
	if want := "alice,A\nbob,B\n"; string(got) != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestCLI_FilterSingleFieldLayout(t *testing.T) {
	f := writeFiles(t, exampleIDs, "alice\ncarol\nbob\n")

	_, stderr, exitCode := runCLI(t, f.args("--no-header", "--layout", "login,", "-q")...)
	if exitCode != cli.ExitSuccess {
		t.Fatalf("expected exit code 0, got %d\nstderr: %s", exitCode, stderr)
	}
	got, _ := os.ReadFile(f.output)
	if want := "alice\nbob\n"; string(got) != want {
		t.Errorf("output = %q, want %q", got, want)
	}

	_, stderr, exitCode = runCLI(t, f.args("--no-header", "--layout", "login")...)
	if exitCode != cli.ExitValidationError {
		t.Errorf("bare field name: exit code = %d, want %d", exitCode, cli.ExitValidationError)
	}
	if !strings.Contains(stderr, `"login,"`) {
		t.Errorf("error should suggest the trailing-comma form: %s", stderr)
	}
}

func TestLayoutFlag(t *testing.T) {
	tests := []struct {
		in      string
		want    interface{}
		wantErr bool
	}{
		{in: "subscriber-legacy", want: "subscriber-legacy"},
		{in: "login,", want: []string{"login"}},
		{in: " login , email ", want: []string{"login", "email"}},
		{in: ",", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := layoutFlag(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("layoutFlag(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("layoutFlag(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestCLI_FilterWhere(t *testing.T) {
	f := writeFiles(t, exampleIDs, exampleRecords)

	_, stderr, exitCode := runCLI(t, f.args("--where", `name == "B"`, "-q")...)
	if exitCode != cli.ExitSuccess {
		t.Fatalf("expected exit code 0, got %d\nstderr: %s", exitCode, stderr)
	}
	got, _ := os.ReadFile(f.output)
	if want := "login,name\nbob,B\n"; string(got) != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestCLI_FilterFailures(t *testing.T) {
	tests := []struct {
		name     string
		ids      string
		records  string
		extra    []string
		wantCode int
		wantErr  string
	}{
		{
			name:     "missing join key",
			ids:      exampleIDs,
			records:  "user,name\nalice,A\n",
			wantCode: cli.ExitSchemaError,
			wantErr:  "login",
		},
		{
			name:     "headerless without layout",
			ids:      exampleIDs,
			records:  "alice,A\n",
			extra:    []string{"--no-header"},
			wantCode: cli.ExitSchemaError,
		},
		{
			name:     "unknown format",
			ids:      exampleIDs,
			records:  exampleRecords,
			extra:    []string{"--format", "parquet"},
			wantCode: cli.ExitValidationError,
			wantErr:  "unknown --format",
		},
		{
			name:     "unknown layout",
			ids:      exampleIDs,
			records:  exampleRecords,
			extra:    []string{"--layout", "subscriber-2031"},
			wantCode: cli.ExitValidationError,
			wantErr:  "invalid --layout",
		},
		{
			name:     "invalid where expression",
			ids:      exampleIDs,
			records:  exampleRecords,
			extra:    []string{"--where", "name =="},
			wantCode: cli.ExitValidationError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := writeFiles(t, tt.ids, tt.records)
			_, stderr, exitCode := runCLI(t, f.args(tt.extra...)...)
			if exitCode != tt.wantCode {
				t.Errorf("exit code = %d, want %d\nstderr: %s", exitCode, tt.wantCode, stderr)
			}
			if tt.wantErr != "" && !strings.Contains(stderr, tt.wantErr) {
				t.Errorf("stderr should mention %q: %s", tt.wantErr, stderr)
			}
			if _, err := os.Stat(f.output); !os.IsNotExist(err) {
				t.Error("no output should be written on failure")
			}
		})
	}
}

func TestCLI_FilterMissingIdentifiers(t *testing.T) {
	f := writeFiles(t, exampleIDs, exampleRecords)
	if err := os.Remove(f.identifiers); err != nil {
		t.Fatal(err)
	}

	_, stderr, exitCode := runCLI(t, f.args()...)
	if exitCode != cli.ExitResourceNotFound {
		t.Errorf("exit code = %d, want %d", exitCode, cli.ExitResourceNotFound)
	}
	if !strings.Contains(stderr, "Stage: identifiers") {
		t.Errorf("stderr should name the failing stage: %s", stderr)
	}
}

func TestCLI_FilterDryRun(t *testing.T) {
	f := writeFiles(t, exampleIDs, exampleRecords)

	stdout, stderr, exitCode := runCLI(t, f.args("--dry-run")...)
	if exitCode != cli.ExitSuccess {
		t.Fatalf("expected exit code 0, got %d\nstderr: %s", exitCode, stderr)
	}
	if !strings.Contains(stdout, "Dry-Run Preview") || !strings.Contains(stdout, "alice") {
		t.Errorf("preview missing: %s", stdout)
	}
	if _, err := os.Stat(f.output); !os.IsNotExist(err) {
		t.Error("dry-run should not write the output")
	}
}

func TestCLI_FilterSQLite(t *testing.T) {
	f := writeFiles(t, exampleIDs, exampleRecords)
	dbPath := filepath.Join(f.dir, "active.db")

	_, stderr, exitCode := runCLI(t, "filter",
		"--identifiers", f.identifiers,
		"--records", f.records,
		"--format", "sqlite",
		"--output", dbPath,
		"--table", "active",
		"-q",
	)
	if exitCode != cli.ExitSuccess {
		t.Fatalf("expected exit code 0, got %d\nstderr: %s", exitCode, stderr)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM "active"`).Scan(&n); err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != 2 {
		t.Errorf("rows = %d, want 2", n)
	}
}

func TestCLI_Validate(t *testing.T) {
	tests := []struct {
		file     string
		wantCode int
		wantOut  string
	}{
		{"valid-job.json", cli.ExitSuccess, "✓ Job file is valid (format: json)"},
		{"valid-job.yaml", cli.ExitSuccess, "✓ Job file is valid (format: yaml)"},
		{"invalid-json.json", cli.ExitParseError, "Parse errors"},
		{"invalid-yaml.yaml", cli.ExitParseError, "Parse errors"},
		{"missing-name.json", cli.ExitValidationError, "Validation errors"},
		{"unknown-layout.yaml", cli.ExitValidationError, "/job/records/layout"},
		{"does-not-exist.json", cli.ExitParseError, "Parse errors"},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			stdout, stderr, exitCode := runCLI(t, "validate", testFixturePath(tt.file))
			if exitCode != tt.wantCode {
				t.Errorf("exit code = %d, want %d\nstdout: %s\nstderr: %s", exitCode, tt.wantCode, stdout, stderr)
			}
			if !strings.Contains(stdout+stderr, tt.wantOut) {
				t.Errorf("output should contain %q\nstdout: %s\nstderr: %s", tt.wantOut, stdout, stderr)
			}
		})
	}
}

func TestCLI_ValidateRequiresArgument(t *testing.T) {
	_, stderr, exitCode := runCLI(t, "validate")
	if exitCode != cli.ExitValidationError {
		t.Errorf("exit code = %d, want %d", exitCode, cli.ExitValidationError)
	}
	if !strings.Contains(stderr, "accepts 1 arg") {
		t.Errorf("stderr = %s", stderr)
	}
}

func TestCLI_Run(t *testing.T) {
	f := writeFiles(t, exampleIDs, "login;plan\nalice;pro\ncarol;free\nbob;free\n")
	jobPath := filepath.Join(f.dir, "job.yaml")
	doc := `schemaVersion: "1.0"
job:
  name: nightly
  identifiers:
    path: ` + f.identifiers + `
  records:
    path: ` + f.records + `
    delimiter: ";"
  filters:
    - type: condition
      expression: plan == "free"
  output:
    path: ` + f.output + `
`
	if err := os.WriteFile(jobPath, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	stdout, stderr, exitCode := runCLI(t, "run", "--verbose", jobPath)
	if exitCode != cli.ExitSuccess {
		t.Fatalf("expected exit code 0, got %d\nstderr: %s", exitCode, stderr)
	}
	got, _ := os.ReadFile(f.output)
	if want := "login;plan\nbob;free\n"; string(got) != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	for _, want := range []string{"Job loaded successfully", "Job: nightly", "Filters: condition", "Duration:"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout should contain %q: %s", want, stdout)
		}
	}
}

func TestCLI_RunInvalidJob(t *testing.T) {
	_, _, exitCode := runCLI(t, "run", testFixturePath("missing-name.json"))
	if exitCode != cli.ExitValidationError {
		t.Errorf("exit code = %d, want %d", exitCode, cli.ExitValidationError)
	}
}

func TestCLI_Layout(t *testing.T) {
	stdout, _, exitCode := runCLI(t, "layout")
	if exitCode != cli.ExitSuccess || !strings.Contains(stdout, "subscriber-legacy") {
		t.Errorf("layout list: code %d, stdout %s", exitCode, stdout)
	}

	stdout, _, exitCode = runCLI(t, "layout", "subscriber-legacy")
	if exitCode != cli.ExitSuccess {
		t.Fatalf("expected exit code 0, got %d", exitCode)
	}
	if !strings.Contains(stdout, "login") || !strings.Contains(stdout, "col_0") {
		t.Errorf("layout table incomplete: %s", stdout)
	}

	_, stderr, exitCode := runCLI(t, "layout", "subscriber-2031")
	if exitCode != cli.ExitValidationError || !strings.Contains(stderr, "Unknown layout") {
		t.Errorf("unknown layout: code %d, stderr %s", exitCode, stderr)
	}
}

func TestCLI_LogOptions(t *testing.T) {
	_, stderr, exitCode := runCLI(t, "--log-format", "xml", "version")
	if exitCode != cli.ExitValidationError || !strings.Contains(stderr, "unknown log format") {
		t.Errorf("bad log format: code %d, stderr %s", exitCode, stderr)
	}

	f := writeFiles(t, exampleIDs, exampleRecords)
	logPath := filepath.Join(f.dir, "recordsift.log")
	_, stderr, exitCode = runCLI(t, f.args("--log-format", "human", "--log-file", logPath)...)
	if exitCode != cli.ExitSuccess {
		t.Fatalf("expected exit code 0, got %d\nstderr: %s", exitCode, stderr)
	}
	if !strings.Contains(stderr, "✓ records written") {
		t.Errorf("console logs should be human readable: %s", stderr)
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"execution completed"`) {
		t.Errorf("log file should hold JSON entries: %s", data)
	}
}
