package filter

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/dop251/goja"

	"github.com/recordsift/recordsift/internal/logger"
)

// testLogHandler captures log records for testing.
type testLogHandler struct {
	records *[]slog.Record
}

func (h *testLogHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }
func (h *testLogHandler) Handle(_ context.Context, r slog.Record) error {
	*h.records = append(*h.records, r.Clone())
	return nil
}
func (h *testLogHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *testLogHandler) WithGroup(_ string) slog.Handler      { return h }

func captureLogs(t *testing.T) *[]slog.Record {
	t.Helper()
	records := &[]slog.Record{}
	orig := logger.Logger
	logger.Logger = slog.New(&testLogHandler{records: records})
	t.Cleanup(func() { logger.Logger = orig })
	return records
}

func recordAttrs(r slog.Record) map[string]string {
	attrs := make(map[string]string)
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.String()
		return true
	})
	return attrs
}

func TestJSConsole_Levels(t *testing.T) {
	records := captureLogs(t)

	vm := goja.New()
	c, err := newJSConsole(vm, "filters[0]")
	if err != nil {
		t.Fatal(err)
	}
	c.SetRecordIndex(7)

	if _, err := vm.RunString(`
		console.log("l"); console.info("i"); console.warn("w");
		console.error("e"); console.debug("d");`); err != nil {
		t.Fatalf("console calls failed: %v", err)
	}

	want := []slog.Level{slog.LevelInfo, slog.LevelInfo, slog.LevelWarn, slog.LevelError, slog.LevelDebug}
	if len(*records) != len(want) {
		t.Fatalf("got %d records, want %d", len(*records), len(want))
	}
	for i, r := range *records {
		if r.Level != want[i] {
			t.Errorf("record %d level = %v, want %v", i, r.Level, want[i])
		}
		attrs := recordAttrs(r)
		if attrs["source"] != "javascript" || attrs["module_id"] != "filters[0]" || attrs["record_index"] != "7" {
			t.Errorf("record %d attrs = %v", i, attrs)
		}
	}

	c.ClearRecordIndex()
	if _, err := vm.RunString(`console.log("after")`); err != nil {
		t.Fatal(err)
	}
	last := (*records)[len(*records)-1]
	if _, ok := recordAttrs(last)["record_index"]; ok {
		t.Error("record_index should be cleared")
	}
}

func TestJSConsole_Formatting(t *testing.T) {
	records := captureLogs(t)

	vm := goja.New()
	if _, err := newJSConsole(vm, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := vm.RunString(`console.log("login", {a: 1}, [1, "x"], null, undefined, true, 2.5)`); err != nil {
		t.Fatal(err)
	}
	got := (*records)[0].Message
	want := `login {"a":1} [1,"x"] null undefined true 2.5`
	if got != want {
		t.Errorf("message = %q, want %q", got, want)
	}

	if _, err := vm.RunString(`console.log("x".repeat(10000))`); err != nil {
		t.Fatal(err)
	}
	msg := (*records)[1].Message
	if len(msg) != MaxLogMessageLength || !strings.HasSuffix(msg, "...") {
		t.Errorf("long message should be truncated to %d bytes, got %d", MaxLogMessageLength, len(msg))
	}
}

func TestScriptConsoleRoutesToLogger(t *testing.T) {
	records := captureLogs(t)

	m, err := NewScriptFromConfig(ScriptConfig{
		Script: `function keep(r) { console.warn("checking", r.login); return true; }`,
		Index:  2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Process(context.Background(), planTable()); err != nil {
		t.Fatal(err)
	}

	var warnings []string
	for _, r := range *records {
		if r.Level == slog.LevelWarn {
			warnings = append(warnings, r.Message)
			if recordAttrs(r)["module_id"] != "filters[2]" {
				t.Errorf("module_id attr = %v", recordAttrs(r))
			}
		}
	}
	if len(warnings) != 4 || warnings[1] != "checking bob" {
		t.Errorf("warnings = %v", warnings)
	}
}
