package filter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dop251/goja"

	"github.com/recordsift/recordsift/internal/logger"
)

// MaxLogMessageLength is the maximum length of a single console message (8KB)
const MaxLogMessageLength = 8 * 1024

// jsConsole routes console.log/info/warn/error/debug from a script to the
// structured logger.
type jsConsole struct {
	moduleID  string
	recordIdx int
}

// newJSConsole creates a console and installs it as the runtime's global
// console object.
func newJSConsole(rt *goja.Runtime, moduleID string) (*jsConsole, error) {
	c := &jsConsole{moduleID: moduleID, recordIdx: -1}

	console := rt.NewObject()
	for name, level := range map[string]slog.Level{
		"log":   slog.LevelInfo,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"debug": slog.LevelDebug,
	} {
		lvl := level
		fn := func(call goja.FunctionCall) goja.Value {
			c.write(lvl, call.Arguments)
			return goja.Undefined()
		}
		if err := console.Set(name, fn); err != nil {
			return nil, fmt.Errorf("console.Set(%q): %w", name, err)
		}
	}
	if err := rt.Set("console", console); err != nil {
		return nil, fmt.Errorf("runtime.Set(console): %w", err)
	}
	return c, nil
}

// SetRecordIndex sets the row reported with subsequent messages.
func (c *jsConsole) SetRecordIndex(idx int) {
	c.recordIdx = idx
}

// ClearRecordIndex stops reporting a row.
func (c *jsConsole) ClearRecordIndex() {
	c.recordIdx = -1
}

func (c *jsConsole) write(level slog.Level, args []goja.Value) {
	message := formatConsoleArgs(args)
	if len(message) > MaxLogMessageLength {
		message = message[:MaxLogMessageLength-3] + "..."
	}

	attrs := []any{
		slog.String("source", "javascript"),
		slog.String("module_type", "script"),
	}
	if c.moduleID != "" {
		attrs = append(attrs, slog.String("module_id", c.moduleID))
	}
	if c.recordIdx >= 0 {
		attrs = append(attrs, slog.Int("record_index", c.recordIdx))
	}

	switch {
	case level >= slog.LevelError:
		logger.Error(message, attrs...)
	case level >= slog.LevelWarn:
		logger.Warn(message, attrs...)
	case level >= slog.LevelInfo:
		logger.Info(message, attrs...)
	default:
		logger.Debug(message, attrs...)
	}
}

// formatConsoleArgs joins arguments with spaces the way Node's console does:
// strings verbatim, everything else as JSON when possible.
func formatConsoleArgs(args []goja.Value) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, formatConsoleValue(arg))
	}
	return strings.Join(parts, " ")
}

func formatConsoleValue(val goja.Value) string {
	switch {
	case val == nil || goja.IsUndefined(val):
		return "undefined"
	case goja.IsNull(val):
		return "null"
	}

	switch v := val.Export().(type) {
	case string:
		return v
	case bool, int64, float64:
		return fmt.Sprintf("%v", v)
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(v)
		if err != nil {
			return val.String()
		}
		return string(data)
	default:
		return val.String()
	}
}
