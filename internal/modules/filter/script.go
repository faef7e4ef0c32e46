package filter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/recordsift/recordsift/internal/logger"
	"github.com/recordsift/recordsift/internal/pathutil"
	"github.com/recordsift/recordsift/pkg/table"
)

// Error codes for script module
const (
	ErrCodeScriptEmpty          = "SCRIPT_EMPTY"
	ErrCodeScriptTooLong        = "SCRIPT_TOO_LONG"
	ErrCodeCompilationFailed    = "COMPILATION_FAILED"
	ErrCodeMissingKeep          = "MISSING_KEEP"
	ErrCodeNotFunction          = "NOT_FUNCTION"
	ErrCodeExecutionFailed      = "EXECUTION_FAILED"
	ErrCodeInvalidScriptFile    = "INVALID_SCRIPT_FILE"
	ErrCodeScriptFileReadFailed = "SCRIPT_FILE_READ_FAILED"
)

// MaxScriptLength is the maximum allowed script length in bytes (100KB)
const MaxScriptLength = 100 * 1024

// keepFunctionName is the predicate every script must define.
const keepFunctionName = "keep"

// ScriptConfig represents the configuration for a script filter module.
// Either Script or ScriptFile must be provided (but not both).
type ScriptConfig struct {
	// Script is inline JavaScript defining keep(record)
	Script string `json:"script,omitempty"`
	// ScriptFile is the path to a JavaScript file defining keep(record)
	ScriptFile string `json:"scriptFile,omitempty"`
	// OnError specifies error handling mode: "fail" (default), "skip", "log"
	OnError string `json:"onError,omitempty"`
	// Index is the filter's position in the job, used in log context
	Index int `json:"-"`
}

// ScriptModule keeps rows for which a JavaScript keep(record) function returns
// a truthy value. record is a plain object of string fields.
//
// Goja runtimes are not goroutine-safe; Process must not be called
// concurrently on the same instance.
type ScriptModule struct {
	onError     string
	runtime     *goja.Runtime
	keepFn      goja.Callable
	console     *jsConsole
	interruptMu sync.Mutex
}

// ScriptError carries structured context for script failures.
type ScriptError struct {
	Code        string
	Message     string
	RecordIndex int
	StackTrace  string
	Err         error
}

func (e *ScriptError) Error() string {
	return e.Message
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

func newScriptError(code, message string, recordIdx int, err error) *ScriptError {
	return &ScriptError{Code: code, Message: message, RecordIndex: recordIdx, Err: err}
}

// ParseScriptConfig parses a script filter configuration from raw config.
func ParseScriptConfig(cfg map[string]interface{}) (ScriptConfig, error) {
	config := ScriptConfig{}

	script, hasScript := cfg["script"].(string)
	scriptFile, hasScriptFile := cfg["scriptFile"].(string)

	if hasScript && hasScriptFile {
		return config, fmt.Errorf("cannot specify both 'script' and 'scriptFile' - use only one")
	}
	if !hasScript && !hasScriptFile {
		if cfg["script"] != nil {
			return config, fmt.Errorf("field 'script' must be a string")
		}
		if cfg["scriptFile"] != nil {
			return config, fmt.Errorf("field 'scriptFile' must be a string")
		}
		return config, fmt.Errorf("either 'script' or 'scriptFile' is required in script config")
	}

	config.Script = script
	config.ScriptFile = scriptFile
	if onError, ok := cfg["onError"].(string); ok {
		config.OnError = onError
	}
	return config, nil
}

// NewScriptFromConfig loads, validates and compiles the script, then checks
// that it defines keep.
func NewScriptFromConfig(config ScriptConfig) (*ScriptModule, error) {
	source, err := resolveScriptSource(config)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(source) == "" {
		return nil, newScriptError(ErrCodeScriptEmpty, "script cannot be empty", -1, nil)
	}
	if len(source) > MaxScriptLength {
		return nil, newScriptError(ErrCodeScriptTooLong,
			fmt.Sprintf("script exceeds maximum length: %d bytes exceeds maximum %d bytes", len(source), MaxScriptLength), -1, nil)
	}

	rt := goja.New()
	console, err := newJSConsole(rt, fmt.Sprintf("filters[%d]", config.Index))
	if err != nil {
		return nil, fmt.Errorf("installing console: %w", err)
	}

	if _, err := rt.RunString(source); err != nil {
		return nil, newScriptError(ErrCodeCompilationFailed, fmt.Sprintf("script compilation failed: %v", err), -1, err)
	}

	val := rt.Get(keepFunctionName)
	if val == nil || goja.IsUndefined(val) {
		return nil, newScriptError(ErrCodeMissingKeep, "keep function not found in script", -1, nil)
	}
	keepFn, ok := goja.AssertFunction(val)
	if !ok {
		return nil, newScriptError(ErrCodeNotFunction, "keep is not a function", -1, nil)
	}

	onError := normalizeOnError("script", config.OnError)
	logger.Debug("script module initialized",
		slog.Int("script_length", len(source)),
		slog.String("on_error", onError),
		slog.Bool("from_file", config.ScriptFile != ""),
	)

	return &ScriptModule{
		onError: onError,
		runtime: rt,
		keepFn:  keepFn,
		console: console,
	}, nil
}

// resolveScriptSource returns the inline script or the content of ScriptFile.
func resolveScriptSource(config ScriptConfig) (string, error) {
	if config.Script != "" && config.ScriptFile != "" {
		return "", newScriptError(ErrCodeInvalidScriptFile, "cannot specify both 'script' and 'scriptFile' - use only one", -1, nil)
	}
	if config.Script != "" {
		return config.Script, nil
	}
	if config.ScriptFile == "" {
		return "", newScriptError(ErrCodeScriptEmpty, "either 'script' or 'scriptFile' must be provided", -1, nil)
	}

	path := config.ScriptFile
	if err := pathutil.ValidateFilePath(path); err != nil {
		return "", newScriptError(ErrCodeInvalidScriptFile, fmt.Sprintf("invalid scriptFile: %v", err), -1, err)
	}
	if filepath.IsAbs(path) {
		logger.Warn("scriptFile uses absolute path", slog.String("path", path))
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", newScriptError(ErrCodeScriptFileReadFailed, fmt.Sprintf("failed to stat script file %q: %v", path, err), -1, err)
	}
	if info.Size() > MaxScriptLength {
		return "", newScriptError(ErrCodeScriptTooLong,
			fmt.Sprintf("script file %q exceeds maximum length: %d bytes exceeds maximum %d bytes", path, info.Size(), MaxScriptLength), -1, nil)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", newScriptError(ErrCodeScriptFileReadFailed, fmt.Sprintf("failed to open script file %q: %v", path, err), -1, err)
	}
	defer func() { _ = f.Close() }()

	// The file may grow between Stat and Read.
	content, err := io.ReadAll(io.LimitReader(f, MaxScriptLength+1))
	if err != nil {
		return "", newScriptError(ErrCodeScriptFileReadFailed, fmt.Sprintf("failed to read script file %q: %v", path, err), -1, err)
	}
	if len(content) > MaxScriptLength {
		return "", newScriptError(ErrCodeScriptTooLong,
			fmt.Sprintf("script file %q exceeds maximum length: file is larger than %d bytes", path, MaxScriptLength), -1, nil)
	}
	return string(content), nil
}

// Process calls keep(record) for every row.
func (m *ScriptModule) Process(ctx context.Context, tbl *table.Table) (*table.Table, error) {
	defer m.console.ClearRecordIndex()
	return selectRows(ctx, "script", m.onError, tbl, m.keep)
}

// keep runs the predicate for one row. A watcher goroutine interrupts the
// runtime if ctx is canceled mid-call.
func (m *ScriptModule) keep(ctx context.Context, rec map[string]string, recordIdx int) (bool, error) {
	m.console.SetRecordIndex(recordIdx)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.interruptMu.Lock()
			m.runtime.Interrupt(ctx.Err().Error())
			m.interruptMu.Unlock()
		case <-done:
		}
	}()

	obj := m.runtime.NewObject()
	for k, v := range rec {
		if err := obj.Set(k, v); err != nil {
			return false, newScriptError(ErrCodeExecutionFailed,
				fmt.Sprintf("setting field %q at record %d: %v", k, recordIdx, err), recordIdx, err)
		}
	}

	result, err := m.keepFn(goja.Undefined(), obj)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, m.jsError(err, recordIdx)
	}

	m.interruptMu.Lock()
	m.runtime.ClearInterrupt()
	m.interruptMu.Unlock()

	return result.ToBoolean(), nil
}

// jsError converts a JavaScript exception into a ScriptError.
func (m *ScriptModule) jsError(err error, recordIdx int) error {
	message := fmt.Sprintf("script execution failed at record %d: %v", recordIdx, err)
	scriptErr := newScriptError(ErrCodeExecutionFailed, message, recordIdx, err)

	if jsErr, ok := err.(*goja.Exception); ok {
		scriptErr.Message = fmt.Sprintf("script execution failed at record %d: %v", recordIdx, jsErr.Value())
		if obj, ok := jsErr.Value().(*goja.Object); ok {
			if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
				scriptErr.StackTrace = stack.String()
			}
		}
	}
	return scriptErr
}

// Verify ScriptModule implements Module
var _ Module = (*ScriptModule)(nil)
