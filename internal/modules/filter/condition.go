package filter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/recordsift/recordsift/internal/logger"
	"github.com/recordsift/recordsift/pkg/table"
)

// Error codes for condition module
const (
	ErrCodeInvalidExpression = "INVALID_EXPRESSION"
	ErrCodeEvaluationFailed  = "EVALUATION_FAILED"
	ErrCodeUnsupportedLang   = "UNSUPPORTED_LANG"
)

// Common errors for condition module
var (
	// ErrEmptyExpression is returned when no expression is configured
	ErrEmptyExpression = errors.New("expression cannot be empty")
	// ErrInvalidExpression is returned when the expression syntax is invalid
	ErrInvalidExpression = errors.New("invalid expression syntax")
	// ErrUnsupportedLang is returned when the language is not supported
	ErrUnsupportedLang = errors.New("unsupported expression language")
)

// LangExpr is the only supported expression language.
const LangExpr = "expr"

// Routing behavior constants
const (
	OnConditionKeep = "keep"
	OnConditionDrop = "drop"
)

// ConditionConfig represents the configuration for a condition filter module.
type ConditionConfig struct {
	// Expression is the condition expression string (required)
	Expression string `json:"expression"`
	// Lang is the expression language: "expr" (default)
	Lang string `json:"lang,omitempty"`
	// OnTrue is what happens to a row when the condition holds: "keep" (default) or "drop"
	OnTrue string `json:"onTrue,omitempty"`
	// OnFalse is what happens otherwise: "drop" (default) or "keep"
	OnFalse string `json:"onFalse,omitempty"`
	// OnError specifies error handling mode: "fail" (default), "skip", "log"
	OnError string `json:"onError,omitempty"`
}

// ConditionModule keeps rows for which a boolean expression holds.
// Every field of the row is a string variable in the expression; fields the
// row lacks are undefined (nil).
type ConditionModule struct {
	expression string
	keepTrue   bool
	keepFalse  bool
	onError    string
	program    *vm.Program
}

// ConditionError carries structured context for condition evaluation failures.
type ConditionError struct {
	Code        string
	Message     string
	Expression  string
	RecordIndex int
}

func (e *ConditionError) Error() string {
	return e.Message
}

// ParseConditionConfig parses a condition filter configuration from raw config.
func ParseConditionConfig(cfg map[string]interface{}) (ConditionConfig, error) {
	condConfig := ConditionConfig{}

	expression, ok := cfg["expression"].(string)
	if !ok || strings.TrimSpace(expression) == "" {
		return condConfig, fmt.Errorf("required field 'expression' is missing or empty in condition config")
	}
	condConfig.Expression = expression

	if lang, ok := cfg["lang"].(string); ok {
		condConfig.Lang = lang
	}
	if onTrue, ok := cfg["onTrue"].(string); ok {
		condConfig.OnTrue = onTrue
	}
	if onFalse, ok := cfg["onFalse"].(string); ok {
		condConfig.OnFalse = onFalse
	}
	if onError, ok := cfg["onError"].(string); ok {
		condConfig.OnError = onError
	}
	return condConfig, nil
}

// NewConditionFromConfig compiles the expression and returns the module.
func NewConditionFromConfig(config ConditionConfig) (*ConditionModule, error) {
	if strings.TrimSpace(config.Expression) == "" {
		return nil, ErrEmptyExpression
	}

	switch config.Lang {
	case "", LangExpr, "simple":
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLang, config.Lang)
	}

	keepTrue, err := routing("onTrue", config.OnTrue, OnConditionKeep)
	if err != nil {
		return nil, err
	}
	keepFalse, err := routing("onFalse", config.OnFalse, OnConditionDrop)
	if err != nil {
		return nil, err
	}
	onError := normalizeOnError("condition", config.OnError)

	// AllowUndefinedVariables lets rows miss a field without failing compilation.
	program, err := expr.Compile(config.Expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}

	logger.Debug("condition module initialized",
		slog.String("expression", config.Expression),
		slog.Bool("keep_true", keepTrue),
		slog.Bool("keep_false", keepFalse),
		slog.String("on_error", onError),
	)

	return &ConditionModule{
		expression: config.Expression,
		keepTrue:   keepTrue,
		keepFalse:  keepFalse,
		onError:    onError,
		program:    program,
	}, nil
}

func routing(name, value, def string) (bool, error) {
	if value == "" {
		value = def
	}
	switch value {
	case OnConditionKeep, "continue":
		return true, nil
	case OnConditionDrop, "skip":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s value %q (want keep or drop)", name, value)
	}
}

// Process evaluates the expression against every row.
func (c *ConditionModule) Process(ctx context.Context, tbl *table.Table) (*table.Table, error) {
	return selectRows(ctx, "condition", c.onError, tbl, c.keep)
}

func (c *ConditionModule) keep(_ context.Context, rec map[string]string, recordIdx int) (bool, error) {
	env := make(map[string]interface{}, len(rec))
	for k, v := range rec {
		env[k] = v
	}

	output, err := expr.Run(c.program, env)
	if err != nil {
		return false, &ConditionError{
			Code:        ErrCodeEvaluationFailed,
			Message:     fmt.Sprintf("condition evaluation failed at record %d: %v", recordIdx, err),
			Expression:  c.expression,
			RecordIndex: recordIdx,
		}
	}

	if toBool(output) {
		return c.keepTrue, nil
	}
	return c.keepFalse, nil
}

// toBool converts a value to boolean.
func toBool(value interface{}) bool {
	if value == nil {
		return false
	}
	switch v := value.(type) {
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		return v != ""
	default:
		return true
	}
}

// Verify ConditionModule implements Module
var _ Module = (*ConditionModule)(nil)
