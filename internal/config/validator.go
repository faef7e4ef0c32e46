package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema/job-schema.json
var embeddedSchema []byte

const schemaURL = "https://recordsift.dev/schemas/job/v1/job-schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaInitErr  error
)

// GetEmbeddedSchema returns the embedded job schema.
func GetEmbeddedSchema() []byte {
	return embeddedSchema
}

// getCompiledSchema compiles the embedded schema once.
func getCompiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(embeddedSchema))
		if err != nil {
			schemaInitErr = fmt.Errorf("failed to parse embedded schema: %w", err)
			return
		}

		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, doc); err != nil {
			schemaInitErr = fmt.Errorf("failed to add schema resource: %w", err)
			return
		}

		compiledSchema, err = compiler.Compile(schemaURL)
		if err != nil {
			schemaInitErr = fmt.Errorf("failed to compile schema: %w", err)
		}
	})
	return compiledSchema, schemaInitErr
}

// ValidateConfig validates a parsed job document against the job schema,
// then checks what the schema cannot express (the layout must resolve to a
// valid field ⇄ position mapping).
func ValidateConfig(data map[string]interface{}) *ValidationResult {
	result := &ValidationResult{Valid: true}

	fail := func(errs ...ValidationError) *ValidationResult {
		result.Valid = false
		result.Errors = append(result.Errors, errs...)
		return result
	}

	if len(data) == 0 {
		return fail(ValidationError{Path: "/", Type: "required", Message: "job document is empty"})
	}

	schema, err := getCompiledSchema()
	if err != nil {
		return fail(ValidationError{Path: "/", Type: "schema", Message: fmt.Sprintf("failed to load schema: %v", err)})
	}

	if err := schema.Validate(normalizeNumbers(data)); err != nil {
		if detailed, ok := err.(*jsonschema.ValidationError); ok {
			return fail(convertValidationErrors(detailed)...)
		}
		return fail(ValidationError{Path: "/", Type: "validation", Message: err.Error()})
	}

	if errs := validateSemantics(data); len(errs) > 0 {
		return fail(errs...)
	}
	return result
}

// validateSemantics resolves the records layout so unknown built-in names and
// malformed inline layouts are reported at validation time.
func validateSemantics(data map[string]interface{}) []ValidationError {
	jobData, _ := data["job"].(map[string]interface{})
	records, _ := jobData["records"].(map[string]interface{})
	raw, ok := records["layout"]
	if !ok {
		return nil
	}
	if _, err := ResolveLayout(raw); err != nil {
		return []ValidationError{{Path: "/job/records/layout", Type: "layout", Message: err.Error()}}
	}
	return nil
}

// normalizeNumbers converts YAML integers to float64 so both formats reach
// the validator in the shape encoding/json produces.
func normalizeNumbers(v interface{}) interface{} {
	switch x := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, val := range x {
			out[k] = normalizeNumbers(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, val := range x {
			out[i] = normalizeNumbers(val)
		}
		return out
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	default:
		return v
	}
}

// convertValidationErrors flattens the leaves of a jsonschema error tree.
func convertValidationErrors(err *jsonschema.ValidationError) []ValidationError {
	if len(err.Causes) == 0 {
		return []ValidationError{{
			Path:    formatInstanceLocation(err.InstanceLocation),
			Type:    extractErrorType(err),
			Message: leafMessage(err),
		}}
	}
	var out []ValidationError
	for _, cause := range err.Causes {
		out = append(out, convertValidationErrors(cause)...)
	}
	return out
}

// leafMessage returns the last line of the error, which carries the reason
// without the schema URL prefix.
func leafMessage(err *jsonschema.ValidationError) string {
	msg := strings.TrimSpace(err.Error())
	if i := strings.LastIndex(msg, "\n"); i >= 0 {
		msg = strings.TrimSpace(msg[i+1:])
	}
	return strings.TrimPrefix(msg, "- ")
}

// formatInstanceLocation formats the instance location as a JSON pointer.
func formatInstanceLocation(loc []string) string {
	if len(loc) == 0 {
		return "/"
	}
	return "/" + strings.Join(loc, "/")
}

// extractErrorType maps the failing keyword to a simplified error type.
func extractErrorType(err *jsonschema.ValidationError) string {
	keyword := ""
	if err.ErrorKind != nil {
		if path := err.ErrorKind.KeywordPath(); len(path) > 0 {
			keyword = path[len(path)-1]
		}
	}

	switch keyword {
	case "required", "dependentRequired":
		return "required"
	case "additionalProperties", "unevaluatedProperties":
		return "additionalProperties"
	case "type":
		return "type"
	case "pattern":
		return "pattern"
	case "enum", "const":
		return "enum"
	case "minimum", "maximum", "minLength", "maxLength", "minItems", "maxItems":
		return "range"
	case "":
		return "validation"
	default:
		return keyword
	}
}
