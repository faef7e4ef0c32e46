package filter

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/recordsift/recordsift/internal/errhandling"
	"github.com/recordsift/recordsift/pkg/table"
)

func planTable() *table.Table {
	tbl := table.New([]string{"login", "estado", "tipo_plano"})
	tbl.Rows = []table.Row{
		{"alice", "PE", "FIBRA"},
		{"bob", "PB", "RADIO"},
		{"carol", "PE", "RADIO"},
		{"dave"},
	}
	return tbl
}

func TestConditionExpressions(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		want       []string
	}{
		{
			name:       "string equality",
			expression: `estado == "PE"`,
			want:       []string{"alice", "carol"},
		},
		{
			name:       "conjunction",
			expression: `estado == "PE" && tipo_plano == "RADIO"`,
			want:       []string{"carol"},
		},
		{
			name:       "membership",
			expression: `estado in ["PB", "RN"]`,
			want:       []string{"bob"},
		},
		{
			name:       "string function",
			expression: `login startsWith "a" || login endsWith "b"`,
			want:       []string{"alice", "bob"},
		},
		{
			name:       "short row reads empty strings",
			expression: `estado == ""`,
			want:       []string{"dave"},
		},
		{
			name:       "truthy non-boolean result",
			expression: `tipo_plano`,
			want:       []string{"alice", "bob", "carol"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewConditionFromConfig(ConditionConfig{Expression: tt.expression})
			if err != nil {
				t.Fatalf("NewConditionFromConfig() error = %v", err)
			}
			got, err := m.Process(context.Background(), planTable())
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, logins(got)); diff != "" {
				t.Errorf("Process() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConditionRouting(t *testing.T) {
	m, err := NewConditionFromConfig(ConditionConfig{
		Expression: `estado == "PE"`,
		OnTrue:     OnConditionDrop,
		OnFalse:    OnConditionKeep,
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := m.Process(context.Background(), planTable())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"bob", "dave"}, logins(got)); diff != "" {
		t.Errorf("inverted routing mismatch (-want +got):\n%s", diff)
	}
}

func TestConditionConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		config ConditionConfig
		target error
	}{
		{"empty expression", ConditionConfig{Expression: "  "}, ErrEmptyExpression},
		{"syntax error", ConditionConfig{Expression: "estado == "}, ErrInvalidExpression},
		{"unknown language", ConditionConfig{Expression: "true", Lang: "cel"}, ErrUnsupportedLang},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConditionFromConfig(tt.config)
			if !errors.Is(err, tt.target) {
				t.Errorf("error = %v, want %v", err, tt.target)
			}
		})
	}

	if _, err := NewConditionFromConfig(ConditionConfig{Expression: "true", OnTrue: "maybe"}); err == nil {
		t.Error("invalid onTrue should be rejected")
	}
}

func TestConditionOnError(t *testing.T) {
	// Comparing a string with a number fails at run time.
	const expression = `login > 3`

	tests := []struct {
		onError string
		wantErr bool
	}{
		{OnErrorFail, true},
		{OnErrorSkip, false},
		{OnErrorLog, false},
		{"bogus", true},
	}
	for _, tt := range tests {
		t.Run(tt.onError, func(t *testing.T) {
			m, err := NewConditionFromConfig(ConditionConfig{Expression: expression, OnError: tt.onError})
			if err != nil {
				t.Fatalf("NewConditionFromConfig() error = %v", err)
			}
			got, err := m.Process(context.Background(), planTable())
			if tt.wantErr {
				var condErr *ConditionError
				if !errors.As(err, &condErr) {
					t.Fatalf("error = %v, want *ConditionError", err)
				}
				if condErr.Code != ErrCodeEvaluationFailed || condErr.RecordIndex != 0 {
					t.Errorf("ConditionError = %+v", condErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if got.Len() != 0 {
				t.Errorf("failing rows should be dropped, got %d", got.Len())
			}
		})
	}
}

func TestParseConditionConfig(t *testing.T) {
	cfg, err := ParseConditionConfig(map[string]interface{}{
		"expression": `estado == "PE"`,
		"onError":    "skip",
		"onFalse":    "keep",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := ConditionConfig{Expression: `estado == "PE"`, OnError: "skip", OnFalse: "keep"}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("ParseConditionConfig() mismatch (-want +got):\n%s", diff)
	}

	if _, err := ParseConditionConfig(map[string]interface{}{}); err == nil {
		t.Error("missing expression should be rejected")
	}
}

func TestConditionNilTable(t *testing.T) {
	cond, err := NewConditionFromConfig(ConditionConfig{Expression: `estado == "PE"`})
	if err != nil {
		t.Fatalf("NewConditionFromConfig() error = %v", err)
	}

	got, err := cond.Process(context.Background(), nil)
	if got != nil {
		t.Errorf("Process(nil) = %v, want nil table", got)
	}
	if !errors.Is(err, errhandling.ErrSchema) {
		t.Errorf("Process(nil) error = %v, want a schema error", err)
	}
}
