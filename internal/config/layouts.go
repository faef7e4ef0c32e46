package config

import (
	"fmt"
	"sort"

	"github.com/recordsift/recordsift/pkg/table"
)

// LayoutSubscriberLegacy names the 28-column subscriber export.
const LayoutSubscriberLegacy = "subscriber-legacy"

var builtinLayouts = map[string]table.Layout{
	LayoutSubscriberLegacy: table.LayoutFromNames(LayoutSubscriberLegacy,
		"login", "nome_completo", "razao_social", "endereco", "bairro", "cidade", "estado",
		"cep", "telefone1", "telefone2", "data_cadastro", "data_nascimento", "tipo_plano",
		"forma_pagamento", "cartao", "validade_cartao", "titular_cartao", "campo17", "campo18",
		"senha", "cpf_cnpj", "campo21", "campo22", "observacoes", "campo24", "campo25",
		"campo26", "col_0",
	),
}

// BuiltinLayout returns a copy of the named built-in layout.
func BuiltinLayout(name string) (table.Layout, bool) {
	l, ok := builtinLayouts[name]
	if !ok {
		return table.Layout{}, false
	}
	fields := make([]table.Field, len(l.Fields))
	copy(fields, l.Fields)
	return table.Layout{Name: l.Name, Fields: fields}, true
}

// BuiltinLayoutNames returns the built-in layout names, sorted.
func BuiltinLayoutNames() []string {
	names := make([]string, 0, len(builtinLayouts))
	for name := range builtinLayouts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveLayout turns a layout value from a job document into a validated
// layout. The value is a built-in name, a list of field names (position is the
// list index) or a list of {name, position} objects.
func ResolveLayout(raw interface{}) (*table.Layout, error) {
	var l table.Layout

	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		builtin, ok := BuiltinLayout(v)
		if !ok {
			return nil, fmt.Errorf("unknown layout %q (built-in layouts: %v)", v, BuiltinLayoutNames())
		}
		l = builtin
	case []interface{}:
		fields, err := layoutFields(v)
		if err != nil {
			return nil, err
		}
		l = table.Layout{Fields: fields}
	case []string:
		l = table.LayoutFromNames("", v...)
	default:
		return nil, fmt.Errorf("layout must be a name or a list, got %T", raw)
	}

	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

func layoutFields(items []interface{}) ([]table.Field, error) {
	fields := make([]table.Field, 0, len(items))
	for i, item := range items {
		switch f := item.(type) {
		case string:
			fields = append(fields, table.Field{Name: f, Position: i})
		case map[string]interface{}:
			name, _ := f["name"].(string)
			pos, err := toPosition(f["position"])
			if err != nil {
				return nil, fmt.Errorf("layout field %d: %w", i, err)
			}
			fields = append(fields, table.Field{Name: name, Position: pos})
		default:
			return nil, fmt.Errorf("layout field %d: expected a name or an object, got %T", i, item)
		}
	}
	return fields, nil
}

// toPosition accepts JSON numbers (float64) and YAML integers.
func toPosition(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) || n < 0 {
			return 0, fmt.Errorf("position must be a non-negative integer, got %v", n)
		}
		return int(n), nil
	case nil:
		return 0, fmt.Errorf("position is missing")
	default:
		return 0, fmt.Errorf("position must be an integer, got %T", v)
	}
}
