package registry

import (
	"fmt"

	"github.com/recordsift/recordsift/internal/modules/filter"
	"github.com/recordsift/recordsift/internal/modules/input"
	"github.com/recordsift/recordsift/internal/modules/output"
	"github.com/recordsift/recordsift/pkg/job"
	"github.com/recordsift/recordsift/pkg/table"
)

func init() {
	registerBuiltins()
}

func registerBuiltins() {
	registerBuiltinInputModules()
	registerBuiltinFilterModules()
	registerBuiltinOutputModules()
}

// registerBuiltinInputModules registers all built-in record input types.
func registerBuiltinInputModules() {
	RegisterInput("csv", func(cfg *job.ModuleConfig, layout *table.Layout) (input.Module, error) {
		return input.NewCSVInputFromConfig(cfg, layout)
	})
}

// registerBuiltinFilterModules registers all built-in filter types.
func registerBuiltinFilterModules() {
	// condition - boolean expression over the record's fields (expr-lang)
	RegisterFilter("condition", func(cfg job.ModuleConfig, index int) (filter.Module, error) {
		condConfig, err := filter.ParseConditionConfig(cfg.Config)
		if err != nil {
			return nil, fmt.Errorf("invalid condition config at index %d: %w", index, err)
		}
		module, err := filter.NewConditionFromConfig(condConfig)
		if err != nil {
			return nil, fmt.Errorf("invalid condition config at index %d: %w", index, err)
		}
		return module, nil
	})

	// script - JavaScript keep(record) predicate run in goja
	RegisterFilter("script", func(cfg job.ModuleConfig, index int) (filter.Module, error) {
		scriptConfig, err := filter.ParseScriptConfig(cfg.Config)
		if err != nil {
			return nil, fmt.Errorf("invalid script config at index %d: %w", index, err)
		}
		scriptConfig.Index = index
		module, err := filter.NewScriptFromConfig(scriptConfig)
		if err != nil {
			return nil, fmt.Errorf("invalid script config at index %d: %w", index, err)
		}
		return module, nil
	})
}

// registerBuiltinOutputModules registers all built-in output types.
func registerBuiltinOutputModules() {
	RegisterOutput("csv", func(cfg *job.ModuleConfig) (output.Module, error) {
		return output.NewCSVOutputFromConfig(cfg)
	})

	RegisterOutput("sqlite", func(cfg *job.ModuleConfig) (output.Module, error) {
		return output.NewSQLiteOutputFromConfig(cfg)
	})
}
