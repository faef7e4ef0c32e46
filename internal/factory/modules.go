// Package factory creates the record input, filter and output modules of a
// job from their configuration, looking constructors up in the registry.
//
// To add a new module type, register its constructor (see internal/registry);
// this package does not need to change.
package factory

import (
	"fmt"

	"github.com/recordsift/recordsift/internal/errhandling"
	"github.com/recordsift/recordsift/internal/modules/filter"
	"github.com/recordsift/recordsift/internal/modules/input"
	"github.com/recordsift/recordsift/internal/modules/output"
	"github.com/recordsift/recordsift/internal/registry"
	"github.com/recordsift/recordsift/pkg/job"
	"github.com/recordsift/recordsift/pkg/table"
)

// Modules bundles the modules built for one job.
type Modules struct {
	Records input.Module
	Filters []filter.Module
	Output  output.Module
}

// Close closes the input and output modules.
func (m *Modules) Close() error {
	var firstErr error
	if m.Records != nil {
		firstErr = m.Records.Close()
	}
	if m.Output != nil {
		if err := m.Output.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CreateModules builds every module a job needs. Any failure is returned as a
// config error naming the offending section.
func CreateModules(j *job.Job) (*Modules, error) {
	if j == nil {
		return nil, errhandling.NewConfigError("job is nil", nil)
	}

	records, err := CreateInputModule(j.Records, j.Layout)
	if err != nil {
		return nil, err
	}

	filters, err := CreateFilterModules(j.Filters)
	if err != nil {
		_ = records.Close()
		return nil, err
	}

	out, err := CreateOutputModule(j.Output)
	if err != nil {
		_ = records.Close()
		return nil, err
	}

	return &Modules{Records: records, Filters: filters, Output: out}, nil
}

// CreateInputModule creates the record input module. A nil configuration
// means the default csv input.
func CreateInputModule(cfg *job.ModuleConfig, layout *table.Layout) (input.Module, error) {
	if cfg == nil {
		cfg = &job.ModuleConfig{Type: "csv"}
	}
	moduleType := typeOrDefault(cfg.Type)

	constructor := registry.GetInputConstructor(moduleType)
	if constructor == nil {
		return nil, unknownType("records", moduleType, registry.ListInputTypes())
	}

	module, err := constructor(cfg, layout)
	if err != nil {
		return nil, configError(fmt.Sprintf("invalid records config (%s)", moduleType), err)
	}
	return module, nil
}

// CreateFilterModules creates the extra filter modules in job order.
func CreateFilterModules(cfgs []job.ModuleConfig) ([]filter.Module, error) {
	if len(cfgs) == 0 {
		return nil, nil
	}

	modules := make([]filter.Module, 0, len(cfgs))
	for i, cfg := range cfgs {
		constructor := registry.GetFilterConstructor(cfg.Type)
		if constructor == nil {
			return nil, unknownType(fmt.Sprintf("filters[%d]", i), cfg.Type, registry.ListFilterTypes())
		}
		module, err := constructor(cfg, i)
		if err != nil {
			return nil, configError(fmt.Sprintf("invalid filter at index %d (%s)", i, cfg.Type), err)
		}
		modules = append(modules, module)
	}
	return modules, nil
}

// CreateOutputModule creates the output module. A nil configuration means the
// default csv output.
func CreateOutputModule(cfg *job.ModuleConfig) (output.Module, error) {
	if cfg == nil {
		cfg = &job.ModuleConfig{Type: "csv"}
	}
	moduleType := typeOrDefault(cfg.Type)

	constructor := registry.GetOutputConstructor(moduleType)
	if constructor == nil {
		return nil, unknownType("output", moduleType, registry.ListOutputTypes())
	}

	module, err := constructor(cfg)
	if err != nil {
		return nil, configError(fmt.Sprintf("invalid output config (%s)", moduleType), err)
	}
	return module, nil
}

func typeOrDefault(moduleType string) string {
	if moduleType == "" {
		return "csv"
	}
	return moduleType
}

func unknownType(section, moduleType string, known []string) error {
	return errhandling.NewConfigError(
		fmt.Sprintf("%s: unknown module type %q (registered: %v)", section, moduleType, known), nil)
}

// configError keeps already classified errors and wraps the rest as config
// errors.
func configError(message string, err error) error {
	if errhandling.GetErrorCategory(err) != errhandling.CategoryUnknown {
		return fmt.Errorf("%s: %w", message, err)
	}
	return errhandling.NewConfigError(fmt.Sprintf("%s: %v", message, err), err)
}
