// Package config parses, validates and converts recordsift job files
// (JSON or YAML).
package config

import (
	"github.com/recordsift/recordsift/pkg/job"
)

// DefaultJob returns the job the legacy export runs: the fixed file names,
// the "login" join key and a plain CSV in, CSV out.
func DefaultJob() *job.Job {
	return &job.Job{
		ID:      "recordsift",
		Name:    "recordsift",
		JoinKey: job.DefaultJoinKey,
		Identifiers: job.IdentifierSource{
			Path:      job.DefaultIdentifiersPath,
			Delimiter: job.DefaultIDDelimiter,
		},
		Records: &job.ModuleConfig{
			Type:   "csv",
			Config: map[string]interface{}{"path": job.DefaultRecordsPath},
		},
		Output: &job.ModuleConfig{
			Type:   "csv",
			Config: map[string]interface{}{"path": job.DefaultOutputPath},
		},
	}
}

// LoadJob parses, validates and converts a job file. The returned Result is
// always non-nil so callers can report every parse or validation error; the
// error is the joined result errors or the conversion failure.
func LoadJob(path string) (*job.Job, *Result, error) {
	result := ParseConfig(path)
	if !result.IsValid() {
		return nil, result, result.Err()
	}

	j, err := ConvertToJob(result.Data)
	if err != nil {
		result.ValidationErrors = append(result.ValidationErrors, ValidationError{
			Path: "/job", Type: "conversion", Message: err.Error(),
		})
		return nil, result, result.Err()
	}
	return j, result, nil
}
