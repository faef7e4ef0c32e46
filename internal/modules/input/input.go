// Package input provides implementations for input modules.
// Input modules are responsible for loading the record table and the active
// identifier list from their files.
package input

import (
	"context"

	"github.com/recordsift/recordsift/pkg/table"
)

// Module represents an input module that loads a record table.
type Module interface {
	// Fetch reads the whole source into memory.
	// The context can be used to cancel long-running reads.
	Fetch(ctx context.Context) (*table.Table, error)
	// Close releases any resources held by the module.
	Close() error
}

// Describer is implemented by modules that can name their source, used in
// logs and dry-run previews.
type Describer interface {
	Source() string
}
