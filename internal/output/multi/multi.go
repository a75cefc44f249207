package multi

import (
	"context"
	"errors"

	"github.com/crimson-sun/tipwatch/internal/output"
	"github.com/crimson-sun/tipwatch/internal/view"
)

// Multi fans out views to multiple output.Output implementations.
// Each Render call delivers the view to every wrapped output sequentially.
// If one output fails, the remaining outputs still receive the view.
type Multi struct {
	outputs []output.Output
}

// New creates a Multi that fans out to the given outputs.
func New(outputs ...output.Output) *Multi {
	return &Multi{outputs: outputs}
}

// Render delivers the view to every wrapped output. Errors are collected
// but do not prevent delivery to subsequent outputs.
func (m *Multi) Render(ctx context.Context, v view.View) error {
	var errs []error
	for _, o := range m.outputs {
		if err := o.Render(ctx, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close calls Close on every wrapped output, collecting errors.
func (m *Multi) Close() error {
	var errs []error
	for _, o := range m.outputs {
		if err := o.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
