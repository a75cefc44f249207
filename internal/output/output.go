package output

import (
	"context"

	"github.com/crimson-sun/tipwatch/internal/view"
)

// Output defines the interface for view destinations. Render receives the
// complete current view each time; outputs never see deltas.
type Output interface {
	Render(ctx context.Context, v view.View) error
	Close() error
}
