package pool

import (
	"context"

	"github.com/mattjoyce/interpd/internal/history"
)

//go:generate mockgen -destination=mocks/mock_recorder.go -package=mocks github.com/mattjoyce/interpd/internal/pool Recorder

// Recorder defines the interface for persisting completed task outcomes. The
// pool treats it as best-effort: a recording failure is logged, never
// surfaced to the caller.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}
