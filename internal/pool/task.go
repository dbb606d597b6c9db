package pool

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Outcome is the terminal result of a Task. Exactly one Outcome is delivered
// per Task, whether the worker answered, timed out, or died.
type Outcome struct {
	Success bool
	// Result holds the worker's full result object, passed through verbatim.
	Result map[string]any
	// Err is the failure description when Success is false.
	Err string
	// ExecutionTimeMs prefers the worker-reported __t hint, falling back to
	// wall-clock time since assignment.
	ExecutionTimeMs int64
}

// Task is one unit of work submitted to the pool. The payload is opaque to
// the core; it is forwarded to the worker untouched.
type Task struct {
	Rid         string
	Payload     json.RawMessage
	SubmittedAt time.Time

	// done carries the single Outcome. Buffered so resolution never blocks
	// the scheduling path on a caller that hasn't started waiting yet.
	done     chan Outcome
	resolved bool // guarded by the pool mutex
}

func newTask(payload json.RawMessage) *Task {
	return &Task{
		Rid:         uuid.NewString(),
		Payload:     payload,
		SubmittedAt: time.Now(),
		done:        make(chan Outcome, 1),
	}
}

// Outcome returns the channel the task's single Outcome is delivered on.
func (t *Task) Outcome() <-chan Outcome {
	return t.done
}

// resolveLocked delivers the outcome exactly once. Caller holds the pool
// mutex; duplicate resolutions are dropped silently.
func (t *Task) resolveLocked(o Outcome) bool {
	if t.resolved {
		return false
	}
	t.resolved = true
	t.done <- o
	return true
}
