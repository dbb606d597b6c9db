package history

import "time"

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Entry is one completed task outcome in the log.
type Entry struct {
	Rid         string    `json:"rid"`
	Status      Status    `json:"status"`
	Error       *string   `json:"error,omitempty"`
	ExecutionMs int64     `json:"execution_ms"`
	SubmittedAt time.Time `json:"submitted_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Summary aggregates the log for status reporting.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}
