package protocol

import "encoding/json"

// Envelope is the request line written to a worker's stdin: one JSON object
// per line carrying the request id and the opaque interpretation payload.
type Envelope struct {
	Rid            string          `json:"rid"`
	Interpretation json.RawMessage `json:"interpretation"`
}

// Result is a JSON line read back from a worker's stdout. Status and Error
// are the only fields the core interprets; TimeMs is an optional hint with
// the worker-measured execution time. Fields holds the full decoded object
// so unknown keys pass through to the caller verbatim.
type Result struct {
	Status string
	Error  string
	TimeMs *float64
	Fields map[string]any
}

// Ok reports whether the worker declared the request successful.
func (r *Result) Ok() bool {
	return r.Status == "success"
}
