package api

import (
	"encoding/json"
	"net/http"

	"github.com/mattjoyce/interpd/internal/history"
	"github.com/mattjoyce/interpd/internal/pool"
)

// HealthzResponse is the GET /healthz body.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	QueueDepth    int    `json:"queue_depth"`
	Workers       int    `json:"workers"`
}

// StatusResponse is the GET /status body.
type StatusResponse struct {
	Pool    pool.Stats       `json:"pool"`
	History *history.Summary `json:"history,omitempty"`
}

// InterpretRequest is the POST /interpret body.
type InterpretRequest struct {
	// Interpretation is the payload forwarded verbatim to the worker.
	Interpretation json.RawMessage `json:"interpretation"`
}

// InterpretResponse is the POST /interpret reply.
type InterpretResponse struct {
	Rid             string         `json:"rid"`
	Success         bool           `json:"success"`
	Result          map[string]any `json:"result,omitempty"`
	Error           string         `json:"error,omitempty"`
	ExecutionTimeMs int64          `json:"execution_time_ms"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}
