package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	stats := s.pool.Stats()
	s.writeJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		QueueDepth:    stats.QueueDepth,
		Workers:       len(stats.Workers),
	})
}

// handleStatus handles GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Pool: s.pool.Stats()}

	if s.store != nil {
		summary, err := s.store.Summarize(r.Context())
		if err != nil {
			s.logger.Error("failed to summarize task history", "error", err)
		} else {
			resp.History = summary
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleInterpret handles POST /interpret: submit one task and wait for its
// outcome. The wait is bounded by the request context, so a disconnecting
// client abandons the reply while the task itself runs to completion.
func (s *Server) handleInterpret(w http.ResponseWriter, r *http.Request) {
	var req InterpretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Interpretation) == 0 {
		s.writeError(w, http.StatusBadRequest, "interpretation payload is required")
		return
	}

	task := s.pool.Submit(req.Interpretation)

	select {
	case o := <-task.Outcome():
		s.writeJSON(w, http.StatusOK, InterpretResponse{
			Rid:             task.Rid,
			Success:         o.Success,
			Result:          o.Result,
			Error:           o.Err,
			ExecutionTimeMs: o.ExecutionTimeMs,
		})
	case <-r.Context().Done():
		s.writeError(w, http.StatusGatewayTimeout, "request cancelled before the task completed")
	}
}
