package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// readinessTimeout bounds the database probe on /readyz.
const readinessTimeout = 5 * time.Second

type healthResponse struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	Sessions int    `json:"sessions"`
}

type probeResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealth is the human-facing summary: process status, uptime, and the
// number of live call sessions.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Uptime:   time.Since(s.startedAt).Round(time.Second).String(),
		Sessions: s.cfg.Registry.Count(),
	})
}

// handleHealthz is the liveness probe; serving HTTP is being alive.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, probeResponse{Status: "ok"})
}

// handleReadyz reports ready only when the database probe passes. A gateway
// that cannot persist calls should not receive new ones.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	res := probeResponse{Status: "ok", Checks: map[string]string{}}
	status := http.StatusOK

	if s.cfg.Readiness != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		err := s.cfg.Readiness(ctx)
		cancel()
		if err != nil {
			res.Status = "fail"
			res.Checks["database"] = "fail: " + err.Error()
			status = http.StatusServiceUnavailable
		} else {
			res.Checks["database"] = "ok"
		}
	}

	writeJSON(w, status, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
