package api

import (
	"encoding/json"
	"net/http"

	"github.com/stiffinWanjohi/streampool/internal/roster"
	"github.com/stiffinWanjohi/streampool/internal/stream"
)

// ConsumersResponse lists the identities of the running pool.
type ConsumersResponse struct {
	Key       string   `json:"key"`
	Count     int      `json:"count"`
	Consumers []string `json:"consumers"`
}

// StreamStatus describes one stream.
type StreamStatus struct {
	Name    string `json:"name"`
	Length  int64  `json:"length"`
	Group   string `json:"group,omitempty"`
	Pending *int64 `json:"pending,omitempty"`
}

// StreamsResponse describes the source and target streams.
type StreamsResponse struct {
	Source StreamStatus `json:"source"`
	Target StreamStatus `json:"target"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.client.Ping(r.Context()); err != nil {
		apiLog.Warn("health check failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"redis":  err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) consumersHandler(w http.ResponseWriter, r *http.Request) {
	ids, err := roster.Stored(r.Context(), s.client.Redis(), s.cfg.ConsumerIDsKey)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read consumers", "INTERNAL_ERROR")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	respondJSON(w, http.StatusOK, ConsumersResponse{
		Key:       s.cfg.ConsumerIDsKey,
		Count:     len(ids),
		Consumers: ids,
	})
}

func (s *Server) throughputHandler(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Throughput == nil {
		respondError(w, http.StatusServiceUnavailable, "Monitor not running", "MONITOR_DISABLED")
		return
	}
	report, ok := s.cfg.Throughput.Latest()
	if !ok {
		respondError(w, http.StatusNotFound, "No throughput report yet", "NOT_FOUND")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) streamsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	source, err := s.client.Len(ctx, s.cfg.Source)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read source stream", "INTERNAL_ERROR")
		return
	}
	target, err := s.client.Len(ctx, s.cfg.Target)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read target stream", "INTERNAL_ERROR")
		return
	}

	var pending int64
	summary, err := s.client.Pending(ctx, s.cfg.Source, s.cfg.Group)
	switch {
	case err == nil:
		pending = summary.Count
	case stream.IsNoGroup(err):
		// group not created yet
	default:
		respondError(w, http.StatusInternalServerError, "Failed to read pending entries", "INTERNAL_ERROR")
		return
	}

	respondJSON(w, http.StatusOK, StreamsResponse{
		Source: StreamStatus{Name: s.cfg.Source, Length: source, Group: s.cfg.Group, Pending: &pending},
		Target: StreamStatus{Name: s.cfg.Target, Length: target},
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message, code string) {
	respondJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}
