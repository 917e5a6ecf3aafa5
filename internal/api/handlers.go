// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/wagate/internal/domain/session/model"
	"github.com/ManuGH/wagate/internal/metrics"
	"github.com/ManuGH/wagate/internal/queue"
)

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

type sessionsResponse struct {
	Sessions []model.SessionInfo `json:"sessions"`
	ByState  map[string]int      `json:"byState"`
}

type queueResponse struct {
	Name   string       `json:"name"`
	Counts queue.Counts `json:"counts"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.deps.Sessions.Sessions()
	if sessions == nil {
		sessions = []model.SessionInfo{}
	}
	byState := make(map[string]int)
	for _, info := range sessions {
		byState[string(info.State)]++
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: sessions, ByState: byState})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !model.IsSafeSessionID(id) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_session_id"})
		return
	}
	info, ok := s.deps.Sessions.Session(id)
	if !ok {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if s.deps.Queue == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "queue_unavailable"})
		return
	}
	counts, err := s.deps.Queue.Counts(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read queue counts")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "queue_unavailable", Detail: err.Error()})
		return
	}
	metrics.SetQueueDepth(queue.StateWaiting, counts.Waiting)
	metrics.SetQueueDepth(queue.StateActive, counts.Active)
	metrics.SetQueueDepth(queue.StateDelayed, counts.Delayed)
	metrics.SetQueueDepth(queue.StateCompleted, counts.Completed)
	metrics.SetQueueDepth(queue.StateFailed, counts.Failed)
	writeJSON(w, http.StatusOK, queueResponse{Name: s.deps.Queue.Name(), Counts: counts})
}
