package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/codegate-ai/codegate/internal/audit"
	"github.com/codegate-ai/codegate/internal/session"
	"github.com/codegate-ai/codegate/internal/store"
	"github.com/codegate-ai/codegate/pkg/types"
)

type resolveRequest struct {
	UserID      string `json:"userID"`
	Directory   string `json:"directory"`
	ChatContext string `json:"chatContext"`
	SessionID   string `json:"sessionID,omitempty"`
}

type resolveResponse struct {
	SessionID string `json:"sessionID"`
	Directory string `json:"directory"`
	Created   bool   `json:"created"`
}

type invalidateRequest struct {
	UserID string `json:"userID"`
}

type evaluateRequest struct {
	UserID      string         `json:"userID"`
	Directory   string         `json:"directory"`
	ChatContext string         `json:"chatContext"`
	SessionID   string         `json:"sessionID"`
	Tool        string         `json:"tool"`
	Input       map[string]any `json:"input"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleResolveSession(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.Directory == "" {
		writeError(w, http.StatusBadRequest, "userID and directory are required")
		return
	}

	handle, created, err := s.engine.ResolveSession(r.Context(), req.UserID, req.Directory, req.ChatContext, req.SessionID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{
		SessionID: handle.ID,
		Directory: handle.Directory,
		Created:   created,
	})
}

func (s *Server) handleInvalidateSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userID is required")
		return
	}

	if err := s.engine.Invalidate(r.Context(), sessionID, req.UserID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (s *Server) handleEvaluateTool(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.Directory == "" {
		writeError(w, http.StatusBadRequest, "userID and directory are required")
		return
	}

	handle, _, err := s.engine.ResolveSession(r.Context(), req.UserID, req.Directory, req.ChatContext, req.SessionID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	// Resolve may have superseded the caller's session (expiry, invalidation,
	// binding mismatch). The request is attributed to the resolved handle so a
	// stale id does not read as cross-session confusion.
	decision := s.engine.Evaluate(r.Context(), types.ToolCallRequest{
		Tool:      req.Tool,
		Input:     req.Input,
		SessionID: handle.ID,
	}, handle)
	writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleQueryAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.Filter{
		SessionID: q.Get("sessionID"),
		UserID:    q.Get("userID"),
		Type:      types.AuditEventType(q.Get("type")),
	}
	if since := q.Get("since"); since != "" {
		if ms, err := strconv.ParseInt(since, 10, 64); err == nil {
			f.Since = ms
		}
	}

	events, err := s.engine.AuditTrail(r.Context(), f)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if events == nil {
		events = []types.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.GateStats())
}

func writeEngineError(w http.ResponseWriter, err error) {
	var boundaryErr *session.BoundaryError
	switch {
	case session.IsOwnershipError(err):
		writeError(w, http.StatusForbidden, "ownership_denied")
	case errors.As(err, &boundaryErr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, store.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
