package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// SessionsHandler handles live recognition sessions.
type SessionsHandler struct {
	manager     *recognition.Manager
	pipeline    *recognition.Pipeline
	stopPolicy  recognition.FlushPolicy
	stopTimeout time.Duration
}

// NewSessionsHandler creates a new sessions handler. stopPolicy and stopTimeout
// apply to DELETE requests that do not pick a policy.
func NewSessionsHandler(m *recognition.Manager, p *recognition.Pipeline, stopPolicy recognition.FlushPolicy, stopTimeout time.Duration) *SessionsHandler {
	return &SessionsHandler{
		manager:     m,
		pipeline:    p,
		stopPolicy:  stopPolicy,
		stopTimeout: stopTimeout,
	}
}

type modeRequest struct {
	Mode   string `json:"mode"`
	Toggle bool   `json:"toggle"`
}

// lookup returns the session named by the {id} URL parameter or writes a 404.
func (h *SessionsHandler) lookup(w http.ResponseWriter, r *http.Request) *recognition.Session {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing session ID")
		return nil
	}
	s := h.manager.Get(id)
	if s == nil {
		respondError(w, http.StatusNotFound, "session not found")
		return nil
	}
	return s
}

// Start starts a new session. The body may pick the initial mode.
func (h *SessionsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
	}

	mode := recognition.ModeCheckIn
	if req.Mode != "" {
		var err error
		if mode, err = recognition.ParseMode(req.Mode); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	s, err := h.manager.Start(mode)
	if errors.Is(err, recognition.ErrManagerClosed) {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		log.Printf("ERROR: starting session: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to start session")
		return
	}
	log.Printf("Started session %s in %s mode", s.ID(), mode)
	respondJSON(w, http.StatusCreated, s.Status())
}

// List returns all active sessions.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions := h.manager.List()
	respondJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// Get returns the status of a session.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s := h.lookup(w, r)
	if s == nil {
		return
	}
	respondJSON(w, http.StatusOK, s.Status())
}

// Frame processes one frame of the session's feed.
func (h *SessionsHandler) Frame(w http.ResponseWriter, r *http.Request) {
	s := h.lookup(w, r)
	if s == nil {
		return
	}

	in, err := readFrame(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var res *recognition.FrameResult
	if in.image != nil {
		res, err = h.pipeline.ProcessFrame(r.Context(), s, in.image)
	} else {
		res, err = h.pipeline.ProcessEmbedding(s, in.Embedding)
	}
	if err != nil {
		respondFrameError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// SetMode sets or toggles the session mode.
func (h *SessionsHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	s := h.lookup(w, r)
	if s == nil {
		return
	}

	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	var err error
	if req.Toggle {
		_, err = s.ToggleMode()
	} else {
		var mode recognition.Mode
		if mode, err = recognition.ParseMode(req.Mode); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		err = s.SetMode(mode)
	}
	if err != nil {
		respondFrameError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.Status())
}

// Stop stops a session. ?policy=drain|discard overrides the configured policy.
func (h *SessionsHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing session ID")
		return
	}

	policy := h.stopPolicy
	if p := r.URL.Query().Get("policy"); p != "" {
		var err error
		if policy, err = recognition.ParseFlushPolicy(p); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	// Bounded by the configured timeout, not by the client connection.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.stopTimeout)
	defer cancel()

	err := h.manager.Stop(ctx, id, policy)
	switch {
	case errors.Is(err, recognition.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "session not found")
		return
	case err != nil:
		log.Printf("WARNING: session %s stopped with undelivered events: %v", sanitizeForLog(id), err)
		respondJSON(w, http.StatusOK, map[string]any{
			"stopped": true,
			"policy":  policy.String(),
			"error":   err.Error(),
		})
		return
	}

	log.Printf("Stopped session %s (%s)", sanitizeForLog(id), policy)
	respondJSON(w, http.StatusOK, map[string]any{
		"stopped": true,
		"policy":  policy.String(),
	})
}

// Events streams session events over SSE.
func (h *SessionsHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r, h.manager.Get)
}
