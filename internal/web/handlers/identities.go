package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/labels"
	"github.com/kozaktomas/face-attendance/internal/metrics"
)

// IdentitiesHandler handles listing and removing enrolled identities.
type IdentitiesHandler struct {
	store   IdentityStore
	metrics *metrics.Metrics
}

// NewIdentitiesHandler creates a new identities handler.
func NewIdentitiesHandler(store IdentityStore, met *metrics.Metrics) *IdentitiesHandler {
	return &IdentitiesHandler{store: store, metrics: met}
}

// List returns enrolled identities, optionally filtered by ?q=.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	ids := labels.Filter(h.store.Identities(), r.URL.Query().Get("q"))
	respondJSON(w, http.StatusOK, map[string]any{
		"identities": ids,
		"count":      len(ids),
		"records":    h.store.Count(),
	})
}

// Delete removes every record of an identity.
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing identity ID")
		return
	}

	n, err := h.store.DeleteIdentity(r.Context(), id)
	switch {
	case errors.Is(err, database.ErrNotSupported):
		respondError(w, http.StatusNotImplemented, err.Error())
		return
	case err != nil:
		log.Printf("ERROR: deleting identity %s: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to delete identity")
		return
	case n == 0:
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}

	h.metrics.SetStoreRecords(h.store.Count())
	respondJSON(w, http.StatusOK, map[string]any{
		"identity_id": id,
		"deleted":     n,
	})
}
