package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// EnrollHandler registers face samples for an identity.
type EnrollHandler struct {
	store    IdentityStore
	embedder recognition.FaceEmbedder
	metrics  *metrics.Metrics
}

// NewEnrollHandler creates a new enroll handler. emb may be nil, in which case
// only precomputed embeddings are accepted.
func NewEnrollHandler(store IdentityStore, emb recognition.FaceEmbedder, met *metrics.Metrics) *EnrollHandler {
	return &EnrollHandler{store: store, embedder: emb, metrics: met}
}

type enrollRequest struct {
	IdentityID    string      `json:"identity_id"`
	IdentityLabel string      `json:"identity_label"`
	Embeddings    [][]float32 `json:"embeddings"`
}

type enrollResponse struct {
	IdentityID    string   `json:"identity_id"`
	IdentityLabel string   `json:"identity_label"`
	Stored        int      `json:"stored"`
	Skipped       []string `json:"skipped,omitempty"`
}

// Enroll accepts either a JSON body with embeddings or a multipart form with
// identity_id, identity_label and one or more "images". Images without a face
// are skipped.
func (h *EnrollHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	var skipped []string

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		var status int
		var err error
		req, skipped, status, err = h.parseMultipart(r)
		if err != nil {
			respondError(w, status, err.Error())
			return
		}
	} else if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	req.IdentityID = strings.TrimSpace(req.IdentityID)
	req.IdentityLabel = strings.TrimSpace(req.IdentityLabel)
	if req.IdentityID == "" {
		respondError(w, http.StatusBadRequest, "identity_id is required")
		return
	}
	if req.IdentityLabel == "" {
		req.IdentityLabel = req.IdentityID
	}
	if len(req.Embeddings) == 0 {
		if len(skipped) > 0 {
			respondError(w, http.StatusUnprocessableEntity, "no face found in any image")
			return
		}
		respondError(w, http.StatusBadRequest, "no embeddings provided")
		return
	}
	if len(req.Embeddings) > constants.MaxEnrollImages {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("at most %d samples per request", constants.MaxEnrollImages))
		return
	}

	n, err := h.store.Add(r.Context(), req.IdentityID, req.IdentityLabel, req.Embeddings)
	if err != nil {
		var verr *database.ValidationError
		if errors.As(err, &verr) {
			respondError(w, http.StatusBadRequest, verr.Error())
			return
		}
		log.Printf("ERROR: enrolling %s: %v", sanitizeForLog(req.IdentityID), err)
		respondError(w, http.StatusInternalServerError, "failed to store embeddings")
		return
	}

	h.metrics.AddEnrolled(n)
	h.metrics.SetStoreRecords(h.store.Count())
	log.Printf("Enrolled %s (%s) with %d samples", sanitizeForLog(req.IdentityLabel), sanitizeForLog(req.IdentityID), n)

	respondJSON(w, http.StatusCreated, enrollResponse{
		IdentityID:    req.IdentityID,
		IdentityLabel: req.IdentityLabel,
		Stored:        n,
		Skipped:       skipped,
	})
}

func (h *EnrollHandler) parseMultipart(r *http.Request) (enrollRequest, []string, int, error) {
	req := enrollRequest{}
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		return req, nil, http.StatusBadRequest, errors.New("failed to parse multipart form")
	}
	req.IdentityID = r.FormValue("identity_id")
	req.IdentityLabel = r.FormValue("identity_label")

	images, names, err := readFormImages(r, "images")
	if err != nil {
		return req, nil, http.StatusBadRequest, err
	}
	if len(images) == 0 {
		return req, nil, http.StatusBadRequest, errors.New("no images provided")
	}
	if len(images) > constants.MaxEnrollImages {
		return req, nil, http.StatusBadRequest, fmt.Errorf("at most %d images per request", constants.MaxEnrollImages)
	}
	if h.embedder == nil {
		return req, nil, http.StatusServiceUnavailable, errors.New("no embedder configured")
	}

	var skipped []string
	for i, img := range images {
		emb, err := h.embedder.FaceEmbedding(r.Context(), img)
		if errors.Is(err, embedder.ErrNoFace) {
			skipped = append(skipped, names[i])
			continue
		}
		if err != nil {
			log.Printf("ERROR: embedding %s: %v", sanitizeForLog(names[i]), err)
			return req, nil, http.StatusBadGateway, errors.New("embedding service failed")
		}
		req.Embeddings = append(req.Embeddings, emb)
	}
	return req, skipped, http.StatusOK, nil
}
