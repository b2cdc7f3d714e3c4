package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// IdentityStore is the part of the embedding store used by the handlers.
type IdentityStore interface {
	Identities() []database.Identity
	Add(ctx context.Context, identityID, identityLabel string, vectors [][]float32) (int, error)
	DeleteIdentity(ctx context.Context, identityID string) (int, error)
	Count() int
}

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// frameInput is a frame submitted either as an embedding or as an image.
// Both nil means the client saw no face.
type frameInput struct {
	Embedding []float32 `json:"embedding"`
	Mode      string    `json:"mode,omitempty"`
	image     []byte
}

// readFrame parses a frame from a multipart form (field "image"), a raw image
// body or a JSON body with an embedding.
func readFrame(w http.ResponseWriter, r *http.Request) (*frameInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mediaType == "multipart/form-data":
		if err := r.ParseMultipartForm(constants.MaxFrameSize); err != nil {
			return nil, errors.New("failed to parse multipart form")
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			return nil, errors.New("image is required")
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, constants.MaxFrameSize))
		if err != nil {
			return nil, errors.New("failed to read image")
		}
		return &frameInput{Mode: r.FormValue("mode"), image: data}, nil

	case strings.HasPrefix(mediaType, "image/"):
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, constants.MaxFrameSize))
		if err != nil {
			return nil, errors.New("failed to read image")
		}
		return &frameInput{Mode: r.URL.Query().Get("mode"), image: data}, nil

	default:
		var in frameInput
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, constants.MaxFrameSize)).Decode(&in); err != nil {
			return nil, errors.New(errInvalidRequestBody)
		}
		return &in, nil
	}
}

// readFormImages reads all files of a multipart field.
func readFormImages(r *http.Request, field string) ([][]byte, []string, error) {
	if r.MultipartForm == nil {
		return nil, nil, nil
	}
	files := r.MultipartForm.File[field]
	images := make([][]byte, 0, len(files))
	names := make([]string, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open file: %s", fh.Filename)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read file: %s", fh.Filename)
		}
		images = append(images, data)
		names = append(names, fh.Filename)
	}
	return images, names, nil
}
