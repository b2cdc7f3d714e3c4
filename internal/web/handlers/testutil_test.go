package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/matcher"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

const testDim = 3

// testPhrases returns the embedded default phrases.
func testPhrases() config.PhrasesConfig {
	return config.Load().Phrases
}

// newTestStore creates an in-memory store with dimension testDim.
func newTestStore(t *testing.T) *database.Store {
	t.Helper()
	store, err := database.OpenStore(context.Background(), mock.NewMemoryBackend(), testDim)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// enroll adds vectors for an identity or fails the test.
func enroll(t *testing.T, store *database.Store, id, label string, vectors ...[]float32) {
	t.Helper()
	if _, err := store.Add(context.Background(), id, label, vectors); err != nil {
		t.Fatalf("failed to enroll %s: %v", id, err)
	}
}

// fakeEmbedder maps image contents to embeddings. Unknown images have no face.
type fakeEmbedder struct {
	faces map[string][]float32
	err   error
}

func (f *fakeEmbedder) FaceEmbedding(ctx context.Context, image []byte) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	emb, ok := f.faces[string(image)]
	if !ok {
		return nil, embedder.ErrNoFace
	}
	return emb, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []recognition.AttendanceEvent
	err    error
}

func (s *recordingSink) Record(ctx context.Context, ev recognition.AttendanceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Events() []recognition.AttendanceEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recognition.AttendanceEvent(nil), s.events...)
}

type recordingAnnouncer struct {
	mu      sync.Mutex
	phrases []string
}

func (a *recordingAnnouncer) Announce(ctx context.Context, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.phrases = append(a.phrases, text)
	return nil
}

func (a *recordingAnnouncer) Phrases() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.phrases...)
}

var errEmbedderDown = errors.New("embedder down")

// newTestPipeline wires a pipeline over store with threshold 0.45.
func newTestPipeline(store *database.Store, emb recognition.FaceEmbedder) *recognition.Pipeline {
	return recognition.NewPipeline(store, matcher.New(0.45), emb, nil)
}

// jsonBody encodes v as a request body.
func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to encode body: %v", err)
	}
	return bytes.NewReader(data)
}

// multipartRequest builds a multipart request with form fields and files.
func multipartRequest(t *testing.T, method, path string, fields map[string]string, fileField string, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile(fileField, name)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		fw.Write([]byte(content))
	}
	mw.Close()

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
