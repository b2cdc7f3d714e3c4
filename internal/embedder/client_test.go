package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode failed: %v", err)
	}
	return buf.Bytes()
}

func faceServer(t *testing.T, resp FaceResponse, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/face" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
		} else {
			data, _ := io.ReadAll(file)
			if DetectMIMEType(data) != "image/jpeg" {
				t.Errorf("expected prepared JPEG upload, got %s", DetectMIMEType(data))
			}
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestFaceEmbedding_PicksLargestFace(t *testing.T) {
	server := faceServer(t, FaceResponse{
		FacesCount: 3,
		Faces: []FaceDetection{
			{FaceIndex: 0, Embedding: []float32{1, 0}, BBox: []float64{0, 0, 10, 10}},
			{FaceIndex: 1, Embedding: []float32{0, 1}, BBox: []float64{0, 0, 40, 30}},
			{FaceIndex: 2, Embedding: []float32{1, 1}, BBox: []float64{5, 5, 20, 20}},
		},
	}, http.StatusOK)
	defer server.Close()

	client := NewClient(server.URL+"/", 64)
	got, err := client.FaceEmbedding(context.Background(), testPNG(t, 100, 50))
	if err != nil {
		t.Fatalf("FaceEmbedding failed: %v", err)
	}
	if len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("expected embedding of face 1, got %v", got)
	}
}

func TestFaceEmbedding_NoFace(t *testing.T) {
	server := faceServer(t, FaceResponse{}, http.StatusOK)
	defer server.Close()

	client := NewClient(server.URL, 64)
	_, err := client.FaceEmbedding(context.Background(), testPNG(t, 10, 10))
	if !errors.Is(err, ErrNoFace) {
		t.Errorf("expected ErrNoFace, got %v", err)
	}
}

func TestFaceEmbedding_ServerError(t *testing.T) {
	server := faceServer(t, FaceResponse{}, http.StatusInternalServerError)
	defer server.Close()

	client := NewClient(server.URL, 64)
	_, err := client.FaceEmbedding(context.Background(), testPNG(t, 10, 10))
	if err == nil {
		t.Fatal("expected error for server failure")
	}
	if errors.Is(err, ErrNoFace) {
		t.Error("server failure must not be reported as no face")
	}
}

func TestFaceEmbedding_InvalidImage(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", 64)
	if _, err := client.FaceEmbedding(context.Background(), []byte("not an image")); err == nil {
		t.Error("expected decode error")
	}
}

func TestFaceDetection_Area(t *testing.T) {
	tests := []struct {
		name string
		bbox []float64
		want float64
	}{
		{"normal", []float64{0, 0, 4, 5}, 20},
		{"offset", []float64{10, 10, 12, 13}, 6},
		{"inverted", []float64{5, 5, 1, 1}, 0},
		{"malformed", []float64{1, 2}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := FaceDetection{BBox: tt.bbox}
			if got := f.Area(); got != tt.want {
				t.Errorf("Area() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPrepareImage(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		maxSize       int
		wantW, wantH  int
	}{
		{"landscape downscaled", 200, 100, 50, 50, 25},
		{"portrait downscaled", 100, 200, 50, 25, 50},
		{"small kept", 40, 30, 50, 40, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := PrepareImage(testPNG(t, tt.width, tt.height), tt.maxSize)
			if err != nil {
				t.Fatalf("PrepareImage failed: %v", err)
			}
			img, err := jpeg.Decode(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("output is not JPEG: %v", err)
			}
			b := img.Bounds()
			if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("got %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"gif", []byte("GIF89a\x00\x00"), "image/gif"},
		{"short", []byte{0xFF}, "application/octet-stream"},
		{"unknown", []byte("hello world"), "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectMIMEType(tt.data); got != tt.want {
				t.Errorf("DetectMIMEType() = %q, want %q", got, tt.want)
			}
		})
	}
}
