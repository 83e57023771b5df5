package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46, 0x49, 0x46}

func faceServer(t *testing.T, resp FaceResponse, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/face" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestEmbedFace_PicksHighestScore(t *testing.T) {
	srv := faceServer(t, FaceResponse{
		FacesCount: 2,
		Faces: []FaceDetection{
			{FaceIndex: 0, Embedding: []float32{1, 0}, DetScore: 0.4},
			{FaceIndex: 1, Embedding: []float32{0, 1}, DetScore: 0.9},
		},
	}, nil)
	defer srv.Close()

	emb, err := NewClient(srv.URL, "").EmbedFace(context.Background(), jpegHeader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(emb) != 2 || emb[1] != 1 {
		t.Errorf("expected embedding of the best face, got %v", emb)
	}
}

func TestEmbedFace_NoFace(t *testing.T) {
	srv := faceServer(t, FaceResponse{}, nil)
	defer srv.Close()

	_, err := NewClient(srv.URL, "").EmbedFace(context.Background(), jpegHeader)
	if !errors.Is(err, ErrNoFace) {
		t.Errorf("expected ErrNoFace, got %v", err)
	}
}

func TestEmbedFace_SendsFormFields(t *testing.T) {
	srv := faceServer(t, FaceResponse{Faces: []FaceDetection{{Embedding: []float32{1}}}}, func(r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if got := r.FormValue("model"); got != "ArcFace" {
			t.Errorf("expected model ArcFace, got %q", got)
		}
		if got := r.FormValue("enforce_detection"); got != "false" {
			t.Errorf("expected enforce_detection=false, got %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file part: %v", err)
		}
		defer file.Close()
		if ct := header.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("expected image/jpeg part, got %q", ct)
		}
		data, _ := io.ReadAll(file)
		if len(data) != len(jpegHeader) {
			t.Errorf("expected %d bytes, got %d", len(jpegHeader), len(data))
		}
	})
	defer srv.Close()

	if _, err := NewClient(srv.URL+"/", "ArcFace").EmbedFace(context.Background(), jpegHeader); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestComputeFaceEmbeddings_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").ComputeFaceEmbeddings(context.Background(), jpegHeader)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "model not loaded") {
		t.Errorf("error should carry status and body, got %v", err)
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("", "")
	if c.baseURL != defaultURL {
		t.Errorf("expected default URL, got %s", c.baseURL)
	}
	if c.Model() != defaultModel {
		t.Errorf("expected default model, got %s", c.Model())
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{"jpeg", jpegHeader, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"bmp", []byte{0x42, 0x4D, 0, 0, 0, 0, 0, 0}, "image/bmp"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBP"), "image/webp"},
		{"too short", []byte{0xFF}, "application/octet-stream"},
		{"unknown", []byte("plain text file"), "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectMIMEType(tt.data); got != tt.expected {
				t.Errorf("detectMIMEType() = %s, want %s", got, tt.expected)
			}
		})
	}
}
