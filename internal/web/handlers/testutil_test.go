package handlers

import (
	"bytes"
	"context"
	"errors"
	"image"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/logging"
	"github.com/kozaktomas/attendance/internal/pipeline"
	"github.com/kozaktomas/attendance/internal/recognition"
	"github.com/kozaktomas/attendance/internal/roster"
)

var testStudents = []roster.Student{
	{ID: "01_ALICE", Name: "Alice Novak", Images: []string{"a1.jpg", "a2.jpg"}},
	{ID: "02_BOB", Images: []string{"b1.jpg"}},
	{ID: "03_CAROL"},
}

// fakeDetector treats the upload as a comma-separated list of face tokens.
type fakeDetector struct{}

func (fakeDetector) DetectImage(data []byte, index int) (*pipeline.Frame, error) {
	if string(data) == "corrupt" {
		return nil, errors.New("failed to decode image")
	}
	frame := &pipeline.Frame{Index: index, Timestamp: time.Now()}
	if string(data) == "empty" {
		return frame, nil
	}
	for i, token := range strings.Split(string(data), ",") {
		frame.Faces = append(frame.Faces, pipeline.Face{
			Box:   image.Rect(i*100, 10, i*100+60, 70),
			Image: []byte(token),
		})
	}
	return frame, nil
}

// fakeEmbedder maps face tokens to embeddings.
type fakeEmbedder map[string][]float32

func (f fakeEmbedder) EmbedFace(_ context.Context, img []byte) ([]float32, error) {
	emb, ok := f[string(img)]
	if !ok {
		return nil, errors.New("no face found")
	}
	return emb, nil
}

func testRegistry(t *testing.T) *recognition.Registry {
	t.Helper()
	reg := recognition.NewRegistry(0)
	for id, emb := range map[string][]float32{"01_ALICE": {1, 0, 0}, "02_BOB": {0, 1, 0}} {
		if err := reg.Add(id, emb); err != nil {
			t.Fatalf("failed to add embedding: %v", err)
		}
	}
	reg.Ensure("03_CAROL")
	return reg
}

// testRunner wires a real pipeline runner with a fake embedder.
func testRunner(t *testing.T, confirmations int, reportPath string) (*pipeline.Runner, *attendance.Tracker) {
	t.Helper()
	matcher := recognition.NewMatcher(recognition.NewLinearIndex(testRegistry(t), recognition.Cosine), 0.4)
	embedder := fakeEmbedder{
		"alice":    {1, 0.05, 0},
		"bob":      {0.02, 1, 0},
		"stranger": {0, 0, 1},
	}
	tracker := attendance.NewTracker(confirmations, 0)
	runner := pipeline.NewRunner(nil, embedder, matcher, tracker, nil, nil, logging.Discard(), pipeline.Options{
		SessionID:    "S1",
		Students:     testStudents,
		ReportPath:   reportPath,
		ReportFormat: attendance.FormatText,
	})
	return runner, tracker
}

// uploadRequest builds a multipart request with the given field name.
func uploadRequest(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, "snapshot.jpg")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
