package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/attendance/internal/logging"
	"github.com/kozaktomas/attendance/internal/pipeline"
)

func decodeRecognize(t *testing.T, rec *httptest.ResponseRecorder) recognizeResponse {
	t.Helper()
	var resp recognizeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return resp
}

func TestRecognize_ConfirmsAfterRepeatedSnapshots(t *testing.T) {
	runner, tracker := testRunner(t, 2, "")
	h := NewRecognizeHandler(fakeDetector{}, runner, testStudents, logging.Discard())

	rec := httptest.NewRecorder()
	h.Recognize(rec, uploadRequest(t, "image", []byte("alice,stranger")))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeRecognize(t, rec)
	if resp.Frame != 1 || resp.Faces != 2 || len(resp.Recognitions) != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	alice := resp.Recognitions[0]
	if !alice.Known || alice.StudentID != "01_ALICE" || alice.Name != "Alice Novak" {
		t.Errorf("expected Alice, got %+v", alice)
	}
	if alice.Count != 1 || alice.Confirmed {
		t.Errorf("expected first sighting to be unconfirmed, got %+v", alice)
	}
	if alice.Box.X != 0 || alice.Box.Width != 60 || alice.Box.Height != 60 {
		t.Errorf("unexpected box %+v", alice.Box)
	}

	stranger := resp.Recognitions[1]
	if stranger.Known || stranger.Name != "Unknown" || stranger.StudentID != "" {
		t.Errorf("expected unknown face, got %+v", stranger)
	}

	rec = httptest.NewRecorder()
	h.Recognize(rec, uploadRequest(t, "image", []byte("alice")))
	resp = decodeRecognize(t, rec)
	if resp.Frame != 2 || !resp.Recognitions[0].NewlyConfirmed {
		t.Errorf("expected second sighting to confirm, got %+v", resp)
	}
	if tracker.PresentCount() != 1 {
		t.Errorf("expected 1 present student, got %d", tracker.PresentCount())
	}
}

func TestRecognize_EmbeddingFailureIsReported(t *testing.T) {
	runner, _ := testRunner(t, 1, "")
	h := NewRecognizeHandler(fakeDetector{}, runner, testStudents, logging.Discard())

	rec := httptest.NewRecorder()
	h.Recognize(rec, uploadRequest(t, "image", []byte("blurry,bob")))

	resp := decodeRecognize(t, rec)
	if len(resp.Recognitions) != 2 {
		t.Fatalf("expected 2 recognitions, got %d", len(resp.Recognitions))
	}
	if resp.Recognitions[0].Error == "" {
		t.Error("expected an error for the blurry face")
	}
	if resp.Recognitions[1].Name != "02_BOB" || !resp.Recognitions[1].NewlyConfirmed {
		t.Errorf("expected Bob to be confirmed, got %+v", resp.Recognitions[1])
	}
}

func TestRecognize_NoFaces(t *testing.T) {
	runner, _ := testRunner(t, 1, "")
	h := NewRecognizeHandler(fakeDetector{}, runner, testStudents, logging.Discard())

	rec := httptest.NewRecorder()
	h.Recognize(rec, uploadRequest(t, "image", []byte("empty")))

	resp := decodeRecognize(t, rec)
	if resp.Faces != 0 || resp.Recognitions == nil || len(resp.Recognitions) != 0 {
		t.Errorf("expected empty recognitions array, got %+v", resp)
	}
}

type failingProcessor struct{}

func (failingProcessor) ProcessFrame(context.Context, *pipeline.Frame) ([]pipeline.Recognition, error) {
	return nil, errors.New("index unavailable")
}

func TestRecognize_Errors(t *testing.T) {
	runner, _ := testRunner(t, 1, "")

	tests := []struct {
		name      string
		processor FrameProcessor
		req       func(t *testing.T) *http.Request
		status    int
	}{
		{"not multipart", runner, func(t *testing.T) *http.Request {
			return httptest.NewRequest(http.MethodPost, "/api/v1/recognize", strings.NewReader("{}"))
		}, http.StatusBadRequest},
		{"wrong field", runner, func(t *testing.T) *http.Request {
			return uploadRequest(t, "photo", []byte("alice"))
		}, http.StatusBadRequest},
		{"undecodable image", runner, func(t *testing.T) *http.Request {
			return uploadRequest(t, "image", []byte("corrupt"))
		}, http.StatusUnprocessableEntity},
		{"processing fails", failingProcessor{}, func(t *testing.T) *http.Request {
			return uploadRequest(t, "image", []byte("alice"))
		}, http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewRecognizeHandler(fakeDetector{}, tc.processor, testStudents, logging.Discard())
			rec := httptest.NewRecorder()
			h.Recognize(rec, tc.req(t))

			if rec.Code != tc.status {
				t.Errorf("expected status %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
		})
	}
}
