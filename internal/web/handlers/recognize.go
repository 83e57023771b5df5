package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/pipeline"
	"github.com/kozaktomas/attendance/internal/roster"
)

// FaceDetector finds faces in an uploaded image.
type FaceDetector interface {
	DetectImage(data []byte, index int) (*pipeline.Frame, error)
}

// FrameProcessor embeds, matches and observes the faces of a frame.
type FrameProcessor interface {
	ProcessFrame(ctx context.Context, frame *pipeline.Frame) ([]pipeline.Recognition, error)
}

// RecognizeHandler accepts snapshots from kiosk cameras.
type RecognizeHandler struct {
	detector  FaceDetector
	processor FrameProcessor
	names     map[string]string
	log       *logrus.Logger
	frames    atomic.Int64
}

// NewRecognizeHandler creates a recognize handler.
func NewRecognizeHandler(detector FaceDetector, processor FrameProcessor, students []roster.Student, log *logrus.Logger) *RecognizeHandler {
	return &RecognizeHandler{
		detector:  detector,
		processor: processor,
		names:     displayNames(students),
		log:       log,
	}
}

type boxResponse struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type recognitionResponse struct {
	Box            boxResponse `json:"box"`
	StudentID      string      `json:"student_id,omitempty"`
	Name           string      `json:"name"`
	Known          bool        `json:"known"`
	Distance       float64     `json:"distance"`
	Confidence     float64     `json:"confidence"`
	Count          int         `json:"count"`
	Confirmed      bool        `json:"confirmed"`
	NewlyConfirmed bool        `json:"newly_confirmed"`
	Error          string      `json:"error,omitempty"`
}

type recognizeResponse struct {
	Frame        int                   `json:"frame"`
	Faces        int                   `json:"faces"`
	Recognitions []recognitionResponse `json:"recognitions"`
}

// Recognize handles a multipart upload with the snapshot in the "image" field.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing image field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		respondError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	index := int(h.frames.Add(1))
	frame, err := h.detector.DetectImage(data, index)
	if err != nil {
		h.log.WithField("file", sanitizeForLog(header.Filename)).WithError(err).Warn("failed to detect faces")
		respondError(w, http.StatusUnprocessableEntity, "failed to decode image")
		return
	}

	recs, err := h.processor.ProcessFrame(r.Context(), frame)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		h.log.WithError(err).Error("failed to process snapshot")
		respondError(w, http.StatusInternalServerError, "failed to recognise faces")
		return
	}

	resp := recognizeResponse{
		Frame:        index,
		Faces:        len(frame.Faces),
		Recognitions: make([]recognitionResponse, 0, len(recs)),
	}
	for _, rec := range recs {
		resp.Recognitions = append(resp.Recognitions, h.toResponse(rec))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *RecognizeHandler) toResponse(rec pipeline.Recognition) recognitionResponse {
	b := rec.Face.Box
	out := recognitionResponse{
		Box:            boxResponse{X: b.Min.X, Y: b.Min.Y, Width: b.Dx(), Height: b.Dy()},
		Name:           rec.Match.Label(),
		Known:          rec.Match.Known,
		Distance:       rec.Match.Distance,
		Confidence:     rec.Match.Confidence,
		Count:          rec.Observation.Count,
		Confirmed:      rec.Observation.Confirmed,
		NewlyConfirmed: rec.Observation.NewlyConfirmed,
	}
	if rec.Match.Known {
		out.StudentID = rec.Match.StudentID
		if name, ok := h.names[rec.Match.StudentID]; ok {
			out.Name = name
		}
	}
	if rec.Err != nil {
		out.Error = rec.Err.Error()
	}
	return out
}
