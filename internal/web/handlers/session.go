package handlers

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/roster"
)

// ReportWriter rewrites the report file.
type ReportWriter interface {
	WriteReport() error
}

// SessionHandler exposes the live attendance state.
type SessionHandler struct {
	sessionID string
	students  []roster.Student
	tracker   *attendance.Tracker
	format    string
	reports   ReportWriter
	log       *logrus.Logger
	now       func() time.Time
}

// NewSessionHandler creates a session handler. format is the default report format.
func NewSessionHandler(sessionID string, students []roster.Student, tracker *attendance.Tracker,
	format string, reports ReportWriter, log *logrus.Logger) *SessionHandler {
	return &SessionHandler{
		sessionID: sessionID,
		students:  students,
		tracker:   tracker,
		format:    format,
		reports:   reports,
		log:       log,
		now:       time.Now,
	}
}

type presentResponse struct {
	StudentID   string    `json:"student_id"`
	Name        string    `json:"name"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

type sessionResponse struct {
	SessionID     string            `json:"session_id"`
	Students      int               `json:"students"`
	Confirmations int               `json:"confirmations"`
	PresentCount  int               `json:"present_count"`
	Present       []presentResponse `json:"present"`
	Counts        map[string]int    `json:"counts"`
}

// Get returns the session state.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap := h.tracker.Snapshot()
	names := displayNames(h.students)

	present := make([]presentResponse, 0, len(snap.ConfirmedAt))
	for _, id := range snap.PresentIDs() {
		name, ok := names[id]
		if !ok {
			name = id
		}
		present = append(present, presentResponse{StudentID: id, Name: name, ConfirmedAt: snap.ConfirmedAt[id]})
	}

	respondJSON(w, http.StatusOK, sessionResponse{
		SessionID:     h.sessionID,
		Students:      len(h.students),
		Confirmations: h.tracker.Confirmations(),
		PresentCount:  len(present),
		Present:       present,
		Counts:        snap.Counts,
	})
}

// Report renders the report on the fly. ?format=text|csv overrides the default.
func (h *SessionHandler) Report(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = h.format
	}
	format = strings.ToLower(format)

	rows := attendance.BuildRows(h.students, h.tracker.Snapshot(), h.now())
	var buf bytes.Buffer
	if err := attendance.RenderReport(&buf, format, rows, h.sessionID); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	contentType := "text/plain; charset=utf-8"
	if format == attendance.FormatCSV {
		contentType = "text/csv; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// WriteReport rewrites the report file now.
func (h *SessionHandler) WriteReport(w http.ResponseWriter, r *http.Request) {
	if err := h.reports.WriteReport(); err != nil {
		h.log.WithError(err).Error("failed to write report")
		respondError(w, http.StatusInternalServerError, "failed to write report")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": h.sessionID,
		"present":    h.tracker.PresentCount(),
		"students":   len(h.students),
	})
}
