package handlers

import (
	"net/http"

	"github.com/kozaktomas/attendance/internal/recognition"
	"github.com/kozaktomas/attendance/internal/roster"
)

// StudentsHandler lists the registered students.
type StudentsHandler struct {
	students []roster.Student
	registry *recognition.Registry
}

// NewStudentsHandler creates a students handler.
func NewStudentsHandler(students []roster.Student, registry *recognition.Registry) *StudentsHandler {
	return &StudentsHandler{students: students, registry: registry}
}

type studentResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Images     int    `json:"images"`
	Embeddings int    `json:"embeddings"`
}

// List returns every roster student with its embedding count.
func (h *StudentsHandler) List(w http.ResponseWriter, r *http.Request) {
	result := make([]studentResponse, 0, len(h.students))
	for _, s := range h.students {
		result = append(result, studentResponse{
			ID:         s.ID,
			Name:       s.DisplayName(),
			Images:     len(s.Images),
			Embeddings: len(h.registry.Embeddings(s.ID)),
		})
	}
	respondJSON(w, http.StatusOK, result)
}
