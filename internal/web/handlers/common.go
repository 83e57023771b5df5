package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kozaktomas/attendance/internal/roster"
)

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

// displayNames maps student IDs to the names shown to operators.
func displayNames(students []roster.Student) map[string]string {
	names := make(map[string]string, len(students))
	for _, s := range students {
		names[s.ID] = s.DisplayName()
	}
	return names
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
