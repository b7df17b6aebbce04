package utils

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// RespondJSON writes payload as a JSON response.
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// RespondError writes {"error": message}.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// RespondErrorDetails writes {"error": message, "details": details}.
func RespondErrorDetails(w http.ResponseWriter, status int, message, details string) {
	RespondJSON(w, status, map[string]string{"error": message, "details": details})
}
