package api

import (
	"encoding/json"
	"net/http"

	"log/slog"
)

// writeJSON encodes v with the standard response headers.
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// writeError returns a JSON error body with the given status.
func writeError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	writeJSON(w, logger, status, map[string]string{"error": message})
}
