package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// apiError is the error envelope all non-2xx responses share.
type apiError struct {
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code.
// Logs encoding failures internally using the provided context.
func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	// Headers and status are written before encoding to avoid buffering.
	// If encoding fails, the client may receive a partial response.
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}

// writeJSONError writes the error envelope with the given status code.
func writeJSONError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	writeJSON(ctx, w, map[string]apiError{"error": {Message: message}}, status)
}
