package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/weathervane/weathervane/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeDomainError maps domain errors onto HTTP statuses. Unknown errors are
// logged server-side and surface as a generic 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrConfigIncomplete):
		writeError(w, http.StatusServiceUnavailable, "weather provider not configured")
	case errors.Is(err, domain.ErrUnavailable):
		writeError(w, http.StatusBadGateway, "upstream weather provider unavailable and no cached data within the fallback window")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		slog.Error("unhandled domain error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
