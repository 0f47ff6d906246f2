package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	app_errors "chat-gateway/internal/errors"
)

// ErrorResponse defines the standard JSON structure for error messages.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondWithError maps business-layer sentinel errors to HTTP status codes
// and writes a standard JSON error body. Errors that occur after the
// response body has started streaming never pass through here.
func respondWithError(w http.ResponseWriter, err error) {
	var statusCode int
	var message string

	switch {
	case errors.Is(err, app_errors.ErrValidation):
		statusCode = http.StatusBadRequest
		// Validation messages from the validator are already descriptive.
		message = err.Error()
	case errors.Is(err, app_errors.ErrUnauthorized):
		statusCode = http.StatusUnauthorized
		message = "Unauthorized"
	case errors.Is(err, app_errors.ErrUpstream):
		statusCode = http.StatusBadGateway
		message = "The inference backend failed to produce a response."
	default:
		statusCode = http.StatusInternalServerError
		message = "An unexpected internal server error occurred."
	}

	slog.Warn("responding with error", "status_code", statusCode, "client_message", message, "internal_error", err)
	respondWithJSON(w, statusCode, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}
