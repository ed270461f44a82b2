// Package api provides HTTP handlers for the panel API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/debate-panel/internal/conversation"
	"github.com/ashureev/debate-panel/internal/gateway"
)

// Handler provides common handler utilities.
type Handler struct {
	ctrl   *conversation.Controller
	logger *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(ctrl *conversation.Controller, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		ctrl:   ctrl,
		logger: logger.With("component", "api"),
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// statusFor maps a controller error to an HTTP status.
func statusFor(err error) int {
	var remote *gateway.RemoteError
	switch {
	case conversation.IsValidation(err):
		return http.StatusBadRequest
	case errors.As(err, &remote):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
