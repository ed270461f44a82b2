package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/debate-panel/internal/gateway"
)

const healthProbeTimeout = 3 * time.Second

// HealthHandler reports whether the conversation backend is reachable.
type HealthHandler struct {
	checker gateway.HealthChecker
}

// NewHealthHandler creates a health handler probing checker.
func NewHealthHandler(checker gateway.HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// RegisterHealth registers the health route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Health)
}

// Health probes the backend and answers 200 when it is up, 503 otherwise.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()

	if err := h.checker.Health(ctx); err != nil {
		JSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":  "degraded",
			"backend": "down",
			"error":   err.Error(),
		})
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"backend": "up",
	})
}
