package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds the dependency probes of a single health request.
const healthCheckTimeout = 5 * time.Second

// Pinger is a reachability probe over one dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports the gateway's health plus the reachability of the
// inference backend and the turn log.
type HealthHandler struct {
	backend Pinger
	turns   Pinger
}

// NewHealthHandler creates a health handler. A nil turns pinger means turn
// logging is disabled, which is reported but never degrades the status.
func NewHealthHandler(backend, turns Pinger) *HealthHandler {
	return &HealthHandler{backend: backend, turns: turns}
}

// Health returns the health status of the gateway and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	statusCode := http.StatusOK

	if err := h.backend.Ping(ctx); err != nil {
		slog.Error("Health check failed", "check", "backend", "error", err)
		checks["backend"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["backend"] = "ok"
	}

	if h.turns == nil {
		checks["turnlog"] = "disabled"
	} else if err := h.turns.Ping(ctx); err != nil {
		slog.Error("Health check failed", "check", "turnlog", "error", err)
		checks["turnlog"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["turnlog"] = "ok"
	}

	status := "healthy"
	if statusCode != http.StatusOK {
		status = "degraded"
	}

	JSON(w, statusCode, map[string]any{
		"status": status,
		"checks": checks,
	})
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
