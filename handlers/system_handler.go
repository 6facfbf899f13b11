package handlers

import (
	"context"
	"net/http"
	"time"

	"places-server/logger"
)

// HealthCheck reports whether a backing store is reachable.
type HealthCheck func(ctx context.Context) error

type SystemHandler struct {
	version string
	check   HealthCheck
}

func NewSystemHandler(version string, check HealthCheck) *SystemHandler {
	return &SystemHandler{version: version, check: check}
}

func (h *SystemHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Places API Server",
		"version": h.version,
		"endpoints": map[string]string{
			"users":  "/api/users",
			"places": "/api/places",
			"auth":   "/api/auth",
		},
	})
}

func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.check != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.check(ctx); err != nil {
			logger.Log.Warnw("health check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
