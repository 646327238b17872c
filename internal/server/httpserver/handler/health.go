package handler

import (
	"net/http"
	"time"
)

// handleHealth handles GET /health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady handles GET /ready. The node is ready once recovery has run.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.engine.IndexStatus().Recovery == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "MS-SYS-5030", "recovery in progress", nil)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
