package handler

import (
	"net/http"
	"time"
)

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady reports ready once the world answers through the sim thread.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := h.backups.Status(r.Context()); err != nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "GB-SYS-5030", "not ready", err.Error())
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
