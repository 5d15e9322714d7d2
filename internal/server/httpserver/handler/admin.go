package handler

import (
	"net/http"
	"time"

	"github.com/yndnr/gridbackup-go/internal/infra/buildinfo"
)

// handleAdminStatus handles GET /admin/v1/status/summary.
func (h *Handler) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.backups.Status(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, StatusResponse{
		Status:  st,
		Version: buildinfo.Get().Version,
		Time:    time.Now().UTC(),
	})
}
