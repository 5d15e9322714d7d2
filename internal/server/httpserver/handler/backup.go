package handler

import (
	"net/http"
	"strconv"

	"github.com/yndnr/gridbackup-go/internal/core/domain"
	"github.com/yndnr/gridbackup-go/internal/core/service"
)

// MaxRunHistoryLimit caps GET /admin/v1/backups/runs.
const MaxRunHistoryLimit = 500

// handleListFolders handles GET /admin/v1/backups/identities/{identity}.
func (h *Handler) handleListFolders(w http.ResponseWriter, r *http.Request) {
	h.writeListing(w, r, r.PathValue("identity"), "")
}

// handleListSnapshots handles GET /admin/v1/backups/identities/{identity}/grids/{grid}.
func (h *Handler) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	h.writeListing(w, r, r.PathValue("identity"), r.PathValue("grid"))
}

func (h *Handler) writeListing(w http.ResponseWriter, r *http.Request, identity, grid string) {
	listing, err := h.backups.ListBackups(r.Context(), identity, grid)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, ListingResponse{Listing: listing, Text: listing.Text()})
}

// handleSave handles POST /admin/v1/backups/save.
func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	var req SaveBackupRequest
	if err := decodeBody(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	res, err := h.backups.Save(r.Context(), service.SaveRequest{
		GraphToken: req.Grid,
		Viewpoint:  viewpoint(req.Viewer),
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, res)
}

// handleRun handles POST /admin/v1/backups/run.
func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	if !h.backups.TriggerManualRun(h.runCtx) {
		h.handleServiceError(w, r, domain.ErrRunInProgress)
		return
	}
	h.writeJSON(w, r, http.StatusAccepted, RunResponse{Started: true})
}

// handleRestore handles POST /admin/v1/backups/restore.
func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req RestoreBackupRequest
	if err := decodeBody(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if req.Identity == "" {
		h.handleServiceError(w, r, domain.ErrMissingArgument.WithDetails("identity is required"))
		return
	}

	res, err := h.backups.Restore(r.Context(), service.RestoreRequest{
		IdentityToken:        req.Identity,
		GraphToken:           req.Grid,
		Version:              req.Version,
		KeepOriginalPosition: req.KeepPosition,
		Viewpoint:            viewpoint(req.Viewer),
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, res)
}

// handleRunHistory handles GET /admin/v1/backups/runs?limit=N.
func (h *Handler) handleRunHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.handleServiceError(w, r, domain.ErrInvalidArgument.WithDetailsf("limit must be a positive integer, got %q", v))
			return
		}
		limit = min(n, MaxRunHistoryLimit)
	}

	runs, err := h.backups.RunHistory(r.Context(), limit)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if runs == nil {
		runs = []*domain.RunSummary{}
	}
	h.writeJSON(w, r, http.StatusOK, RunHistoryResponse{Runs: runs})
}

// handleRunDetail handles GET /admin/v1/backups/runs/{id}.
func (h *Handler) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	run, err := h.backups.RunDetail(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, run)
}

func viewpoint(viewer *int64) *domain.Viewpoint {
	if viewer == nil {
		return nil
	}
	return &domain.Viewpoint{IdentityID: *viewer}
}
