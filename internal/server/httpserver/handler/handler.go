package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yndnr/gridbackup-go/internal/core/domain"
	"github.com/yndnr/gridbackup-go/internal/core/service"
	"github.com/yndnr/gridbackup-go/internal/telemetry/logger"
)

// Backups is the operator surface the handlers call.
// *service.BackupService implements it.
type Backups interface {
	ListBackups(ctx context.Context, identityToken, graphToken string) (*service.Listing, error)
	Save(ctx context.Context, req service.SaveRequest) (*service.SaveResult, error)
	TriggerManualRun(ctx context.Context) bool
	Restore(ctx context.Context, req service.RestoreRequest) (*service.RestoreResult, error)
	RunHistory(ctx context.Context, limit int) ([]*domain.RunSummary, error)
	RunDetail(ctx context.Context, runID string) (*domain.RunSummary, error)
	Status(ctx context.Context) (*service.Status, error)
}

// Handler routes admin API requests to the backup service.
type Handler struct {
	backups Backups
	logger  *slog.Logger
	mux     *http.ServeMux

	// runCtx outlives the request; manual runs started over HTTP must not
	// be canceled when the 202 response is written.
	runCtx context.Context
}

// New creates a Handler. runCtx bounds background work started by
// requests, typically the server lifetime.
func New(runCtx context.Context, backups Backups, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if runCtx == nil {
		runCtx = context.Background()
	}
	h := &Handler{
		backups: backups,
		logger:  logger,
		mux:     http.NewServeMux(),
		runCtx:  runCtx,
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	h.mux.HandleFunc("GET /admin/v1/status/summary", h.handleAdminStatus)

	h.mux.HandleFunc("GET /admin/v1/backups/identities/{identity}", h.handleListFolders)
	h.mux.HandleFunc("GET /admin/v1/backups/identities/{identity}/grids/{grid}", h.handleListSnapshots)
	h.mux.HandleFunc("POST /admin/v1/backups/save", h.handleSave)
	h.mux.HandleFunc("POST /admin/v1/backups/run", h.handleRun)
	h.mux.HandleFunc("POST /admin/v1/backups/restore", h.handleRestore)
	h.mux.HandleFunc("GET /admin/v1/backups/runs", h.handleRunHistory)
	h.mux.HandleFunc("GET /admin/v1/backups/runs/{id}", h.handleRunDetail)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := logger.RequestIDFromContext(r.Context())
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := logger.RequestIDFromContext(r.Context())
	response := NewErrorResponse(requestID, code, message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}

// handleServiceError converts service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.DomainError
	if errors.As(err, &de) {
		status := ErrorCodeToHTTPStatus(de.Code)
		if status >= http.StatusInternalServerError {
			logger.L(r.Context()).Error("request failed", "error_code", de.Code, "error", err)
		}
		var details any
		if de.Details != "" {
			details = de.Details
		}
		h.writeError(w, r, status, de.Code, de.Message, details)
		return
	}

	logger.L(r.Context()).Error("internal error", "error", err)
	h.writeError(w, r, http.StatusInternalServerError, domain.ErrInternalServer.Code, domain.ErrInternalServer.Message, nil)
}

// ErrorCodeToHTTPStatus maps a GB-<AREA>-<NNNN> code to an HTTP status.
func ErrorCodeToHTTPStatus(code string) int {
	switch {
	case strings.Contains(code, "-404"):
		return http.StatusNotFound
	case strings.Contains(code, "-409"):
		return http.StatusConflict
	case strings.Contains(code, "-403"):
		return http.StatusForbidden
	case strings.Contains(code, "-429"):
		return http.StatusTooManyRequests
	case strings.HasPrefix(code, "GB-ARG-"), strings.Contains(code, "-400"):
		return http.StatusBadRequest
	case strings.HasSuffix(code, "-5030"):
		return http.StatusServiceUnavailable
	case strings.HasSuffix(code, "-5040"):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON request body, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.ErrBadRequest.WithDetailsf("invalid request body: %v", err)
	}
	return nil
}
