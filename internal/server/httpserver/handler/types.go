package handler

import (
	"time"

	"github.com/yndnr/gridbackup-go/internal/core/domain"
	"github.com/yndnr/gridbackup-go/internal/core/service"
)

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// StatusResponse is the body of GET /admin/v1/status/summary.
type StatusResponse struct {
	*service.Status
	Version string    `json:"version"`
	Time    time.Time `json:"time"`
}

// ListingResponse is the body of the listing endpoints. Text carries the
// console rendering of the same listing.
type ListingResponse struct {
	*service.Listing
	Text string `json:"text"`
}

// SaveBackupRequest is the request body for POST /admin/v1/backups/save.
// Without Grid, Viewer selects the grid the viewer is looking at.
type SaveBackupRequest struct {
	Grid   string `json:"grid,omitempty"`
	Viewer *int64 `json:"viewer,omitempty"`
}

// RestoreBackupRequest is the request body for POST /admin/v1/backups/restore.
type RestoreBackupRequest struct {
	Identity     string `json:"identity"`
	Grid         string `json:"grid"`
	Version      int    `json:"version,omitempty"`
	KeepPosition bool   `json:"keep_position,omitempty"`
	Viewer       *int64 `json:"viewer,omitempty"`
}

// RunResponse is the body of POST /admin/v1/backups/run.
type RunResponse struct {
	Started bool `json:"started"`
}

// RunHistoryResponse is the body of GET /admin/v1/backups/runs.
type RunHistoryResponse struct {
	Runs []*domain.RunSummary `json:"runs"`
}
