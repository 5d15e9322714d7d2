// Package domain defines the core domain models for GridBackup.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
// Codes follow the GB-<AREA>-<NNNN> format; the numeric part mirrors the
// HTTP status family the error maps to.
type DomainError struct {
	Code    string // Error code (e.g., "GB-GRID-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithDetailsf is WithDetails with fmt formatting.
func (e *DomainError) WithDetailsf(format string, args ...any) *DomainError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// AsDomainError returns err as a DomainError, wrapping foreign errors
// into fallback so callers always get a coded result.
func AsDomainError(err error, fallback *DomainError) *DomainError {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de
	}
	return fallback.WithCause(err).WithDetails(err.Error())
}

// ============================================================================
// Identity Errors (IDEN)
// ============================================================================

var (
	// ErrIdentityNotFound indicates no identity matched the given name or id.
	ErrIdentityNotFound = NewDomainError("GB-IDEN-4040", "identity not found")
)

// ============================================================================
// Grid Errors (GRID)
// ============================================================================

var (
	// ErrGridNotFound indicates no graph group matched the given token.
	ErrGridNotFound = NewDomainError("GB-GRID-4040", "no grids found")

	// ErrGridAmbiguous indicates the token matched several unrelated groups.
	ErrGridAmbiguous = NewDomainError("GB-GRID-4090", "multiple grids found")

	// ErrNoViewpoint indicates neither a token nor a usable viewpoint was given.
	ErrNoViewpoint = NewDomainError("GB-GRID-4001", "no viewpoint to resolve the target grid from")

	// ErrInvalidGroup indicates a graph group has no members or no primary member.
	ErrInvalidGroup = NewDomainError("GB-GRID-4002", "invalid grid group")

	// ErrNoOwner indicates the primary member of a group has no owner.
	ErrNoOwner = NewDomainError("GB-GRID-4003", "grid has no owner")
)

// ============================================================================
// Snapshot Errors (SNAP)
// ============================================================================

var (
	// ErrSnapshotNotFound indicates no snapshot folder or version matched.
	ErrSnapshotNotFound = NewDomainError("GB-SNAP-4040", "backup not found")

	// ErrSnapshotCorrupt indicates a snapshot failed its integrity checks.
	ErrSnapshotCorrupt = NewDomainError("GB-SNAP-5002", "snapshot corrupt")
)

// ============================================================================
// Job Errors (JOB)
// ============================================================================

var (
	// ErrAlreadyInProgress indicates an export for the same group is in flight.
	ErrAlreadyInProgress = NewDomainError("GB-JOB-4091", "backup already in progress for this grid")

	// ErrRunInProgress indicates a backup sweep is already running.
	ErrRunInProgress = NewDomainError("GB-JOB-4092", "backup run already in progress")

	// ErrSerialization indicates the grid serializer failed.
	ErrSerialization = NewDomainError("GB-JOB-5001", "grid serialization failed")

	// ErrTimeout indicates a job exceeded its time budget.
	ErrTimeout = NewDomainError("GB-JOB-5040", "backup job timed out")

	// ErrRunNotFound indicates no recorded run has the given id.
	ErrRunNotFound = NewDomainError("GB-JOB-4040", "backup run not found")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError("GB-SYS-5000", "internal server error")

	// ErrIO indicates a filesystem or storage failure.
	ErrIO = NewDomainError("GB-SYS-5001", "storage error")

	// ErrServiceUnavailable indicates the service is temporarily unavailable.
	ErrServiceUnavailable = NewDomainError("GB-SYS-5030", "service unavailable")

	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = NewDomainError("GB-SYS-4000", "bad request")

	// ErrRateLimited indicates too many requests.
	ErrRateLimited = NewDomainError("GB-SYS-4290", "too many requests")

	// ErrForbidden indicates the caller may not use this endpoint.
	ErrForbidden = NewDomainError("GB-SYS-4030", "forbidden")
)

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("GB-ARG-1001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("GB-ARG-1002", "missing required argument")
)
