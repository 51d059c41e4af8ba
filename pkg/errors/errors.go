package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// ErrorCode is a stable, machine-readable error code surfaced to API callers.
type ErrorCode string

const (
	ErrValidation        ErrorCode = "VALIDATION_ERROR"
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrSlotConflict      ErrorCode = "SLOT_CONFLICT"
	ErrVersionConflict   ErrorCode = "VERSION_CONFLICT"
	ErrHasInProgress     ErrorCode = "HAS_IN_PROGRESS"
	ErrDeptAccessDenied  ErrorCode = "DEPT_ACCESS_DENIED"
	ErrCrossTenantAccess ErrorCode = "CROSS_TENANT_ACCESS"
	ErrPermissionDenied  ErrorCode = "PERMISSION_DENIED"
	ErrInternal          ErrorCode = "INTERNAL"
)

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode maps the error code to an HTTP status, consumed by the
// error-handling middleware.
func (e *AppError) StatusCode() int {
	switch e.Code {
	case ErrValidation:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrSlotConflict, ErrVersionConflict, ErrHasInProgress:
		return http.StatusConflict
	case ErrDeptAccessDenied, ErrCrossTenantAccess, ErrPermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error constructors
func Validation(message string, err error) *AppError {
	return &AppError{Code: ErrValidation, Message: message, Err: err}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func SlotConflict(practitionerID uuid.UUID, date, t string) *AppError {
	return &AppError{
		Code:    ErrSlotConflict,
		Message: fmt.Sprintf("practitioner %s already booked for %s %s", practitionerID, date, t),
	}
}

func VersionConflict(resource string) *AppError {
	return &AppError{
		Code:    ErrVersionConflict,
		Message: fmt.Sprintf("%s was modified concurrently, refetch and retry", resource),
	}
}

// HasInProgressError signals the single-in-progress-per-practitioner guard.
// ConflictingVisitID lets the caller resolve or force the override.
type HasInProgressError struct {
	AppError
	ConflictingVisitID uuid.UUID `json:"conflicting_visit_id"`
}

// Unwrap exposes the embedded AppError so errors.As finds the code.
func (e *HasInProgressError) Unwrap() error {
	return &e.AppError
}

func HasInProgress(conflictingVisitID uuid.UUID) *HasInProgressError {
	return &HasInProgressError{
		AppError: AppError{
			Code:    ErrHasInProgress,
			Message: "practitioner already has a consultation in progress",
		},
		ConflictingVisitID: conflictingVisitID,
	}
}

func DeptAccessDenied(departmentID uuid.UUID) *AppError {
	return &AppError{
		Code:    ErrDeptAccessDenied,
		Message: fmt.Sprintf("no access to department %s", departmentID),
	}
}

func CrossTenantAccess() *AppError {
	return &AppError{
		Code:    ErrCrossTenantAccess,
		Message: "record belongs to another tenant",
	}
}

func PermissionDenied(capability string) *AppError {
	return &AppError{
		Code:    ErrPermissionDenied,
		Message: fmt.Sprintf("missing capability %s", capability),
	}
}

func Internal(err error) *AppError {
	return &AppError{Code: ErrInternal, Message: "internal server error", Err: err}
}

// CodeOf extracts the application error code, defaulting to INTERNAL for
// errors that did not originate from this package.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
