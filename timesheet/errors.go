/*
errors.go - Error taxonomy for the timesheet engine

PURPOSE:
  All error types in one place. Services return these unmodified so the HTTP
  boundary can map them to a status code and an error code.

ERROR CATEGORIES:
  1. NotFound   - referenced Task/Project/TimeEntry/Area/User absent
  2. Forbidden  - AccessPolicy veto
  3. Validation - business rule violation, with a closed set of codes
  4. Conflict   - uniqueness or dependency conflict
  5. Store      - unique-constraint sentinels raised by Store implementations

USAGE:
  if errors.Is(err, timesheet.ErrForbidden) { ... }

  var verr *timesheet.ValidationError
  if errors.As(err, &verr) && verr.Code == timesheet.CodeDailyCapExceeded { ... }
*/
package timesheet

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")

	// ErrDuplicateEntry is returned by a Store when a time entry with the same
	// (user, project, task, date) already exists.
	ErrDuplicateEntry = errors.New("duplicate time entry")

	// ErrDuplicatePeriod is returned by a Store when the period already exists.
	ErrDuplicatePeriod = errors.New("duplicate time period")

	// ErrDuplicateAssignment is returned by a Store when an active assignment
	// for the same (project, user) already exists.
	ErrDuplicateAssignment = errors.New("duplicate active assignment")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func notFound(resource string, id any) error {
	return &NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
}

// ForbiddenError is an AccessPolicy veto.
type ForbiddenError struct {
	Action string
	Reason string
}

func (e *ForbiddenError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("not allowed to %s", e.Action)
	}
	return fmt.Sprintf("not allowed to %s: %s", e.Action, e.Reason)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

func forbidden(action, reason string) error {
	return &ForbiddenError{Action: action, Reason: reason}
}

// ValidationCode is the machine-readable kind of a ValidationError.
type ValidationCode string

const (
	CodeHoursBelowMinimum       ValidationCode = "HOURS_BELOW_MINIMUM"
	CodeHoursAboveMaximum       ValidationCode = "HOURS_ABOVE_MAXIMUM"
	CodeDateOutsideFutureWindow ValidationCode = "DATE_OUTSIDE_FUTURE_WINDOW"
	CodeDateOutsidePastWindow   ValidationCode = "DATE_OUTSIDE_PAST_WINDOW"
	CodeDailyCapExceeded        ValidationCode = "DAILY_CAP_EXCEEDED"
	CodeDuplicateEntry          ValidationCode = "DUPLICATE_ENTRY"
	CodeInvalidStatusTransition ValidationCode = "INVALID_STATUS_TRANSITION"
	CodeInvalidDateRange        ValidationCode = "INVALID_DATE_RANGE"
	CodeImmutableField          ValidationCode = "IMMUTABLE_FIELD"
	CodeInvalidDate             ValidationCode = "INVALID_DATE"
	CodeTaskProjectMismatch     ValidationCode = "TASK_PROJECT_MISMATCH"
	CodeEntryApproved           ValidationCode = "ENTRY_APPROVED"
	CodeInvalidInput            ValidationCode = "INVALID_INPUT"
)

// ValidationError is a business rule violation. Message is suitable for
// direct display to the user.
type ValidationError struct {
	Code    ValidationCode
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(code ValidationCode, field, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConflictError reports a uniqueness or dependency conflict.
type ConflictError struct {
	Resource string
	Message  string
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Unwrap() error { return ErrConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsClientError returns true if the error is due to the caller's input or rights.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict)
}

// ValidationCodeOf returns the code of a ValidationError in err's chain.
func ValidationCodeOf(err error) (ValidationCode, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Code, true
	}
	return "", false
}
