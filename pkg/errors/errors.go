package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a domain failure carrying a stable code and the HTTP status it maps to.
// Details holds machine-readable context such as the id of a conflicting session.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// WithDetails returns a copy of e with key set in Details. Predefined errors are never mutated.
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		clone.Details[k] = v
	}
	clone.Details[key] = value
	return &clone
}

// Conflict builds an overlap rejection of kind naming the session it collided with.
func Conflict(kind *Error, conflictingSessionID string) *Error {
	err := Wrap(fmt.Errorf("overlaps session %s", conflictingSessionID), kind.Code, kind.Status, kind.Message)
	return err.WithDetails("conflicting_session_id", conflictingSessionID)
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Scheduling and enrollment errors. All conflicts map to 409 and carry no partial effect.
var (
	ErrInvalidWindow       = New("INVALID_WINDOW", http.StatusBadRequest, "start must be before end")
	ErrInvalidState        = New("INVALID_STATE", http.StatusConflict, "transition not allowed from current state")
	ErrInstructorConflict  = New("INSTRUCTOR_CONFLICT", http.StatusConflict, "instructor already has a session in this window")
	ErrStudentConflict     = New("STUDENT_CONFLICT", http.StatusConflict, "student already holds a seat in an overlapping session")
	ErrDuplicateEnrollment = New("DUPLICATE_ENROLLMENT", http.StatusConflict, "student already enrolled in session")
	ErrCapacityExceeded    = New("CAPACITY_EXCEEDED", http.StatusConflict, "session is full")
	ErrAlreadyMarked       = New("ALREADY_MARKED", http.StatusConflict, "attendance already marked")
	ErrWaitlistDisabled    = New("WAITLIST_DISABLED", http.StatusConflict, "waitlist disabled for session")
	ErrSeatsAvailable      = New("SEATS_AVAILABLE", http.StatusConflict, "session still has seats available")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Is reports whether err carries the same code as target.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code == target.Code
	}
	return false
}
