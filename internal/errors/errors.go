package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a pronounguard error code.
type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"   // 400
	ErrNotFound         ErrorCode = "NOT_FOUND"         // 404
	ErrUnparseableLabel ErrorCode = "UNPARSEABLE_LABEL" // 422
	ErrSourceFailed     ErrorCode = "SOURCE_FAILED"     // 502
	ErrCancelled        ErrorCode = "CANCELLED"         // 499
	ErrInternal         ErrorCode = "INTERNAL"          // 500
)

// GuardError represents a structured error with code, status, and details.
type GuardError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *GuardError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *GuardError {
	return &GuardError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a person with no directory entry.
func NewNotFound(personID string) *GuardError {
	return &GuardError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("no pronoun entry for person: %s", personID),
		Details: map[string]any{"person_id": personID},
	}
}

// NewFileNotFound creates a 404 error for a missing import file.
func NewFileNotFound(path string) *GuardError {
	return &GuardError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewUnparseableLabel creates a 422 error for a label that cannot be
// expanded into a role table.
func NewUnparseableLabel(label string) *GuardError {
	return &GuardError{
		Code:    ErrUnparseableLabel,
		Status:  422,
		Message: fmt.Sprintf("unparseable pronoun label: %q", label),
		Details: map[string]any{"label": label},
	}
}

// NewSourceFailed creates a 502 error for a directory source failure.
// personID and source are kept in Details for logging.
func NewSourceFailed(source, personID string, err error) *GuardError {
	details := map[string]any{"source": source, "person_id": personID}
	if err != nil {
		details["cause"] = err.Error()
	}
	return &GuardError{
		Code:    ErrSourceFailed,
		Status:  502,
		Message: fmt.Sprintf("source %s failed", source),
		Details: details,
	}
}

// NewCancelled creates a 499 error for an operation whose context ended.
func NewCancelled(op string) *GuardError {
	return &GuardError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message stays generic; the cause goes to Details for logging.
func NewInternal(err error) *GuardError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &GuardError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// Is checks if an error is (or wraps) a GuardError with the given code.
func Is(err error, code ErrorCode) bool {
	var gErr *GuardError
	if stderrors.As(err, &gErr) {
		return gErr.Code == code
	}
	return false
}
