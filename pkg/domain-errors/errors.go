// Package domainerrors defines the error taxonomy the core reports to its
// callers. The HTTP layer owns the mapping to transport status codes; nothing
// below the handlers decides a status code itself.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code classifies a domain error.
type Code string

const (
	// CodeInvalidArgument marks malformed or missing required input.
	CodeInvalidArgument Code = "invalid_argument"
	// CodeConflict marks a natural-key collision, including an idempotent
	// create racing a concurrent duplicate.
	CodeConflict Code = "conflict"
	// CodeNotFound marks an absent entity or nested sub-entity.
	CodeNotFound Code = "not_found"
	// CodeForbidden marks a failed ownership or role check.
	CodeForbidden Code = "forbidden"
	// CodeUnavailable marks a transient backing-store failure. It must never
	// be down-mapped to CodeNotFound.
	CodeUnavailable Code = "unavailable"
	// CodeInternal marks an unexpected failure.
	CodeInternal Code = "internal_error"
)

// DomainError carries a taxonomy code plus a human-readable message.
type DomainError struct {
	Code    Code
	Message string
	Details []string
	wrapped error
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return string(e.Code) + ": " + e.Message
	}
	return string(e.Code)
}

func (e *DomainError) Unwrap() error { return e.wrapped }

// New builds a DomainError with the given code and message.
func New(code Code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// Wrap annotates an underlying error with a taxonomy code so the cause stays
// available via errors.Unwrap.
func Wrap(code Code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, wrapped: err}
}

// Invalid builds an invalid-argument error carrying the full list of
// validation messages; validation never reports just the first failure.
func Invalid(details []string) *DomainError {
	msg := "ogiltiga fält"
	if len(details) == 1 {
		msg = details[0]
	}
	return &DomainError{Code: CodeInvalidArgument, Message: msg, Details: details}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the taxonomy code, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a taxonomy code to a transport status. Used only by the
// HTTP layer.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
