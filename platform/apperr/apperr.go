// Package apperr provides standardized domain error types for the application.
// Domain services return these typed errors, and the HTTP layer maps them to
// status codes and a machine-readable reason string.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind represents the category of error.
type Kind int

const (
	// KindUnknown is the default error kind when none is specified.
	KindUnknown Kind = iota
	// KindNotFound indicates a referenced resource does not exist.
	KindNotFound
	// KindValidation indicates invalid input shape. Rejected before any write.
	KindValidation
	// KindConflict indicates a clash with existing state: a uniqueness race
	// or a resource that is not in the state the operation requires.
	KindConflict
	// KindUnauthorized indicates a missing or invalid admin credential.
	KindUnauthorized
	// KindRateLimited indicates the caller exceeded its submission budget.
	KindRateLimited
	// KindInternal indicates an unexpected internal error.
	KindInternal
	// KindGone indicates a resource that existed but is no longer available.
	KindGone
)

// Common reason codes returned to API clients.
const (
	ReasonValidation        = "validation_failed"
	ReasonServicesRequired  = "services_required"
	ReasonInvalidPhone      = "invalid_phone"
	ReasonAddressRequired   = "address_required"
	ReasonRateLimited       = "rate_limited"
	ReasonInvalidDiscount   = "invalid_discount"
	ReasonInvalidConcrete   = "invalid_concrete"
	ReasonInvalidDeposit    = "invalid_deposit_rate"
	ReasonUnknownService    = "unknown_service"
	ReasonUnknownAddOn      = "unknown_addon"
	ReasonInvalidOverride   = "invalid_override"
	ReasonDuplicate         = "duplicate"
	ReasonInvalidTransition = "invalid_transition"
	ReasonQuoteNotAccepted  = "quote_not_accepted"
	ReasonAlreadyDecided    = "already_decided"
	ReasonAlreadyScheduled  = "already_scheduled"
	ReasonNotFound          = "not_found"
	ReasonExpired           = "expired"
)

// Error is a domain error with a typed Kind for HTTP mapping.
type Error struct {
	Kind    Kind
	Message string
	Reason  string      // Machine-readable reason (optional)
	Op      string      // Operation that failed (optional)
	Err     error       // Underlying error (optional)
	Details interface{} // Additional details for response (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the appropriate HTTP status code for this error kind.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindInternal:
		return http.StatusInternalServerError
	case KindGone:
		return http.StatusGone
	default:
		return http.StatusBadRequest
	}
}

// ReasonCode returns the explicit reason or a default derived from the kind.
func (e *Error) ReasonCode() string {
	if e.Reason != "" {
		return e.Reason
	}
	switch e.Kind {
	case KindNotFound:
		return ReasonNotFound
	case KindValidation:
		return ReasonValidation
	case KindRateLimited:
		return ReasonRateLimited
	case KindGone:
		return ReasonExpired
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// New creates a new domain error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithOp sets the operation on the error.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithReason sets the machine-readable reason.
func (e *Error) WithReason(reason string) *Error {
	e.Reason = reason
	return e
}

// WithDetails attaches additional details for the response body.
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// NotFound creates a not found error.
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// Conflict creates a conflict error.
func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// Unauthorized creates an unauthorized error.
func Unauthorized(message string) *Error {
	return New(KindUnauthorized, message)
}

// RateLimited creates a rate limited error.
func RateLimited(message string) *Error {
	return New(KindRateLimited, message).WithReason(ReasonRateLimited)
}

// Internal creates an internal server error.
func Internal(message string) *Error {
	return New(KindInternal, message)
}

// Gone creates a gone error (resource expired/removed).
func Gone(message string) *Error {
	return New(KindGone, message)
}

// GetKind extracts the error kind from an error chain.
// Returns KindUnknown if no *Error is present.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is checks if err carries an *Error with the given kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// ReasonOf returns the reason code of the first *Error in the chain, or "".
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.ReasonCode()
	}
	return ""
}
