package shared

import "errors"

// ErrorKind classifies a DomainError so callers can tell retryable failures
// from terminal ones without matching on messages.
type ErrorKind string

const (
	KindAccessDenied        ErrorKind = "ACCESS_DENIED"
	KindConnection          ErrorKind = "CONNECTION_ERROR"
	KindDuplicateBarcode    ErrorKind = "DUPLICATE_BARCODE"
	KindNotFound            ErrorKind = "NOT_FOUND"
	KindInsufficientStock   ErrorKind = "INSUFFICIENT_STOCK"
	KindInvalidInput        ErrorKind = "INVALID_INPUT"
	KindConcurrencyConflict ErrorKind = "CONCURRENCY_CONFLICT"
	KindPartialTransfer     ErrorKind = "PARTIAL_TRANSFER"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Kind    ErrorKind `json:"-"`
	cause   error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Unwrap exposes the underlying cause, if any
func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is matches two domain errors by kind and code, so sentinel values such as
// ErrNotFound match errors created with NewDomainError for the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// NewDomainError creates a new domain error. The kind defaults to the code.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Kind:    ErrorKind(code),
	}
}

// NewKindError creates a domain error of the given kind using the kind as code.
func NewKindError(kind ErrorKind, message string) *DomainError {
	return &DomainError{
		Code:    string(kind),
		Message: message,
		Kind:    kind,
	}
}

// WrapKind returns a domain error of the given kind that wraps cause.
func WrapKind(kind ErrorKind, message string, cause error) *DomainError {
	return &DomainError{
		Code:    string(kind),
		Message: message,
		Kind:    kind,
		cause:   cause,
	}
}

// KindOf returns the kind of the first DomainError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether a caller may retry the failed operation.
// Connectivity failures and lost optimistic-lock races are; validation is not.
func IsRetryable(err error) bool {
	return IsKind(err, KindConnection) || IsKind(err, KindConcurrencyConflict)
}

// Common domain errors
var (
	ErrNotFound            = NewKindError(KindNotFound, "Resource not found")
	ErrAccessDenied        = NewKindError(KindAccessDenied, "Access to this tenant is denied")
	ErrDuplicateBarcode    = NewKindError(KindDuplicateBarcode, "Barcode already exists in this tenant")
	ErrInsufficientStock   = NewKindError(KindInsufficientStock, "Insufficient stock available")
	ErrInvalidInput        = NewKindError(KindInvalidInput, "Invalid input provided")
	ErrConcurrencyConflict = NewKindError(KindConcurrencyConflict, "Resource was modified by another process")
	ErrConnection          = NewKindError(KindConnection, "Tenant storage is unreachable")
)
