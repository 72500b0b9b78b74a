package dto

import (
	"net/http"

	"github.com/stockroom/backend/internal/domain/shared"
)

// Error codes that do not come from the domain
const (
	ErrCodeInternal     = "ERR_INTERNAL"
	ErrCodeValidation   = "ERR_VALIDATION"
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
)

// Error codes for domain error kinds
const (
	ErrCodeAccessDenied        = "ERR_ACCESS_DENIED"
	ErrCodeConnection          = "ERR_TENANT_UNAVAILABLE"
	ErrCodeDuplicateBarcode    = "ERR_DUPLICATE_BARCODE"
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeInsufficientStock   = "ERR_INSUFFICIENT_STOCK"
	ErrCodeInvalidInput        = "ERR_INVALID_INPUT"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	ErrCodePartialTransfer     = "ERR_PARTIAL_TRANSFER"
)

type kindMapping struct {
	code   string
	status int
}

// kindMappings maps domain error kinds to API codes and HTTP statuses
var kindMappings = map[shared.ErrorKind]kindMapping{
	shared.KindAccessDenied:        {ErrCodeAccessDenied, http.StatusForbidden},
	shared.KindConnection:          {ErrCodeConnection, http.StatusServiceUnavailable},
	shared.KindDuplicateBarcode:    {ErrCodeDuplicateBarcode, http.StatusConflict},
	shared.KindNotFound:            {ErrCodeNotFound, http.StatusNotFound},
	shared.KindInsufficientStock:   {ErrCodeInsufficientStock, http.StatusUnprocessableEntity},
	shared.KindInvalidInput:        {ErrCodeInvalidInput, http.StatusBadRequest},
	shared.KindConcurrencyConflict: {ErrCodeConcurrencyConflict, http.StatusConflict},
	shared.KindPartialTransfer:     {ErrCodePartialTransfer, http.StatusAccepted},
}

// MapKind returns the API error code and HTTP status for a domain error kind.
// Unknown kinds map to an internal error.
func MapKind(kind shared.ErrorKind) (string, int) {
	if m, ok := kindMappings[kind]; ok {
		return m.code, m.status
	}
	return ErrCodeInternal, http.StatusInternalServerError
}
