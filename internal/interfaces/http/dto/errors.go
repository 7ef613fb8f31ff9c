package dto

import (
	"net/http"
	"strings"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeGateway is used when the payment gateway rejected or failed a command
	ErrCodeGateway = "ERR_GATEWAY"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeValidationRequired is used when a required field is missing
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	// ErrCodeValidationFormat is used when a field has invalid format
	ErrCodeValidationFormat = "ERR_VALIDATION_FORMAT"
	// ErrCodeValidationRange is used when a value is out of range
	ErrCodeValidationRange = "ERR_VALIDATION_RANGE"
)

// Authentication error codes
const (
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
)

// Resource error codes
const (
	ErrCodeNotFound      = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	ErrCodeConflict      = "ERR_CONFLICT"
	ErrCodeInvalidState  = "ERR_INVALID_STATE"
)

// Input error codes
const (
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput    = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON     = "ERR_INVALID_JSON"
	ErrCodePayloadTooLarge = "ERR_PAYLOAD_TOO_LARGE"
)

// Rate limiting error codes
const (
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// Payment domain codes raised by the ledger and billing services
const (
	CodeInstallmentAlreadyPaid  = "INSTALLMENT_ALREADY_PAID"
	CodeInvalidAmount           = "INVALID_AMOUNT"
	CodeAmountExceedsBalance    = "AMOUNT_EXCEEDS_BALANCE"
	CodeInstallmentSaleMismatch = "INSTALLMENT_SALE_MISMATCH"
	CodeNoEligibleInstallment   = "NO_ELIGIBLE_INSTALLMENT"
	CodeSaleCancelled           = "SALE_CANCELLED"
	CodeMissingPaymentTarget    = "MISSING_PAYMENT_TARGET"
	CodeDuplicatePaymentRef     = "DUPLICATE_PAYMENT_REFERENCE"
	CodeRefundExceedsPaid       = "REFUND_EXCEEDS_PAID"
	CodeMissingPaymentReference = "MISSING_PAYMENT_REFERENCE"
	CodeInvalidRefundState      = "INVALID_REFUND_STATE"
	CodeMissingPriceID          = "MISSING_PRICE_ID"
	CodeSubscriptionCanceled    = "SUBSCRIPTION_CANCELED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,
	ErrCodeGateway:  http.StatusBadGateway,

	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,
	ErrCodeValidationRange:    http.StatusBadRequest,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeAlreadyExists: http.StatusConflict,
	ErrCodeConflict:      http.StatusConflict,
	ErrCodeInvalidState:  http.StatusConflict,

	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodePayloadTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeRateLimited: http.StatusTooManyRequests,

	// Malformed or impossible requests -> 400
	CodeInvalidAmount:           http.StatusBadRequest,
	CodeAmountExceedsBalance:    http.StatusBadRequest,
	CodeNoEligibleInstallment:   http.StatusBadRequest,
	CodeInstallmentSaleMismatch: http.StatusBadRequest,
	CodeMissingPaymentTarget:    http.StatusBadRequest,
	CodeRefundExceedsPaid:       http.StatusBadRequest,
	CodeMissingPaymentReference: http.StatusBadRequest,
	CodeMissingPriceID:          http.StatusBadRequest,

	// The request is well formed but the ledger state forbids it -> 409
	CodeInstallmentAlreadyPaid: http.StatusConflict,
	CodeSaleCancelled:          http.StatusConflict,
	CodeDuplicatePaymentRef:    http.StatusConflict,
	CodeInvalidRefundState:     http.StatusConflict,
	CodeSubscriptionCanceled:   http.StatusConflict,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unlisted codes fall back on naming: *_NOT_FOUND is 404, INVALID_* is 400, anything else 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	switch {
	case strings.HasSuffix(code, "_NOT_FOUND"):
		return http.StatusNotFound
	case strings.HasPrefix(code, "INVALID_"):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// LegacyErrorCodeMapping maps the generic domain codes to the standardized ERR_* codes.
// Payment-specific codes are returned to clients unchanged.
var LegacyErrorCodeMapping = map[string]string{
	"NOT_FOUND":        ErrCodeNotFound,
	"ALREADY_EXISTS":   ErrCodeAlreadyExists,
	"INVALID_INPUT":    ErrCodeInvalidInput,
	"INVALID_STATE":    ErrCodeInvalidState,
	"UNAUTHORIZED":     ErrCodeUnauthorized,
	"FORBIDDEN":        ErrCodeForbidden,
	"VALIDATION_ERROR": ErrCodeValidation,
	"BAD_REQUEST":      ErrCodeBadRequest,
	"INTERNAL_ERROR":   ErrCodeInternal,
}

// NormalizeErrorCode converts a generic domain code to the standardized format.
// If the code is already in the new format or domain-specific, returns it as-is.
func NormalizeErrorCode(code string) string {
	if newCode, ok := LegacyErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}
