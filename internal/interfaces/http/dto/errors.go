package dto

import (
	"errors"
	"net/http"

	"github.com/enercompare/backend/internal/domain/shared"
)

// Error codes exposed by the public API. They mirror the domain error codes
// one to one; handlers never invent codes of their own.
const (
	ErrCodeNoSession            = "NO_SESSION"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeClickNotFound        = "CLICK_NOT_FOUND"
	ErrCodeOutsideWindow        = "OUTSIDE_WINDOW"
	ErrCodeInvalidInput         = "INVALID_INPUT"
	ErrCodeDuplicateConversion  = "DUPLICATE_CONVERSION"
	ErrCodeInvalidState         = "INVALID_STATE"
	ErrCodeUpstreamThrottled    = "UPSTREAM_THROTTLED"
	ErrCodeUpstreamUnavailable  = "UPSTREAM_UNAVAILABLE"
	ErrCodeUpstreamFailed       = "UPSTREAM_FAILED"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// ErrorCodeHTTPStatus maps API error codes to HTTP status codes.
// CLICK_NOT_FOUND and OUTSIDE_WINDOW both map to 404 so the webhook caller
// cannot distinguish an unknown click from an expired one.
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeNoSession:           http.StatusUnauthorized,
	ErrCodeUnauthorized:        http.StatusUnauthorized,
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeClickNotFound:       http.StatusNotFound,
	ErrCodeOutsideWindow:       http.StatusNotFound,
	ErrCodeInvalidInput:        http.StatusBadRequest,
	ErrCodeDuplicateConversion: http.StatusConflict,
	ErrCodeInvalidState:        http.StatusUnprocessableEntity,
	ErrCodeUpstreamThrottled:   http.StatusTooManyRequests,
	ErrCodeUpstreamUnavailable: http.StatusBadGateway,
	ErrCodeUpstreamFailed:      http.StatusBadGateway,
	ErrCodeRateLimited:         http.StatusTooManyRequests,
	ErrCodeInternal:            http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status for an error code, defaulting to 500
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// FromError resolves any error to an API code, message, and HTTP status.
// Domain errors keep their code and message; anything else becomes a generic
// 500 so internal detail never leaks to callers.
func FromError(err error) (code, message string, status int) {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code, domainErr.Message, GetHTTPStatus(domainErr.Code)
	}
	return ErrCodeInternal, "Internal server error", http.StatusInternalServerError
}
