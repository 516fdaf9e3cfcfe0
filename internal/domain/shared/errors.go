package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNoSession            = NewDomainError("NO_SESSION", "No valid session")
	ErrNotFound             = NewDomainError("NOT_FOUND", "Resource not found")
	ErrInvalidInput         = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrUnauthorized         = NewDomainError("UNAUTHORIZED", "Not authorized to perform this action")
	ErrDuplicateConversion  = NewDomainError("DUPLICATE_CONVERSION", "Conversion already recorded for this click")
	ErrClickNotFound        = NewDomainError("CLICK_NOT_FOUND", "Click not found")
	ErrOutsideWindow        = NewDomainError("OUTSIDE_WINDOW", "Click is outside the attribution window")
	ErrInvalidTransition    = NewDomainError("INVALID_STATE", "Session status cannot move backwards")
	ErrUpstreamThrottled    = NewDomainError("UPSTREAM_THROTTLED", "Upstream API throttled the request")
	ErrUpstreamUnavailable  = NewDomainError("UPSTREAM_UNAVAILABLE", "Upstream API is temporarily unavailable")
	ErrUpstreamFailed       = NewDomainError("UPSTREAM_FAILED", "Upstream API request failed")
)
