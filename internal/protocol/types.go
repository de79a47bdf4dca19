package protocol

import "encoding/json"

// Version is the live-data wire protocol version
const Version = "1"

// Domain error codes returned by the live-data source
const (
	CodeBadRequest  = 400
	CodeNotFound    = 404
	CodeInternal    = 500
	CodeUnavailable = 503
)

// Error represents a domain-level failure reported by the live-data source,
// either for a whole call or for a single ref within it
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// NewError creates a new protocol error
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Common errors
var (
	ErrBadRequest  = NewError(CodeBadRequest, "bad request")
	ErrNotFound    = NewError(CodeNotFound, "record not found")
	ErrInternal    = NewError(CodeInternal, "internal error")
	ErrUnavailable = NewError(CodeUnavailable, "source unavailable")
)

// ResultElement is one per-ref outcome inside a response.
// Exactly one of Value or Error is set.
type ResultElement struct {
	Value json.RawMessage `json:"value,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// HasError returns true if the element carries a per-ref failure
func (e *ResultElement) HasError() bool {
	return e.Error != nil
}
