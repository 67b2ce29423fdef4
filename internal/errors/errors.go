// Package errors provides standardized error handling for the catalog service.
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents a standardized error code for the catalog service.
type ErrorCode string

const (
	// Validation errors
	CAT_VALIDATION    ErrorCode = "CAT_VALIDATION"    // General validation error
	CAT_SCHEMA_REJECT ErrorCode = "CAT_SCHEMA_REJECT" // Request body failed schema validation
	CAT_BAD_REQUEST   ErrorCode = "CAT_BAD_REQUEST"   // Malformed request

	// Resource errors
	CAT_NOT_FOUND         ErrorCode = "CAT_NOT_FOUND"         // Batch, folder or session not found
	CAT_CONFLICT          ErrorCode = "CAT_CONFLICT"          // Resource conflict
	CAT_ELEMENT_IN_USE    ErrorCode = "CAT_ELEMENT_IN_USE"    // Media element owned by another session
	CAT_CYCLE             ErrorCode = "CAT_CYCLE"             // Folder already on the navigation path
	CAT_CONTROLS_DISABLED ErrorCode = "CAT_CONTROLS_DISABLED" // Transport control used while in error
	CAT_SESSION_CLOSED    ErrorCode = "CAT_SESSION_CLOSED"    // Session already closed

	// Server errors
	CAT_INTERNAL        ErrorCode = "CAT_INTERNAL"        // Internal server error
	CAT_UNAVAILABLE     ErrorCode = "CAT_UNAVAILABLE"     // Dependency unavailable
	CAT_UPSTREAM        ErrorCode = "CAT_UPSTREAM"        // Opening or resolving content failed
	CAT_NOT_IMPLEMENTED ErrorCode = "CAT_NOT_IMPLEMENTED" // Not implemented
)

// Error represents a standardized error response.
type Error struct {
	Code          ErrorCode   `json:"code"`
	Message       string      `json:"message"`
	CorrelationID string      `json:"correlationId"`
	Details       interface{} `json:"details,omitempty"`
	HTTPStatus    int         `json:"-"`
}

// New creates a new Error with the specified code and message.
func New(code ErrorCode, message string, correlationID string) *Error {
	return &Error{
		Code:          code,
		Message:       message,
		CorrelationID: correlationID,
		HTTPStatus:    HTTPStatus(code),
	}
}

// NewWithDetails creates a new Error with the specified code, message, and details.
func NewWithDetails(code ErrorCode, message string, correlationID string, details interface{}) *Error {
	e := New(code, message, correlationID)
	e.Details = details
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%s: %s (details: %v)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPStatus maps error codes to HTTP status codes.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case CAT_VALIDATION, CAT_SCHEMA_REJECT, CAT_BAD_REQUEST:
		return http.StatusBadRequest
	case CAT_NOT_FOUND:
		return http.StatusNotFound
	case CAT_CONFLICT, CAT_ELEMENT_IN_USE, CAT_CYCLE, CAT_CONTROLS_DISABLED:
		return http.StatusConflict
	case CAT_SESSION_CLOSED:
		return http.StatusGone
	case CAT_UPSTREAM:
		return http.StatusBadGateway
	case CAT_UNAVAILABLE:
		return http.StatusServiceUnavailable
	case CAT_NOT_IMPLEMENTED:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
