package errors

import (
	"fmt"
)

// ErrorCategory represents the category of error for handling
type ErrorCategory string

const (
	CategoryDeclined       ErrorCategory = "declined"
	CategoryExternalCall   ErrorCategory = "external_call"
	CategorySystemError    ErrorCategory = "system_error"
	CategoryInvalidRequest ErrorCategory = "invalid_request"
)

// GatewayError represents a failed payment or risk-check interaction with
// the Computop gateway. Suppressed marks error codes that are policy-hidden
// from the shopper and only surface in internal logs.
type GatewayError struct {
	Code           string
	Message        string
	GatewayMessage string
	Category       ErrorCategory
	Suppressed     bool
}

func (e *GatewayError) Error() string {
	if e.GatewayMessage != "" {
		return fmt.Sprintf("%s: %s (gateway: %s)", e.Code, e.Message, e.GatewayMessage)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// UserMessage returns the text safe to show a shopper
func (e *GatewayError) UserMessage() string {
	if e.Suppressed {
		return "payment could not be completed"
	}
	return e.Message
}

// NewGatewayError creates a new gateway error
func NewGatewayError(code, message string, category ErrorCategory) *GatewayError {
	return &GatewayError{
		Code:     code,
		Message:  message,
		Category: category,
	}
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
