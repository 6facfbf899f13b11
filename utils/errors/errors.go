package errors

import (
	"fmt"
	"net/http"
)

// APIError represents a custom error type for API responses
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Details any    `json:"details,omitempty"`

	cause error
}

// FieldError describes a single invalid request field.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"msg"`
}

// Error returns the error message
func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return e.cause }

// Is reports whether target is an APIError of the same kind, so sentinels
// match errors built with a different message.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Cause returns the underlying error that was wrapped, if any.
func (e *APIError) Cause() error { return e.cause }

// WithMessage returns a copy of e carrying a different message.
func (e *APIError) WithMessage(message string) *APIError {
	cp := *e
	cp.Message = message
	return &cp
}

func NewAPIError(code, message string, status int, details ...any) *APIError {
	err := &APIError{
		Code:    code,
		Message: message,
		Status:  status,
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

const (
	CodeInvalidInput = "INVALID_INPUT"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_SERVER_ERROR"
)

var (
	ErrInvalidInput = NewAPIError(CodeInvalidInput, "Invalid request data", http.StatusBadRequest)
	ErrUnauthorized = NewAPIError(CodeUnauthorized, "Authentication required", http.StatusUnauthorized)
	ErrForbidden    = NewAPIError(CodeForbidden, "Not allowed to modify this resource", http.StatusForbidden)
	ErrNotFound     = NewAPIError(CodeNotFound, "Resource not found", http.StatusNotFound)
	ErrInternal     = NewAPIError(CodeInternal, "Internal server error", http.StatusInternalServerError)
	// Conflicts (duplicate username, already friends, self-friending) are
	// reported as 400 by the public API.
	ErrConflict = NewAPIError(CodeConflict, "Resource conflict", http.StatusBadRequest)
)

// Validation builds an INVALID_INPUT error scoped to the given fields.
func Validation(message string, fields ...FieldError) *APIError {
	err := ErrInvalidInput.WithMessage(message)
	if len(fields) > 0 {
		err.Details = fields
	}
	return err
}

// Required returns a FieldError when value is empty.
func Required(field, value string) *FieldError {
	if value == "" {
		return &FieldError{Field: field, Msg: "required"}
	}
	return nil
}

// Collect drops nil entries from checks.
func Collect(checks ...*FieldError) []FieldError {
	var out []FieldError
	for _, c := range checks {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out
}

// Wrap converts err into an APIError. An APIError is returned unchanged;
// anything else keeps err as its cause so it can be logged, while the response
// only carries the generic message.
func Wrap(err error, code, message string, status int) *APIError {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr
	}
	return &APIError{Code: code, Message: message, Status: status, cause: err}
}

// Internal wraps a storage or unexpected failure into a 500.
func Internal(err error, message string) *APIError {
	return Wrap(err, CodeInternal, message, http.StatusInternalServerError)
}
