package hostfuncs

import (
	"encoding/json"
	"fmt"

	"github.com/warden-run/warden/domain/errors"
	"github.com/warden-run/warden/domain/ports"
)

// ErrorResponse represents a structured error that can be returned as JSON to
// guests. This ensures guests receive consistent, parseable errors instead of
// causing runtime traps.
type ErrorResponse struct {
	// Error is a machine-readable error type identifier (e.g., "SECURITY_VIOLATION").
	Error string `json:"error"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Code is a numeric error code (e.g., 400, 403, 500).
	Code int `json:"code"`
}

// ToJSON serializes the ErrorResponse to JSON bytes.
// Returns nil if serialization fails (which should never happen for this simple type).
func (e ErrorResponse) ToJSON() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	return data
}

// NewValidationError creates an error response for bad input (e.g., malformed JSON).
func NewValidationError(message string) ErrorResponse {
	return ErrorResponse{
		Error:   "VALIDATION_ERROR",
		Message: message,
		Code:    400,
	}
}

// NewNotFoundError creates an error response for unknown handler names.
func NewNotFoundError(name string) ErrorResponse {
	return ErrorResponse{
		Error:   "NOT_FOUND",
		Message: "unknown host function: " + name,
		Code:    404,
	}
}

// NewDeniedError creates an error response for a capability denial. The
// message carries the specific descriptor that failed so the guest author
// can fix the grant, without leaking anything beyond the denied request.
func NewDeniedError(decision ports.Decision) ErrorResponse {
	message := decision.Reason
	if decision.Descriptor != "" {
		message = fmt.Sprintf("%s %q denied: %s", decision.Operation, decision.Descriptor, decision.Reason)
	}
	return ErrorResponse{
		Error:   "SECURITY_VIOLATION",
		Message: message,
		Code:    403,
	}
}

// NewExhaustedError creates an error response for a resource limit hit.
func NewExhaustedError(message string) ErrorResponse {
	return ErrorResponse{
		Error:   "RESOURCE_EXHAUSTED",
		Message: message,
		Code:    429,
	}
}

// LedgerErrorResponse maps a ledger refusal to its guest-facing response.
// A destroyed tenant is terminal, not a limit the guest can back off from,
// so it gets its own code.
func LedgerErrorResponse(err error) ErrorResponse {
	if errors.IsTenantDestroyed(err) {
		return NewTenantGoneError(err.Error())
	}
	return NewExhaustedError(err.Error())
}

// NewTenantGoneError creates an error response for operations attempted after
// the owning tenant was destroyed.
func NewTenantGoneError(message string) ErrorResponse {
	return ErrorResponse{
		Error:   "TENANT_DESTROYED",
		Message: message,
		Code:    410,
	}
}

// NewInternalError creates an error response for unexpected failures.
func NewInternalError(message string) ErrorResponse {
	return ErrorResponse{
		Error:   "INTERNAL_ERROR",
		Message: message,
		Code:    500,
	}
}

// NewPanicError creates an error response for recovered panics.
func NewPanicError(panicValue any) ErrorResponse {
	var msg string
	if err, ok := panicValue.(error); ok {
		msg = err.Error()
	} else if s, ok := panicValue.(string); ok {
		msg = s
	} else {
		msg = "panic recovered"
	}
	return ErrorResponse{
		Error:   "INTERNAL_ERROR",
		Message: "panic: " + msg,
		Code:    500,
	}
}
