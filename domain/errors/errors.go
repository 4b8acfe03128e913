// Package errors provides the sandbox error taxonomy. All error types support
// unwrapping via errors.As() and errors.Is() and convert to the wire-stable
// ErrorDetail structure.
package errors

import (
	stdErrors "errors"
	"fmt"
	"time"

	"github.com/warden-run/warden/domain/entities"
)

// ErrorDetail is an alias to entities.ErrorDetail for convenience.
type ErrorDetail = entities.ErrorDetail

// DetailedError is implemented by error types that can convert themselves to
// a structured ErrorDetail. New error types only need to implement this
// interface without modifying ToErrorDetail.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

// ToErrorDetail converts a Go error to a structured ErrorDetail, recognizing
// the sandbox's typed errors and categorizing anything else as internal.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	var e *entities.ErrorDetail
	if stdErrors.As(err, &e) {
		return e
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	return &entities.ErrorDetail{
		Message: err.Error(),
		Type:    "internal",
	}
}

// ViolationKind categorizes security violations.
type ViolationKind string

const (
	UnauthorizedFileAccess        ViolationKind = "unauthorized_file_access"
	UnauthorizedNetworkAccess     ViolationKind = "unauthorized_network_access"
	UnauthorizedEnvironmentAccess ViolationKind = "unauthorized_environment_access"
	CrossTenantAccess             ViolationKind = "cross_tenant_access"
)

// SecurityViolationError is returned when a guest-requested operation is not
// covered by the held grant set. It always names the specific descriptor that
// failed so the denial is actionable.
type SecurityViolationError struct {
	Kind       ViolationKind
	Operation  string // e.g. "read", "write", "connect", "listen"
	Descriptor string // the path, host:port, or variable name that was denied
}

func (e *SecurityViolationError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("security violation (%s): %s %s denied", e.Kind, e.Operation, e.Descriptor)
	}
	return fmt.Sprintf("security violation (%s): %s denied", e.Kind, e.Descriptor)
}

// ToErrorDetail implements DetailedError.
func (e *SecurityViolationError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message: e.Error(),
		Type:    "security",
		Code:    string(e.Kind),
		Details: map[string]any{
			"operation":  e.Operation,
			"descriptor": e.Descriptor,
		},
	}
}

// ResourceExhaustedError is returned when a reservation or consumption would
// exceed a resource limit. Fatal to the current call; never retried
// automatically.
type ResourceExhaustedError struct {
	Dimension string // "memory", "fuel", "time", "files", "connections"
	Requested uint64 // total that would have been consumed
	Limit     uint64
}

func (e *ResourceExhaustedError) Error() string {
	return fmt.Sprintf("resource exhausted: %s requested %d exceeds limit %d",
		e.Dimension, e.Requested, e.Limit)
}

// ToErrorDetail implements DetailedError.
func (e *ResourceExhaustedError) ToErrorDetail() *entities.ErrorDetail {
	detail := &entities.ErrorDetail{
		Message: e.Error(),
		Type:    "resource",
		Code:    e.Dimension,
		Details: map[string]any{
			"dimension": e.Dimension,
			"requested": e.Requested,
			"limit":     e.Limit,
		},
	}
	if e.Dimension == "time" {
		detail.IsTimeout = true
	}
	return detail
}

// Timeout reports whether the exhausted dimension was wall-clock time.
func (e *ResourceExhaustedError) Timeout() bool {
	return e.Dimension == "time"
}

// StreamErrorKind categorizes stream transport failures.
type StreamErrorKind string

const (
	StreamSequenceGap StreamErrorKind = "sequence_gap"
	StreamClosed      StreamErrorKind = "closed"
	StreamCancelled   StreamErrorKind = "cancelled"
)

// StreamError is returned by channel operations. SequenceGap and Cancelled
// close the channel; Closed reports operations against an already-closed
// channel. A stream error never aborts unrelated calls.
type StreamError struct {
	Kind StreamErrorKind

	// Expected and Got describe the sequence mismatch for SequenceGap.
	Expected uint64
	Got      uint64
}

func (e *StreamError) Error() string {
	switch e.Kind {
	case StreamSequenceGap:
		return fmt.Sprintf("stream sequence gap: expected %d, got %d", e.Expected, e.Got)
	case StreamCancelled:
		return "stream cancelled"
	default:
		return "stream closed"
	}
}

// ToErrorDetail implements DetailedError.
func (e *StreamError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message: e.Error(),
		Type:    "stream",
		Code:    string(e.Kind),
	}
}

// IsStreamClosed reports whether err is a StreamError of kind Closed.
func IsStreamClosed(err error) bool {
	var se *StreamError
	return stdErrors.As(err, &se) && se.Kind == StreamClosed
}

// IsStreamCancelled reports whether err is a StreamError of kind Cancelled.
func IsStreamCancelled(err error) bool {
	var se *StreamError
	return stdErrors.As(err, &se) && se.Kind == StreamCancelled
}

// TenantErrorKind categorizes tenant lifecycle failures.
type TenantErrorKind string

const (
	TenantAlreadyExists    TenantErrorKind = "already_exists"
	TenantNotFound         TenantErrorKind = "not_found"
	TenantQuotaUnavailable TenantErrorKind = "quota_unavailable"
	TenantDestroyed        TenantErrorKind = "destroyed"
)

// TenantError is returned by tenant lifecycle operations and by in-flight
// operations that observe their tenant's destruction.
type TenantError struct {
	Kind TenantErrorKind
	ID   string
}

func (e *TenantError) Error() string {
	switch e.Kind {
	case TenantAlreadyExists:
		return fmt.Sprintf("tenant %q already exists", e.ID)
	case TenantNotFound:
		return fmt.Sprintf("tenant %q not found", e.ID)
	case TenantQuotaUnavailable:
		return fmt.Sprintf("tenant %q quota reservation exceeds system capacity", e.ID)
	default:
		return fmt.Sprintf("tenant %q destroyed", e.ID)
	}
}

// ToErrorDetail implements DetailedError.
func (e *TenantError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message: e.Error(),
		Type:    "tenant",
		Code:    string(e.Kind),
		Details: map[string]any{"tenant": e.ID},
	}
}

// IsTenantDestroyed reports whether err is a TenantError of kind Destroyed.
func IsTenantDestroyed(err error) bool {
	var te *TenantError
	return stdErrors.As(err, &te) && te.Kind == TenantDestroyed
}

// TimeoutError represents a wall-clock timeout during an operation that is
// not itself a ledger dimension (e.g. a network operation timeout).
type TimeoutError struct {
	Operation string
	Duration  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timeout after %v", e.Operation, e.Duration)
}

func (e *TimeoutError) Timeout() bool {
	return true
}

// ToErrorDetail implements DetailedError.
func (e *TimeoutError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "timeout", Code: e.Operation, IsTimeout: true}
}
