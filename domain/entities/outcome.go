package entities

import "time"

// OutcomeStatus is the terminal status of one guest call. Exactly one outcome
// is emitted per call.
type OutcomeStatus string

const (
	OutcomeSuccess           OutcomeStatus = "success"
	OutcomeSecurityViolation OutcomeStatus = "security_violation"
	OutcomeResourceExhausted OutcomeStatus = "resource_exhausted"
	OutcomeInternalError     OutcomeStatus = "internal_error"
)

// Telemetry is the execution report from the guest executor.
type Telemetry struct {
	InstructionsExecuted uint64 `json:"instructions_executed"`

	// MemoryDelta is the change in guest memory across the call, in bytes.
	MemoryDelta int64 `json:"memory_delta"`

	Duration time.Duration `json:"duration"`
}

// Outcome is the result of one orchestrated guest call.
type Outcome struct {
	Timestamp time.Time     `json:"timestamp"`
	Status    OutcomeStatus `json:"status"`

	// Value is the guest's return payload on success.
	Value []byte `json:"value,omitempty"`

	// Error carries structured failure information for non-success statuses.
	Error *ErrorDetail `json:"error,omitempty"`

	Telemetry Telemetry `json:"telemetry"`
}

// OutcomeFromValue creates a success outcome.
func OutcomeFromValue(value []byte, tel Telemetry) Outcome {
	return Outcome{
		Timestamp: time.Now().UTC(),
		Status:    OutcomeSuccess,
		Value:     value,
		Telemetry: tel,
	}
}

// OutcomeFromError creates a failure outcome with the given status.
func OutcomeFromError(status OutcomeStatus, err *ErrorDetail, tel Telemetry) Outcome {
	return Outcome{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Error:     err,
		Telemetry: tel,
	}
}

// IsSuccess returns true if the call completed without violation or
// exhaustion.
func (o Outcome) IsSuccess() bool {
	return o.Status == OutcomeSuccess
}
