// Package wireformat defines the JSON wire format structures for
// communication between the sandbox host and its guests. These types must
// remain stable and backward compatible as they define the ABI contract.
package wireformat

import (
	"time"

	"github.com/warden-run/warden/domain/entities"
)

// ErrorDetail is the wire-stable structured error, shared with the domain
// layer so host and guest agree on one shape.
type ErrorDetail = entities.ErrorDetail

// ContextWireFormat is the JSON wire format for context.Context propagation.
type ContextWireFormat struct {
	Deadline  *time.Time `json:"deadline,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
	TimeoutMs int64      `json:"timeout_ms,omitempty"`
	Canceled  bool       `json:"Canceled,omitempty"`
}

// ChunkWire is the JSON wire format for one streaming chunk, identical for
// the in-memory and file-backed transports. Payload bytes serialize as
// base64 per encoding/json convention.
type ChunkWire struct {
	Payload  []byte            `json:"payload,omitempty"`
	Sequence uint64            `json:"sequence"`
	Final    bool              `json:"final,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ToChunk converts the wire representation to the domain chunk.
func (w ChunkWire) ToChunk() entities.Chunk {
	return entities.Chunk{
		Payload:  w.Payload,
		Sequence: w.Sequence,
		Final:    w.Final,
		Metadata: w.Metadata,
	}
}

// ChunkToWire converts a domain chunk to its wire representation.
func ChunkToWire(c entities.Chunk) ChunkWire {
	return ChunkWire{
		Payload:  c.Payload,
		Sequence: c.Sequence,
		Final:    c.Final,
		Metadata: c.Metadata,
	}
}

// TelemetryWire is the JSON wire format for guest execution telemetry
// reported by the executor alongside each call result.
type TelemetryWire struct {
	InstructionsExecuted uint64 `json:"instructions_executed"`
	MemoryDeltaBytes     int64  `json:"memory_delta_bytes"`
	DurationMs           int64  `json:"duration_ms"`
}

// TelemetryToWire converts domain telemetry to its wire representation.
func TelemetryToWire(t entities.Telemetry) TelemetryWire {
	return TelemetryWire{
		InstructionsExecuted: t.InstructionsExecuted,
		MemoryDeltaBytes:     t.MemoryDelta,
		DurationMs:           t.Duration.Milliseconds(),
	}
}

// OutcomeWire is the JSON wire format for the terminal outcome of one guest
// call: exactly one of Value or Error is set, plus telemetry.
type OutcomeWire struct {
	Status    string        `json:"status"`
	Value     []byte        `json:"value,omitempty"`
	Error     *ErrorDetail  `json:"error,omitempty"`
	Telemetry TelemetryWire `json:"telemetry"`
}

// AuditRecordWire is the JSON wire format for one externally persisted audit
// record: one object per line, RFC 3339 timestamp.
type AuditRecordWire struct {
	Timestamp  string `json:"timestamp"`
	Tenant     string `json:"tenant,omitempty"`
	Sandbox    string `json:"sandbox,omitempty"`
	Kind       string `json:"kind"`
	Operation  string `json:"operation,omitempty"`
	Descriptor string `json:"descriptor,omitempty"`
	Allowed    bool   `json:"allowed"`
	Reason     string `json:"reason,omitempty"`
	Dimension  string `json:"dimension,omitempty"`
	Requested  uint64 `json:"requested,omitempty"`
	Limit      uint64 `json:"limit,omitempty"`
	Dropped    uint64 `json:"dropped,omitempty"`
}

// AuditEventToWire converts a domain audit event to its wire representation.
func AuditEventToWire(e entities.AuditEvent) AuditRecordWire {
	return AuditRecordWire{
		Timestamp:  e.Timestamp.UTC().Format(time.RFC3339Nano),
		Tenant:     e.Tenant,
		Sandbox:    e.Sandbox,
		Kind:       string(e.Kind),
		Operation:  e.Operation,
		Descriptor: e.Descriptor,
		Allowed:    e.Allowed,
		Reason:     e.Reason,
		Dimension:  e.Dimension,
		Requested:  e.Requested,
		Limit:      e.Limit,
		Dropped:    e.Dropped,
	}
}
