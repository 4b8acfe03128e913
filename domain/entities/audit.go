package entities

import "time"

// EventKind categorizes audit events.
type EventKind string

const (
	// EventCapabilityUsed records a permitted side-effecting operation.
	EventCapabilityUsed EventKind = "capability_used"

	// EventViolationDenied records a denied operation.
	EventViolationDenied EventKind = "violation_denied"

	// EventResourceLimitHit records a resource dimension tripping its limit.
	EventResourceLimitHit EventKind = "resource_limit_hit"

	// EventAuditOverflow is the meta-event recorded when the audit queue
	// overflowed and older events were dropped.
	EventAuditOverflow EventKind = "audit_log_overflow"
)

// AuditEvent is one append-only audit record. Events are never mutated after
// creation; the audit monitor is their single writer.
type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Tenant    string    `json:"tenant,omitempty"`
	Sandbox   string    `json:"sandbox,omitempty"`
	Kind      EventKind `json:"kind"`

	// Capability use / violation fields.
	Operation  string `json:"operation,omitempty"`
	Descriptor string `json:"descriptor,omitempty"`
	Allowed    bool   `json:"allowed"`
	Reason     string `json:"reason,omitempty"`

	// Resource limit fields.
	Dimension string `json:"dimension,omitempty"`
	Requested uint64 `json:"requested,omitempty"`
	Limit     uint64 `json:"limit,omitempty"`

	// Dropped carries the drop count on audit_log_overflow events.
	Dropped uint64 `json:"dropped,omitempty"`
}
