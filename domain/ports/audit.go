package ports

import (
	"context"

	"github.com/warden-run/warden/domain/entities"
)

// AuditSink accepts the append-only audit event stream for persistence.
// Sink failures must never propagate as call failures; the monitor degrades
// by dropping with a meta-event instead.
type AuditSink interface {
	Append(ctx context.Context, event entities.AuditEvent) error
}

// ViolationHandler is invoked synchronously at the point of denial so the
// caller can abort immediately. Handlers must not block.
type ViolationHandler interface {
	OnViolation(event entities.AuditEvent)
}

// ViolationHandlerFunc adapts a function to the ViolationHandler interface.
type ViolationHandlerFunc func(event entities.AuditEvent)

func (f ViolationHandlerFunc) OnViolation(event entities.AuditEvent) { f(event) }
