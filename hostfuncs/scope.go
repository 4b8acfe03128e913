package hostfuncs

import (
	"context"
	"sync"

	"github.com/warden-run/warden/audit"
	"github.com/warden-run/warden/domain/entities"
	"github.com/warden-run/warden/domain/ports"
	"github.com/warden-run/warden/ledger"
	"github.com/warden-run/warden/stream"
)

// CallScope carries the security and accounting context for one guest call.
// Every built-in handler resolves its scope from the invocation context and
// consults the enforcer, ledger, and monitor through it. Channels opened
// during the call are owned by the scope and cancelled together when the
// call aborts.
type CallScope struct {
	TenantID  string
	SandboxID string

	Grants   *entities.GrantSet
	Enforcer ports.Enforcer
	Ledger   *ledger.Ledger
	Monitor  *audit.Monitor
	Limits   entities.ResourceLimits

	mu       sync.Mutex
	channels map[string]*stream.Channel
}

// OpenChannel creates and registers a named channel for the duration of the
// call. Buffered bytes are accounted against the scope's ledger. Opening a
// name twice returns the existing channel.
func (s *CallScope) OpenChannel(name string, capacityBytes int, opts ...stream.Option) *stream.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.channels == nil {
		s.channels = make(map[string]*stream.Channel)
	}
	if ch, ok := s.channels[name]; ok {
		return ch
	}

	if s.Ledger != nil {
		opts = append(opts, stream.WithLedger(s.Ledger))
	}
	ch := stream.NewChannel(capacityBytes, opts...)
	s.channels[name] = ch
	return ch
}

// Channel returns a previously opened channel by name.
func (s *CallScope) Channel(name string) (*stream.Channel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[name]
	return ch, ok
}

// CancelChannels cancels every channel the scope owns, waking suspended
// sends and receives with a Cancelled error. Called when the owning call
// times out or aborts.
func (s *CallScope) CancelChannels() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.channels {
		ch.Cancel()
	}
}

// CloseChannels closes every channel the scope owns without dropping
// buffered chunks. Called when the owning call completes normally.
func (s *CallScope) CloseChannels() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.channels {
		ch.Close()
	}
}

// Audit records an event on the scope's monitor, stamping tenant and sandbox
// identity. A scope without a monitor drops the event.
func (s *CallScope) Audit(event entities.AuditEvent) {
	if s.Monitor == nil {
		return
	}
	event.Tenant = s.TenantID
	event.Sandbox = s.SandboxID
	s.Monitor.Record(event)
}

type scopeContextKey struct{}

// WithCallScope attaches the scope to the context for handler access.
func WithCallScope(ctx context.Context, scope *CallScope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// CallScopeFrom retrieves the scope attached by WithCallScope.
func CallScopeFrom(ctx context.Context) (*CallScope, bool) {
	scope, ok := ctx.Value(scopeContextKey{}).(*CallScope)
	return scope, ok
}
