// Package audit implements the security audit monitor: a concurrent-append
// queue of immutable events with one background flusher. Record never blocks
// the calling guest operation; when the queue overflows, the oldest events
// are dropped and a single overflow meta-event takes their place.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warden-run/warden/domain/entities"
	"github.com/warden-run/warden/domain/ports"
)

// DefaultQueueSize is the bounded queue capacity used when none is configured.
const DefaultQueueSize = 1024

// monitorConfig holds configuration for a Monitor.
type monitorConfig struct {
	queueSize int
	sink      ports.AuditSink
	handlers  []ports.ViolationHandler
	now       func() time.Time
}

func defaultMonitorConfig() monitorConfig {
	return monitorConfig{
		queueSize: DefaultQueueSize,
		now:       time.Now,
	}
}

// Option configures a Monitor.
type Option func(*monitorConfig)

// WithQueueSize sets the bounded queue capacity in events.
func WithQueueSize(n int) Option {
	return func(c *monitorConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithSink sets the persistent sink the flusher drains to. Without a sink the
// monitor keeps events in memory only, which is the audit-disabled mode.
func WithSink(sink ports.AuditSink) Option {
	return func(c *monitorConfig) {
		c.sink = sink
	}
}

// WithViolationHandler registers a handler invoked synchronously when a
// denial is recorded, before Record returns.
func WithViolationHandler(h ports.ViolationHandler) Option {
	return func(c *monitorConfig) {
		c.handlers = append(c.handlers, h)
	}
}

// WithClock sets the time source. Only for tests.
func WithClock(now func() time.Time) Option {
	return func(c *monitorConfig) {
		c.now = now
	}
}

// Monitor owns the audit event sequence. Many goroutines record concurrently;
// the flusher is the single logical reader draining to the sink.
type Monitor struct {
	mu sync.Mutex

	config  monitorConfig
	queue   []entities.AuditEvent
	dropped uint64 // drops in the current overflow episode
	closed  bool

	wake chan struct{}
	done chan struct{}
}

// NewMonitor creates a Monitor. When a sink is configured a background
// flusher starts draining to it immediately.
func NewMonitor(opts ...Option) *Monitor {
	cfg := defaultMonitorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	m := &Monitor{
		config: cfg,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	if cfg.sink != nil {
		go m.flushLoop()
	} else {
		close(m.done)
	}
	return m
}

// Record appends an event to the queue. It never blocks: a full queue drops
// the oldest event and folds the loss into one overflow meta-event. Denials
// additionally invoke the registered violation handlers synchronously so the
// caller can abort before Record returns.
func (m *Monitor) Record(event entities.AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = m.config.now()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	if len(m.queue) >= m.config.queueSize {
		m.evictOldestLocked(event.Tenant, event.Sandbox)
	}
	m.queue = append(m.queue, event)
	select {
	case m.wake <- struct{}{}:
	default:
	}
	m.mu.Unlock()

	if event.Kind == entities.EventViolationDenied {
		for _, h := range m.config.handlers {
			h.OnViolation(event)
		}
	}
}

// evictOldestLocked drops the oldest real event. The first drop of an episode
// replaces it with an overflow meta-event at the head; later drops bump its
// count, so one overflow episode never cascades into many meta-events.
func (m *Monitor) evictOldestLocked(tenantID, sandboxID string) {
	if m.queue[0].Kind == entities.EventAuditOverflow {
		if len(m.queue) > 1 {
			m.dropped++
			m.queue[0].Dropped = m.dropped
			copy(m.queue[1:], m.queue[2:])
			m.queue = m.queue[:len(m.queue)-1]
		}
		return
	}

	m.dropped = 1
	m.queue[0] = entities.AuditEvent{
		Timestamp: m.config.now(),
		Tenant:    tenantID,
		Sandbox:   sandboxID,
		Kind:      entities.EventAuditOverflow,
		Dropped:   m.dropped,
	}
}

func (m *Monitor) flushLoop() {
	defer close(m.done)
	for {
		_, open := <-m.wake
		m.flush()
		if !open {
			return
		}
	}
}

// flush drains the queue to the sink. Sink failures are logged and the event
// dropped; they never propagate to callers.
func (m *Monitor) flush() {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.dropped = 0
			m.mu.Unlock()
			return
		}
		event := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		if err := m.config.sink.Append(context.Background(), event); err != nil {
			slog.Error("audit sink append failed",
				"kind", string(event.Kind),
				"tenant", event.Tenant,
				"error", err)
		}
	}
}

// Events returns a snapshot of the queued, not-yet-flushed events. In the
// in-memory mode (no sink) this is the whole retained log.
func (m *Monitor) Events() []entities.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entities.AuditEvent, len(m.queue))
	copy(out, m.queue)
	return out
}

// Close flushes remaining events to the sink and stops the flusher. Records
// after Close are discarded.
func (m *Monitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	hasSink := m.config.sink != nil
	if hasSink {
		close(m.wake)
	}
	m.mu.Unlock()

	if hasSink {
		<-m.done
	}
	return nil
}
