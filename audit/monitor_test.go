package audit_test

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warden-run/warden/audit"
	"github.com/warden-run/warden/domain/entities"
	"github.com/warden-run/warden/domain/ports"
	"github.com/warden-run/warden/internal/testutil"
	"github.com/warden-run/warden/wireformat"
)

// collectSink gathers appended events in memory.
type collectSink struct {
	mu     sync.Mutex
	events []entities.AuditEvent
	fail   bool
}

func (s *collectSink) Append(_ context.Context, event entities.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return fmt.Errorf("sink unavailable")
	}
	s.events = append(s.events, event)
	return nil
}

func (s *collectSink) snapshot() []entities.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entities.AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}

func TestMonitor_InMemoryMode(t *testing.T) {
	m := audit.NewMonitor()
	defer m.Close()

	m.Record(entities.AuditEvent{Tenant: "acme", Kind: entities.EventCapabilityUsed, Operation: "read", Descriptor: "/in/a.json", Allowed: true})
	m.Record(entities.AuditEvent{Tenant: "acme", Kind: entities.EventViolationDenied, Operation: "write", Descriptor: "/in/a.json"})

	events := m.Events()
	require.Len(t, events, 2)
	assert.Equal(t, entities.EventCapabilityUsed, events[0].Kind)
	assert.Equal(t, entities.EventViolationDenied, events[1].Kind)
	assert.False(t, events[0].Timestamp.IsZero(), "monitor stamps events on record")
}

func TestMonitor_FlushesToSink(t *testing.T) {
	sink := &collectSink{}
	m := audit.NewMonitor(audit.WithSink(sink))

	for i := 0; i < 10; i++ {
		m.Record(entities.AuditEvent{Tenant: "acme", Kind: entities.EventCapabilityUsed, Operation: "read"})
	}
	require.NoError(t, m.Close())

	assert.Len(t, sink.snapshot(), 10, "close flushes everything")
}

func TestMonitor_FlushesInBackground(t *testing.T) {
	sink := &collectSink{}
	m := audit.NewMonitor(audit.WithSink(sink))
	defer m.Close()

	m.Record(entities.AuditEvent{Kind: entities.EventCapabilityUsed, Descriptor: "/in/a.json"})

	// The flusher drains without anyone calling Close.
	testutil.WaitFor(t, 2*time.Second, func() bool {
		return len(sink.snapshot()) == 1
	}, "background flusher never drained the queue")
	assert.Empty(t, m.Events(), "flushed events leave the in-memory queue")
}

func TestMonitor_OverflowDropsOldestWithMetaEvent(t *testing.T) {
	// No sink, so nothing drains: the queue must overflow.
	m := audit.NewMonitor(audit.WithQueueSize(4))
	defer m.Close()

	for i := 0; i < 10; i++ {
		m.Record(entities.AuditEvent{
			Tenant:     "acme",
			Kind:       entities.EventCapabilityUsed,
			Descriptor: fmt.Sprintf("/f/%d", i),
		})
	}

	events := m.Events()

	// Exactly one overflow meta-event, sitting at the head, carrying the
	// total drop count for the episode.
	overflows := 0
	for _, e := range events {
		if e.Kind == entities.EventAuditOverflow {
			overflows++
		}
	}
	require.Equal(t, 1, overflows, "one overflow episode yields one meta-event")
	assert.Equal(t, entities.EventAuditOverflow, events[0].Kind)
	assert.Greater(t, events[0].Dropped, uint64(0))

	// The newest events survive; the oldest were dropped.
	last := events[len(events)-1]
	assert.Equal(t, "/f/9", last.Descriptor)
}

func TestMonitor_RecordNeverBlocks(t *testing.T) {
	m := audit.NewMonitor(audit.WithQueueSize(2))
	defer m.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			m.Record(entities.AuditEvent{Kind: entities.EventCapabilityUsed})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("record blocked on a full queue")
	}
}

func TestMonitor_ViolationHandlerInvokedSynchronously(t *testing.T) {
	var seen []entities.AuditEvent
	m := audit.NewMonitor(audit.WithViolationHandler(
		ports.ViolationHandlerFunc(func(e entities.AuditEvent) {
			seen = append(seen, e)
		}),
	))
	defer m.Close()

	m.Record(entities.AuditEvent{Kind: entities.EventCapabilityUsed})
	assert.Empty(t, seen, "permitted operations do not trigger the handler")

	m.Record(entities.AuditEvent{Kind: entities.EventViolationDenied, Descriptor: "/etc/passwd"})
	require.Len(t, seen, 1, "handler runs before Record returns")
	assert.Equal(t, "/etc/passwd", seen[0].Descriptor)
}

func TestMonitor_SinkFailureNeverPropagates(t *testing.T) {
	sink := &collectSink{fail: true}
	m := audit.NewMonitor(audit.WithSink(sink))

	// Records succeed even though every append fails.
	for i := 0; i < 5; i++ {
		m.Record(entities.AuditEvent{Kind: entities.EventCapabilityUsed})
	}
	require.NoError(t, m.Close())
}

func TestJSONLSink_OneObjectPerLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := audit.NewJSONLSink(path)
	require.NoError(t, err)

	stamp := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	require.NoError(t, sink.Append(context.Background(), entities.AuditEvent{
		Timestamp:  stamp,
		Tenant:     "acme",
		Sandbox:    "sb-1",
		Kind:       entities.EventViolationDenied,
		Operation:  "write",
		Descriptor: "/in/a.json",
		Reason:     "no write grant covers path",
	}))
	require.NoError(t, sink.Append(context.Background(), entities.AuditEvent{
		Timestamp: stamp,
		Tenant:    "acme",
		Kind:      entities.EventResourceLimitHit,
		Dimension: "fuel",
		Requested: 1001,
		Limit:     1000,
	}))
	require.NoError(t, sink.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []entities.AuditEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e entities.AuditEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		lines = append(lines, e)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, lines, 2)
	assert.Equal(t, "acme", lines[0].Tenant)
	assert.Equal(t, "write", lines[0].Operation)
	assert.False(t, lines[0].Allowed)
	assert.True(t, lines[0].Timestamp.Equal(stamp), "timestamps round-trip through RFC 3339")
	assert.Equal(t, "fuel", lines[1].Dimension)
	assert.Equal(t, uint64(1001), lines[1].Requested)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestJSONLSink_AppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	for i := 0; i < 2; i++ {
		sink, err := audit.NewJSONLSink(path)
		require.NoError(t, err)
		require.NoError(t, sink.Append(context.Background(), entities.AuditEvent{Kind: entities.EventCapabilityUsed}))
		require.NoError(t, sink.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	count := 0
	for _, b := range data {
		if b == '\n' {
			count++
		}
	}
	assert.Equal(t, 2, count, "reopening appends rather than truncating")
}

func TestJSONLSink_PersistsWireFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := audit.NewJSONLSink(path)
	require.NoError(t, err)

	stamp := time.Date(2026, 3, 14, 9, 26, 53, 123456789, time.UTC)
	require.NoError(t, sink.Append(context.Background(), entities.AuditEvent{
		Timestamp:  stamp,
		Tenant:     "acme",
		Kind:       entities.EventViolationDenied,
		Operation:  "write",
		Descriptor: "/in/a.json",
		Reason:     "no write grant covers path",
	}))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// Lines carry the published record shape: RFC 3339 timestamps, not
	// Go-internal time encoding.
	var rec wireformat.AuditRecordWire
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "2026-03-14T09:26:53.123456789Z", rec.Timestamp)
	assert.Equal(t, "acme", rec.Tenant)
	assert.Equal(t, "violation_denied", rec.Kind)
	assert.Equal(t, "/in/a.json", rec.Descriptor)
	assert.Contains(t, string(data), `"timestamp":"2026-03-14T09:26:53.123456789Z"`)
}
