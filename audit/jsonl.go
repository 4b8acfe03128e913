package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/warden-run/warden/domain/entities"
	"github.com/warden-run/warden/wireformat"
)

// JSONLSink persists audit events as one JSON object per line. Timestamps
// serialize as RFC 3339, so records are greppable and externally parseable.
type JSONLSink struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONLSink opens (creating or appending) the audit log at path. The file
// is created owner read/write only.
func NewJSONLSink(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return &JSONLSink{file: f, enc: json.NewEncoder(f)}, nil
}

// Append writes one event as a JSON line in the audit wire format.
func (s *JSONLSink) Append(_ context.Context, event entities.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(wireformat.AuditEventToWire(event))
}

// Close syncs and closes the underlying file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.file.Sync(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
