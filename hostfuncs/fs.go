package hostfuncs

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/warden-run/warden/domain/entities"
	"github.com/warden-run/warden/domain/ports"
	"github.com/warden-run/warden/ledger"
)

// FileReadRequest is the request type for the fs_read host function.
type FileReadRequest struct {
	// Path is the file to read, absolute or relative to the sandbox cwd.
	Path string `json:"path"`
}

// FileReadResponse is the response type for the fs_read host function.
type FileReadResponse struct {
	// Content holds the file bytes (base64 on the wire).
	Content []byte `json:"content,omitempty"`

	// Truncated is set when the file exceeded the read size limit.
	Truncated bool `json:"truncated,omitempty"`

	Error *ErrorResponse `json:"error,omitempty"`
}

// FileWriteRequest is the request type for the fs_write host function.
type FileWriteRequest struct {
	Path    string `json:"path"`
	Content []byte `json:"content"`
}

// FileWriteResponse is the response type for the fs_write host function.
type FileWriteResponse struct {
	BytesWritten int            `json:"bytes_written"`
	Error        *ErrorResponse `json:"error,omitempty"`
}

// PerformFileRead reads a file on behalf of the guest. The read is checked
// against the scope's filesystem grants, counted against the open-file
// ceiling, and capped at the configured maximum file size.
func PerformFileRead(ctx context.Context, req FileReadRequest) FileReadResponse {
	scope, ok := CallScopeFrom(ctx)
	if !ok {
		e := NewInternalError("no call scope")
		return FileReadResponse{Error: &e}
	}

	decision := scope.Enforcer.CheckFileSystem(
		entities.FileSystemRequest{Path: req.Path, Operation: "read"}, scope.Grants)
	auditDecision(scope, decision)
	if !decision.Allowed {
		e := NewDeniedError(decision)
		return FileReadResponse{Error: &e}
	}

	if scope.Ledger != nil {
		if err := scope.Ledger.Reserve(ledger.DimensionFiles, 1); err != nil {
			e := LedgerErrorResponse(err)
			return FileReadResponse{Error: &e}
		}
		defer scope.Ledger.Release(ledger.DimensionFiles, 1)
	}

	f, err := os.Open(req.Path)
	if err != nil {
		e := NewInternalError(fmt.Sprintf("failed to open %s: %v", req.Path, err))
		return FileReadResponse{Error: &e}
	}
	defer f.Close()

	limit := DefaultMaxReadSize
	if scope.Limits.MaxFileSize > 0 && scope.Limits.MaxFileSize < uint64(limit) {
		limit = int(scope.Limits.MaxFileSize)
	}

	buf := NewBoundedBuffer(limit)
	if _, err := io.Copy(buf, f); err != nil {
		e := NewInternalError(fmt.Sprintf("failed to read %s: %v", req.Path, err))
		return FileReadResponse{Error: &e}
	}

	return FileReadResponse{Content: buf.Bytes(), Truncated: buf.Truncated}
}

// PerformFileWrite writes a file on behalf of the guest. The write is checked
// against the scope's filesystem grants and refused when the content exceeds
// the maximum file size. Files are created owner read/write only.
func PerformFileWrite(ctx context.Context, req FileWriteRequest) FileWriteResponse {
	scope, ok := CallScopeFrom(ctx)
	if !ok {
		e := NewInternalError("no call scope")
		return FileWriteResponse{Error: &e}
	}

	decision := scope.Enforcer.CheckFileSystem(
		entities.FileSystemRequest{Path: req.Path, Operation: "write"}, scope.Grants)
	auditDecision(scope, decision)
	if !decision.Allowed {
		e := NewDeniedError(decision)
		return FileWriteResponse{Error: &e}
	}

	if scope.Limits.MaxFileSize > 0 && uint64(len(req.Content)) > scope.Limits.MaxFileSize {
		scope.Audit(entities.AuditEvent{
			Kind:      entities.EventResourceLimitHit,
			Dimension: "file_size",
			Requested: uint64(len(req.Content)),
			Limit:     scope.Limits.MaxFileSize,
		})
		e := NewExhaustedError(fmt.Sprintf(
			"write of %d bytes exceeds max file size %d", len(req.Content), scope.Limits.MaxFileSize))
		return FileWriteResponse{Error: &e}
	}

	if scope.Ledger != nil {
		if err := scope.Ledger.Reserve(ledger.DimensionFiles, 1); err != nil {
			e := LedgerErrorResponse(err)
			return FileWriteResponse{Error: &e}
		}
		defer scope.Ledger.Release(ledger.DimensionFiles, 1)
	}

	if err := os.WriteFile(req.Path, req.Content, 0o600); err != nil {
		e := NewInternalError(fmt.Sprintf("failed to write %s: %v", req.Path, err))
		return FileWriteResponse{Error: &e}
	}

	return FileWriteResponse{BytesWritten: len(req.Content)}
}

// auditDecision records the capability check outcome on the scope's monitor.
func auditDecision(scope *CallScope, decision ports.Decision) {
	scope.Audit(decision.AuditEvent())
}
