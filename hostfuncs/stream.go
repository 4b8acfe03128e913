package hostfuncs

import (
	"context"
	stdErrors "errors"
	"strings"

	"github.com/warden-run/warden/domain/errors"
	"github.com/warden-run/warden/wireformat"
)

// StreamOpenRequest is the request type for the stream_open host function.
type StreamOpenRequest struct {
	// Name identifies the channel within the current call.
	Name string `json:"name"`

	// CapacityBytes is the buffer capacity; zero uses the default.
	CapacityBytes int `json:"capacity_bytes,omitempty"`
}

// StreamOpenResponse is the response type for the stream_open host function.
type StreamOpenResponse struct {
	Error *ErrorResponse `json:"error,omitempty"`
}

// StreamSendRequest is the request type for the stream_send host function.
type StreamSendRequest struct {
	Name  string               `json:"name"`
	Chunk wireformat.ChunkWire `json:"chunk"`
}

// StreamSendResponse is the response type for the stream_send host function.
type StreamSendResponse struct {
	Error *ErrorResponse `json:"error,omitempty"`
}

// StreamRecvRequest is the request type for the stream_recv host function.
type StreamRecvRequest struct {
	Name string `json:"name"`
}

// StreamRecvResponse is the response type for the stream_recv host function.
type StreamRecvResponse struct {
	Chunk *wireformat.ChunkWire `json:"chunk,omitempty"`
	Error *ErrorResponse        `json:"error,omitempty"`
}

// PerformStreamOpen creates a named channel owned by the current call scope.
func PerformStreamOpen(ctx context.Context, req StreamOpenRequest) StreamOpenResponse {
	scope, ok := CallScopeFrom(ctx)
	if !ok {
		e := NewInternalError("no call scope")
		return StreamOpenResponse{Error: &e}
	}
	if req.Name == "" {
		e := NewValidationError("channel name cannot be empty")
		return StreamOpenResponse{Error: &e}
	}

	scope.OpenChannel(req.Name, req.CapacityBytes)
	return StreamOpenResponse{}
}

// PerformStreamSend pushes one chunk into a named channel, suspending while
// the buffer is full. Stream errors come back structured so the guest can
// distinguish a closed channel from a sequencing bug.
func PerformStreamSend(ctx context.Context, req StreamSendRequest) StreamSendResponse {
	scope, ok := CallScopeFrom(ctx)
	if !ok {
		e := NewInternalError("no call scope")
		return StreamSendResponse{Error: &e}
	}
	ch, ok := scope.Channel(req.Name)
	if !ok {
		e := NewValidationError("unknown channel: " + req.Name)
		return StreamSendResponse{Error: &e}
	}

	if err := ch.Send(ctx, req.Chunk.ToChunk()); err != nil {
		e := streamErrorResponse(err)
		return StreamSendResponse{Error: &e}
	}
	return StreamSendResponse{}
}

// PerformStreamRecv pops the next chunk from a named channel, suspending
// while the buffer is empty.
func PerformStreamRecv(ctx context.Context, req StreamRecvRequest) StreamRecvResponse {
	scope, ok := CallScopeFrom(ctx)
	if !ok {
		e := NewInternalError("no call scope")
		return StreamRecvResponse{Error: &e}
	}
	ch, ok := scope.Channel(req.Name)
	if !ok {
		e := NewValidationError("unknown channel: " + req.Name)
		return StreamRecvResponse{Error: &e}
	}

	chunk, err := ch.Receive(ctx)
	if err != nil {
		e := streamErrorResponse(err)
		return StreamRecvResponse{Error: &e}
	}
	wire := wireformat.ChunkToWire(chunk)
	return StreamRecvResponse{Chunk: &wire}
}

// streamErrorResponse maps stream and ledger errors to guest-facing codes.
func streamErrorResponse(err error) ErrorResponse {
	var se *errors.StreamError
	if stdErrors.As(err, &se) {
		return ErrorResponse{
			Error:   "STREAM_" + strings.ToUpper(string(se.Kind)),
			Message: se.Error(),
			Code:    409,
		}
	}
	var exhausted *errors.ResourceExhaustedError
	if stdErrors.As(err, &exhausted) || errors.IsTenantDestroyed(err) {
		return LedgerErrorResponse(err)
	}
	return NewInternalError(err.Error())
}
