package hostfuncs

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/warden-run/warden/domain/entities"
	"github.com/warden-run/warden/ledger"
)

// DefaultConnectTimeout bounds net_connect when neither the request nor the
// policy sets one.
const DefaultConnectTimeout = 5 * time.Second

// NetConnectRequest is the request type for the net_connect host function.
type NetConnectRequest struct {
	Host string `json:"host"`
	Port int    `json:"port"`

	// TimeoutMs bounds the connection attempt. The policy's network timeout
	// applies when it is tighter.
	TimeoutMs int `json:"timeout_ms,omitempty"`
}

// NetConnectResponse is the response type for the net_connect host function.
type NetConnectResponse struct {
	Connected  bool           `json:"connected"`
	RemoteAddr string         `json:"remote_addr,omitempty"`
	LocalAddr  string         `json:"local_addr,omitempty"`
	LatencyMs  int64          `json:"latency_ms,omitempty"`
	Error      *ErrorResponse `json:"error,omitempty"`
}

// PerformNetConnect opens an outbound TCP connection on behalf of the guest
// to probe reachability, then closes it. The dial is checked against the
// scope's network grants and counted against the connection ceiling.
func PerformNetConnect(ctx context.Context, req NetConnectRequest) NetConnectResponse {
	scope, ok := CallScopeFrom(ctx)
	if !ok {
		e := NewInternalError("no call scope")
		return NetConnectResponse{Error: &e}
	}

	if req.Host == "" || req.Port < 1 || req.Port > 65535 {
		e := NewValidationError(fmt.Sprintf("invalid address %s:%d", req.Host, req.Port))
		return NetConnectResponse{Error: &e}
	}

	decision := scope.Enforcer.CheckNetwork(
		entities.NetworkRequest{Host: req.Host, Port: req.Port}, scope.Grants)
	auditDecision(scope, decision)
	if !decision.Allowed {
		e := NewDeniedError(decision)
		return NetConnectResponse{Error: &e}
	}

	if scope.Ledger != nil {
		if err := scope.Ledger.Reserve(ledger.DimensionConnections, 1); err != nil {
			e := LedgerErrorResponse(err)
			return NetConnectResponse{Error: &e}
		}
		defer scope.Ledger.Release(ledger.DimensionConnections, 1)
	}

	timeout := DefaultConnectTimeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	if scope.Limits.NetworkTimeout > 0 && scope.Limits.NetworkTimeout < timeout {
		timeout = scope.Limits.NetworkTimeout
	}

	address := net.JoinHostPort(req.Host, strconv.Itoa(req.Port))
	dialer := net.Dialer{Timeout: timeout}

	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		e := ErrorResponse{
			Error:   "CONNECTION_FAILED",
			Message: fmt.Sprintf("failed to connect to %s: %v", address, err),
			Code:    502,
		}
		return NetConnectResponse{Error: &e}
	}
	defer conn.Close()

	return NetConnectResponse{
		Connected:  true,
		RemoteAddr: conn.RemoteAddr().String(),
		LocalAddr:  conn.LocalAddr().String(),
		LatencyMs:  time.Since(start).Milliseconds(),
	}
}
