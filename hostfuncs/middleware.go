package hostfuncs

import (
	"context"
	stdErrors "errors"
	"log/slog"

	"github.com/warden-run/warden/domain/entities"
	"github.com/warden-run/warden/domain/errors"
)

// Middleware is a function that wraps a ByteHandler to add cross-cutting behavior.
// Middleware executes in FIFO order (first registered wraps first, onion model).
type Middleware func(next ByteHandler) ByteHandler

// RegistryOption is a functional option for configuring a HandlerRegistry.
type RegistryOption func(*registryBuilder)

// PanicRecoveryMiddleware returns a middleware that catches panics and converts
// them to structured ErrorResponse JSON instead of crashing the host.
func PanicRecoveryMiddleware() Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) (resp []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					resp = NewPanicError(r).ToJSON()
					err = nil // Return JSON error, not Go error
				}
			}()
			return next(ctx, payload)
		}
	}
}

// MeterCosts configures how host function invocations translate into fuel.
type MeterCosts struct {
	// BaseCost is charged per invocation regardless of payload.
	BaseCost uint64

	// PerByte is charged for each request payload byte.
	PerByte uint64
}

// DefaultMeterCosts charges 100 fuel per call plus 1 per payload byte.
func DefaultMeterCosts() MeterCosts {
	return MeterCosts{BaseCost: 100, PerByte: 1}
}

// MeteringMiddleware returns a middleware that charges fuel for every host
// function invocation and checks the call's wall-clock deadline, both against
// the scope's ledger. Exhaustion on either dimension refuses the call with a
// RESOURCE_EXHAUSTED response and records a resource_limit_hit audit event.
// Invocations without a scope pass through unmetered.
func MeteringMiddleware(costs MeterCosts) Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			scope, ok := CallScopeFrom(ctx)
			if !ok || scope.Ledger == nil {
				return next(ctx, payload)
			}

			if err := scope.Ledger.CheckDeadline(); err != nil {
				return refuseExhausted(scope, err), nil
			}

			cost := costs.BaseCost + costs.PerByte*uint64(len(payload))
			if err := scope.Ledger.TickFuel(cost); err != nil {
				return refuseExhausted(scope, err), nil
			}

			return next(ctx, payload)
		}
	}
}

func refuseExhausted(scope *CallScope, err error) []byte {
	var exhausted *errors.ResourceExhaustedError
	if stdErrors.As(err, &exhausted) {
		scope.Audit(entities.AuditEvent{
			Kind:      entities.EventResourceLimitHit,
			Dimension: exhausted.Dimension,
			Requested: exhausted.Requested,
			Limit:     exhausted.Limit,
		})
	}
	return LedgerErrorResponse(err).ToJSON()
}

// LoggingMiddleware returns a middleware that logs host function invocations
// through slog at debug level, with tenant identity when a scope is present.
func LoggingMiddleware() Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			funcName := "unknown"
			if hc, ok := ctx.(HostContext); ok {
				funcName = hc.FunctionName()
			}
			tenant := ""
			if scope, ok := CallScopeFrom(ctx); ok {
				tenant = scope.TenantID
			}

			resp, err := next(ctx, payload)
			if err != nil {
				slog.ErrorContext(ctx, "host function failed", "function", funcName, "tenant", tenant, "error", err)
			} else {
				slog.DebugContext(ctx, "host function completed", "function", funcName, "tenant", tenant)
			}
			return resp, err
		}
	}
}
