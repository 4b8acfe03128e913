package host

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/warden-run/warden/audit"
	"github.com/warden-run/warden/domain/entities"
	"github.com/warden-run/warden/domain/errors"
	"github.com/warden-run/warden/domain/policy"
	"github.com/warden-run/warden/domain/ports"
	"github.com/warden-run/warden/hostfuncs"
	"github.com/warden-run/warden/ledger"
	"github.com/warden-run/warden/tenant"
)

// Call names one guest invocation: who runs it, what function, with what
// argument payload. An empty Tenant runs in the default untenanted context
// under the sandbox's own policy.
type Call struct {
	Tenant    string
	SandboxID string
	Function  string
	Args      []byte

	// Refs names external resources the call intends to touch, validated
	// against tenant boundaries before execution.
	Refs tenant.Refs
}

// Sandbox orchestrates guest calls. Each call resolves its tenant context,
// resets transient counters, runs the guest under a wall-clock deadline, and
// collapses every failure mode into one typed outcome. Violations and
// exhaustion never crash the host process.
type Sandbox struct {
	config   sandboxConfig
	enforcer ports.Enforcer
	monitor  *audit.Monitor
}

// NewSandbox creates a Sandbox with the given options. An executor must be
// configured before calls can run.
func NewSandbox(opts ...Option) (*Sandbox, error) {
	cfg := defaultSandboxConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.executor == nil {
		return nil, fmt.Errorf("sandbox requires a guest executor")
	}

	enforcer := cfg.enforcer
	if enforcer == nil {
		enforcer = policy.NewEnforcer()
	}
	monitor := cfg.monitor
	if monitor == nil {
		monitor = audit.NewMonitor()
	}

	return &Sandbox{
		config:   cfg,
		enforcer: enforcer,
		monitor:  monitor,
	}, nil
}

// Invoke runs one guest call to completion and returns its terminal outcome.
// Exactly one outcome is produced per call; errors from the guest, the
// enforcer, and the ledger are recovered here, never propagated as panics.
func (s *Sandbox) Invoke(ctx context.Context, call Call) entities.Outcome {
	scope, led, err := s.resolveScope(call)
	if err != nil {
		return s.failedOutcome(call, err, entities.Telemetry{})
	}

	// Call boundary: fuel and wall clock restart, persistent quota remains.
	led.ResetTransient()

	if remaining := led.RemainingTime(); remaining > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, remaining)
		defer cancel()
	}
	ctx = hostfuncs.WithCallScope(ctx, scope)

	started := time.Now()
	value, tel, invokeErr := s.config.executor.Invoke(ctx, call.Function, call.Args)
	if tel.Duration == 0 {
		tel.Duration = time.Since(started)
	}

	// Account guest-side instruction consumption after the fact; host
	// function calls were metered during execution.
	if invokeErr == nil && tel.InstructionsExecuted > 0 {
		invokeErr = led.TickFuel(tel.InstructionsExecuted)
	}
	// A guest may swallow a refused host call and return a value anyway;
	// the ledger remembers the trip.
	if invokeErr == nil {
		invokeErr = led.CheckFuel()
	}
	if invokeErr == nil {
		invokeErr = led.CheckDeadline()
	}
	tel.InstructionsExecuted = led.Usage().Fuel

	if invokeErr != nil {
		// Abort: wake anything still suspended on this call's channels and
		// let in-flight operations observe cancellation promptly.
		scope.CancelChannels()
		if ctx.Err() != nil {
			if deadlineErr := led.CheckDeadline(); deadlineErr != nil {
				invokeErr = deadlineErr
			}
		}
		return s.failedOutcome(call, invokeErr, tel)
	}

	scope.CloseChannels()
	return entities.OutcomeFromValue(value, tel)
}

// resolveScope builds the call scope from the tenant arena or the default
// untenanted context.
func (s *Sandbox) resolveScope(call Call) (*hostfuncs.CallScope, *ledger.Ledger, error) {
	if call.Tenant != "" && s.config.manager != nil {
		var handle *tenant.Handle
		err := s.config.manager.WithTenant(call.Tenant, call.Refs, func(h *tenant.Handle) error {
			handle = h
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
		pol := handle.Tenant().Policy

		// Concurrent calls for one tenant each get their own fuel budget
		// and wall clock; memory and handles still draw from the tenant's
		// shared quota.
		led := handle.Ledger().BeginCall()
		return &hostfuncs.CallScope{
			TenantID:  call.Tenant,
			SandboxID: call.SandboxID,
			Grants:    handle.Grants(),
			Enforcer:  handle.Enforcer(),
			Ledger:    led,
			Monitor:   s.monitor,
			Limits:    pol.Limits,
		}, led, nil
	}

	pol := s.config.policy
	led := ledger.New(pol.Limits)
	return &hostfuncs.CallScope{
		SandboxID: call.SandboxID,
		Grants:    pol.Grants,
		Enforcer:  s.enforcer,
		Ledger:    led,
		Monitor:   s.monitor,
		Limits:    pol.Limits,
	}, led, nil
}

// failedOutcome converts an error into its terminal outcome, emitting the
// matching audit event.
func (s *Sandbox) failedOutcome(call Call, err error, tel entities.Telemetry) entities.Outcome {
	detail := errors.ToErrorDetail(err)

	var violation *errors.SecurityViolationError
	if stdErrors.As(err, &violation) {
		s.monitor.Record(entities.AuditEvent{
			Tenant:     call.Tenant,
			Sandbox:    call.SandboxID,
			Kind:       entities.EventViolationDenied,
			Operation:  violation.Operation,
			Descriptor: violation.Descriptor,
			Reason:     violation.Error(),
		})
		return entities.OutcomeFromError(entities.OutcomeSecurityViolation, detail, tel)
	}

	var exhausted *errors.ResourceExhaustedError
	if stdErrors.As(err, &exhausted) {
		s.monitor.Record(entities.AuditEvent{
			Tenant:    call.Tenant,
			Sandbox:   call.SandboxID,
			Kind:      entities.EventResourceLimitHit,
			Dimension: exhausted.Dimension,
			Requested: exhausted.Requested,
			Limit:     exhausted.Limit,
		})
		return entities.OutcomeFromError(entities.OutcomeResourceExhausted, detail, tel)
	}

	slog.Error("guest call failed",
		"tenant", call.Tenant,
		"sandbox", call.SandboxID,
		"function", call.Function,
		"error", err)
	return entities.OutcomeFromError(entities.OutcomeInternalError, detail, tel)
}

// Close releases the sandbox's monitor (flushing pending audit events).
func (s *Sandbox) Close() error {
	return s.monitor.Close()
}

// Monitor exposes the sandbox's audit monitor.
func (s *Sandbox) Monitor() *audit.Monitor {
	return s.monitor
}
