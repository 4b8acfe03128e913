package host_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warden-run/warden/audit"
	"github.com/warden-run/warden/domain/entities"
	"github.com/warden-run/warden/domain/errors"
	"github.com/warden-run/warden/host"
	"github.com/warden-run/warden/hostfuncs"
	"github.com/warden-run/warden/stream"
	"github.com/warden-run/warden/tenant"
)

// fakeExecutor scripts guest behavior for orchestrator tests.
type fakeExecutor struct {
	invoke func(ctx context.Context, function string, args []byte) ([]byte, entities.Telemetry, error)
}

func (f *fakeExecutor) Invoke(ctx context.Context, function string, args []byte) ([]byte, entities.Telemetry, error) {
	return f.invoke(ctx, function, args)
}

func (f *fakeExecutor) Close(context.Context) error { return nil }

func policyWithFuel(maxFuel uint64) entities.SecurityPolicy {
	return entities.SecurityPolicy{
		Name:   "test",
		Grants: &entities.GrantSet{},
		Limits: entities.ResourceLimits{MaxFuel: maxFuel},
	}
}

func TestSandbox_RequiresExecutor(t *testing.T) {
	_, err := host.NewSandbox()
	require.Error(t, err)
}

func TestSandbox_SuccessOutcome(t *testing.T) {
	exec := &fakeExecutor{
		invoke: func(ctx context.Context, function string, args []byte) ([]byte, entities.Telemetry, error) {
			assert.Equal(t, "transform", function)
			assert.Equal(t, `{"in":1}`, string(args))
			return []byte(`{"out":2}`), entities.Telemetry{InstructionsExecuted: 1000, MemoryDelta: 4096}, nil
		},
	}

	sb, err := host.NewSandbox(
		host.WithExecutor(exec),
		host.WithPolicy(policyWithFuel(1000)),
	)
	require.NoError(t, err)
	defer sb.Close()

	// Consuming the fuel budget exactly still succeeds.
	outcome := sb.Invoke(context.Background(), host.Call{Function: "transform", Args: []byte(`{"in":1}`)})
	require.Equal(t, entities.OutcomeSuccess, outcome.Status)
	assert.Equal(t, `{"out":2}`, string(outcome.Value))
	assert.Equal(t, uint64(1000), outcome.Telemetry.InstructionsExecuted)
	assert.Equal(t, int64(4096), outcome.Telemetry.MemoryDelta)
	assert.Nil(t, outcome.Error)
}

func TestSandbox_FuelExhaustion(t *testing.T) {
	exec := &fakeExecutor{
		invoke: func(ctx context.Context, function string, args []byte) ([]byte, entities.Telemetry, error) {
			return nil, entities.Telemetry{InstructionsExecuted: 1001}, nil
		},
	}

	sb, err := host.NewSandbox(
		host.WithExecutor(exec),
		host.WithPolicy(policyWithFuel(1000)),
	)
	require.NoError(t, err)
	defer sb.Close()

	outcome := sb.Invoke(context.Background(), host.Call{Function: "burn"})
	require.Equal(t, entities.OutcomeResourceExhausted, outcome.Status)
	require.NotNil(t, outcome.Error)
	assert.Equal(t, "resource", outcome.Error.Type)
	assert.Equal(t, "fuel", outcome.Error.Code)
	assert.Equal(t, uint64(1001), outcome.Error.Details["requested"])
	assert.Equal(t, uint64(1000), outcome.Error.Details["limit"])

	// The limit hit is audited.
	events := sb.Monitor().Events()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, entities.EventResourceLimitHit, last.Kind)
	assert.Equal(t, "fuel", last.Dimension)
}

func TestSandbox_SecurityViolationOutcome(t *testing.T) {
	exec := &fakeExecutor{
		invoke: func(ctx context.Context, function string, args []byte) ([]byte, entities.Telemetry, error) {
			return nil, entities.Telemetry{}, &errors.SecurityViolationError{
				Kind:       errors.UnauthorizedFileAccess,
				Operation:  "write",
				Descriptor: "/in/a.json",
			}
		},
	}

	sb, err := host.NewSandbox(host.WithExecutor(exec), host.WithPolicy(policyWithFuel(0)))
	require.NoError(t, err)
	defer sb.Close()

	outcome := sb.Invoke(context.Background(), host.Call{Function: "sneak"})
	require.Equal(t, entities.OutcomeSecurityViolation, outcome.Status)
	require.NotNil(t, outcome.Error)
	assert.Equal(t, "security", outcome.Error.Type)
	assert.Equal(t, "/in/a.json", outcome.Error.Details["descriptor"])

	events := sb.Monitor().Events()
	require.NotEmpty(t, events)
	assert.Equal(t, entities.EventViolationDenied, events[len(events)-1].Kind)
}

func TestSandbox_TimeoutCancelsChannels(t *testing.T) {
	var captured *stream.Channel

	exec := &fakeExecutor{
		invoke: func(ctx context.Context, function string, args []byte) ([]byte, entities.Telemetry, error) {
			scope, ok := hostfuncs.CallScopeFrom(ctx)
			require.True(t, ok)
			captured = scope.OpenChannel("out", 1<<16)

			<-ctx.Done()
			return nil, entities.Telemetry{}, ctx.Err()
		},
	}

	pol := policyWithFuel(0)
	pol.Limits.ExecutionTimeout = 50 * time.Millisecond

	sb, err := host.NewSandbox(host.WithExecutor(exec), host.WithPolicy(pol))
	require.NoError(t, err)
	defer sb.Close()

	outcome := sb.Invoke(context.Background(), host.Call{Function: "stall"})
	require.Equal(t, entities.OutcomeResourceExhausted, outcome.Status)
	require.NotNil(t, outcome.Error)
	assert.Equal(t, "time", outcome.Error.Code)
	assert.True(t, outcome.Error.IsTimeout)

	// The call's channels were cancelled so blocked parties wake.
	require.NotNil(t, captured)
	sendErr := captured.Send(context.Background(), entities.Chunk{Sequence: 0})
	assert.True(t, errors.IsStreamCancelled(sendErr))
}

func TestSandbox_TenantScopedCall(t *testing.T) {
	manager := tenant.NewManager(tenant.WithCapacity(1 << 30))
	pol := policyWithFuel(1_000_000)
	pol.Limits.MemoryBytes = 100 << 20
	_, err := manager.Create("acme", pol, entities.IsolationContainer)
	require.NoError(t, err)

	exec := &fakeExecutor{
		invoke: func(ctx context.Context, function string, args []byte) ([]byte, entities.Telemetry, error) {
			scope, ok := hostfuncs.CallScopeFrom(ctx)
			require.True(t, ok)
			assert.Equal(t, "acme", scope.TenantID)
			return []byte("ok"), entities.Telemetry{InstructionsExecuted: 10}, nil
		},
	}

	sb, err := host.NewSandbox(host.WithExecutor(exec), host.WithTenantManager(manager))
	require.NoError(t, err)
	defer sb.Close()

	outcome := sb.Invoke(context.Background(), host.Call{Tenant: "acme", Function: "work"})
	require.Equal(t, entities.OutcomeSuccess, outcome.Status)

	// Fuel resets at the next call boundary rather than accumulating.
	outcome = sb.Invoke(context.Background(), host.Call{Tenant: "acme", Function: "work"})
	require.Equal(t, entities.OutcomeSuccess, outcome.Status)
	assert.Equal(t, uint64(10), outcome.Telemetry.InstructionsExecuted)
}

func TestSandbox_DestroyedTenant(t *testing.T) {
	manager := tenant.NewManager()
	_, err := manager.Create("gone", policyWithFuel(0), entities.IsolationBasic)
	require.NoError(t, err)
	require.NoError(t, manager.Destroy("gone"))

	exec := &fakeExecutor{
		invoke: func(ctx context.Context, function string, args []byte) ([]byte, entities.Telemetry, error) {
			t.Fatal("executor must not run for a destroyed tenant")
			return nil, entities.Telemetry{}, nil
		},
	}

	sb, err := host.NewSandbox(host.WithExecutor(exec), host.WithTenantManager(manager))
	require.NoError(t, err)
	defer sb.Close()

	outcome := sb.Invoke(context.Background(), host.Call{Tenant: "gone", Function: "work"})
	require.Equal(t, entities.OutcomeInternalError, outcome.Status)
	require.NotNil(t, outcome.Error)
	assert.Equal(t, "tenant", outcome.Error.Type)
	assert.Equal(t, "destroyed", outcome.Error.Code)
}

func TestSandbox_CrossTenantRefsDenied(t *testing.T) {
	manager := tenant.NewManager(tenant.WithScopeRoot("/srv/tenants"))
	_, err := manager.Create("alpha", policyWithFuel(0), entities.IsolationBasic)
	require.NoError(t, err)
	_, err = manager.Create("beta", policyWithFuel(0), entities.IsolationBasic)
	require.NoError(t, err)

	exec := &fakeExecutor{
		invoke: func(ctx context.Context, function string, args []byte) ([]byte, entities.Telemetry, error) {
			t.Fatal("executor must not run after a boundary violation")
			return nil, entities.Telemetry{}, nil
		},
	}

	sb, err := host.NewSandbox(host.WithExecutor(exec), host.WithTenantManager(manager))
	require.NoError(t, err)
	defer sb.Close()

	outcome := sb.Invoke(context.Background(), host.Call{
		Tenant:   "alpha",
		Function: "peek",
		Refs:     tenant.Refs{Paths: []string{"/srv/tenants/beta/secrets"}},
	})
	require.Equal(t, entities.OutcomeSecurityViolation, outcome.Status)
	require.NotNil(t, outcome.Error)
	assert.Equal(t, string(errors.CrossTenantAccess), outcome.Error.Code)
}

func TestSandbox_WithExternalMonitor(t *testing.T) {
	monitor := audit.NewMonitor(audit.WithQueueSize(8))
	exec := &fakeExecutor{
		invoke: func(ctx context.Context, function string, args []byte) ([]byte, entities.Telemetry, error) {
			return []byte("ok"), entities.Telemetry{}, nil
		},
	}

	sb, err := host.NewSandbox(
		host.WithExecutor(exec),
		host.WithMonitor(monitor),
		host.WithPolicy(policyWithFuel(0)),
	)
	require.NoError(t, err)

	outcome := sb.Invoke(context.Background(), host.Call{Function: "noop"})
	assert.Equal(t, entities.OutcomeSuccess, outcome.Status)
	require.NoError(t, sb.Close())
}

func TestSandbox_SwallowedHostRefusalStillExhausts(t *testing.T) {
	exec := &fakeExecutor{
		invoke: func(ctx context.Context, function string, args []byte) ([]byte, entities.Telemetry, error) {
			scope, ok := hostfuncs.CallScopeFrom(ctx)
			require.True(t, ok)

			// The guest ignores the refused host call and returns a value
			// with no instruction estimate of its own.
			require.Error(t, scope.Ledger.TickFuel(2000))
			return []byte(`{"out":1}`), entities.Telemetry{}, nil
		},
	}

	sb, err := host.NewSandbox(
		host.WithExecutor(exec),
		host.WithPolicy(policyWithFuel(1000)),
	)
	require.NoError(t, err)
	defer sb.Close()

	outcome := sb.Invoke(context.Background(), host.Call{Function: "swallow"})
	require.Equal(t, entities.OutcomeResourceExhausted, outcome.Status, "a tripped fuel budget is terminal even when the guest returns a value")
	require.NotNil(t, outcome.Error)
	assert.Equal(t, "fuel", outcome.Error.Code)
	assert.Equal(t, uint64(2000), outcome.Error.Details["requested"])
	assert.Equal(t, uint64(1000), outcome.Error.Details["limit"])
	assert.Nil(t, outcome.Value)
}

func TestSandbox_ConcurrentTenantCallsKeepSeparateFuel(t *testing.T) {
	manager := tenant.NewManager(tenant.WithCapacity(1 << 30))
	pol := policyWithFuel(1000)
	pol.Limits.MemoryBytes = 100 << 20
	_, err := manager.Create("acme", pol, entities.IsolationContainer)
	require.NoError(t, err)

	halfway := make(chan struct{})
	peerDone := make(chan struct{})

	exec := &fakeExecutor{
		invoke: func(ctx context.Context, function string, args []byte) ([]byte, entities.Telemetry, error) {
			scope, _ := hostfuncs.CallScopeFrom(ctx)

			switch function {
			case "slow":
				if err := scope.Ledger.TickFuel(900); err != nil {
					return nil, entities.Telemetry{}, err
				}
				close(halfway)
				<-peerDone
				// The peer's call boundary must not have refilled this
				// call's budget: 900 more exceeds 1000.
				if err := scope.Ledger.TickFuel(900); err != nil {
					return nil, entities.Telemetry{}, err
				}
				return []byte("ok"), entities.Telemetry{}, nil
			default:
				if err := scope.Ledger.TickFuel(100); err != nil {
					return nil, entities.Telemetry{}, err
				}
				return []byte("ok"), entities.Telemetry{}, nil
			}
		},
	}

	sb, err := host.NewSandbox(host.WithExecutor(exec), host.WithTenantManager(manager))
	require.NoError(t, err)
	defer sb.Close()

	slow := make(chan entities.Outcome, 1)
	go func() {
		slow <- sb.Invoke(context.Background(), host.Call{Tenant: "acme", Function: "slow"})
	}()

	<-halfway
	outcome := sb.Invoke(context.Background(), host.Call{Tenant: "acme", Function: "quick"})
	require.Equal(t, entities.OutcomeSuccess, outcome.Status, "a concurrent call gets its own fuel budget")
	close(peerDone)

	outcome = <-slow
	require.Equal(t, entities.OutcomeResourceExhausted, outcome.Status, "consumption survives a concurrent call for the same tenant")
	require.NotNil(t, outcome.Error)
	assert.Equal(t, "fuel", outcome.Error.Code)
	assert.Equal(t, uint64(1800), outcome.Error.Details["requested"])
}
