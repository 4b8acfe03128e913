package host

import (
	"github.com/warden-run/warden/audit"
	"github.com/warden-run/warden/domain/entities"
	"github.com/warden-run/warden/domain/ports"
	"github.com/warden-run/warden/tenant"
)

// sandboxConfig holds configuration for a Sandbox.
type sandboxConfig struct {
	executor ports.GuestExecutor
	enforcer ports.Enforcer
	monitor  *audit.Monitor
	manager  *tenant.Manager
	policy   entities.SecurityPolicy
}

func defaultSandboxConfig() sandboxConfig {
	return sandboxConfig{
		policy: entities.MinimalPolicy(),
	}
}

// Option defines a functional option for configuring the Sandbox.
type Option func(*sandboxConfig)

// WithExecutor configures the guest executor running compiled modules.
// Required.
func WithExecutor(executor ports.GuestExecutor) Option {
	return func(c *sandboxConfig) {
		c.executor = executor
	}
}

// WithEnforcer overrides the capability enforcer used for untenanted calls.
func WithEnforcer(enforcer ports.Enforcer) Option {
	return func(c *sandboxConfig) {
		c.enforcer = enforcer
	}
}

// WithMonitor sets the audit monitor. Configure it with a sink to persist
// events; without one, events stay in memory.
func WithMonitor(monitor *audit.Monitor) Option {
	return func(c *sandboxConfig) {
		c.monitor = monitor
	}
}

// WithTenantManager enables tenant-scoped calls through the given arena.
func WithTenantManager(manager *tenant.Manager) Option {
	return func(c *sandboxConfig) {
		c.manager = manager
	}
}

// WithPolicy sets the security policy for untenanted calls. Defaults to the
// minimal policy (no grants).
func WithPolicy(pol entities.SecurityPolicy) Option {
	return func(c *sandboxConfig) {
		c.policy = pol
	}
}
