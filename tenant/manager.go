// Package tenant implements the tenant manager: an arena of isolated
// execution contexts indexed by id, each owning its security policy,
// capability enforcer, and resource ledger. The manager holds the global
// quota pool; tenant creation reserves declared quota against it up front
// and destruction releases it.
package tenant

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/warden-run/warden/domain/entities"
	"github.com/warden-run/warden/domain/errors"
	"github.com/warden-run/warden/domain/policy"
	"github.com/warden-run/warden/ledger"
)

// managerConfig holds configuration for a Manager.
type managerConfig struct {
	capacityBytes uint64
	scopeRoot     string
	now           func() time.Time
	enforcerOpts  []policy.Option
}

func defaultManagerConfig() managerConfig {
	return managerConfig{
		scopeRoot: "/tenants",
		now:       time.Now,
	}
}

// Option configures a Manager.
type Option func(*managerConfig)

// WithCapacity sets the global memory pool in bytes. Tenant creation reserves
// the policy's declared memory quota against this pool; zero means unbounded.
func WithCapacity(bytes uint64) Option {
	return func(c *managerConfig) {
		c.capacityBytes = bytes
	}
}

// WithScopeRoot sets the directory under which per-tenant filesystem scopes
// live (default "/tenants"). A path under scopeRoot/<other-id> referenced by
// an operation scoped to a different tenant is a cross-tenant violation.
func WithScopeRoot(root string) Option {
	return func(c *managerConfig) {
		c.scopeRoot = filepath.Clean(root)
	}
}

// WithClock sets the time source. Only for tests.
func WithClock(now func() time.Time) Option {
	return func(c *managerConfig) {
		c.now = now
	}
}

// WithEnforcerOptions forwards options to each tenant's capability enforcer.
func WithEnforcerOptions(opts ...policy.Option) Option {
	return func(c *managerConfig) {
		c.enforcerOpts = opts
	}
}

// Handle is the live view of one tenant: its record, its enforcer, and its
// ledger. Handles are only obtained through the manager so every consumer
// observes lifecycle transitions.
type Handle struct {
	tenant   entities.Tenant
	enforcer *policy.Enforcer
	ledger   *ledger.Ledger
}

// Tenant returns a copy of the tenant record.
func (h *Handle) Tenant() entities.Tenant { return h.tenant }

// Enforcer returns the tenant's capability enforcer.
func (h *Handle) Enforcer() *policy.Enforcer { return h.enforcer }

// Ledger returns the tenant's resource ledger.
func (h *Handle) Ledger() *ledger.Ledger { return h.ledger }

// Grants returns the tenant's granted capability set.
func (h *Handle) Grants() *entities.GrantSet { return h.tenant.Policy.Grants }

// Refs names the external resources an operation intends to touch, checked
// against tenant boundaries before the operation runs.
type Refs struct {
	Paths []string
}

// Manager is the arena of tenants and the single serialization point for the
// global quota pool. Retired ids are remembered forever: a destroyed tenant
// id can never be reused for a different tenant's resources.
type Manager struct {
	mu sync.Mutex

	config   managerConfig
	reserved uint64
	tenants  map[string]*Handle
	retired  map[string]struct{}
}

// NewManager creates a Manager with the given global capacity and options.
func NewManager(opts ...Option) *Manager {
	cfg := defaultManagerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Manager{
		config:  cfg,
		tenants: make(map[string]*Handle),
		retired: make(map[string]struct{}),
	}
}

// Create registers a new tenant under the given policy and isolation level,
// reserving its declared memory quota against the global pool. Creation is
// atomic: a failed quota reservation leaves no partial allocation, and a
// retired id is refused the same as a live one.
func (m *Manager) Create(id string, pol entities.SecurityPolicy, isolation entities.IsolationLevel) (*Handle, error) {
	if !isolation.Valid() {
		isolation = entities.IsolationBasic
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tenants[id]; ok {
		return nil, &errors.TenantError{Kind: errors.TenantAlreadyExists, ID: id}
	}
	if _, ok := m.retired[id]; ok {
		return nil, &errors.TenantError{Kind: errors.TenantAlreadyExists, ID: id}
	}

	quota := pol.Limits.MemoryBytes
	if m.config.capacityBytes > 0 && m.reserved+quota > m.config.capacityBytes {
		return nil, &errors.TenantError{Kind: errors.TenantQuotaUnavailable, ID: id}
	}
	m.reserved += quota

	h := &Handle{
		tenant: entities.Tenant{
			ID:        id,
			Policy:    pol,
			Isolation: isolation,
			Status:    entities.TenantActive,
			CreatedAt: m.config.now(),
		},
		enforcer: policy.NewEnforcer(m.config.enforcerOpts...),
		ledger:   ledger.New(pol.Limits, ledger.WithTenant(id), ledger.WithClock(m.config.now)),
	}
	m.tenants[id] = h

	slog.Info("tenant created",
		"tenant", id,
		"isolation", string(isolation),
		"quota_bytes", quota,
		"pool_reserved", m.reserved)
	return h, nil
}

// Destroy removes a tenant, releasing its quota reservation and invalidating
// its ledger atomically. In-flight calls observe destruction on their next
// ledger interaction. The id is retired permanently.
func (m *Manager) Destroy(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.tenants[id]
	if !ok {
		return &errors.TenantError{Kind: errors.TenantNotFound, ID: id}
	}

	quota := h.tenant.Policy.Limits.MemoryBytes
	if quota > m.reserved {
		m.reserved = 0
	} else {
		m.reserved -= quota
	}

	h.tenant.Status = entities.TenantDestroyed
	h.tenant.DestroyedAt = m.config.now()
	h.ledger.MarkDestroyed()

	delete(m.tenants, id)
	m.retired[id] = struct{}{}

	slog.Info("tenant destroyed", "tenant", id, "pool_reserved", m.reserved)
	return nil
}

// Get resolves a live tenant handle. A retired id reports Destroyed rather
// than NotFound so callers can distinguish lifecycle from typos.
func (m *Manager) Get(id string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(id)
}

func (m *Manager) getLocked(id string) (*Handle, error) {
	if h, ok := m.tenants[id]; ok {
		return h, nil
	}
	if _, ok := m.retired[id]; ok {
		return nil, &errors.TenantError{Kind: errors.TenantDestroyed, ID: id}
	}
	return nil, &errors.TenantError{Kind: errors.TenantNotFound, ID: id}
}

// WithTenant resolves the tenant, validates that every resource the operation
// references stays inside that tenant's boundary, and runs fn with the
// handle. A path under another tenant's scope is refused with a
// CrossTenantAccess violation before fn runs.
func (m *Manager) WithTenant(id string, refs Refs, fn func(*Handle) error) error {
	m.mu.Lock()
	h, err := m.getLocked(id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	for _, p := range refs.Paths {
		if owner, crosses := m.crossesBoundary(id, p); crosses {
			slog.Warn("cross-tenant access refused",
				"tenant", id,
				"path", p,
				"owner", owner)
			return &errors.SecurityViolationError{
				Kind:       errors.CrossTenantAccess,
				Operation:  "access",
				Descriptor: p,
			}
		}
	}
	return fn(h)
}

// crossesBoundary reports whether path lies inside a different tenant's scope
// directory, returning that tenant's id.
func (m *Manager) crossesBoundary(id, path string) (string, bool) {
	rel, err := filepath.Rel(m.config.scopeRoot, filepath.Clean(path))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		// Outside the scope root entirely; the capability enforcer decides.
		return "", false
	}
	owner, _, _ := strings.Cut(rel, string(filepath.Separator))
	return owner, owner != id
}

// Reserved returns the bytes currently reserved against the global pool.
func (m *Manager) Reserved() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reserved
}

// Capacity returns the configured global pool size in bytes (zero means
// unbounded).
func (m *Manager) Capacity() uint64 {
	return m.config.capacityBytes
}

// Active returns the ids of all live tenants.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.tenants))
	for id := range m.tenants {
		ids = append(ids, id)
	}
	return ids
}
