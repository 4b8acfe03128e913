// Package ledger implements the resource accounting engine. A Ledger tracks
// consumable budgets (memory, fuel, wall clock, open files, connections) for
// one execution context and refuses consumption that would exceed a limit.
package ledger

import (
	"sync"
	"time"

	"github.com/warden-run/warden/domain/entities"
	"github.com/warden-run/warden/domain/errors"
)

// Dimension names one tracked resource budget.
type Dimension string

const (
	DimensionMemory      Dimension = "memory"
	DimensionFuel        Dimension = "fuel"
	DimensionTime        Dimension = "time"
	DimensionFiles       Dimension = "files"
	DimensionConnections Dimension = "connections"
)

// ledgerConfig holds configuration for a Ledger.
type ledgerConfig struct {
	tenantID string
	now      func() time.Time
}

func defaultLedgerConfig() ledgerConfig {
	return ledgerConfig{
		now: time.Now,
	}
}

// Option configures a Ledger.
type Option func(*ledgerConfig)

// WithTenant associates the ledger with a tenant id, reported in destruction
// errors.
func WithTenant(id string) Option {
	return func(c *ledgerConfig) {
		c.tenantID = id
	}
}

// WithClock sets the time source. Only for tests.
func WithClock(now func() time.Time) Option {
	return func(c *ledgerConfig) {
		c.now = now
	}
}

// Usage is a point-in-time snapshot of consumption.
type Usage struct {
	MemoryBytes     uint64
	Fuel            uint64
	Elapsed         time.Duration
	OpenFiles       int
	OpenConnections int
}

// Ledger is the mutable resource account for one execution context. All
// mutation points are serialized under one mutex; a reservation suspends
// callers only for the duration of the atomic update.
type Ledger struct {
	mu sync.Mutex

	config ledgerConfig
	limits entities.ResourceLimits

	// parent is set on call-scoped views created by BeginCall. Persistent
	// dimensions (memory, files, connections) and destruction live on the
	// parent; fuel and the wall clock stay local to the view.
	parent *Ledger

	memory    uint64
	fuel      uint64
	openFiles int
	openConns int

	started  time.Time
	deadline time.Time // zero when no timeout configured

	// fuelRequested records the amount that tripped the fuel dimension, so
	// CheckFuel can report the original overshoot.
	fuelRequested uint64

	tripped   map[Dimension]bool
	destroyed bool
}

// New creates a Ledger enforcing the given limits. The wall clock starts
// immediately; call ResetTransient at each call boundary.
func New(limits entities.ResourceLimits, opts ...Option) *Ledger {
	cfg := defaultLedgerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	l := &Ledger{
		config:  cfg,
		limits:  limits,
		tripped: make(map[Dimension]bool),
	}
	l.startClockLocked()
	return l
}

// Limits returns the limits this ledger enforces.
func (l *Ledger) Limits() entities.ResourceLimits {
	return l.limits
}

// BeginCall creates a call-scoped view of this ledger. The view has its own
// fuel budget and wall clock, so concurrent calls cannot reset or exhaust
// each other's transient counters, while memory, open files, and connections
// still draw from this ledger's shared quota. Destruction propagates to
// every view.
func (l *Ledger) BeginCall() *Ledger {
	root := l
	if root.parent != nil {
		root = root.parent
	}

	root.mu.Lock()
	defer root.mu.Unlock()

	view := &Ledger{
		config:  root.config,
		limits:  root.limits,
		parent:  root,
		tripped: make(map[Dimension]bool),
	}
	view.startClockLocked()
	return view
}

func (l *Ledger) startClockLocked() {
	l.started = l.config.now()
	if l.limits.ExecutionTimeout > 0 {
		l.deadline = l.started.Add(l.limits.ExecutionTimeout)
	} else {
		l.deadline = time.Time{}
	}
}

// destroyedErrLocked requires l.mu held. Views consult the parent, which
// owns destruction; lock order is always view then parent.
func (l *Ledger) destroyedErrLocked() error {
	if l.parent != nil {
		return l.parent.destroyedErr()
	}
	if l.destroyed {
		return &errors.TenantError{Kind: errors.TenantDestroyed, ID: l.config.tenantID}
	}
	return nil
}

func (l *Ledger) destroyedErr() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.destroyedErrLocked()
}

// Reserve asks for headroom on a dimension before performing an operation
// whose cost is known in advance. The reservation either commits fully or
// fails leaving consumption unchanged. Valid dimensions: memory, files,
// connections.
func (l *Ledger) Reserve(dim Dimension, amount uint64) error {
	if l.parent != nil {
		return l.parent.Reserve(dim, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.destroyedErrLocked(); err != nil {
		return err
	}

	switch dim {
	case DimensionMemory:
		return l.reserveCountedLocked(dim, &l.memory, amount, l.limits.MemoryBytes)
	case DimensionFiles:
		return l.reserveElasticLocked(dim, &l.openFiles, int(amount), l.limits.MaxOpenFiles)
	case DimensionConnections:
		return l.reserveElasticLocked(dim, &l.openConns, int(amount), l.limits.MaxConnections)
	default:
		return &errors.ResourceExhaustedError{Dimension: string(dim), Requested: amount, Limit: 0}
	}
}

func (l *Ledger) reserveCountedLocked(dim Dimension, counter *uint64, amount, limit uint64) error {
	if l.tripped[dim] {
		return &errors.ResourceExhaustedError{Dimension: string(dim), Requested: *counter + amount, Limit: limit}
	}
	if limit > 0 && *counter+amount > limit {
		l.tripped[dim] = true
		return &errors.ResourceExhaustedError{Dimension: string(dim), Requested: *counter + amount, Limit: limit}
	}
	*counter += amount
	return nil
}

func (l *Ledger) reserveElasticLocked(dim Dimension, counter *int, amount, limit int) error {
	if limit > 0 && *counter+amount > limit {
		return &errors.ResourceExhaustedError{
			Dimension: string(dim),
			Requested: uint64(*counter + amount),
			Limit:     uint64(limit),
		}
	}
	*counter += amount
	return nil
}

// Release returns previously reserved amounts. Releasing below a tripped
// dimension's limit clears the trip for persistent dimensions.
func (l *Ledger) Release(dim Dimension, amount uint64) {
	if l.parent != nil {
		l.parent.Release(dim, amount)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	switch dim {
	case DimensionMemory:
		if amount > l.memory {
			l.memory = 0
		} else {
			l.memory -= amount
		}
		if l.limits.MemoryBytes == 0 || l.memory < l.limits.MemoryBytes {
			delete(l.tripped, dim)
		}
	case DimensionFiles:
		l.openFiles -= int(amount)
		if l.openFiles < 0 {
			l.openFiles = 0
		}
	case DimensionConnections:
		l.openConns -= int(amount)
		if l.openConns < 0 {
			l.openConns = 0
		}
	}
}

// TickFuel consumes fuel incrementally as guest instructions execute. Fuel
// cannot be pre-reserved; consumption is monotonically non-decreasing within
// a call and resets at the next call boundary.
func (l *Ledger) TickFuel(amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.destroyedErrLocked(); err != nil {
		return err
	}
	if l.tripped[DimensionFuel] {
		return &errors.ResourceExhaustedError{
			Dimension: string(DimensionFuel),
			Requested: l.fuel + amount,
			Limit:     l.limits.MaxFuel,
		}
	}
	if l.limits.MaxFuel > 0 && l.fuel+amount > l.limits.MaxFuel {
		l.tripped[DimensionFuel] = true
		l.fuelRequested = l.fuel + amount
		return &errors.ResourceExhaustedError{
			Dimension: string(DimensionFuel),
			Requested: l.fuel + amount,
			Limit:     l.limits.MaxFuel,
		}
	}
	l.fuel += amount
	return nil
}

// CheckFuel returns the fuel exhaustion error when the fuel dimension has
// tripped during the current call, and nil otherwise. Callers that cannot
// observe individual TickFuel failures (a guest may swallow a refused host
// call and return normally) use this at the call boundary to decide the
// terminal outcome.
func (l *Ledger) CheckFuel() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.destroyedErrLocked(); err != nil {
		return err
	}
	if l.tripped[DimensionFuel] {
		return &errors.ResourceExhaustedError{
			Dimension: string(DimensionFuel),
			Requested: l.fuelRequested,
			Limit:     l.limits.MaxFuel,
		}
	}
	return nil
}

// RemainingTime returns the wall-clock budget left for the current call, or
// zero duration when no timeout is configured (never expires).
func (l *Ledger) RemainingTime() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.deadline.IsZero() {
		return 0
	}
	remaining := l.deadline.Sub(l.config.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expired reports whether the call's wall-clock budget is exhausted.
func (l *Ledger) Expired() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.expiredLocked()
}

func (l *Ledger) expiredLocked() bool {
	return !l.deadline.IsZero() && l.config.now().After(l.deadline)
}

// CheckDeadline returns a ResourceExhaustedError when the wall clock has
// expired, and trips the time dimension so subsequent checks fail fast.
func (l *Ledger) CheckDeadline() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.destroyedErrLocked(); err != nil {
		return err
	}
	if l.tripped[DimensionTime] || l.expiredLocked() {
		l.tripped[DimensionTime] = true
		limit := uint64(l.limits.ExecutionTimeout / time.Millisecond)
		elapsed := uint64(l.config.now().Sub(l.started) / time.Millisecond)
		return &errors.ResourceExhaustedError{Dimension: string(DimensionTime), Requested: elapsed, Limit: limit}
	}
	return nil
}

// ResetTransient resets the per-call counters (fuel, wall clock) at a call
// boundary. Persistent counters (memory, open files, connections) remain
// until explicitly released.
func (l *Ledger) ResetTransient() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.fuel = 0
	l.fuelRequested = 0
	delete(l.tripped, DimensionFuel)
	delete(l.tripped, DimensionTime)
	l.startClockLocked()
}

// Usage returns a consistent snapshot of current consumption. Views report
// their own fuel and elapsed time over the parent's persistent counters.
func (l *Ledger) Usage() Usage {
	if l.parent != nil {
		u := l.parent.Usage()
		l.mu.Lock()
		u.Fuel = l.fuel
		u.Elapsed = l.config.now().Sub(l.started)
		l.mu.Unlock()
		return u
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return Usage{
		MemoryBytes:     l.memory,
		Fuel:            l.fuel,
		Elapsed:         l.config.now().Sub(l.started),
		OpenFiles:       l.openFiles,
		OpenConnections: l.openConns,
	}
}

// MarkDestroyed puts the ledger into its terminal state: every subsequent
// interaction fails with TenantError(Destroyed). Used by the tenant manager
// so in-flight calls observe destruction at their next ledger interaction.
func (l *Ledger) MarkDestroyed() {
	if l.parent != nil {
		l.parent.MarkDestroyed()
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.destroyed = true
}

// Destroyed reports whether the ledger has been terminally invalidated.
func (l *Ledger) Destroyed() bool {
	if l.parent != nil {
		return l.parent.Destroyed()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.destroyed
}
