package entities

import "time"

// IsolationLevel selects which enforcement layers are mandatory for a tenant.
// Levels are ordered: each level requires a superset of the features below it.
type IsolationLevel string

const (
	IsolationBasic          IsolationLevel = "basic"
	IsolationContainer      IsolationLevel = "container"
	IsolationVirtualMachine IsolationLevel = "virtual-machine"
	IsolationStrong         IsolationLevel = "strong"
)

// IsolationFeature is one enforcement layer implied by an isolation level.
type IsolationFeature string

const (
	FeatureProcessSeparation   IsolationFeature = "process-separation"
	FeatureFilesystemNamespace IsolationFeature = "filesystem-namespace"
	FeatureNetworkNamespace    IsolationFeature = "network-namespace"
	FeatureCapabilityDropping  IsolationFeature = "capability-dropping"
)

// RequiredFeatures returns the enforcement layers mandated by the level.
func (l IsolationLevel) RequiredFeatures() []IsolationFeature {
	switch l {
	case IsolationBasic:
		return []IsolationFeature{FeatureProcessSeparation}
	case IsolationContainer:
		return []IsolationFeature{FeatureProcessSeparation, FeatureFilesystemNamespace}
	case IsolationVirtualMachine:
		return []IsolationFeature{FeatureProcessSeparation, FeatureFilesystemNamespace, FeatureNetworkNamespace}
	case IsolationStrong:
		return []IsolationFeature{
			FeatureProcessSeparation,
			FeatureFilesystemNamespace,
			FeatureNetworkNamespace,
			FeatureCapabilityDropping,
		}
	default:
		return nil
	}
}

// Valid reports whether the level is one of the defined isolation levels.
func (l IsolationLevel) Valid() bool {
	switch l {
	case IsolationBasic, IsolationContainer, IsolationVirtualMachine, IsolationStrong:
		return true
	}
	return false
}

// TenantStatus is the lifecycle state of a tenant.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantDestroyed TenantStatus = "destroyed"
)

// Tenant is an isolated execution context: identity, policy, isolation level,
// and lifecycle timestamps. The tenant's ledger is owned by the tenant
// manager's handle, not stored here.
type Tenant struct {
	ID          string         `json:"id"`
	Policy      SecurityPolicy `json:"policy"`
	Isolation   IsolationLevel `json:"isolation_level"`
	Status      TenantStatus   `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	DestroyedAt time.Time      `json:"destroyed_at,omitempty"`
}
