package ports

import "github.com/warden-run/warden/domain/entities"

// Decision is the result of a capability check. Denials always carry the
// kind and the specific descriptor that failed, never a bare boolean.
type Decision struct {
	Allowed    bool
	Kind       string // "fs", "network", "env", "custom"
	Operation  string // "read", "write", "connect", "listen", "use"
	Descriptor string // resource descriptor of the checked request
	Reason     string // empty when allowed
}

// Allow constructs a permitted decision.
func Allow(kind, operation, descriptor string) Decision {
	return Decision{Allowed: true, Kind: kind, Operation: operation, Descriptor: descriptor}
}

// Deny constructs a denied decision with the given reason.
func Deny(kind, operation, descriptor, reason string) Decision {
	return Decision{Kind: kind, Operation: operation, Descriptor: descriptor, Reason: reason}
}

// AuditEvent converts the decision to its audit record: capability_used when
// allowed, violation_denied when not.
func (d Decision) AuditEvent() entities.AuditEvent {
	kind := entities.EventCapabilityUsed
	if !d.Allowed {
		kind = entities.EventViolationDenied
	}
	return entities.AuditEvent{
		Kind:       kind,
		Operation:  d.Operation,
		Descriptor: d.Descriptor,
		Allowed:    d.Allowed,
		Reason:     d.Reason,
	}
}

// Enforcer checks requested operations against a held grant set. Checks are
// pure functions of (grants, request): deterministic, no side effects, no
// logging. Audit emission is the caller's responsibility.
type Enforcer interface {
	CheckFileSystem(req entities.FileSystemRequest, grants *entities.GrantSet) Decision
	CheckNetwork(req entities.NetworkRequest, grants *entities.GrantSet) Decision
	CheckListen(req entities.ListenRequest, grants *entities.GrantSet) Decision
	CheckEnvironment(req entities.EnvironmentRequest, grants *entities.GrantSet) Decision
	CheckCustom(req entities.CustomRequest, grants *entities.GrantSet) Decision
}
