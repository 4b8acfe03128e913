package entities

import (
	"fmt"
	"time"
)

// SecurityPolicy is a named bundle of capability grants, resource limits, and
// the audit persistence flag. The predefined profiles below are presets over
// this structure, not separate types.
type SecurityPolicy struct {
	Name         string         `json:"name" yaml:"name"`
	Grants       *GrantSet      `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Limits       ResourceLimits `json:"resource_limits,omitempty" yaml:"resource_limits,omitempty"`
	AuditEnabled bool           `json:"audit_enabled" yaml:"audit_enabled"`
}

// Profile names recognized by PolicyByName and the config loader.
const (
	ProfileMinimal        = "minimal"
	ProfileFileProcessing = "file-processing"
	ProfileWebService     = "web-service"
	ProfileStrict         = "strict"
	ProfileParanoid       = "paranoid"
)

// MinimalPolicy grants nothing and caps everything tightly. The guest can
// compute but touch no host resources.
func MinimalPolicy() SecurityPolicy {
	return SecurityPolicy{
		Name:   ProfileMinimal,
		Grants: &GrantSet{},
		Limits: ResourceLimits{
			MemoryBytes:      16 << 20,
			MaxFuel:          1_000_000,
			ExecutionTimeout: 5 * time.Second,
		},
		AuditEnabled: true,
	}
}

// FileProcessingPolicy suits batch transforms: scratch filesystem access, no
// network.
func FileProcessingPolicy() SecurityPolicy {
	return SecurityPolicy{
		Name: ProfileFileProcessing,
		Grants: &GrantSet{
			FS: &FileSystemCapability{Rules: []FileSystemRule{
				{Read: []string{"/in/**"}, Write: []string{"/out/**", "/tmp/**"}},
			}},
			Env: &EnvironmentCapability{Read: []string{"LANG", "TZ"}},
		},
		Limits: ResourceLimits{
			MemoryBytes:      256 << 20,
			MaxFuel:          100_000_000,
			ExecutionTimeout: 2 * time.Minute,
			MaxFileSize:      1 << 30,
			MaxOpenFiles:     64,
		},
		AuditEnabled: true,
	}
}

// WebServicePolicy suits request handlers: outbound HTTPS plus a scratch
// directory.
func WebServicePolicy() SecurityPolicy {
	return SecurityPolicy{
		Name: ProfileWebService,
		Grants: &GrantSet{
			Network: &NetworkCapability{
				Connect: []NetworkRule{{Hosts: []string{"**"}, Ports: []string{"80", "443"}}},
			},
			FS:  &FileSystemCapability{Rules: []FileSystemRule{{Read: []string{"/tmp/**"}, Write: []string{"/tmp/**"}}}},
			Env: &EnvironmentCapability{Read: []string{"HTTP_PROXY", "HTTPS_PROXY", "NO_PROXY"}},
		},
		Limits: ResourceLimits{
			MemoryBytes:      128 << 20,
			MaxFuel:          50_000_000,
			ExecutionTimeout: 30 * time.Second,
			MaxConnections:   16,
			NetworkTimeout:   10 * time.Second,
		},
		AuditEnabled: true,
	}
}

// StrictPolicy grants nothing and enforces small budgets.
func StrictPolicy() SecurityPolicy {
	return SecurityPolicy{
		Name:   ProfileStrict,
		Grants: &GrantSet{},
		Limits: ResourceLimits{
			MemoryBytes:      8 << 20,
			MaxFuel:          100_000,
			ExecutionTimeout: time.Second,
		},
		AuditEnabled: true,
	}
}

// ParanoidPolicy is StrictPolicy with the tightest budgets the runtime
// supports. Use for completely untrusted code.
func ParanoidPolicy() SecurityPolicy {
	return SecurityPolicy{
		Name:   ProfileParanoid,
		Grants: &GrantSet{},
		Limits: ResourceLimits{
			MemoryBytes:      1 << 20,
			MaxFuel:          10_000,
			ExecutionTimeout: 250 * time.Millisecond,
		},
		AuditEnabled: true,
	}
}

// PolicyByName returns the predefined policy for a profile name.
func PolicyByName(name string) (SecurityPolicy, error) {
	switch name {
	case ProfileMinimal:
		return MinimalPolicy(), nil
	case ProfileFileProcessing:
		return FileProcessingPolicy(), nil
	case ProfileWebService:
		return WebServicePolicy(), nil
	case ProfileStrict:
		return StrictPolicy(), nil
	case ProfileParanoid:
		return ParanoidPolicy(), nil
	default:
		return SecurityPolicy{}, fmt.Errorf("unknown security profile: %q", name)
	}
}
