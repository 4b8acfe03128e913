// Package config loads, validates, and expands sandbox configuration
// documents. A document names a security profile and overrides pieces of it;
// Policy() resolves the document into a concrete SecurityPolicy.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/warden-run/warden/domain/entities"
	"gopkg.in/yaml.v3"
)

// validate is a package-level singleton for better performance.
// Creating a new validator on each call is expensive; reusing is recommended.
var validate = validator.New()

// Config is the sandbox configuration document.
type Config struct {
	// SecurityProfile names a preset policy. Explicit capabilities and
	// resource_limits override the profile's values.
	SecurityProfile string `yaml:"security_profile" json:"security_profile" validate:"omitempty,oneof=minimal file-processing web-service strict paranoid"`

	// Capabilities grants in addition to (or instead of) the profile's.
	Capabilities *entities.GrantSet `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`

	ResourceLimits LimitsConfig `yaml:"resource_limits,omitempty" json:"resource_limits,omitempty"`

	// AuditEnabled persists audit events to AuditLogPath. Events are kept in
	// memory either way.
	AuditEnabled bool   `yaml:"audit_enabled" json:"audit_enabled"`
	AuditLogPath string `yaml:"audit_log_path,omitempty" json:"audit_log_path,omitempty" validate:"required_if=AuditEnabled true"`

	Tenant TenantConfig `yaml:"tenant,omitempty" json:"tenant,omitempty"`
}

// TenantConfig configures multi-tenant operation.
type TenantConfig struct {
	IsolationLevel string `yaml:"isolation_level,omitempty" json:"isolation_level,omitempty" validate:"omitempty,oneof=basic container virtual-machine strong"`

	// CapacityBytes is the global memory quota pool shared by all tenants.
	CapacityBytes uint64 `yaml:"capacity_bytes,omitempty" json:"capacity_bytes,omitempty"`

	// ScopeRoot is the directory under which per-tenant scopes live.
	ScopeRoot string `yaml:"scope_root,omitempty" json:"scope_root,omitempty"`
}

// LimitsConfig mirrors entities.ResourceLimits with human-readable durations
// ("30s", "500ms") in the YAML document.
type LimitsConfig struct {
	MemoryBytes      uint64   `yaml:"memory_bytes,omitempty" json:"memory_bytes,omitempty"`
	MaxFuel          uint64   `yaml:"max_fuel,omitempty" json:"max_fuel,omitempty"`
	ExecutionTimeout Duration `yaml:"execution_timeout,omitempty" json:"execution_timeout,omitempty"`
	MaxFileSize      uint64   `yaml:"max_file_size,omitempty" json:"max_file_size,omitempty"`
	MaxOpenFiles     int      `yaml:"max_open_files,omitempty" json:"max_open_files,omitempty" validate:"min=0"`
	MaxConnections   int      `yaml:"max_connections,omitempty" json:"max_connections,omitempty" validate:"min=0"`
	NetworkTimeout   Duration `yaml:"network_timeout,omitempty" json:"network_timeout,omitempty"`
}

func (l LimitsConfig) toEntities() entities.ResourceLimits {
	return entities.ResourceLimits{
		MemoryBytes:      l.MemoryBytes,
		MaxFuel:          l.MaxFuel,
		ExecutionTimeout: time.Duration(l.ExecutionTimeout),
		MaxFileSize:      l.MaxFileSize,
		MaxOpenFiles:     l.MaxOpenFiles,
		MaxConnections:   l.MaxConnections,
		NetworkTimeout:   time.Duration(l.NetworkTimeout),
	}
}

// Duration parses from either a duration string ("30s") or an integer
// nanosecond count.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("duration must be a string or integer nanoseconds")
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Load reads and parses a configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Policy resolves the document into a concrete SecurityPolicy. The named
// profile supplies defaults; explicit capabilities are merged in and explicit
// limits override field by field.
func (c Config) Policy() (entities.SecurityPolicy, error) {
	base := entities.MinimalPolicy()
	if c.SecurityProfile != "" {
		pol, err := entities.PolicyByName(c.SecurityProfile)
		if err != nil {
			return entities.SecurityPolicy{}, err
		}
		base = pol
	}

	if c.Capabilities != nil {
		if base.Grants == nil {
			base.Grants = &entities.GrantSet{}
		} else {
			base.Grants = base.Grants.Clone()
		}
		base.Grants.Merge(c.Capabilities)
	}

	base.Limits = base.Limits.Merge(c.ResourceLimits.toEntities())
	base.AuditEnabled = c.AuditEnabled
	return base, nil
}

// Isolation returns the configured isolation level, defaulting to basic.
func (c Config) Isolation() entities.IsolationLevel {
	if c.Tenant.IsolationLevel == "" {
		return entities.IsolationBasic
	}
	return entities.IsolationLevel(c.Tenant.IsolationLevel)
}
