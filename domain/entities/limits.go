package entities

import "time"

// ResourceLimits declares the consumable budgets for one execution context.
// A zero value means "unlimited" for that dimension. Unlimited budgets are
// representable but discouraged outside tests.
type ResourceLimits struct {
	// MemoryBytes is the guest memory ceiling in bytes.
	MemoryBytes uint64 `json:"memory_bytes,omitempty" yaml:"memory_bytes,omitempty"`

	// MaxFuel is the computation budget in abstract fuel units.
	MaxFuel uint64 `json:"max_fuel,omitempty" yaml:"max_fuel,omitempty"`

	// ExecutionTimeout is the wall-clock ceiling for one guest call.
	ExecutionTimeout time.Duration `json:"execution_timeout,omitempty" yaml:"execution_timeout,omitempty"`

	// MaxFileSize caps the size of any single file the guest reads or writes.
	MaxFileSize uint64 `json:"max_file_size,omitempty" yaml:"max_file_size,omitempty"`

	// MaxOpenFiles caps concurrently open file handles.
	MaxOpenFiles int `json:"max_open_files,omitempty" yaml:"max_open_files,omitempty"`

	// MaxConnections caps concurrently open network connections.
	MaxConnections int `json:"max_connections,omitempty" yaml:"max_connections,omitempty"`

	// NetworkTimeout bounds individual network operations.
	NetworkTimeout time.Duration `json:"network_timeout,omitempty" yaml:"network_timeout,omitempty"`
}

// Merge overlays non-zero fields of other onto a copy of l. Used when explicit
// limits override a security profile's defaults.
func (l ResourceLimits) Merge(other ResourceLimits) ResourceLimits {
	if other.MemoryBytes != 0 {
		l.MemoryBytes = other.MemoryBytes
	}
	if other.MaxFuel != 0 {
		l.MaxFuel = other.MaxFuel
	}
	if other.ExecutionTimeout != 0 {
		l.ExecutionTimeout = other.ExecutionTimeout
	}
	if other.MaxFileSize != 0 {
		l.MaxFileSize = other.MaxFileSize
	}
	if other.MaxOpenFiles != 0 {
		l.MaxOpenFiles = other.MaxOpenFiles
	}
	if other.MaxConnections != 0 {
		l.MaxConnections = other.MaxConnections
	}
	if other.NetworkTimeout != 0 {
		l.NetworkTimeout = other.NetworkTimeout
	}
	return l
}
