package entities

// FileSystemCapability defines permitted filesystem access.
type FileSystemCapability struct {
	Rules []FileSystemRule `json:"rules" yaml:"rules" jsonschema:"required"`
}

// FileSystemRule defines a single filesystem access rule. A pattern listed
// in both Read and Write grants read-write access.
type FileSystemRule struct {
	Read  []string `json:"read,omitempty" yaml:"read,omitempty"`
	Write []string `json:"write,omitempty" yaml:"write,omitempty"`
}

// NetworkCapability defines permitted network access.
type NetworkCapability struct {
	// Connect rules authorize outbound connections.
	Connect []NetworkRule `json:"connect,omitempty" yaml:"connect,omitempty"`

	// Listen authorizes binding to the listed addresses (glob patterns).
	Listen []string `json:"listen,omitempty" yaml:"listen,omitempty"`
}

// NetworkRule defines a single outbound network rule.
type NetworkRule struct {
	Hosts []string `json:"hosts" yaml:"hosts" jsonschema:"required"`
	Ports []string `json:"ports" yaml:"ports" jsonschema:"required"` // "443", "8000-9000", "*"
}

// EnvironmentCapability defines permitted environment variable access.
type EnvironmentCapability struct {
	Read  []string `json:"read,omitempty" yaml:"read,omitempty"`
	Write []string `json:"write,omitempty" yaml:"write,omitempty"`
}

// CustomCapability defines host-defined capability tags outside the built-in
// kinds. Tags are matched by glob pattern.
type CustomCapability struct {
	Tags []string `json:"tags" yaml:"tags" jsonschema:"required"`
}
