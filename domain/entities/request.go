package entities

// FileSystemRequest represents a runtime request to access the filesystem.
type FileSystemRequest struct {
	Path      string
	Operation string // "read", "write"
}

// Descriptor returns the resource descriptor used in denial reasons.
func (r FileSystemRequest) Descriptor() string { return r.Path }

// NetworkRequest represents a runtime request to open an outbound connection.
type NetworkRequest struct {
	Host string
	Port int
}

// ListenRequest represents a runtime request to bind a listening socket.
type ListenRequest struct {
	BindAddress string
}

// EnvironmentRequest represents a runtime request to access an environment
// variable.
type EnvironmentRequest struct {
	Variable  string
	Operation string // "read", "write"
}

// CustomRequest represents a runtime request for a host-defined capability.
type CustomRequest struct {
	Tag string
}
