// Package entities provides the core domain value types for the sandbox:
// capability grants, resource limits, security policies, tenants, stream
// chunks, and audit events. All types here are pure data with no behavior
// beyond construction and set operations.
package entities
