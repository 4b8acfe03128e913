// Package ports defines the interfaces at the sandbox core's boundary.
// Domain logic depends on these abstractions; infrastructure adapters
// (wazero, file stores, audit sinks) implement them.
package ports
