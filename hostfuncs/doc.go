// Package hostfuncs provides the host function surface exposed to sandboxed
// guests: an immutable registry of named byte handlers, a middleware chain
// for cross-cutting enforcement (panic recovery, fuel metering, deadline
// checks), and the built-in bundles covering filesystem, environment, and
// streaming operations.
//
// Every handler runs inside a CallScope carrying the tenant's grant set,
// capability enforcer, resource ledger, and audit monitor. Handlers never
// return Go errors for denials; they return structured ErrorResponse JSON so
// guests receive parseable failures instead of traps.
package hostfuncs
