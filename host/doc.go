// Package host implements the sandbox orchestrator: the façade composing the
// capability enforcer, resource ledger, streaming channels, tenant manager,
// and audit monitor to run one guest call end to end and emit exactly one
// terminal outcome.
package host
