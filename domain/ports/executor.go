package ports

import (
	"context"

	"github.com/warden-run/warden/domain/entities"
)

// GuestExecutor runs a compiled guest module. The core treats the executor as
// opaque: it invokes a named function and reports telemetry. Abort is
// requested by cancelling the invocation context; the executor must halt at
// its next safe instruction boundary.
type GuestExecutor interface {
	// Invoke calls the named guest function with the given argument payload
	// and returns the guest's result payload plus execution telemetry.
	// Telemetry is reported even when err is non-nil so partial consumption
	// can be accounted.
	Invoke(ctx context.Context, function string, args []byte) ([]byte, entities.Telemetry, error)

	// Close releases the guest instance.
	Close(ctx context.Context) error
}

// ModuleCompiler turns raw module bytes into an invocable guest instance.
// Compilation and caching are outside the core; the orchestrator only needs
// the resulting executor.
type ModuleCompiler interface {
	Compile(ctx context.Context, moduleBytes []byte) (GuestExecutor, error)
}
