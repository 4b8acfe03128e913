package wazero

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/warden-run/warden/domain/entities"
	"github.com/warden-run/warden/domain/ports"
	"github.com/warden-run/warden/hostfuncs"
)

const wasmPageSize = 65536

// Runtime compiles guest modules against a shared wazero runtime with the
// host function module pre-registered. It implements ports.ModuleCompiler.
//
// The runtime is created with close-on-context-done so a cancelled invocation
// context halts the guest at its next instruction boundary.
type Runtime struct {
	runtime  wazero.Runtime
	registry *hostfuncs.HandlerRegistry
	config   runtimeConfig
}

type runtimeConfig struct {
	registry       *hostfuncs.HandlerRegistry
	memoryLimit    uint64
	adapterOptions []AdapterOption
}

// RuntimeOption configures the Runtime.
type RuntimeOption func(*runtimeConfig)

// WithHostFunctions sets the host function registry exposed to guests.
// Without it, an empty registry is used and guests can only compute.
func WithHostFunctions(registry *hostfuncs.HandlerRegistry) RuntimeOption {
	return func(c *runtimeConfig) {
		c.registry = registry
	}
}

// WithMemoryLimit caps guest linear memory at the given byte count, rounded
// up to the WASM page size. A guest growing past the cap traps.
func WithMemoryLimit(bytes uint64) RuntimeOption {
	return func(c *runtimeConfig) {
		c.memoryLimit = bytes
	}
}

// WithAdapterOptions forwards options to the host module adapter.
func WithAdapterOptions(opts ...AdapterOption) RuntimeOption {
	return func(c *runtimeConfig) {
		c.adapterOptions = append(c.adapterOptions, opts...)
	}
}

// NewRuntime creates a Runtime with WASI and the host function module
// instantiated.
func NewRuntime(ctx context.Context, opts ...RuntimeOption) (*Runtime, error) {
	var cfg runtimeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.registry == nil {
		reg, err := hostfuncs.NewRegistry()
		if err != nil {
			return nil, fmt.Errorf("failed to create default registry: %w", err)
		}
		cfg.registry = reg
	}

	rtCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.memoryLimit > 0 {
		pages := (cfg.memoryLimit + wasmPageSize - 1) / wasmPageSize
		rtCfg = rtCfg.WithMemoryLimitPages(uint32(pages)) //nolint:gosec // G115: page count bounded by 4GB address space
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtCfg)
	wasi_snapshot_preview1.MustInstantiate(ctx, rt)

	adapterOpts := append([]AdapterOption{WithCustomHandler(logMessageHandler())}, cfg.adapterOptions...)
	if err := RegisterWithRuntime(ctx, rt, cfg.registry, adapterOpts...); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("failed to register host functions: %w", err)
	}

	return &Runtime{runtime: rt, registry: cfg.registry, config: cfg}, nil
}

// Compile instantiates a guest module and returns its executor.
func (r *Runtime) Compile(ctx context.Context, moduleBytes []byte) (ports.GuestExecutor, error) {
	mod, err := r.runtime.Instantiate(ctx, moduleBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate module: %w", err)
	}

	if init := mod.ExportedFunction("_initialize"); init != nil {
		if _, err := init.Call(ctx); err != nil {
			mod.Close(ctx)
			return nil, fmt.Errorf("failed to call _initialize: %w", err)
		}
	}

	return &Guest{module: mod}, nil
}

// Close releases the runtime and every guest instantiated from it.
func (r *Runtime) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}

// Guest is one instantiated guest module. It implements ports.GuestExecutor.
type Guest struct {
	module api.Module
}

// Invoke calls a named guest export with the argument payload and returns the
// guest's packed response. Memory delta and wall time are measured here;
// instruction counts come from host-side metering, so InstructionsExecuted is
// left zero.
func (g *Guest) Invoke(ctx context.Context, function string, args []byte) ([]byte, entities.Telemetry, error) {
	started := time.Now()
	memBefore := g.memorySize()

	packed, err := g.callRaw(ctx, function, args)

	tel := entities.Telemetry{
		MemoryDelta: int64(g.memorySize()) - int64(memBefore),
		Duration:    time.Since(started),
	}
	if err != nil {
		return nil, tel, err
	}

	ptr, length := unpackPtrLen(packed)
	if length == 0 {
		return nil, tel, nil
	}
	data, ok := g.module.Memory().Read(ptr, length)
	if !ok {
		return nil, tel, fmt.Errorf("failed to read response from guest memory")
	}

	// Copy out: guest memory may be reused or grown after return.
	result := make([]byte, length)
	copy(result, data)
	return result, tel, nil
}

// Close releases the guest instance.
func (g *Guest) Close(ctx context.Context) error {
	return g.module.Close(ctx)
}

func (g *Guest) memorySize() uint32 {
	if mem := g.module.Memory(); mem != nil {
		return mem.Size()
	}
	return 0
}

func (g *Guest) callRaw(ctx context.Context, name string, input []byte) (uint64, error) {
	f := g.module.ExportedFunction(name)
	if f == nil {
		return 0, fmt.Errorf("export %q not found", name)
	}

	var results []uint64
	var err error

	if len(input) == 0 {
		results, err = f.Call(ctx)
	} else {
		allocate := g.module.ExportedFunction("allocate")
		if allocate == nil {
			return 0, fmt.Errorf("guest does not export 'allocate'")
		}
		resAlloc, errAlloc := allocate.Call(ctx, uint64(len(input)))
		if errAlloc != nil {
			return 0, fmt.Errorf("failed to allocate in guest: %w", errAlloc)
		}
		if len(resAlloc) == 0 {
			return 0, fmt.Errorf("allocate returned no results")
		}
		ptr := uint32(resAlloc[0]) //nolint:gosec // G115: WASM32 pointers are always 32-bit
		if !g.module.Memory().Write(ptr, input) {
			return 0, fmt.Errorf("failed to write input to guest memory")
		}
		results, err = f.Call(ctx, uint64(ptr), uint64(len(input)))
	}

	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0], nil
}

// logMessageHandler forwards guest log lines to slog. Guests call it with a
// packed ptr+len of a JSON {"level","message"} payload and no return value.
func logMessageHandler() CustomHandler {
	return CustomHandler{
		Name: "log_message",
		Handler: api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			ptr, length := unpackPtrLen(stack[0])
			payload, ok := mod.Memory().Read(ptr, length)
			if !ok {
				return
			}

			tenant := ""
			if scope, ok := hostfuncs.CallScopeFrom(ctx); ok {
				tenant = scope.TenantID
			}

			var logMsg struct {
				Level   string `json:"level"`
				Message string `json:"message"`
			}
			if err := json.Unmarshal(payload, &logMsg); err == nil {
				slog.Info("guest log", "level", logMsg.Level, "msg", logMsg.Message, "tenant", tenant)
			} else {
				slog.Info("guest log (raw)", "payload", string(payload), "tenant", tenant)
			}
		}),
		ParamTypes: []api.ValueType{api.ValueTypeI64},
	}
}
