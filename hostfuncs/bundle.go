package hostfuncs

import (
	"context"
)

// HostFuncBundle is a pre-configured set of related host functions.
// Bundles allow registering multiple handlers at once for common use cases.
type HostFuncBundle interface {
	// Handlers returns a map of handler names to ByteHandler functions.
	Handlers() map[string]ByteHandler
}

// staticBundle implements HostFuncBundle with a fixed set of handlers.
type staticBundle struct {
	handlers map[string]ByteHandler
}

func (b *staticBundle) Handlers() map[string]ByteHandler {
	return b.handlers
}

// FileSystemBundle returns a bundle with filesystem host functions:
// fs_read, fs_write.
func FileSystemBundle() HostFuncBundle {
	return &staticBundle{
		handlers: map[string]ByteHandler{
			"fs_read": NewJSONHandler(func(ctx context.Context, req FileReadRequest) FileReadResponse {
				return PerformFileRead(ctx, req)
			}),
			"fs_write": NewJSONHandler(func(ctx context.Context, req FileWriteRequest) FileWriteResponse {
				return PerformFileWrite(ctx, req)
			}),
		},
	}
}

// EnvironmentBundle returns a bundle with environment host functions:
// env_get, env_set.
func EnvironmentBundle() HostFuncBundle {
	return &staticBundle{
		handlers: map[string]ByteHandler{
			"env_get": NewJSONHandler(func(ctx context.Context, req EnvGetRequest) EnvGetResponse {
				return PerformEnvGet(ctx, req)
			}),
			"env_set": NewJSONHandler(func(ctx context.Context, req EnvSetRequest) EnvSetResponse {
				return PerformEnvSet(ctx, req)
			}),
		},
	}
}

// StreamBundle returns a bundle with streaming host functions:
// stream_open, stream_send, stream_recv.
func StreamBundle() HostFuncBundle {
	return &staticBundle{
		handlers: map[string]ByteHandler{
			"stream_open": NewJSONHandler(func(ctx context.Context, req StreamOpenRequest) StreamOpenResponse {
				return PerformStreamOpen(ctx, req)
			}),
			"stream_send": NewJSONHandler(func(ctx context.Context, req StreamSendRequest) StreamSendResponse {
				return PerformStreamSend(ctx, req)
			}),
			"stream_recv": NewJSONHandler(func(ctx context.Context, req StreamRecvRequest) StreamRecvResponse {
				return PerformStreamRecv(ctx, req)
			}),
		},
	}
}

// NetworkBundle returns a bundle with network host functions: net_connect.
func NetworkBundle() HostFuncBundle {
	return &staticBundle{
		handlers: map[string]ByteHandler{
			"net_connect": NewJSONHandler(func(ctx context.Context, req NetConnectRequest) NetConnectResponse {
				return PerformNetConnect(ctx, req)
			}),
		},
	}
}

// compositeBundle combines multiple bundles into one.
type compositeBundle struct {
	bundles []HostFuncBundle
}

func (b *compositeBundle) Handlers() map[string]ByteHandler {
	result := make(map[string]ByteHandler)
	for _, bundle := range b.bundles {
		for name, handler := range bundle.Handlers() {
			result[name] = handler
		}
	}
	return result
}

// SandboxBundles returns a bundle containing all built-in host functions.
// Includes: fs_read, fs_write, env_get, env_set, net_connect, stream_open,
// stream_send, stream_recv.
func SandboxBundles() HostFuncBundle {
	return &compositeBundle{
		bundles: []HostFuncBundle{
			FileSystemBundle(),
			EnvironmentBundle(),
			NetworkBundle(),
			StreamBundle(),
		},
	}
}

// WithBundle registers all handlers from a bundle.
func WithBundle(bundle HostFuncBundle) RegistryOption {
	return func(b *registryBuilder) {
		for name, handler := range bundle.Handlers() {
			if err := b.addHandler(name, handler); err != nil {
				b.errors = append(b.errors, err)
			}
		}
	}
}

// WithHandler registers a typed host function with automatic JSON handling.
// The handler will be wrapped with NewJSONHandler for JSON serialization.
//
// Example usage:
//
//	WithHandler("custom_func", func(ctx context.Context, req MyRequest) MyResponse {
//	    return MyResponse{Result: req.Input}
//	})
func WithHandler[Req any, Resp any](name string, fn HostFunc[Req, Resp]) RegistryOption {
	return func(b *registryBuilder) {
		handler := NewJSONHandler(fn)
		if err := b.addHandler(name, handler); err != nil {
			b.errors = append(b.errors, err)
		}
	}
}
