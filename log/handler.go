// Package log provides an slog.Handler that stamps log records with the
// sandbox call scope. Host code logs with the context-aware slog functions;
// records emitted during a guest call automatically carry tenant and sandbox
// identity.
package log

import (
	"context"
	"log/slog"

	"github.com/warden-run/warden/hostfuncs"
)

// ScopeHandler wraps an inner slog.Handler and appends tenant/sandbox
// attributes resolved from the record's context.
type ScopeHandler struct {
	inner slog.Handler
	opts  handlerConfig
}

// HandlerOption configures the ScopeHandler.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	level slog.Level
}

func defaultHandlerConfig() handlerConfig {
	return handlerConfig{
		level: slog.LevelInfo,
	}
}

// WithLevel sets the minimum log level to report.
func WithLevel(level slog.Level) HandlerOption {
	return func(c *handlerConfig) {
		c.level = level
	}
}

// NewHandler creates a ScopeHandler wrapping inner.
func NewHandler(inner slog.Handler, opts ...HandlerOption) *ScopeHandler {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &ScopeHandler{inner: inner, opts: cfg}
}

// Enabled reports whether the handler handles records at the given level.
func (h *ScopeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < h.opts.level {
		return false
	}
	return h.inner.Enabled(ctx, level)
}

// Handle appends the call scope's identity to the record and forwards it.
func (h *ScopeHandler) Handle(ctx context.Context, record slog.Record) error {
	if scope, ok := hostfuncs.CallScopeFrom(ctx); ok {
		if scope.TenantID != "" {
			record.AddAttrs(slog.String("tenant", scope.TenantID))
		}
		if scope.SandboxID != "" {
			record.AddAttrs(slog.String("sandbox", scope.SandboxID))
		}
	}
	return h.inner.Handle(ctx, record)
}

// WithAttrs returns a new ScopeHandler whose inner handler includes the
// given attributes.
func (h *ScopeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ScopeHandler{inner: h.inner.WithAttrs(attrs), opts: h.opts}
}

// WithGroup returns a new ScopeHandler with the given group name.
func (h *ScopeHandler) WithGroup(name string) slog.Handler {
	return &ScopeHandler{inner: h.inner.WithGroup(name), opts: h.opts}
}
