// Package requestctx carries request-scoped values that cross layer
// boundaries without threading extra parameters through every call.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type loggerKey struct{}

var fallback = zap.NewNop()

// WithLogger attaches the logger to ctx. A nil logger attaches the shared
// no-op instance so lookups never have to nil-check.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = fallback
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger returns the logger attached to ctx, or a no-op logger when none is.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return fallback
	}
	if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return fallback
}

// NoopLogger exposes the shared no-op logger instance.
func NoopLogger() *zap.Logger { return fallback }
