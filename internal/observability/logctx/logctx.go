// Package logctx threads the request-scoped logger through context so every
// layer logs with the request id and trace ids the HTTP middleware attached.
package logctx

import (
	"context"

	"github.com/orderware/wholesale/internal/observability"
)

type loggerKey struct{}

// With attaches logger to ctx. Nil ctx or logger leaves ctx as given.
func With(ctx context.Context, logger observability.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// From returns the logger attached to ctx, or nil when none is.
func From(ctx context.Context) observability.Logger {
	if ctx == nil {
		return nil
	}
	logger, _ := ctx.Value(loggerKey{}).(observability.Logger)
	return logger
}

// FromOr returns the attached logger, falling back when ctx carries none.
func FromOr(ctx context.Context, fallback observability.Logger) observability.Logger {
	if logger := From(ctx); logger != nil {
		return logger
	}
	return fallback
}
