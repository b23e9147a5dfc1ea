package oteltrace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/orderware/wholesale/internal/observability"
)

type tracer struct{ t trace.Tracer }

// New returns a Tracer backed by the globally configured otel provider.
// Without an SDK tracer provider installed it degrades to no-op spans.
func New(name string) observability.Tracer {
	if name == "" {
		name = "wholesale"
	}
	return &tracer{t: otel.Tracer(name)}
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name, trace.WithAttributes(attrs...))
}
