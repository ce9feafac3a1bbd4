package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// otelState guards the process-wide tracer provider. Only the daemon
// initializes it; library code just opens spans against whatever
// provider is installed.
var otelState struct {
	mu       sync.Mutex
	provider *sdktrace.TracerProvider
}

// InitOpenTelemetry installs a sampling tracer provider for the named
// service. Calling it again after a successful init is a no-op.
func InitOpenTelemetry(serviceName string) error {
	otelState.mu.Lock()
	defer otelState.mu.Unlock()

	if otelState.provider != nil {
		return nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(1))),
		sdktrace.WithResource(res),
	)
	otelState.provider = tp
	otel.SetTracerProvider(tp)

	return nil
}

// ShutdownOpenTelemetry flushes and tears down the installed provider.
func ShutdownOpenTelemetry(ctx context.Context) error {
	otelState.mu.Lock()
	tp := otelState.provider
	otelState.provider = nil
	otelState.mu.Unlock()

	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// StartSpan opens a span and, when the context carries no trace id yet,
// adopts the span's trace identity so log fields and span ids agree.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))

	if GetTraceID(ctx) == "" {
		if sc := span.SpanContext(); sc.IsValid() {
			ctx = WithTraceID(ctx, sc.TraceID().String())
		}
	}

	return ctx, span
}
