// Copyright 2025 James Ross
package obs

import (
	"context"
	"fmt"
	"os"

	"github.com/TGAC/grassroots-core/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// MaybeInitTracing optionally initializes a global tracer provider with sampling and propagation.
func MaybeInitTracing(cfg *config.Config) (*sdktrace.TracerProvider, error) {
	if !cfg.Observability.Tracing.Enabled || cfg.Observability.Tracing.Endpoint == "" {
		return nil, nil
	}

	exporter, err := otlptrace.New(context.Background(), otlptracehttp.NewClient(
		otlptracehttp.WithEndpoint(cfg.Observability.Tracing.Endpoint),
		otlptracehttp.WithInsecure(),
	))
	if err != nil {
		return nil, err
	}

	hostname, _ := os.Hostname()

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String("grassroots-server"),
		semconv.ServiceVersionKey.String(cfg.Provider.Version),
		semconv.HostNameKey.String(hostname),
		attribute.String("environment", cfg.Observability.Tracing.Environment),
	)

	var sampler sdktrace.Sampler
	switch cfg.Observability.Tracing.SamplingStrategy {
	case "always":
		sampler = sdktrace.AlwaysSample()
	case "never":
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.Observability.Tracing.SamplingRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}

// StartRunSpan opens a span around a Service.Run invocation.
func StartRunSpan(ctx context.Context, serviceName string) (context.Context, trace.Span) {
	tracer := otel.Tracer("dispatcher")
	return tracer.Start(ctx, "service.run",
		trace.WithAttributes(
			attribute.String("service.name", serviceName),
		),
	)
}

// StartFederationSpan opens a span around an outbound paired-service dispatch.
func StartFederationSpan(ctx context.Context, peerURI, remoteService string) (context.Context, trace.Span) {
	tracer := otel.Tracer("federation")
	return tracer.Start(ctx, "federation.dispatch",
		trace.WithAttributes(
			attribute.String("peer.uri", peerURI),
			attribute.String("peer.service", remoteService),
		),
	)
}

// StartLinkedServiceSpan opens a span around a linked-service arc firing.
func StartLinkedServiceSpan(ctx context.Context, sourceJobUUID, targetService string) (context.Context, trace.Span) {
	tracer := otel.Tracer("linked")
	return tracer.Start(ctx, "linked.process",
		trace.WithAttributes(
			attribute.String("job.uuid", sourceJobUUID),
			attribute.String("linked.target_service", targetService),
		),
	)
}

// RecordError records an error on the span if one exists in the context.
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks the span as successful.
func SetSpanSuccess(ctx context.Context) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetStatus(codes.Ok, "success")
	}
}

// ExtractTraceContext extracts trace context from a map (e.g. a providers-state carrier).
func ExtractTraceContext(ctx context.Context, carrier map[string]string) context.Context {
	prop := otel.GetTextMapPropagator()
	return prop.Extract(ctx, propagation.MapCarrier(carrier))
}

// InjectTraceContext injects trace context into a map for outbound federation requests.
func InjectTraceContext(ctx context.Context) map[string]string {
	carrier := make(map[string]string)
	prop := otel.GetTextMapPropagator()
	prop.Inject(ctx, propagation.MapCarrier(carrier))
	return carrier
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

// AddSpanAttributes adds attributes to the current span.
func AddSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}

// TracerShutdown gracefully shuts down the tracer provider.
func TracerShutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// KeyValue creates an attribute key-value pair for use in spans and events.
func KeyValue(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
