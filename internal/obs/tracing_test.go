// Copyright 2025 James Ross
package obs

import (
	"context"
	"errors"
	"testing"

	"github.com/TGAC/grassroots-core/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestMaybeInitTracing(t *testing.T) {
	tests := []struct {
		name          string
		config        *config.Config
		expectNil     bool
		expectEnabled bool
	}{
		{
			name: "tracing disabled",
			config: &config.Config{
				Observability: config.ObservabilityConfig{
					Tracing: config.TracingConfig{Enabled: false},
				},
			},
			expectNil: true,
		},
		{
			name: "tracing enabled with endpoint",
			config: &config.Config{
				Observability: config.ObservabilityConfig{
					Tracing: config.TracingConfig{
						Enabled:          true,
						Endpoint:         "http://localhost:4318/v1/traces",
						Environment:      "test",
						SamplingStrategy: "always",
						SamplingRate:     1.0,
					},
				},
			},
			expectEnabled: true,
		},
		{
			name: "tracing enabled without endpoint",
			config: &config.Config{
				Observability: config.ObservabilityConfig{
					Tracing: config.TracingConfig{Enabled: true},
				},
			},
			expectNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			otel.SetTracerProvider(trace.NewNoopTracerProvider())

			tp, err := MaybeInitTracing(tt.config)
			if err != nil {
				t.Fatalf("MaybeInitTracing() error = %v", err)
			}
			if tt.expectNil && tp != nil {
				t.Errorf("expected nil tracer provider, got %v", tp)
			}
			if !tt.expectNil && tp == nil {
				t.Errorf("expected non-nil tracer provider, got nil")
			}
			if tt.expectEnabled {
				if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
					t.Errorf("expected SDK tracer provider")
				}
				if _, ok := otel.GetTextMapPropagator().(propagation.CompositeTextMapPropagator); !ok {
					t.Errorf("expected composite propagator")
				}
			}
			if tp != nil {
				tp.Shutdown(context.Background())
			}
		})
	}
}

func TestStartRunSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	_, span := StartRunSpan(context.Background(), "blast_service")
	if !span.IsRecording() {
		t.Error("expected span to be recording")
	}
	span.End()
	if !span.SpanContext().IsValid() {
		t.Error("expected valid span context")
	}
}

func TestStartFederationSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	_, span := StartFederationSpan(context.Background(), "https://peer.example.org", "blast_service")
	if !span.IsRecording() {
		t.Error("expected span to be recording")
	}
	span.End()
}

func TestRecordErrorAndSuccess(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	tracer := otel.Tracer("test")
	ctx, span := tracer.Start(context.Background(), "test-span")
	defer span.End()

	RecordError(ctx, errors.New("boom"))
	RecordError(ctx, nil)
	RecordError(context.Background(), errors.New("boom"))
	SetSpanSuccess(ctx)
}

func TestTraceContextInjectExtractRoundTrip(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())
	otel.SetTextMapPropagator(propagation.TraceContext{})

	tracer := otel.Tracer("test")
	ctx, span := tracer.Start(context.Background(), "test-span")
	defer span.End()

	carrier := InjectTraceContext(ctx)
	if len(carrier) == 0 {
		t.Fatal("expected a non-empty carrier")
	}

	restored := ExtractTraceContext(context.Background(), carrier)
	sc := trace.SpanContextFromContext(restored)
	if !sc.IsValid() {
		t.Error("expected the extracted span context to be valid")
	}
}

func TestKeyValue(t *testing.T) {
	cases := []struct {
		key   string
		value interface{}
	}{
		{"str", "x"}, {"int", 1}, {"int64", int64(2)}, {"float", 1.5}, {"bool", true}, {"other", struct{}{}},
	}
	for _, c := range cases {
		kv := KeyValue(c.key, c.value)
		if string(kv.Key) != c.key {
			t.Errorf("expected key %s, got %s", c.key, kv.Key)
		}
	}
}
