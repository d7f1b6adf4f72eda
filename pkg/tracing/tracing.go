package tracing

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerProvider owns the SDK provider so the agent can flush spans on exit.
// The zero value is a no-op.
type TracerProvider struct {
	tp *tracesdk.TracerProvider
}

// Config mirrors the tracing section of the agent config.
type Config struct {
	Enabled     bool
	ServiceName string
	JaegerURL   string
	Environment string
	// SampleRate applies to root spans; children follow their parent.
	SampleRate float64

	ServiceVersion string
}

func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "campusconnect-agent",
		JaegerURL:      "http://localhost:14268/api/traces",
		Environment:    "development",
		SampleRate:     1.0,
		ServiceVersion: "0.1.0",
	}
}

// Init installs a global provider exporting to Jaeger. Disabled tracing
// leaves otel's no-op provider in place.
func Init(cfg Config) (*TracerProvider, error) {
	if !cfg.Enabled {
		return &TracerProvider{}, nil
	}

	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerURL)))
	if err != nil {
		return nil, fmt.Errorf("jaeger exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(res),
		tracesdk.WithSampler(tracesdk.ParentBased(tracesdk.TraceIDRatioBased(cfg.SampleRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{tp: tp}, nil
}

// Shutdown flushes pending spans.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.tp != nil {
		return tp.tp.Shutdown(ctx)
	}
	return nil
}

// Extract continues a trace started by the caller of an agent request.
func Extract(ctx context.Context, header http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(header))
}

const tracerName = "campusconnect"

// StartSpan starts a new span
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, name, opts...)
}

// AddSpanAttributes adds attributes to the current span
func AddSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}

// RecordError records an error in the current span
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanStatus sets the status of the current span
func SetSpanStatus(ctx context.Context, code codes.Code, description string) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetStatus(code, description)
	}
}

// Common span attributes
var (
	UserIDKey         = attribute.Key("user.id")
	PeerIDKey         = attribute.Key("peer.id")
	CallIDKey         = attribute.Key("call.id")
	CallPhaseKey      = attribute.Key("call.phase")
	ConversationIDKey = attribute.Key("conversation.id")
	EventKey          = attribute.Key("socket.event")
	DeliveryKey       = attribute.Key("socket.delivery")
	DurationKey       = attribute.Key("duration")
)

// TraceHTTPRequest traces an HTTP request
func TraceHTTPRequest(ctx context.Context, method, path string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("http.%s", method),
		trace.WithAttributes(
			semconv.HTTPMethodKey.String(method),
			semconv.HTTPRouteKey.String(path),
		),
	)
}

// TraceSocketEmit traces one outgoing socket frame.
func TraceSocketEmit(ctx context.Context, event string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("socket.emit.%s", event),
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(EventKey.String(event)),
	)
}

// TraceCallOperation traces a local call action such as start, accept or hangup.
func TraceCallOperation(ctx context.Context, operation, peerID string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("call.%s", operation),
		trace.WithAttributes(
			attribute.String("call.operation", operation),
			PeerIDKey.String(peerID),
		),
	)
}

// TraceRepositoryOperation traces a conversation store operation.
func TraceRepositoryOperation(ctx context.Context, operation, backend string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("repository.%s", operation),
		trace.WithAttributes(
			attribute.String("db.operation", operation),
			attribute.String("db.system", backend),
		),
	)
}

// MeasureDuration measures the duration of an operation
func MeasureDuration(ctx context.Context, start time.Time, operation string) {
	duration := time.Since(start)
	AddSpanAttributes(ctx,
		attribute.String("operation", operation),
		DurationKey.Int64(duration.Milliseconds()),
	)
}
