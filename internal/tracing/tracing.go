package tracing

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const defaultServiceName = "zapytaj"

var (
	tracer   oteltrace.Tracer
	provider *trace.TracerProvider
)

// Config holds tracing configuration.
type Config struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
}

// Initialize sets up OTLP tracing. When disabled it still installs a
// no-op tracer handle so the Start* helpers never panic.
func Initialize(cfg Config, logger *zap.Logger) error {
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}
	tracer = otel.Tracer(cfg.ServiceName)

	if !cfg.Enabled {
		logger.Info("Tracing disabled")
		return nil
	}

	if cfg.OTLPEndpoint == "" {
		cfg.OTLPEndpoint = "localhost:4317"
	}

	exporter, err := otlptracegrpc.New(
		context.Background(),
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	provider = trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)

	otel.SetTracerProvider(provider)
	tracer = otel.Tracer(cfg.ServiceName)

	logger.Info("Tracing initialized", zap.String("endpoint", cfg.OTLPEndpoint))
	return nil
}

// Shutdown flushes pending spans. Safe to call when tracing is disabled.
func Shutdown(ctx context.Context) error {
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}

// W3CTraceparent generates a W3C traceparent header value for the
// span in ctx, or "" when there is no recording span.
func W3CTraceparent(ctx context.Context) string {
	span := oteltrace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}

	sc := span.SpanContext()
	return fmt.Sprintf("00-%s-%s-%02x",
		sc.TraceID().String(),
		sc.SpanID().String(),
		sc.TraceFlags(),
	)
}

// InjectTraceparent adds a W3C traceparent header to an outbound request.
func InjectTraceparent(ctx context.Context, req *http.Request) {
	if traceparent := W3CTraceparent(ctx); traceparent != "" {
		req.Header.Set("traceparent", traceparent)
	}
}

// StartSpan creates a new span with the given name.
func StartSpan(ctx context.Context, spanName string) (context.Context, oteltrace.Span) {
	if tracer == nil {
		tracer = otel.Tracer(defaultServiceName)
	}
	return tracer.Start(ctx, spanName)
}

// StartHTTPSpan creates a span for an outbound HTTP call.
func StartHTTPSpan(ctx context.Context, method, url string) (context.Context, oteltrace.Span) {
	if tracer == nil {
		tracer = otel.Tracer(defaultServiceName)
	}
	ctx, span := tracer.Start(ctx, fmt.Sprintf("HTTP %s", method))
	span.SetAttributes(
		semconv.HTTPRequestMethodKey.String(method),
		semconv.URLFull(url),
	)
	return ctx, span
}

// ParseTraceparent parses a W3C traceparent header.
func ParseTraceparent(traceparent string) (traceID, spanID string, flags byte, valid bool) {
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 {
		return "", "", 0, false
	}

	if parts[0] != "00" {
		return "", "", 0, false
	}

	traceID = parts[1]
	spanID = parts[2]

	var flagsInt int
	if _, err := fmt.Sscanf(parts[3], "%02x", &flagsInt); err != nil {
		return "", "", 0, false
	}
	flags = byte(flagsInt)

	return traceID, spanID, flags, true
}
