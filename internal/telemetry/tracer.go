package telemetry

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "yaml-bridge"

var (
	mu             sync.RWMutex
	tracer         trace.Tracer
	tracerProvider *sdktrace.TracerProvider
	enabled        bool
)

// otelErrorHandler routes SDK errors to the logger so nothing reaches stderr
// while stdout carries a protocol.
type otelErrorHandler struct {
	logger *logrus.Logger
}

func (h *otelErrorHandler) Handle(err error) {
	if err != nil {
		h.logger.WithError(err).Debug("OTEL: SDK error occurred")
	}
}

// InitTracer configures tracing from the standard OTEL_* environment variables.
// Without OTEL_EXPORTER_OTLP_ENDPOINT, or with OTEL_SDK_DISABLED=true, a noop
// tracer is installed. The returned shutdown function is always non-nil.
func InitTracer(logger *logrus.Logger, version string) (func() error, error) {
	mu.Lock()
	defer mu.Unlock()

	noopShutdown := func() error { return nil }

	if strings.EqualFold(os.Getenv("OTEL_SDK_DISABLED"), "true") {
		logger.Debug("OTEL: Explicitly disabled via OTEL_SDK_DISABLED")
		tracer, enabled = noop.NewTracerProvider().Tracer(tracerName), false
		return noopShutdown, nil
	}

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		logger.Debug("OTEL: OTEL_EXPORTER_OTLP_ENDPOINT not set, using noop tracer")
		tracer, enabled = noop.NewTracerProvider().Tracer(tracerName), false
		return noopShutdown, nil
	}

	otel.SetErrorHandler(&otelErrorHandler{logger: logger})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		exporter *otlptrace.Exporter
		err      error
	)
	switch protocol := otlpProtocol(endpoint); protocol {
	case "grpc":
		exporter, err = otlptracegrpc.New(ctx)
	default:
		exporter, err = otlptracehttp.New(ctx)
	}
	if err != nil {
		tracer, enabled = noop.NewTracerProvider().Tracer(tracerName), false
		return noopShutdown, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName()),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithFromEnv(),
	)
	if err != nil {
		logger.WithError(err).Warn("OTEL: Failed to create resource, using default")
		res = resource.Default()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracer, tracerProvider, enabled = tp.Tracer(tracerName), tp, true
	logger.WithField("endpoint", endpoint).Info("OTEL: Tracer initialised")

	return func() error {
		mu.Lock()
		defer mu.Unlock()
		if tracerProvider == nil {
			return nil
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown tracer provider: %w", err)
		}
		tracerProvider = nil
		return nil
	}, nil
}

// GetTracer returns the configured tracer, or a noop tracer before InitTracer.
func GetTracer() trace.Tracer {
	mu.RLock()
	defer mu.RUnlock()
	if tracer == nil {
		return noop.NewTracerProvider().Tracer(tracerName)
	}
	return tracer
}

// IsEnabled reports whether spans are exported.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// StartRequestSpan starts the span covering one inbound port message.
// The caller must finish it with EndRequestSpan.
func StartRequestSpan(ctx context.Context, port, requestID string, inputSize int) (context.Context, trace.Span) {
	if !IsEnabled() {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := GetTracer().Start(ctx, SpanNameRequest, trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(
		attribute.String(AttrBridgePort, port),
		attribute.Int(AttrBridgeInputSize, inputSize),
		attribute.String(AttrTransport, Transport(ctx)),
	)
	if requestID != "" {
		span.SetAttributes(attribute.String(AttrRequestID, requestID))
	}
	return ctx, span
}

// EndRequestSpan records the outbound port and the error message, if any,
// and ends the span.
func EndRequestSpan(span trace.Span, replyPort, errMessage string) {
	if span == nil || !span.IsRecording() {
		return
	}

	if replyPort != "" {
		span.SetAttributes(attribute.String(AttrBridgeReplyPort, replyPort))
	}
	if errMessage != "" {
		span.SetStatus(codes.Error, errMessage)
		span.SetAttributes(
			attribute.Bool(AttrBridgeSuccess, false),
			attribute.String(AttrBridgeError, errMessage),
		)
	} else {
		span.SetStatus(codes.Ok, "")
		span.SetAttributes(attribute.Bool(AttrBridgeSuccess, true))
	}
	span.End()
}

func otlpProtocol(endpoint string) string {
	if protocol := os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL"); protocol != "" {
		if protocol == "grpc" {
			return "grpc"
		}
		return "http/protobuf"
	}
	if strings.Contains(endpoint, ":4317") {
		return "grpc"
	}
	return "http/protobuf"
}

func serviceName() string {
	if name := os.Getenv("OTEL_SERVICE_NAME"); name != "" {
		return name
	}
	return tracerName
}
