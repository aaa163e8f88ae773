package telemetry

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

const (
	defaultMetricExportInterval = 60 * time.Second

	// MetricGroupsEnvVar selects metric groups, comma separated
	MetricGroupsEnvVar = "YAML_BRIDGE_METRICS_GROUPS"

	MetricGroupRequest = "request"
	MetricGroupTool    = "tool"
	MetricGroupSession = "session"
)

var (
	metricsMu      sync.RWMutex
	meterProvider  *sdkmetric.MeterProvider
	metricsEnabled bool
	metricGroups   map[string]bool

	requestCounter      metric.Int64Counter
	requestDuration     metric.Float64Histogram
	requestErrorCounter metric.Int64Counter

	toolCallsCounter metric.Int64Counter
	toolDuration     metric.Float64Histogram

	activeSessions  metric.Int64UpDownCounter
	sessionDuration metric.Float64Histogram
)

// InitMetrics configures the meter provider from the same OTEL_* variables as
// InitTracer. Without an endpoint nothing is recorded. The returned shutdown
// function is always non-nil.
func InitMetrics(logger *logrus.Logger, version string) (func() error, error) {
	metricsMu.Lock()
	defer metricsMu.Unlock()

	noopShutdown := func() error { return nil }
	metricGroups = parseMetricGroups(os.Getenv(MetricGroupsEnvVar))

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" || strings.EqualFold(os.Getenv("OTEL_SDK_DISABLED"), "true") {
		logger.Debug("OTEL Metrics: Not configured, nothing will be recorded")
		metricsEnabled = false
		return noopShutdown, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		exporter sdkmetric.Exporter
		err      error
	)
	switch otlpProtocol(endpoint) {
	case "grpc":
		exporter, err = otlpmetricgrpc.New(ctx)
	default:
		exporter, err = otlpmetrichttp.New(ctx)
	}
	if err != nil {
		logger.WithError(err).Warn("OTEL Metrics: Failed to create exporter")
		metricsEnabled = false
		return noopShutdown, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName()),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithFromEnv(),
	)
	if err != nil {
		logger.WithError(err).Warn("OTEL Metrics: Failed to create resource, using default")
		res = resource.Default()
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(metricExportInterval(logger)),
		)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	if err := createInstruments(mp.Meter(tracerName)); err != nil {
		logger.WithError(err).Error("OTEL Metrics: Failed to create instruments")
		_ = mp.Shutdown(ctx)
		metricsEnabled = false
		return noopShutdown, err
	}
	meterProvider, metricsEnabled = mp, true
	logger.WithFields(logrus.Fields{"endpoint": endpoint, "groups": metricGroups}).Info("OTEL Metrics: Meter initialised")

	return func() error {
		metricsMu.Lock()
		defer metricsMu.Unlock()
		if meterProvider == nil {
			return nil
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		err := meterProvider.Shutdown(shutdownCtx)
		meterProvider, metricsEnabled = nil, false
		return err
	}, nil
}

// createInstruments builds the instruments of every enabled group. Caller holds metricsMu.
func createInstruments(meter metric.Meter) error {
	var err error

	if metricGroups[MetricGroupRequest] {
		if requestCounter, err = meter.Int64Counter(
			"bridge.requests",
			metric.WithDescription("Inbound port messages handled"),
			metric.WithUnit("{request}"),
		); err != nil {
			return err
		}
		if requestDuration, err = meter.Float64Histogram(
			"bridge.request.duration",
			metric.WithDescription("Time from receiving a port message to replying"),
			metric.WithUnit("ms"),
			metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 10, 25, 50, 100, 250, 1000),
		); err != nil {
			return err
		}
		if requestErrorCounter, err = meter.Int64Counter(
			"bridge.request.errors",
			metric.WithDescription("Port messages answered on onError, by error type"),
			metric.WithUnit("{error}"),
		); err != nil {
			return err
		}
	}

	if metricGroups[MetricGroupTool] {
		if toolCallsCounter, err = meter.Int64Counter(
			"mcp.tool.calls",
			metric.WithDescription("Total tool invocations"),
			metric.WithUnit("{call}"),
		); err != nil {
			return err
		}
		if toolDuration, err = meter.Float64Histogram(
			"mcp.tool.duration",
			metric.WithDescription("Tool execution duration"),
			metric.WithUnit("ms"),
			metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000),
		); err != nil {
			return err
		}
	}

	if metricGroups[MetricGroupSession] {
		if activeSessions, err = meter.Int64UpDownCounter(
			"mcp.session.active",
			metric.WithDescription("Active streamable HTTP sessions"),
			metric.WithUnit("{session}"),
		); err != nil {
			return err
		}
		if sessionDuration, err = meter.Float64Histogram(
			"mcp.session.duration",
			metric.WithDescription("Session duration"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(10, 30, 60, 300, 600, 1800, 3600, 7200),
		); err != nil {
			return err
		}
	}
	return nil
}

// IsMetricsEnabled reports whether metrics are exported.
func IsMetricsEnabled() bool {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return metricsEnabled
}

func groupEnabled(group string) bool {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return metricsEnabled && metricGroups[group]
}

// RecordRequest records one handled port message. The transport comes from ctx.
func RecordRequest(ctx context.Context, port string, success bool, elapsed time.Duration) {
	if !groupEnabled(MetricGroupRequest) {
		return
	}
	transport := Transport(ctx)
	requestCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrBridgePort, port),
		attribute.String(AttrTransport, transport),
		attribute.String("result", result(success)),
	))
	requestDuration.Record(ctx, milliseconds(elapsed), metric.WithAttributes(
		attribute.String(AttrBridgePort, port),
		attribute.String(AttrTransport, transport),
	))
}

// RecordRequestError records the category of a failed port message.
func RecordRequestError(ctx context.Context, port, errorType string) {
	if !groupEnabled(MetricGroupRequest) {
		return
	}
	requestErrorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrBridgePort, port),
		attribute.String("error.type", errorType),
	))
}

// RecordToolCall records an MCP tool invocation.
func RecordToolCall(ctx context.Context, toolName, transport string, success bool, elapsed time.Duration) {
	if !groupEnabled(MetricGroupTool) {
		return
	}
	toolCallsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool.name", toolName),
		attribute.String(AttrTransport, transport),
		attribute.String("result", result(success)),
	))
	toolDuration.Record(ctx, milliseconds(elapsed), metric.WithAttributes(
		attribute.String("tool.name", toolName),
		attribute.String(AttrTransport, transport),
	))
}

// RecordSessionStart increments the active session count.
func RecordSessionStart(ctx context.Context, transport string) {
	if !groupEnabled(MetricGroupSession) {
		return
	}
	activeSessions.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrTransport, transport)))
}

// RecordSessionEnd decrements the active session count and records its lifetime.
func RecordSessionEnd(ctx context.Context, transport string, lifetime time.Duration) {
	if !groupEnabled(MetricGroupSession) {
		return
	}
	activeSessions.Add(ctx, -1, metric.WithAttributes(attribute.String(AttrTransport, transport)))
	sessionDuration.Record(ctx, lifetime.Seconds(), metric.WithAttributes(attribute.String(AttrTransport, transport)))
}

// parseMetricGroups reads a comma separated group list. An empty list enables
// every group.
func parseMetricGroups(value string) map[string]bool {
	groups := make(map[string]bool)
	for group := range strings.SplitSeq(value, ",") {
		if group = strings.ToLower(strings.TrimSpace(group)); group != "" {
			groups[group] = true
		}
	}
	if len(groups) == 0 {
		groups[MetricGroupRequest] = true
		groups[MetricGroupTool] = true
		groups[MetricGroupSession] = true
	}
	return groups
}

func metricExportInterval(logger *logrus.Logger) time.Duration {
	value := os.Getenv("OTEL_METRIC_EXPORT_INTERVAL")
	if value == "" {
		return defaultMetricExportInterval
	}
	// bare numbers are seconds
	d, err := time.ParseDuration(value)
	if err != nil {
		if d, err = time.ParseDuration(value + "s"); err != nil {
			logger.WithField("interval", value).Warn("OTEL Metrics: Invalid export interval, using default")
			return defaultMetricExportInterval
		}
	}
	return d
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
