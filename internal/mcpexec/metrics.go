package mcpexec

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designgov/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/designgov/internal/mcpexec"

// Metrics holds the tool-call instruments.
type Metrics struct {
	meter          metric.Meter
	logger         *logging.Logger
	invocations    metric.Int64Counter
	duration       metric.Float64Histogram
	errors         metric.Int64Counter
	activeRequests metric.Int64UpDownCounter
}

// NewMetrics creates instruments on meter, or on the global meter
// provider when meter is nil.
func NewMetrics(meter metric.Meter, logger *logging.Logger) *Metrics {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Metrics{meter: meter, logger: logger}
	m.init()
	return m
}

func (m *Metrics) init() {
	ctx := context.Background()
	var err error

	m.invocations, err = m.meter.Int64Counter(
		"designgov.mcp.tool.invocations_total",
		metric.WithDescription("Total number of tool calls sent to target servers"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		m.logger.Warn(ctx, "failed to create invocations counter", zap.Error(err))
	}

	m.duration, err = m.meter.Float64Histogram(
		"designgov.mcp.tool.duration_seconds",
		metric.WithDescription("Duration of tool calls"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		m.logger.Warn(ctx, "failed to create duration histogram", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"designgov.mcp.tool.errors_total",
		metric.WithDescription("Tool calls that failed or returned a tool error"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn(ctx, "failed to create errors counter", zap.Error(err))
	}

	m.activeRequests, err = m.meter.Int64UpDownCounter(
		"designgov.mcp.tool.active_requests",
		metric.WithDescription("Tool calls in flight"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn(ctx, "failed to create active requests gauge", zap.Error(err))
	}
}

// RecordInvocation records one finished call. A nil err with toolErr set
// counts as a tool-reported error.
func (m *Metrics) RecordInvocation(ctx context.Context, server, tool string, dryRun bool, d time.Duration, err error, toolErr bool) {
	attrs := []attribute.KeyValue{
		attribute.String("server", server),
		attribute.String("tool", tool),
		attribute.Bool("dry_run", dryRun),
	}

	if m.invocations != nil {
		m.invocations.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
	}

	reason := ""
	switch {
	case err != nil:
		reason = categorizeError(err)
	case toolErr:
		reason = "tool_error"
	}
	if reason != "" && m.errors != nil {
		m.errors.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.String("reason", reason))...))
	}
}

// IncrementActive marks a call in flight.
func (m *Metrics) IncrementActive(ctx context.Context, server string) {
	if m.activeRequests != nil {
		m.activeRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("server", server)))
	}
}

// DecrementActive marks a call finished.
func (m *Metrics) DecrementActive(ctx context.Context, server string) {
	if m.activeRequests != nil {
		m.activeRequests.Add(ctx, -1, metric.WithAttributes(attribute.String("server", server)))
	}
}

func categorizeError(err error) string {
	if err == nil {
		return ""
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "not connected"):
		return "not_connected"
	case strings.Contains(errStr, "deadline") || strings.Contains(errStr, "timeout"):
		return "timeout"
	case strings.Contains(errStr, "canceled"):
		return "canceled"
	case strings.Contains(errStr, "closed") || strings.Contains(errStr, "eof"):
		return "connection_closed"
	case strings.Contains(errStr, "invalid") || strings.Contains(errStr, "validat"):
		return "validation_error"
	default:
		return "internal_error"
	}
}
