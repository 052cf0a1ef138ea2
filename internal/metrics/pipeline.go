package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Event outcomes recorded by the pipeline.
const (
	OutcomeIngested = "ingested"
	OutcomeBuffered = "buffered"
	OutcomeDropped  = "dropped"
	OutcomeShed     = "shed"
)

// PipelineMetrics defines the interface for recording audit pipeline metrics.
// Implementations track event outcomes, buffer depth, circuit state, and
// operation counts/durations for observability.
type PipelineMetrics interface {
	// RecordEvent records an event outcome with a reason label.
	// Outcome examples: "ingested", "buffered", "dropped", "shed".
	// Reason examples: "buffer_overflow", "emergency_drop", "disabled".
	RecordEvent(ctx context.Context, outcome, reason string)

	// RecordBufferDepth records the current depth of the writer overflow buffer.
	RecordBufferDepth(ctx context.Context, depth int)

	// RecordCircuitState records the circuit breaker state as a numeric gauge
	// (0=closed, 1=open, 2=half-open) labeled with the breaker name.
	RecordCircuitState(ctx context.Context, name string, state int)

	// RecordOperation records a pipeline operation with its status.
	// Domain examples: "dlq", "outbox", "shedding".
	// Status examples: "success", "error".
	RecordOperation(ctx context.Context, domain, operation, status string)

	// RecordDuration records the duration of a pipeline operation with its status.
	// Duration is recorded in seconds as a histogram for percentile calculations.
	RecordDuration(ctx context.Context, domain, operation string, duration time.Duration, status string)
}

// pipelineMetrics implements PipelineMetrics using OpenTelemetry metrics.
type pipelineMetrics struct {
	eventCounter     metric.Int64Counter
	bufferDepthGauge metric.Int64Gauge
	circuitGauge     metric.Int64Gauge
	operationCounter metric.Int64Counter
	durationHisto    metric.Float64Histogram
}

// NewPipelineMetrics creates a new PipelineMetrics implementation using the provided meter provider.
// The namespace parameter is used as a prefix for all metric names (e.g., "auditpipe").
// Returns error if meters cannot be initialized.
func NewPipelineMetrics(meterProvider metric.MeterProvider, namespace string) (PipelineMetrics, error) {
	meter := meterProvider.Meter(namespace)

	eventCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_events_total", namespace),
		metric.WithDescription("Total number of audit events by outcome"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create event counter: %w", err)
	}

	bufferDepthGauge, err := meter.Int64Gauge(
		fmt.Sprintf("%s_buffer_depth", namespace),
		metric.WithDescription("Current depth of the writer overflow buffer"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer depth gauge: %w", err)
	}

	circuitGauge, err := meter.Int64Gauge(
		fmt.Sprintf("%s_circuit_state", namespace),
		metric.WithDescription("Circuit breaker state (0=closed, 1=open, 2=half-open)"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create circuit state gauge: %w", err)
	}

	operationCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_operations_total", namespace),
		metric.WithDescription("Total number of pipeline operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation counter: %w", err)
	}

	durationHisto, err := meter.Float64Histogram(
		fmt.Sprintf("%s_operation_duration_seconds", namespace),
		metric.WithDescription("Duration of pipeline operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return &pipelineMetrics{
		eventCounter:     eventCounter,
		bufferDepthGauge: bufferDepthGauge,
		circuitGauge:     circuitGauge,
		operationCounter: operationCounter,
		durationHisto:    durationHisto,
	}, nil
}

// RecordEvent increments the event counter with outcome and reason labels.
func (p *pipelineMetrics) RecordEvent(ctx context.Context, outcome, reason string) {
	p.eventCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.String("reason", reason),
		),
	)
}

// RecordBufferDepth records the current overflow buffer depth.
func (p *pipelineMetrics) RecordBufferDepth(ctx context.Context, depth int) {
	p.bufferDepthGauge.Record(ctx, int64(depth))
}

// RecordCircuitState records the circuit breaker state labeled with the breaker name.
func (p *pipelineMetrics) RecordCircuitState(ctx context.Context, name string, state int) {
	p.circuitGauge.Record(ctx, int64(state),
		metric.WithAttributes(attribute.String("breaker", name)),
	)
}

// RecordOperation increments the operation counter with domain, operation, and status labels.
func (p *pipelineMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	p.operationCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("domain", domain),
			attribute.String("operation", operation),
			attribute.String("status", status),
		),
	)
}

// RecordDuration records the operation duration in seconds with domain, operation, and status labels.
func (p *pipelineMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	p.durationHisto.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("domain", domain),
			attribute.String("operation", operation),
			attribute.String("status", status),
		),
	)
}

// NoOpPipelineMetrics is a no-op implementation of PipelineMetrics for when metrics are disabled.
type NoOpPipelineMetrics struct{}

// NewNoOpPipelineMetrics creates a no-op PipelineMetrics implementation.
func NewNoOpPipelineMetrics() PipelineMetrics {
	return &NoOpPipelineMetrics{}
}

// RecordEvent does nothing when metrics are disabled.
func (n *NoOpPipelineMetrics) RecordEvent(ctx context.Context, outcome, reason string) {
	// No-op
}

// RecordBufferDepth does nothing when metrics are disabled.
func (n *NoOpPipelineMetrics) RecordBufferDepth(ctx context.Context, depth int) {
	// No-op
}

// RecordCircuitState does nothing when metrics are disabled.
func (n *NoOpPipelineMetrics) RecordCircuitState(ctx context.Context, name string, state int) {
	// No-op
}

// RecordOperation does nothing when metrics are disabled.
func (n *NoOpPipelineMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	// No-op
}

// RecordDuration does nothing when metrics are disabled.
func (n *NoOpPipelineMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	// No-op
}
