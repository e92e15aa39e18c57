package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records supportflow metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordStageExecution records a stage execution with its duration and error status.
	RecordStageExecution(ctx context.Context, stage string, duration time.Duration, err error)

	// RecordSubmission records a submission completion with its terminal status.
	RecordSubmission(ctx context.Context, status string, duration time.Duration)

	// RecordCheckpoint records a checkpoint commit.
	RecordCheckpoint(ctx context.Context, stage string, sizeBytes int64)

	// RecordToolCall records a specialist tool invocation.
	RecordToolCall(ctx context.Context, tool string, allowed bool, err error)

	// RecordModelCall records a capability-interface invocation.
	RecordModelCall(ctx context.Context, kind string, duration time.Duration, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	stageExecutions metric.Int64Counter
	stageLatency    metric.Float64Histogram
	stageErrors     metric.Int64Counter
	submissions     metric.Int64Counter
	submitLatency   metric.Float64Histogram
	checkpointSize  metric.Int64Histogram
	toolCalls       metric.Int64Counter
	modelCalls      metric.Int64Counter
	modelLatency    metric.Float64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics lazily initializes the default OTel metrics instance.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("supportflow")

	stageExecutions, err := meter.Int64Counter("supportflow.stage.executions",
		metric.WithDescription("Number of stage executions"),
	)
	if err != nil {
		return nil, err
	}

	stageLatency, err := meter.Float64Histogram("supportflow.stage.latency_ms",
		metric.WithDescription("Stage execution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	stageErrors, err := meter.Int64Counter("supportflow.stage.errors",
		metric.WithDescription("Number of stage execution errors"),
	)
	if err != nil {
		return nil, err
	}

	submissions, err := meter.Int64Counter("supportflow.submissions",
		metric.WithDescription("Number of submissions"),
	)
	if err != nil {
		return nil, err
	}

	submitLatency, err := meter.Float64Histogram("supportflow.submission.latency_ms",
		metric.WithDescription("Submission latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	checkpointSize, err := meter.Int64Histogram("supportflow.checkpoint.size_bytes",
		metric.WithDescription("Checkpoint snapshot size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	toolCalls, err := meter.Int64Counter("supportflow.tool.calls",
		metric.WithDescription("Number of tool invocations"),
	)
	if err != nil {
		return nil, err
	}

	modelCalls, err := meter.Int64Counter("supportflow.model.calls",
		metric.WithDescription("Number of capability-interface invocations"),
	)
	if err != nil {
		return nil, err
	}

	modelLatency, err := meter.Float64Histogram("supportflow.model.latency_ms",
		metric.WithDescription("Capability-interface latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		stageExecutions: stageExecutions,
		stageLatency:    stageLatency,
		stageErrors:     stageErrors,
		submissions:     submissions,
		submitLatency:   submitLatency,
		checkpointSize:  checkpointSize,
		toolCalls:       toolCalls,
		modelCalls:      modelCalls,
		modelLatency:    modelLatency,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordStageExecution records a stage execution.
func (m *otelMetrics) RecordStageExecution(ctx context.Context, stage string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("stage", stage),
	}

	m.stageExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.stageLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.stageErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordSubmission records a submission.
func (m *otelMetrics) RecordSubmission(ctx context.Context, status string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("status", status),
	}
	m.submissions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.submitLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordCheckpoint records a checkpoint commit.
func (m *otelMetrics) RecordCheckpoint(ctx context.Context, stage string, sizeBytes int64) {
	attrs := []attribute.KeyValue{
		attribute.String("stage", stage),
	}
	m.checkpointSize.Record(ctx, sizeBytes, metric.WithAttributes(attrs...))
}

// RecordToolCall records a tool invocation.
func (m *otelMetrics) RecordToolCall(ctx context.Context, tool string, allowed bool, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("tool", tool),
		attribute.Bool("allowed", allowed),
		attribute.Bool("error", err != nil),
	}
	m.toolCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordModelCall records a capability-interface invocation.
func (m *otelMetrics) RecordModelCall(ctx context.Context, kind string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("kind", kind),
		attribute.Bool("error", err != nil),
	}
	m.modelCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.modelLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}
