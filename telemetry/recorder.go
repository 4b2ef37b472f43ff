package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/neddyKG/ragchatbot-codebase"

// Recorder holds the OpenTelemetry instruments used by the query engine and
// the tool registry. A nil Recorder is valid and records nothing.
type Recorder struct {
	modelCalls    metric.Int64Counter
	forcedAnswers metric.Int64Counter
	toolCalls     metric.Int64Counter
	toolLatency   metric.Float64Histogram
}

// NewRecorder creates the instruments on the given meter.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	modelCalls, err := meter.Int64Counter("courserag.model.calls",
		metric.WithDescription("Number of model endpoint calls"),
	)
	if err != nil {
		return nil, err
	}

	forcedAnswers, err := meter.Int64Counter("courserag.engine.forced_answers",
		metric.WithDescription("Number of final model calls made without tool definitions"),
	)
	if err != nil {
		return nil, err
	}

	toolCalls, err := meter.Int64Counter("courserag.tool.invocations",
		metric.WithDescription("Number of tool invocations"),
	)
	if err != nil {
		return nil, err
	}

	toolLatency, err := meter.Float64Histogram("courserag.tool.latency",
		metric.WithDescription("Tool execution latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Recorder{
		modelCalls:    modelCalls,
		forcedAnswers: forcedAnswers,
		toolCalls:     toolCalls,
		toolLatency:   toolLatency,
	}, nil
}

// NewGlobalRecorder binds a Recorder to the process-wide meter provider.
func NewGlobalRecorder() (*Recorder, error) {
	return NewRecorder(otel.Meter(meterName))
}

// ModelCall records one model endpoint call for the given round.
func (r *Recorder) ModelCall(ctx context.Context, round int, toolsAttached bool) {
	if r == nil {
		return
	}
	r.modelCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("round", round),
		attribute.Bool("tools_attached", toolsAttached),
	))
}

// ForcedAnswer records a final call that was stripped of tool definitions.
func (r *Recorder) ForcedAnswer(ctx context.Context) {
	if r == nil {
		return
	}
	r.forcedAnswers.Add(ctx, 1)
}

// ToolInvocation records one tool dispatch.
func (r *Recorder) ToolInvocation(ctx context.Context, toolName string, success bool, elapsed time.Duration) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("tool_name", toolName),
		attribute.Bool("success", success),
	)
	r.toolCalls.Add(ctx, 1, attrs)
	r.toolLatency.Record(ctx, elapsed.Seconds(), attrs)
}
