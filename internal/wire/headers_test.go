package wire

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskflow-ai/taskflow/internal/domain"
)

func init() {
	otel.SetTextMapPropagator(propagation.TraceContext{})
}

func baseTask() *domain.Task {
	return &domain.Task{
		ID:         "task-7",
		Type:       domain.DataProcessing,
		MaxRetries: 3,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestBuildHeaders_MandatorySet(t *testing.T) {
	headers := BuildHeaders(context.Background(), baseTask(), domain.DestinationNormal, "fallback: predictions unavailable")

	assert.Equal(t, "task-7", headers[HeaderTaskID])
	assert.Equal(t, "DataProcessing", headers[HeaderTaskType])
	assert.Equal(t, int32(0), headers[HeaderRetryCount])
	assert.Equal(t, int32(3), headers[HeaderMaxRetries])
	assert.Equal(t, false, headers[HeaderAIProcessed])
	assert.Equal(t, "normal", headers[HeaderQueueRecommendation])
	assert.Equal(t, "fallback: predictions unavailable", headers[HeaderRoutingReason])
	require.NoError(t, Validate(headers))
}

func TestBuildHeaders_AIHeadersOnlyWithPredictions(t *testing.T) {
	task := baseTask()
	headers := BuildHeaders(context.Background(), task, domain.DestinationNormal, "fallback: predictions unavailable")
	_, hasPriority := headers[HeaderAIPriority]
	assert.False(t, hasPriority)

	task.Predictions = &domain.Predictions{
		CalculatedPriority:  8,
		PredictedDurationMs: 1800,
		IsAnomaly:           false,
		SuccessProbability:  0.97,
		ModelVersion:        "fallback-v1",
	}
	task.AIProcessed = true
	headers = BuildHeaders(context.Background(), task, domain.DestinationHigh, "ai-optimized: deadline")

	assert.Equal(t, int32(8), headers[HeaderAIPriority])
	assert.Equal(t, int64(1800), headers[HeaderAIDurationMs])
	assert.Equal(t, false, headers[HeaderAIIsAnomaly])
	assert.Equal(t, 0.97, headers[HeaderAISuccessProb])
	assert.Equal(t, "fallback-v1", headers[HeaderAIServiceVersion])
	require.NoError(t, Validate(headers))
}

func TestTraceContextRoundTrip(t *testing.T) {
	provider := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	ctx, span := provider.Tracer("test").Start(context.Background(), "send_ai_optimized_task")
	headers := BuildHeaders(ctx, baseTask(), domain.DestinationCritical, "ai-optimized: test")
	span.End()

	parent, ok := headers[HeaderTraceParent].(string)
	require.True(t, ok, "traceparent header must be injected")
	assert.NotEmpty(t, parent)

	extracted := ExtractContext(context.Background(), headers)
	// the remote span context carries the published trace id
	sc := trace.SpanContextFromContext(extracted)
	assert.Equal(t, span.SpanContext().TraceID(), sc.TraceID())
	assert.True(t, sc.IsRemote())
}

func TestIntHeader_WidthTolerance(t *testing.T) {
	headers := map[string]any{
		"a": int32(3),
		"b": int64(4),
		"c": "5",
		"d": int8(6),
	}
	for key, want := range map[string]int{"a": 3, "b": 4, "c": 5, "d": 6} {
		got, ok := IntHeader(headers, key)
		require.True(t, ok, key)
		assert.Equal(t, want, got)
	}
	_, ok := IntHeader(headers, "missing")
	assert.False(t, ok)
}

func TestValidate_RejectsUnknownHeader(t *testing.T) {
	headers := map[string]any{"x-custom": 1}
	assert.Error(t, Validate(headers))
}
