// Package wire builds and reads the broker message headers shared by the
// publisher and the consumer pool.
package wire

import (
	"context"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/taskflow-ai/taskflow/internal/domain"
)

const (
	HeaderTraceParent         = "traceparent"
	HeaderTraceState          = "tracestate"
	HeaderTaskType            = "task-type"
	HeaderTaskID              = "task-id"
	HeaderRetryCount          = "retry-count"
	HeaderMaxRetries          = "max-retries"
	HeaderAIProcessed         = "ai-processed"
	HeaderRoutingReason       = "routing-reason"
	HeaderQueueRecommendation = "queue-recommendation"
	HeaderAIPriority          = "ai-priority"
	HeaderAIDurationMs        = "ai-duration-ms"
	HeaderAIIsAnomaly         = "ai-is-anomaly"
	HeaderAISuccessProb       = "ai-success-probability"
	HeaderAIServiceVersion    = "ai-service-version"
)

// Catalog is the full set of headers a published message may carry.
var Catalog = map[string]struct{}{
	HeaderTraceParent:         {},
	HeaderTraceState:          {},
	HeaderTaskType:            {},
	HeaderTaskID:              {},
	HeaderRetryCount:          {},
	HeaderMaxRetries:          {},
	HeaderAIProcessed:         {},
	HeaderRoutingReason:       {},
	HeaderQueueRecommendation: {},
	HeaderAIPriority:          {},
	HeaderAIDurationMs:        {},
	HeaderAIIsAnomaly:         {},
	HeaderAISuccessProb:       {},
	HeaderAIServiceVersion:    {},
}

// headerCarrier adapts a header table to the OpenTelemetry TextMapCarrier so
// the W3C trace context crosses the broker hop.
type headerCarrier map[string]any

func (c headerCarrier) Get(key string) string {
	if v, ok := c[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) { c[key] = value }

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// BuildHeaders assembles the message headers for one task and routing
// decision, injecting the active span's trace context from ctx.
func BuildHeaders(ctx context.Context, task *domain.Task, dest domain.Destination, reason string) map[string]any {
	headers := map[string]any{
		HeaderTaskType:            string(task.Type),
		HeaderTaskID:              task.ID,
		HeaderRetryCount:          int32(task.RetryCount),
		HeaderMaxRetries:          int32(task.MaxRetries),
		HeaderAIProcessed:         task.AIProcessed,
		HeaderRoutingReason:       reason,
		HeaderQueueRecommendation: string(dest),
	}

	if p := task.Predictions; p != nil {
		headers[HeaderAIPriority] = int32(p.CalculatedPriority)
		headers[HeaderAIDurationMs] = p.PredictedDurationMs
		headers[HeaderAIIsAnomaly] = p.IsAnomaly
		headers[HeaderAISuccessProb] = p.SuccessProbability
		headers[HeaderAIServiceVersion] = p.ModelVersion
	}

	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(headers))
	return headers
}

// ExtractContext resumes the publishing trace context from delivery headers.
func ExtractContext(ctx context.Context, headers map[string]any) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, headerCarrier(headers))
}

// IntHeader reads a numeric header regardless of the integer width the
// broker client decoded it into.
func IntHeader(headers map[string]any, key string) (int, bool) {
	v, ok := headers[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case string:
		if parsed, err := strconv.Atoi(n); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

// Validate reports headers outside the catalog; startup tests use it to keep
// the wire contract closed.
func Validate(headers map[string]any) error {
	for key := range headers {
		if _, ok := Catalog[key]; !ok {
			return fmt.Errorf("header %q is not in the catalog", key)
		}
	}
	return nil
}

var _ propagation.TextMapCarrier = headerCarrier{}
