package producer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-ai/taskflow/internal/domain"
	"github.com/taskflow-ai/taskflow/internal/errval"
	"github.com/taskflow-ai/taskflow/internal/telemetry"
	"github.com/taskflow-ai/taskflow/internal/wire"
)

type publishedMessage struct {
	Exchange   string
	RoutingKey string
	Message    domain.Message
}

type fakeBroker struct {
	mu        sync.Mutex
	published []publishedMessage
	failWith  error
}

func (f *fakeBroker) IsHealthy() bool { return true }

func (f *fakeBroker) Publish(_ context.Context, exchange, routingKey string, msg domain.Message) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMessage{exchange, routingKey, msg})
	return nil
}

func (f *fakeBroker) Close() error { return nil }

func (f *fakeBroker) last(t *testing.T) publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.published)
	return f.published[len(f.published)-1]
}

type fakePredictor struct {
	result domain.PredictionResult
}

func (f *fakePredictor) Predict(context.Context, *domain.Task, []domain.PredictionKind) domain.PredictionResult {
	return f.result
}

func (f *fakePredictor) PredictBatch(_ context.Context, tasks []*domain.Task) map[string]domain.PredictionResult {
	out := make(map[string]domain.PredictionResult, len(tasks))
	for _, task := range tasks {
		out[task.ID] = f.result
	}
	return out
}

func (f *fakePredictor) Health(context.Context) bool { return true }

func newTask(id string, manual int) *domain.Task {
	return &domain.Task{
		ID:             id,
		Type:           domain.ReportGeneration,
		Title:          "quarterly report",
		ManualPriority: manual,
		MaxRetries:     3,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestPublish_AIOptimizedCritical(t *testing.T) {
	broker := &fakeBroker{}
	predictor := &fakePredictor{result: domain.PredictionOk(&domain.Predictions{
		CalculatedPriority:     9,
		PriorityReason:         "enterprise critical deadline",
		RecommendedDestination: "critical",
		PredictedDurationMs:    45000,
		SuccessProbability:     0.9,
		ModelVersion:           "fallback-v1",
	})}
	pub := NewPublisher(broker, predictor, telemetry.NewMetrics())

	task := newTask("s1", 3)
	require.NoError(t, pub.Publish(context.Background(), task))

	got := broker.last(t)
	assert.Equal(t, domain.PriorityExchange, got.Exchange)
	assert.Equal(t, "priority.critical", got.RoutingKey)
	assert.GreaterOrEqual(t, got.Message.Priority, uint8(200))
	assert.Equal(t, true, got.Message.Headers[wire.HeaderAIProcessed])
	assert.True(t, got.Message.Persistent)
	assert.Equal(t, 7, task.EffectivePriority(), "round(0.7*9 + 0.3*3)")
	assert.NotNil(t, task.AIProcessedAt)
}

func TestPublish_FallbackOnPredictionFailure(t *testing.T) {
	broker := &fakeBroker{}
	predictor := &fakePredictor{result: domain.PredictionUnavailable("timeout")}
	pub := NewPublisher(broker, predictor, telemetry.NewMetrics())

	task := newTask("s2", 4)
	require.NoError(t, pub.Publish(context.Background(), task))

	got := broker.last(t)
	assert.Equal(t, "priority.normal", got.RoutingKey)
	reason, _ := got.Message.Headers[wire.HeaderRoutingReason].(string)
	assert.True(t, strings.HasPrefix(reason, "fallback:"), "reason %q", reason)
	assert.Equal(t, false, got.Message.Headers[wire.HeaderAIProcessed])
	assert.Equal(t, "timeout", task.AIError)
}

func TestPublish_AnomalyExchange(t *testing.T) {
	broker := &fakeBroker{}
	predictor := &fakePredictor{result: domain.PredictionOk(&domain.Predictions{
		CalculatedPriority:     5,
		IsAnomaly:              true,
		RecommendedDestination: "anomaly",
	})}
	pub := NewPublisher(broker, predictor, telemetry.NewMetrics())

	require.NoError(t, pub.Publish(context.Background(), newTask("s3", 5)))

	got := broker.last(t)
	assert.Equal(t, domain.AnomalyExchange, got.Exchange)
	assert.Equal(t, "anomaly.detected", got.RoutingKey)
	assert.Equal(t, true, got.Message.Headers[wire.HeaderAIIsAnomaly])
}

func TestPublish_OverflowSurfacesToCaller(t *testing.T) {
	broker := &fakeBroker{failWith: errval.ErrPublishOverflow}
	pub := NewPublisher(broker, &fakePredictor{result: domain.PredictionUnavailable("down")}, telemetry.NewMetrics())

	err := pub.Publish(context.Background(), newTask("s5", 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errval.ErrPublishOverflow))
}

func TestPublish_HeadersWithinCatalog(t *testing.T) {
	broker := &fakeBroker{}
	predictor := &fakePredictor{result: domain.PredictionOk(&domain.Predictions{
		CalculatedPriority:     6,
		RecommendedDestination: "high",
		ModelVersion:           "fallback-v1",
	})}
	pub := NewPublisher(broker, predictor, telemetry.NewMetrics())

	require.NoError(t, pub.Publish(context.Background(), newTask("t-h", 5)))

	headers := broker.last(t).Message.Headers
	require.NoError(t, wire.Validate(headers))
	for _, required := range []string{wire.HeaderTaskID, wire.HeaderTaskType, wire.HeaderRetryCount} {
		_, ok := headers[required]
		assert.True(t, ok, "missing header %s", required)
	}
}

func TestPublish_BodyRoundTrips(t *testing.T) {
	broker := &fakeBroker{}
	predictor := &fakePredictor{result: domain.PredictionOk(&domain.Predictions{
		CalculatedPriority:     6,
		RecommendedDestination: "high",
		PredictedDurationMs:    1200,
	})}
	pub := NewPublisher(broker, predictor, telemetry.NewMetrics())

	task := newTask("round-trip", 5)
	task.Parameters = map[string]any{"report_type": "weekly"}
	task.Features = &domain.Features{UserTier: domain.TierEnterprise}
	require.NoError(t, pub.Publish(context.Background(), task))

	var decoded domain.Task
	require.NoError(t, json.Unmarshal(broker.last(t).Message.Body, &decoded))
	assert.Equal(t, task.ID, decoded.ID)
	assert.Equal(t, task.Type, decoded.Type)
	assert.Equal(t, task.ManualPriority, decoded.ManualPriority)
	assert.Equal(t, domain.TierEnterprise, decoded.Features.UserTier)
	require.NotNil(t, decoded.Predictions)
	assert.Equal(t, int64(1200), decoded.Predictions.PredictedDurationMs)
	assert.True(t, decoded.AIProcessed)
}

func TestPublishBatch_CountsSuccesses(t *testing.T) {
	broker := &fakeBroker{}
	predictor := &fakePredictor{result: domain.PredictionUnavailable("down")}
	pub := NewPublisher(broker, predictor, telemetry.NewMetrics())

	tasks := []*domain.Task{newTask("b1", 2), newTask("b2", 5), newTask("b3", 9)}
	assert.Equal(t, 3, pub.PublishBatch(context.Background(), tasks))

	broker.failWith = errval.ErrPublishFailed
	assert.Equal(t, 0, pub.PublishBatch(context.Background(), tasks))
}

func TestPublish_TTLAndExpirationFromDestination(t *testing.T) {
	broker := &fakeBroker{}
	pub := NewPublisher(broker, &fakePredictor{result: domain.PredictionUnavailable("down")}, telemetry.NewMetrics())

	require.NoError(t, pub.Publish(context.Background(), newTask("ttl", 9)))
	got := broker.last(t)
	assert.Equal(t, domain.DestinationCritical.Policy().TTL, got.Message.Expiration)
}
