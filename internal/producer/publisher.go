package producer

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskflow-ai/taskflow/internal/domain"
	"github.com/taskflow-ai/taskflow/internal/routing"
	"github.com/taskflow-ai/taskflow/internal/telemetry"
	"github.com/taskflow-ai/taskflow/internal/wire"
)

// BatchParallelism bounds concurrent publishes inside PublishBatch.
const BatchParallelism = 4

// Publisher enriches one task with predictions, routes it and publishes it.
// It is reentrant: many submitters may call Publish concurrently.
type Publisher struct {
	broker    domain.Broker
	predictor domain.Predictor
	metrics   *telemetry.Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

func NewPublisher(broker domain.Broker, predictor domain.Predictor, metrics *telemetry.Metrics) *Publisher {
	return &Publisher{
		broker:    broker,
		predictor: predictor,
		metrics:   metrics,
		tracer:    otel.Tracer("producer"),
		now:       time.Now,
	}
}

// Publish runs the full enrich → route → publish pipeline for one task.
// Prediction failures degrade routing but never fail the publish; broker
// errors are returned to the caller.
func (p *Publisher) Publish(ctx context.Context, task *domain.Task) error {
	ctx, span := p.tracer.Start(ctx, "send_ai_optimized_task", trace.WithAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("task.type", string(task.Type)),
		attribute.String("messaging.system", "rabbitmq"),
	))
	defer span.End()

	start := p.now()

	result := p.predictor.Predict(ctx, task, domain.AllPredictionKinds())
	p.attachPredictions(task, result)

	decision := routing.Decide(task, task.Predictions)
	err := p.publishDecided(ctx, task, decision)

	p.metrics.TaskSendDuration.WithLabelValues(string(task.Type)).Observe(p.now().Sub(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		slog.Error("Error occurred while publishing task", "task_id", task.ID, "destination", decision.Destination, "error", err.Error())
		return err
	}

	p.metrics.TasksSent.WithLabelValues(string(task.Type), decision.Destination.Policy().Queue).Inc()
	slog.Info("Task has been published", "task_id", task.ID, "destination", decision.Destination, "routing_key", decision.RoutingKey, "reason", decision.Reason)
	return nil
}

// PublishBatch predicts for the whole batch first, then publishes with
// bounded parallelism. Returns the number of successful publishes.
func (p *Publisher) PublishBatch(ctx context.Context, tasks []*domain.Task) int {
	predictions := p.predictor.PredictBatch(ctx, tasks)
	for _, task := range tasks {
		p.attachPredictions(task, predictions[task.ID])
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	sem := make(chan struct{}, BatchParallelism)

	for _, task := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func(task *domain.Task) {
			defer wg.Done()
			defer func() { <-sem }()

			ctx, span := p.tracer.Start(ctx, "send_ai_optimized_task", trace.WithAttributes(
				attribute.String("task.id", task.ID),
				attribute.String("task.type", string(task.Type)),
				attribute.String("messaging.system", "rabbitmq"),
			))
			defer span.End()

			decision := routing.Decide(task, task.Predictions)
			if err := p.publishDecided(ctx, task, decision); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "publish failed")
				slog.Error("Error occurred while publishing batch task", "task_id", task.ID, "error", err.Error())
				return
			}
			p.metrics.TasksSent.WithLabelValues(string(task.Type), decision.Destination.Policy().Queue).Inc()

			mu.Lock()
			succeeded++
			mu.Unlock()
		}(task)
	}
	wg.Wait()
	return succeeded
}

func (p *Publisher) attachPredictions(task *domain.Task, result domain.PredictionResult) {
	if result.Available() {
		now := p.now().UTC()
		task.Predictions = result.Predictions()
		task.AIProcessed = true
		task.AIProcessedAt = &now
		task.AIError = ""
		return
	}
	task.Predictions = nil
	task.AIProcessed = false
	task.AIError = result.Reason()
}

func (p *Publisher) publishDecided(ctx context.Context, task *domain.Task, decision routing.Decision) error {
	// The body carries the span ids for operators; the headers stay
	// authoritative for trace propagation.
	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		task.TraceID = sc.TraceID().String()
		task.SpanID = sc.SpanID().String()
	}
	task.RoutingKey = decision.RoutingKey

	body, err := json.Marshal(task)
	if err != nil {
		return err
	}

	msg := domain.Message{
		Body:        body,
		ContentType: "application/json",
		Priority:    decision.Priority,
		Expiration:  decision.TTL,
		Headers:     wire.BuildHeaders(ctx, task, decision.Destination, decision.Reason),
		Persistent:  true,
	}

	return p.broker.Publish(ctx, decision.Exchange, decision.RoutingKey, msg)
}
