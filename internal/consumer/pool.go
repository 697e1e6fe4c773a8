package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskflow-ai/taskflow/internal/domain"
	"github.com/taskflow-ai/taskflow/internal/telemetry"
	"github.com/taskflow-ai/taskflow/internal/wire"
)

// IntrospectionInterval is how often the pool logs per-destination
// throughput and rolling latency.
const IntrospectionInterval = 10 * time.Second

// HandlerFunc executes one task. A non-nil error triggers the destination's
// retry discipline.
type HandlerFunc func(ctx context.Context, task *domain.Task) error

// Stats is one introspection sample for a destination.
type Stats struct {
	Processed  int
	Failed     int
	AvgLatency time.Duration
}

// Pool consumes every destination with its own worker group. Each delivery
// is handled on a single worker from receipt to its terminal signal.
type Pool struct {
	source   domain.DeliverySource
	broker   domain.Broker
	handler  HandlerFunc
	policies map[domain.Destination]Policy
	guard    domain.IdempotencyGuard
	reporter domain.TrainingSink
	metrics  *telemetry.Metrics
	tracer   trace.Tracer

	reportFailures bool
	consumerTag    string
	now            func() time.Time

	// IntrospectHook, when set, receives every 10s sample. It is the seam
	// for dynamic concurrency adjustment from queue depth.
	IntrospectHook func(dest domain.Destination, stats Stats)

	statsMu sync.Mutex
	stats   map[domain.Destination]*rollingStats
}

type rollingStats struct {
	processed int
	failed    int
	totalTime time.Duration
}

type Option func(*Pool)

func WithIdempotencyGuard(guard domain.IdempotencyGuard) Option {
	return func(p *Pool) { p.guard = guard }
}

func WithTrainingReporter(reporter domain.TrainingSink, reportFailures bool) Option {
	return func(p *Pool) {
		p.reporter = reporter
		p.reportFailures = reportFailures
	}
}

func WithConsumerTag(tag string) Option {
	return func(p *Pool) { p.consumerTag = tag }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

func NewPool(source domain.DeliverySource, broker domain.Broker, policies map[domain.Destination]Policy, handler HandlerFunc, metrics *telemetry.Metrics, opts ...Option) *Pool {
	p := &Pool{
		source:      source,
		broker:      broker,
		handler:     handler,
		policies:    policies,
		metrics:     metrics,
		tracer:      otel.Tracer("consumer"),
		consumerTag: "priority-consumer",
		now:         time.Now,
		stats:       make(map[domain.Destination]*rollingStats),
	}
	for _, opt := range opts {
		opt(p)
	}
	for dest := range policies {
		p.stats[dest] = &rollingStats{}
	}
	return p
}

// Run starts every destination's worker group and blocks until ctx is done
// and all in-flight deliveries have reached a terminal or requeued state.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for dest, policy := range p.policies {
		deliveries, err := p.source.Consume(ctx, dest, fmt.Sprintf("%s:%s", p.consumerTag, dest), policy.Prefetch)
		if err != nil {
			return fmt.Errorf("start consumer for %s: %w", dest, err)
		}

		slog.Info("Consumer group is starting", "destination", dest, "concurrency", policy.Concurrency, "prefetch", policy.Prefetch)
		for i := 0; i < policy.Concurrency; i++ {
			wg.Add(1)
			go func(dest domain.Destination, policy Policy) {
				defer wg.Done()
				for delivery := range deliveries {
					p.handleDelivery(ctx, dest, policy, delivery)
				}
			}(dest, policy)
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.introspectLoop(ctx)
	}()

	wg.Wait()
	return nil
}

// handleDelivery walks one delivery through
// RECEIVED → PARSED → IN-FLIGHT → {ACKED, REQUEUED, DEAD-LETTERED}.
func (p *Pool) handleDelivery(ctx context.Context, dest domain.Destination, policy Policy, delivery domain.Delivery) {
	queueName := dest.Policy().Queue

	hctx := wire.ExtractContext(ctx, delivery.Headers())
	hctx, span := p.tracer.Start(hctx, "consume_priority_task", trace.WithAttributes(
		attribute.String("messaging.system", "rabbitmq"),
		attribute.String("messaging.destination.name", queueName),
	))
	defer span.End()

	task := new(domain.Task)
	if err := json.Unmarshal(delivery.Body(), task); err != nil {
		slog.Error("There was an error in unmarshalling the delivery, dead-lettering it", "queue", queueName, "error", err.Error())
		p.metrics.TasksProcessed.WithLabelValues("unknown", queueName, "parse_error").Inc()
		p.nack(delivery, false, queueName)
		span.SetStatus(codes.Error, "parse failure")
		return
	}
	span.SetAttributes(attribute.String("task.id", task.ID), attribute.String("task.type", string(task.Type)))

	queueWait := p.now().Sub(task.CreatedAt)
	p.metrics.QueueWaitTime.WithLabelValues(queueName).Set(queueWait.Seconds())

	if p.guard != nil {
		acquired, err := p.guard.Acquire(hctx, inflightKey(task.ID))
		if err != nil {
			slog.Error("Error occurred while acquiring idempotency lock, requeueing delivery", "task_id", task.ID, "error", err.Error())
			p.nack(delivery, true, queueName)
			return
		}
		if !acquired {
			slog.Warn("Task is already in flight on another worker, requeueing", "task_id", task.ID)
			p.metrics.TasksProcessed.WithLabelValues(string(task.Type), queueName, "duplicate").Inc()
			p.sleep(ctx, time.Second)
			p.nack(delivery, true, queueName)
			return
		}
		defer func() {
			if err := p.guard.Release(context.Background(), inflightKey(task.ID)); err != nil {
				slog.Error("Error while releasing idempotency lock", "task_id", task.ID, "error", err.Error())
			}
		}()
	}

	started := p.now().UTC()
	task.StartedAt = &started

	err := p.invokeHandler(hctx, dest, task)

	elapsed := p.now().UTC().Sub(started)
	p.metrics.TaskProcessingDuration.WithLabelValues(string(task.Type)).Observe(elapsed.Seconds())

	if err == nil {
		completed := p.now().UTC()
		task.CompletedAt = &completed
		task.DurationMs = elapsed.Milliseconds()
		p.ack(delivery, queueName)
		p.metrics.TasksProcessed.WithLabelValues(string(task.Type), queueName, "success").Inc()
		p.record(dest, elapsed, false)
		p.reportOutcome(task, queueName, true)
		slog.Info("Task has been processed successfully", "task_id", task.ID, "queue", queueName, "duration_ms", task.DurationMs)
		return
	}

	span.RecordError(err)
	p.record(dest, elapsed, true)

	if ctx.Err() != nil {
		// Shutdown mid-handler: the delivery goes back, and the attempt
		// counts against the budget because the handler had started.
		p.requeueOnShutdown(dest, policy, task, delivery, queueName)
		return
	}

	if task.RetryCount < policy.MaxRetries {
		p.requeueWithDelay(ctx, dest, policy, task, delivery, queueName, err)
		return
	}

	task.RecordError(err.Error(), p.now().UTC())
	slog.Error("Task has exhausted its retry budget, dead-lettering", "task_id", task.ID, "queue", queueName, "retry_count", task.RetryCount, "error", err.Error())
	p.nack(delivery, false, queueName)
	p.metrics.TasksProcessed.WithLabelValues(string(task.Type), queueName, "dead_letter").Inc()
	span.SetStatus(codes.Error, "dead-lettered")
	if p.reportFailures {
		p.reportOutcome(task, queueName, false)
	}
}

// requeueWithDelay is the REQUEUED leg: wait out the destination's retry
// delay, then put an updated copy (retry fields advanced) back on the same
// destination and settle the original. The delay is interruptible.
func (p *Pool) requeueWithDelay(ctx context.Context, dest domain.Destination, policy Policy, task *domain.Task, delivery domain.Delivery, queueName string, cause error) {
	task.RetryCount++
	task.RecordError(cause.Error(), p.now().UTC())
	task.StartedAt = nil

	slog.Warn("Task handler failed, scheduling retry", "task_id", task.ID, "queue", queueName, "retry_count", task.RetryCount, "retry_delay", policy.RetryDelay, "error", cause.Error())

	if !p.sleep(ctx, policy.RetryDelay) {
		// Interrupted by shutdown; hand the original back untouched.
		p.nack(delivery, true, queueName)
		p.metrics.TasksProcessed.WithLabelValues(string(task.Type), queueName, "shutdown_requeue").Inc()
		return
	}

	if err := p.republish(ctx, dest, task); err != nil {
		slog.Error("Error occurred while republishing task for retry, requeueing original delivery", "task_id", task.ID, "error", err.Error())
		p.nack(delivery, true, queueName)
		return
	}
	p.ack(delivery, queueName)
	p.metrics.TasksProcessed.WithLabelValues(string(task.Type), queueName, "retried").Inc()
}

func (p *Pool) requeueOnShutdown(dest domain.Destination, policy Policy, task *domain.Task, delivery domain.Delivery, queueName string) {
	if task.RetryCount < policy.MaxRetries {
		task.RetryCount++
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.republish(rctx, dest, task); err == nil {
			p.ack(delivery, queueName)
			p.metrics.TasksProcessed.WithLabelValues(string(task.Type), queueName, "shutdown_requeue").Inc()
			return
		}
	}
	p.nack(delivery, true, queueName)
	p.metrics.TasksProcessed.WithLabelValues(string(task.Type), queueName, "shutdown_requeue").Inc()
}

func (p *Pool) republish(ctx context.Context, dest domain.Destination, task *domain.Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return err
	}
	policy := dest.Policy()
	reason := fmt.Sprintf("retry %d/%d", task.RetryCount, p.policies[dest].MaxRetries)
	return p.broker.Publish(ctx, policy.Exchange, policy.RoutingKey, domain.Message{
		Body:        body,
		ContentType: "application/json",
		Priority:    policy.WirePriority,
		Expiration:  policy.TTL,
		Headers:     wire.BuildHeaders(ctx, task, dest, reason),
		Persistent:  true,
	})
}

func (p *Pool) reportOutcome(task *domain.Task, queueName string, successful bool) {
	if p.reporter == nil {
		return
	}
	processedAt := ""
	if task.CompletedAt != nil {
		processedAt = task.CompletedAt.Format(time.RFC3339Nano)
	}
	p.reporter.Report(domain.Observation{
		TaskID:           task.ID,
		TaskType:         task.Type,
		Features:         task.Features,
		ActualDurationMs: task.DurationMs,
		ActualPriority:   task.EffectivePriority(),
		WasSuccessful:    successful,
		QueueName:        queueName,
		CreatedAt:        task.CreatedAt.Format(time.RFC3339Nano),
		ProcessedAt:      processedAt,
	})
}

func (p *Pool) ack(delivery domain.Delivery, queueName string) {
	if err := delivery.Ack(); err != nil {
		slog.Error("Error occurred while acking delivery", "queue", queueName, "error", err.Error())
	}
}

func (p *Pool) nack(delivery domain.Delivery, requeue bool, queueName string) {
	if err := delivery.Nack(requeue); err != nil {
		slog.Error("Error occurred while nacking delivery", "queue", queueName, "requeue", requeue, "error", err.Error())
	}
}

// sleep waits for d unless ctx is cancelled first; reports whether the full
// delay elapsed.
func (p *Pool) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Pool) record(dest domain.Destination, elapsed time.Duration, failed bool) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	s := p.stats[dest]
	if s == nil {
		return
	}
	s.processed++
	s.totalTime += elapsed
	if failed {
		s.failed++
	}
}

func (p *Pool) introspectLoop(ctx context.Context) {
	ticker := time.NewTicker(IntrospectionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.introspect()
		}
	}
}

func (p *Pool) introspect() {
	p.statsMu.Lock()
	samples := make(map[domain.Destination]Stats, len(p.stats))
	for dest, s := range p.stats {
		sample := Stats{Processed: s.processed, Failed: s.failed}
		if s.processed > 0 {
			sample.AvgLatency = s.totalTime / time.Duration(s.processed)
		}
		samples[dest] = sample
		*s = rollingStats{}
	}
	p.statsMu.Unlock()

	for dest, sample := range samples {
		slog.Info("Destination throughput sample",
			"destination", dest,
			"processed", sample.Processed,
			"failed", sample.Failed,
			"avg_latency_ms", sample.AvgLatency.Milliseconds(),
		)
		if p.IntrospectHook != nil {
			p.IntrospectHook(dest, sample)
		}
	}
}

func inflightKey(taskID string) string {
	return "inflight:" + taskID
}
