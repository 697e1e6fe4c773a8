package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/taskflow-ai/taskflow/internal/domain"
)

// criticalLatencyBudget is the soft deadline critical tasks should meet.
const criticalLatencyBudget = time.Second

// invokeHandler runs the task handler inside its processing span, applying
// the destination-specific wrapper. Wrappers add logging and policy
// annotations only; the retry contract is decided by the caller.
func (p *Pool) invokeHandler(ctx context.Context, dest domain.Destination, task *domain.Task) error {
	ctx, span := p.tracer.Start(ctx, fmt.Sprintf("process_task_%s", task.Type))
	defer span.End()

	err := p.runWrapped(ctx, dest, task)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
	}
	return err
}

func (p *Pool) runWrapped(ctx context.Context, dest domain.Destination, task *domain.Task) error {
	switch dest {
	case domain.DestinationCritical:
		return p.runCritical(ctx, task)
	case domain.DestinationAnomaly:
		return p.runAnomaly(ctx, task)
	case domain.DestinationBatch:
		return p.runBatch(ctx, task)
	default:
		return p.handler(ctx, task)
	}
}

// runCritical keeps the fast path lean and flags latency-budget misses.
func (p *Pool) runCritical(ctx context.Context, task *domain.Task) error {
	start := p.now()
	err := p.handler(ctx, task)
	if elapsed := p.now().Sub(start); elapsed > criticalLatencyBudget {
		slog.Warn("Critical task exceeded its latency budget", "task_id", task.ID, "elapsed_ms", elapsed.Milliseconds())
	}
	return err
}

// runAnomaly surrounds the handler with the extra diagnostics operators
// expect on the anomaly path.
func (p *Pool) runAnomaly(ctx context.Context, task *domain.Task) error {
	score := 0.0
	var tags []string
	if task.Predictions != nil {
		score = task.Predictions.AnomalyScore
		tags = task.Predictions.AnomalyTags
	}
	slog.Info("Processing anomalous task", "task_id", task.ID, "task_type", task.Type, "anomaly_score", score, "anomaly_tags", tags)

	err := p.handler(ctx, task)
	if err != nil {
		slog.Error("Anomalous task handler failed", "task_id", task.ID, "anomaly_score", score, "error", err.Error())
		return err
	}
	slog.Info("Anomalous task has been handled", "task_id", task.ID)
	return nil
}

// runBatch permits long executions and records how long they actually took.
func (p *Pool) runBatch(ctx context.Context, task *domain.Task) error {
	start := p.now()
	err := p.handler(ctx, task)
	slog.Info("Batch task execution finished", "task_id", task.ID, "elapsed_ms", p.now().Sub(start).Milliseconds(), "failed", err != nil)
	return err
}
