package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taskflow-ai/taskflow/internal/domain"
)

func poolWithHandler(handler HandlerFunc) *Pool {
	return NewPool(newFakeSource(), nil, DefaultPolicies(), handler, nil)
}

func TestInvokeHandler_ErrorsPassThroughUnchanged(t *testing.T) {
	boom := errors.New("handler exploded")
	pool := poolWithHandler(func(ctx context.Context, task *domain.Task) error { return boom })

	task := &domain.Task{ID: "w-1", Type: domain.EmailNotification}
	for _, dest := range domain.AllDestinations() {
		err := pool.invokeHandler(context.Background(), dest, task)
		assert.ErrorIs(t, err, boom, "wrapper for %s must not alter the error", dest)
	}
}

func TestInvokeHandler_SuccessPassesThrough(t *testing.T) {
	pool := poolWithHandler(func(ctx context.Context, task *domain.Task) error { return nil })

	task := &domain.Task{ID: "w-2", Type: domain.ReportGeneration}
	for _, dest := range domain.AllDestinations() {
		assert.NoError(t, pool.invokeHandler(context.Background(), dest, task))
	}
}

func TestAnomalyWrapper_ReadsPredictionDiagnostics(t *testing.T) {
	var seen *domain.Task
	pool := poolWithHandler(func(ctx context.Context, task *domain.Task) error {
		seen = task
		return nil
	})

	task := &domain.Task{
		ID:   "w-3",
		Type: domain.DataProcessing,
		Predictions: &domain.Predictions{
			IsAnomaly:    true,
			AnomalyScore: 0.91,
			AnomalyTags:  []string{"oversized_input"},
		},
	}
	assert.NoError(t, pool.invokeHandler(context.Background(), domain.DestinationAnomaly, task))
	assert.Same(t, task, seen, "wrapper hands the task through untouched")
}

func TestAnomalyWrapper_ToleratesMissingPredictions(t *testing.T) {
	pool := poolWithHandler(func(ctx context.Context, task *domain.Task) error { return nil })
	task := &domain.Task{ID: "w-4", Type: domain.DataProcessing}
	assert.NoError(t, pool.invokeHandler(context.Background(), domain.DestinationAnomaly, task))
}
