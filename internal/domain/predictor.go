package domain

import "context"

// PredictionResult is the explicit discriminant returned by the prediction
// client: either a prediction set or an unavailability reason. Callers
// branch on Available, never on errors.
type PredictionResult struct {
	predictions *Predictions
	reason      string
}

func PredictionOk(p *Predictions) PredictionResult {
	return PredictionResult{predictions: p}
}

func PredictionUnavailable(reason string) PredictionResult {
	return PredictionResult{reason: reason}
}

func (r PredictionResult) Available() bool { return r.predictions != nil }

func (r PredictionResult) Predictions() *Predictions { return r.predictions }

func (r PredictionResult) Reason() string { return r.reason }

// Predictor is the prediction-service client seen by the producer side.
type Predictor interface {
	Predict(ctx context.Context, task *Task, kinds []PredictionKind) PredictionResult
	PredictBatch(ctx context.Context, tasks []*Task) map[string]PredictionResult
	Health(ctx context.Context) bool
}

// Observation is one observed outcome fed back for retraining.
type Observation struct {
	TaskID           string    `json:"task_id"`
	TaskType         TaskType  `json:"task_type"`
	Features         *Features `json:"features,omitempty"`
	ActualDurationMs int64     `json:"actual_duration_ms"`
	ActualPriority   int       `json:"actual_priority"`
	WasSuccessful    bool      `json:"was_successful"`
	QueueName        string    `json:"queue_name"`
	CreatedAt        string    `json:"created_at"`
	ProcessedAt      string    `json:"processed_at"`
}

// TrainingSink accepts observations; delivery is best-effort.
type TrainingSink interface {
	Report(obs Observation)
}

// IdempotencyGuard serializes handler execution per task id across workers.
type IdempotencyGuard interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}
