package domain

import (
	"math"
	"time"
)

type TaskType string

const (
	EmailNotification TaskType = "EmailNotification"
	ReportGeneration  TaskType = "ReportGeneration"
	DataProcessing    TaskType = "DataProcessing"
	ImageProcessing   TaskType = "ImageProcessing"
	DataExport        TaskType = "DataExport"
	HealthCheck       TaskType = "HealthCheck"
)

// AllTaskTypes is the closed catalog of task types accepted by the submission API.
func AllTaskTypes() []TaskType {
	return []TaskType{
		EmailNotification,
		ReportGeneration,
		DataProcessing,
		ImageProcessing,
		DataExport,
		HealthCheck,
	}
}

func ValidTaskType(t string) bool {
	for _, tt := range AllTaskTypes() {
		if string(tt) == t {
			return true
		}
	}
	return false
}

// MaxErrorHistory bounds the error_history field so repeated retries cannot
// grow the message body without limit.
const MaxErrorHistory = 10

type Task struct {
	ID          string   `json:"id"`
	Type        TaskType `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  int64      `json:"duration_ms,omitempty"`

	ManualPriority int    `json:"manual_priority"`
	RoutingKey     string `json:"routing_key,omitempty"`

	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	LastRetryAt  *time.Time `json:"last_retry_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	ErrorHistory []string   `json:"error_history,omitempty"`

	// trace_id/span_id mirror the publishing span for operators reading
	// message bodies. The W3C headers on the wire are authoritative.
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`

	Parameters map[string]any `json:"parameters,omitempty"`

	Features      *Features    `json:"features,omitempty"`
	Predictions   *Predictions `json:"predictions,omitempty"`
	AIProcessed   bool         `json:"ai_processed"`
	AIProcessedAt *time.Time   `json:"ai_processed_at,omitempty"`
	AIError       string       `json:"ai_error,omitempty"`
}

// EffectivePriority blends the AI-calculated priority with the submitter's
// manual priority. Without predictions the manual priority stands alone.
func (t *Task) EffectivePriority() int {
	if t.Predictions == nil {
		return clampPriority(t.ManualPriority)
	}
	blended := 0.7*float64(t.Predictions.CalculatedPriority) + 0.3*float64(t.ManualPriority)
	return clampPriority(int(math.Round(blended)))
}

// RecordError appends to the bounded error history and stamps the retry fields.
func (t *Task) RecordError(msg string, at time.Time) {
	t.LastError = msg
	t.LastRetryAt = &at
	t.ErrorHistory = append(t.ErrorHistory, msg)
	if len(t.ErrorHistory) > MaxErrorHistory {
		t.ErrorHistory = t.ErrorHistory[len(t.ErrorHistory)-MaxErrorHistory:]
	}
}

func clampPriority(p int) int {
	if p < 0 {
		return 0
	}
	if p > 10 {
		return 10
	}
	return p
}
