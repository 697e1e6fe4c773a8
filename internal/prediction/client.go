package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskflow-ai/taskflow/internal/domain"
	"github.com/taskflow-ai/taskflow/internal/telemetry"
)

// MaxBatchSize is the prediction service's batch limit; larger inputs split.
const MaxBatchSize = 100

// taskTypeBaselineInputSize is the imputed input size per task type when the
// submitter supplied none.
var taskTypeBaselineInputSize = map[domain.TaskType]int64{
	domain.EmailNotification: 4 * 1024,
	domain.ReportGeneration:  512 * 1024,
	domain.DataProcessing:    2 * 1024 * 1024,
	domain.ImageProcessing:   5 * 1024 * 1024,
	domain.DataExport:        1024 * 1024,
	domain.HealthCheck:       256,
}

// Client talks to the prediction service. It never returns an error to its
// callers: every failure mode collapses into an Unavailable result and the
// caller falls back to manual routing. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *telemetry.Metrics
	tracer     trace.Tracer

	healthWindow time.Duration
	now          func() time.Time

	mu          sync.Mutex
	lastSuccess time.Time
}

type Option func(*Client)

// WithClock overrides the time source; tests use it to pin imputation and
// health-cache behavior.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(baseURL string, timeout, healthWindow time.Duration, metrics *telemetry.Metrics, opts ...Option) *Client {
	c := &Client{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: timeout},
		metrics:      metrics,
		tracer:       otel.Tracer("prediction-client"),
		healthWindow: healthWindow,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type predictRequest struct {
	TaskID         string                  `json:"task_id"`
	TaskType       domain.TaskType         `json:"task_type"`
	ManualPriority int                     `json:"manual_priority"`
	Features       *domain.Features        `json:"features,omitempty"`
	RequestedKinds []domain.PredictionKind `json:"requested_kinds,omitempty"`
}

type predictResponse struct {
	Success     bool                `json:"success"`
	Error       string              `json:"error,omitempty"`
	Predictions *domain.Predictions `json:"predictions,omitempty"`
}

type batchRequest struct {
	Tasks []predictRequest `json:"tasks"`
}

type batchResponse struct {
	Results []struct {
		TaskID      string              `json:"task_id"`
		Success     bool                `json:"success"`
		Predictions *domain.Predictions `json:"predictions,omitempty"`
	} `json:"results"`
}

// Predict requests one prediction set. The requested kinds narrow what the
// service computes; an empty slice means all kinds.
func (c *Client) Predict(ctx context.Context, task *domain.Task, kinds []domain.PredictionKind) domain.PredictionResult {
	ctx, span := c.tracer.Start(ctx, "ai_get_predictions", trace.WithAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("task.type", string(task.Type)),
	))
	defer span.End()

	if !c.gateOnHealth(ctx) {
		c.count("predict", "health_gate")
		return domain.PredictionUnavailable("health check negative")
	}

	req := predictRequest{
		TaskID:         task.ID,
		TaskType:       task.Type,
		ManualPriority: task.ManualPriority,
		Features:       c.populateFeatures(task),
		RequestedKinds: kinds,
	}

	start := c.now()
	var resp predictResponse
	if err := c.post(ctx, "/predict", req, &resp); err != nil {
		c.observe(start)
		c.count("predict", "error")
		slog.Warn("Prediction call failed, caller will use fallback routing", "task_id", task.ID, "error", err.Error())
		return domain.PredictionUnavailable(err.Error())
	}
	c.observe(start)

	if !resp.Success || resp.Predictions == nil {
		c.count("predict", "rejected")
		return domain.PredictionUnavailable(fmt.Sprintf("service rejected prediction: %s", resp.Error))
	}

	c.markSuccess()
	c.count("predict", "ok")
	span.SetAttributes(attribute.String("ai.model_version", resp.Predictions.ModelVersion))
	return domain.PredictionOk(resp.Predictions)
}

// PredictBatch predicts for many tasks at once, splitting at MaxBatchSize.
// Every input task id gets an entry; failures map to Unavailable.
func (c *Client) PredictBatch(ctx context.Context, tasks []*domain.Task) map[string]domain.PredictionResult {
	results := make(map[string]domain.PredictionResult, len(tasks))
	for start := 0; start < len(tasks); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(tasks) {
			end = len(tasks)
		}
		c.predictChunk(ctx, tasks[start:end], results)
	}
	return results
}

func (c *Client) predictChunk(ctx context.Context, tasks []*domain.Task, results map[string]domain.PredictionResult) {
	req := batchRequest{Tasks: make([]predictRequest, 0, len(tasks))}
	for _, task := range tasks {
		req.Tasks = append(req.Tasks, predictRequest{
			TaskID:         task.ID,
			TaskType:       task.Type,
			ManualPriority: task.ManualPriority,
			Features:       c.populateFeatures(task),
		})
	}

	start := c.now()
	var resp batchResponse
	if err := c.post(ctx, "/predict-batch", req, &resp); err != nil {
		c.observe(start)
		c.count("predict_batch", "error")
		for _, task := range tasks {
			results[task.ID] = domain.PredictionUnavailable(err.Error())
		}
		return
	}
	c.observe(start)
	c.markSuccess()
	c.count("predict_batch", "ok")

	byID := make(map[string]domain.PredictionResult, len(resp.Results))
	for _, r := range resp.Results {
		if r.Success && r.Predictions != nil {
			byID[r.TaskID] = domain.PredictionOk(r.Predictions)
		} else {
			byID[r.TaskID] = domain.PredictionUnavailable("service rejected prediction")
		}
	}
	for _, task := range tasks {
		if r, ok := byID[task.ID]; ok {
			results[task.ID] = r
		} else {
			results[task.ID] = domain.PredictionUnavailable("missing from batch response")
		}
	}
}

// Health probes GET /health. A positive result refreshes the cache window.
func (c *Client) Health(ctx context.Context) bool {
	url := c.baseURL + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	healthy := resp.StatusCode >= 200 && resp.StatusCode < 300
	if healthy {
		c.markSuccess()
	}
	return healthy
}

// gateOnHealth is the cheap pre-check: when the last successful exchange is
// older than the cache window, probe /health before spending a predict call.
func (c *Client) gateOnHealth(ctx context.Context) bool {
	c.mu.Lock()
	fresh := c.now().Sub(c.lastSuccess) < c.healthWindow
	c.mu.Unlock()
	if fresh {
		return true
	}
	return c.Health(ctx)
}

// populateFeatures fills the deterministic fields the submitter left unset.
// The original copy is never mutated. System-state fields stay absent unless
// the caller supplied a real reading.
func (c *Client) populateFeatures(task *domain.Task) *domain.Features {
	var f domain.Features
	if task.Features != nil {
		f = *task.Features
	}

	now := c.now()
	if f.HourOfDay == nil {
		f.HourOfDay = domain.IntPtr(now.Hour())
	}
	if f.DayOfWeek == nil {
		f.DayOfWeek = domain.IntPtr(int(now.Weekday()))
	}
	if f.IsPeakHour == nil {
		h := now.Hour()
		f.IsPeakHour = domain.BoolPtr(h >= 9 && h < 18)
	}
	if f.IsWeekend == nil {
		wd := now.Weekday()
		f.IsWeekend = domain.BoolPtr(wd == time.Saturday || wd == time.Sunday)
	}
	if f.InputSizeBytes == nil {
		if baseline, ok := taskTypeBaselineInputSize[task.Type]; ok {
			f.InputSizeBytes = domain.Int64Ptr(baseline)
		}
	}
	if f.UserID == "" {
		f.UserID = "anonymous"
	}
	return &f
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("call %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) markSuccess() {
	c.mu.Lock()
	c.lastSuccess = c.now()
	c.mu.Unlock()
}

func (c *Client) count(kind, status string) {
	if c.metrics != nil {
		c.metrics.AIPredictions.WithLabelValues("service", kind, status).Inc()
	}
}

func (c *Client) observe(start time.Time) {
	if c.metrics != nil {
		c.metrics.AIPredictionLatency.WithLabelValues("service").Observe(c.now().Sub(start).Seconds())
	}
}
