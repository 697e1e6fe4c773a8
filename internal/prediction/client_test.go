package prediction

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-ai/taskflow/internal/domain"
	"github.com/taskflow-ai/taskflow/internal/telemetry"
)

func newTestTask() *domain.Task {
	return &domain.Task{
		ID:             "t-1",
		Type:           domain.ReportGeneration,
		ManualPriority: 3,
		CreatedAt:      time.Now().UTC(),
	}
}

func okHandler(t *testing.T, preds *domain.Predictions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/predict":
			var req predictRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			_ = json.NewEncoder(w).Encode(predictResponse{Success: true, Predictions: preds})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}
}

func TestPredict_Success(t *testing.T) {
	preds := &domain.Predictions{
		CalculatedPriority:     9,
		RecommendedDestination: "critical",
		PredictedDurationMs:    45000,
		ModelVersion:           "fallback-v1",
	}
	srv := httptest.NewServer(okHandler(t, preds))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 30*time.Second, telemetry.NewMetrics())
	res := c.Predict(context.Background(), newTestTask(), domain.AllPredictionKinds())

	require.True(t, res.Available())
	assert.Equal(t, 9, res.Predictions().CalculatedPriority)
	assert.Equal(t, "critical", res.Predictions().RecommendedDestination)
}

func TestPredict_Non2xxIsUnavailableWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 30*time.Second, telemetry.NewMetrics())
	res := c.Predict(context.Background(), newTestTask(), nil)

	assert.False(t, res.Available())
	assert.Contains(t, res.Reason(), "unexpected status 500")
	assert.Equal(t, int32(1), calls.Load(), "client must not retry non-2xx")
}

func TestPredict_TimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 50*time.Millisecond, 30*time.Second, telemetry.NewMetrics())
	// warm the health cache so the predict call itself is what times out
	require.True(t, c.Health(context.Background()))

	res := c.Predict(context.Background(), newTestTask(), nil)
	assert.False(t, res.Available())
}

func TestPredict_UnparseableBodyIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 30*time.Second, telemetry.NewMetrics())
	res := c.Predict(context.Background(), newTestTask(), nil)
	assert.False(t, res.Available())
}

func TestPredict_HealthGateNegative(t *testing.T) {
	var predictCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		predictCalls.Add(1)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 30*time.Second, telemetry.NewMetrics())
	res := c.Predict(context.Background(), newTestTask(), nil)

	assert.False(t, res.Available())
	assert.Equal(t, "health check negative", res.Reason())
	assert.Equal(t, int32(0), predictCalls.Load(), "predict must not be called behind a negative health gate")
}

func TestPredict_HealthCacheSkipsProbeInsideWindow(t *testing.T) {
	var healthCalls atomic.Int32
	preds := &domain.Predictions{CalculatedPriority: 4}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			healthCalls.Add(1)
			w.WriteHeader(http.StatusOK)
		case "/predict":
			_ = json.NewEncoder(w).Encode(predictResponse{Success: true, Predictions: preds})
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, time.Hour, telemetry.NewMetrics())
	task := newTestTask()

	c.Predict(context.Background(), task, nil)
	c.Predict(context.Background(), task, nil)
	c.Predict(context.Background(), task, nil)

	assert.Equal(t, int32(1), healthCalls.Load(), "only the first call probes health inside the window")
}

func TestPredict_EmptyFeaturesObject(t *testing.T) {
	preds := &domain.Predictions{CalculatedPriority: 4}
	srv := httptest.NewServer(okHandler(t, preds))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 30*time.Second, telemetry.NewMetrics())
	task := newTestTask()
	task.Features = &domain.Features{}

	res := c.Predict(context.Background(), task, nil)
	assert.True(t, res.Available())
}

func TestPredictBatch_SplitsAndMapsUnknownIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/predict-batch":
			var req batchRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.LessOrEqual(t, len(req.Tasks), MaxBatchSize)
			resp := batchResponse{}
			for i, item := range req.Tasks {
				// the service fails to answer every third task
				if i%3 == 2 {
					continue
				}
				resp.Results = append(resp.Results, struct {
					TaskID      string              `json:"task_id"`
					Success     bool                `json:"success"`
					Predictions *domain.Predictions `json:"predictions,omitempty"`
				}{TaskID: item.TaskID, Success: true, Predictions: &domain.Predictions{CalculatedPriority: 5}})
			}
			_ = json.NewEncoder(w).Encode(resp)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 30*time.Second, telemetry.NewMetrics())

	tasks := make([]*domain.Task, 0, 150)
	for i := 0; i < 150; i++ {
		tasks = append(tasks, &domain.Task{ID: fmt.Sprintf("t-%03d", i), Type: domain.EmailNotification})
	}

	results := c.PredictBatch(context.Background(), tasks)
	require.Len(t, results, 150)
	available, unavailable := 0, 0
	for _, r := range results {
		if r.Available() {
			available++
		} else {
			unavailable++
		}
	}
	assert.Greater(t, available, 0)
	assert.Greater(t, unavailable, 0)
}

func TestPopulateFeatures(t *testing.T) {
	fixed := time.Date(2025, time.March, 8, 14, 0, 0, 0, time.UTC) // a Saturday
	c := NewClient("http://unused", time.Second, time.Second, nil, WithClock(func() time.Time { return fixed }))

	task := newTestTask()
	f := c.populateFeatures(task)

	assert.Equal(t, 14, *f.HourOfDay)
	assert.Equal(t, int(time.Saturday), *f.DayOfWeek)
	assert.True(t, *f.IsWeekend)
	assert.True(t, *f.IsPeakHour)
	assert.Equal(t, "anonymous", f.UserID)
	assert.Equal(t, int64(512*1024), *f.InputSizeBytes, "report baseline input size")
	assert.Nil(t, f.SystemLoad, "system load is never invented")
	assert.Nil(t, task.Features, "original task is not mutated")
}

func TestPopulateFeatures_KeepsCallerValues(t *testing.T) {
	c := NewClient("http://unused", time.Second, time.Second, nil)
	task := newTestTask()
	task.Features = &domain.Features{
		UserID:         "u-42",
		InputSizeBytes: domain.Int64Ptr(999),
		SystemLoad:     domain.Float64Ptr(0.4),
	}

	f := c.populateFeatures(task)
	assert.Equal(t, "u-42", f.UserID)
	assert.Equal(t, int64(999), *f.InputSizeBytes)
	assert.Equal(t, 0.4, *f.SystemLoad)
}
