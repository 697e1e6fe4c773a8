package predictionsvc

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taskflow-ai/taskflow/internal/domain"
	"github.com/taskflow-ai/taskflow/internal/errval"
	"github.com/taskflow-ai/taskflow/internal/telemetry"
)

// PredictRequest is one prediction request as received on the wire.
type PredictRequest struct {
	TaskID         string                  `json:"task_id"`
	TaskType       domain.TaskType         `json:"task_type"`
	ManualPriority int                     `json:"manual_priority"`
	Features       *domain.Features        `json:"features,omitempty"`
	RequestedKinds []domain.PredictionKind `json:"requested_kinds,omitempty"`
}

// learnedStats is the trained tier: per-task-type statistics distilled from
// the training buffer. Replaced wholesale on retrain; readers take the
// current pointer under the service mutex.
type learnedStats struct {
	version     string
	trainedFrom int
	byType      map[domain.TaskType]typeStats
}

type typeStats struct {
	avgDurationMs int64
	successRate   float64
	count         int
}

// Service is the prediction collaborator. Lifecycle: Initialize (fallback
// tier becomes ready), serve (Predict/PredictBatch), observe (training
// records accumulate, retrain swaps the learned tier in).
type Service struct {
	fallback *fallbackModel
	buffer   *Buffer
	metrics  *telemetry.Metrics

	mu           sync.RWMutex
	learned      *learnedStats
	trainVersion int

	predictionsToday atomic.Int64
	totalLatencyUs   atomic.Int64
	initialized      atomic.Bool
}

func NewService(bufferCap int, jitter bool, metrics *telemetry.Metrics) *Service {
	return &Service{
		fallback: &fallbackModel{jitter: jitter},
		buffer:   NewBuffer(bufferCap),
		metrics:  metrics,
	}
}

// Initialize marks the fallback tier ready. The service refuses to serve
// (health stays negative) until this has run.
func (s *Service) Initialize() {
	s.initialized.Store(true)
	if s.metrics != nil {
		s.metrics.AIModelReady.WithLabelValues("fallback").Set(1)
		s.metrics.AIModelReady.WithLabelValues("learned").Set(0)
	}
	slog.Info("Prediction service has been initialized, fallback model is ready")
}

// Ready reports whether at least the fallback tier can serve.
func (s *Service) Ready() bool { return s.initialized.Load() }

// Predict serves one request from the learned tier when trained, otherwise
// from the fallback tier. The requested kinds narrow the response.
func (s *Service) Predict(req PredictRequest) (*domain.Predictions, error) {
	if !s.Ready() {
		return nil, errval.ErrInternal
	}
	start := time.Now()

	p := s.fallback.Predict(req)
	s.mu.RLock()
	learned := s.learned
	s.mu.RUnlock()
	if learned != nil {
		s.overlayLearned(p, learned, req.TaskType)
	}

	filterKinds(p, req.RequestedKinds)

	elapsed := time.Since(start)
	p.PredictionTimeMs = elapsed.Milliseconds()
	s.predictionsToday.Add(1)
	s.totalLatencyUs.Add(elapsed.Microseconds())
	if s.metrics != nil {
		backend := "fallback"
		if learned != nil {
			backend = "learned"
		}
		s.metrics.AIPredictions.WithLabelValues(backend, "predict", "ok").Inc()
		s.metrics.AIPredictionLatency.WithLabelValues(backend).Observe(elapsed.Seconds())
	}
	return p, nil
}

// overlayLearned replaces the statistical estimates with learned ones where
// the trained tier has seen the task type.
func (s *Service) overlayLearned(p *domain.Predictions, learned *learnedStats, taskType domain.TaskType) {
	stats, ok := learned.byType[taskType]
	if !ok || stats.count == 0 {
		return
	}
	p.PredictedDurationMs = stats.avgDurationMs
	p.DurationConfidence = 0.85
	p.SuccessProbability = stats.successRate
	p.ModelVersion = learned.version
	p.PriorityReason = priorityReasonForStats(stats.count)
}

// filterKinds blanks the axes the caller did not ask for. An empty kind set
// means everything.
func filterKinds(p *domain.Predictions, kinds []domain.PredictionKind) {
	if len(kinds) == 0 {
		return
	}
	requested := make(map[domain.PredictionKind]bool, len(kinds))
	for _, k := range kinds {
		requested[k] = true
	}
	if !requested[domain.KindDuration] {
		p.PredictedDurationMs = 0
		p.DurationConfidence = 0
	}
	if !requested[domain.KindPriority] {
		p.CalculatedPriority = 0
		p.PriorityScore = 0
		p.PriorityReason = ""
		p.PriorityFactors = nil
	}
	if !requested[domain.KindDestination] {
		p.RecommendedDestination = ""
		p.DestinationConfidence = 0
	}
	if !requested[domain.KindAnomaly] {
		p.IsAnomaly = false
		p.AnomalyScore = 0
		p.AnomalyTags = nil
	}
	if !requested[domain.KindSuccess] {
		p.SuccessProbability = 0
		p.RiskTags = nil
		p.RecommendedAction = ""
	}
	if !requested[domain.KindResource] {
		p.EstimatedCPUPercent = 0
		p.EstimatedMemoryMB = 0
		p.EstimatedNetworkKBps = 0
	}
}

// Record appends one training observation to the buffer.
func (s *Service) Record(obs domain.Observation) {
	s.buffer.Append(obs)
}

// Retrain rebuilds the learned tier from the buffer. It refuses when the
// buffer holds fewer than minRecords. The swap is the single writer for the
// learned statistics.
func (s *Service) Retrain(minRecords int) (int, error) {
	if minRecords < 1 {
		minRecords = 1
	}
	records := s.buffer.Snapshot()
	if len(records) < minRecords {
		return 0, fmt.Errorf("%w: have %d, need %d", errval.ErrBufferTooSmall, len(records), minRecords)
	}

	byType := make(map[domain.TaskType]typeStats)
	totals := make(map[domain.TaskType]struct {
		duration int64
		success  int
	})
	for _, obs := range records {
		agg := totals[obs.TaskType]
		agg.duration += obs.ActualDurationMs
		if obs.WasSuccessful {
			agg.success++
		}
		totals[obs.TaskType] = agg
		stats := byType[obs.TaskType]
		stats.count++
		byType[obs.TaskType] = stats
	}
	for taskType, stats := range byType {
		agg := totals[taskType]
		stats.avgDurationMs = agg.duration / int64(stats.count)
		stats.successRate = float64(agg.success) / float64(stats.count)
		byType[taskType] = stats
	}

	s.mu.Lock()
	s.trainVersion++
	s.learned = &learnedStats{
		version:     fmt.Sprintf("learned-v%d", s.trainVersion),
		trainedFrom: len(records),
		byType:      byType,
	}
	version := s.learned.version
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.AIModelReady.WithLabelValues("learned").Set(1)
	}
	slog.Info("Model has been retrained", "version", version, "records", len(records))
	return len(records), nil
}

// Statistics summarizes service activity for the operator endpoint.
type Statistics struct {
	ModelVersion        string  `json:"model_version"`
	PredictionsToday    int64   `json:"predictions_today"`
	AvgProcessingTimeMs float64 `json:"average_processing_time_ms"`
	TrainingBufferSize  int     `json:"training_buffer_size"`
}

func (s *Service) Statistics() Statistics {
	s.mu.RLock()
	version := FallbackModelVersion
	if s.learned != nil {
		version = s.learned.version
	}
	s.mu.RUnlock()

	count := s.predictionsToday.Load()
	avg := 0.0
	if count > 0 {
		avg = float64(s.totalLatencyUs.Load()) / float64(count) / 1000
	}
	return Statistics{
		ModelVersion:        version,
		PredictionsToday:    count,
		AvgProcessingTimeMs: avg,
		TrainingBufferSize:  s.buffer.Len(),
	}
}

// BufferLen exposes the training buffer size for health payloads and tests.
func (s *Service) BufferLen() int { return s.buffer.Len() }
