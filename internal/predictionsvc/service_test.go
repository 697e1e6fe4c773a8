package predictionsvc

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-ai/taskflow/internal/domain"
	"github.com/taskflow-ai/taskflow/internal/errval"
	"github.com/taskflow-ai/taskflow/internal/telemetry"
)

func readyService() *Service {
	s := NewService(100, false, telemetry.NewMetrics())
	s.Initialize()
	return s
}

func TestPredict_RefusesBeforeInitialize(t *testing.T) {
	s := NewService(100, false, telemetry.NewMetrics())
	_, err := s.Predict(PredictRequest{TaskID: "x", TaskType: domain.EmailNotification})
	assert.Error(t, err)
}

func TestPredict_FallbackDeterministic(t *testing.T) {
	s := readyService()
	req := PredictRequest{
		TaskID:         "det-1",
		TaskType:       domain.ReportGeneration,
		ManualPriority: 3,
		Features: &domain.Features{
			UserTier:         domain.TierEnterprise,
			BusinessPriority: domain.BusinessCritical,
		},
	}

	first, err := s.Predict(req)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := s.Predict(req)
		require.NoError(t, err)
		assert.Equal(t, first.PredictedDurationMs, again.PredictedDurationMs)
		assert.Equal(t, first.CalculatedPriority, again.CalculatedPriority)
		assert.Equal(t, first.RecommendedDestination, again.RecommendedDestination)
	}
}

func TestPredict_EnterpriseCriticalDeadline(t *testing.T) {
	s := readyService()
	deadline := time.Now().Add(20 * time.Minute)
	p, err := s.Predict(PredictRequest{
		TaskID:         "s1",
		TaskType:       domain.ReportGeneration,
		ManualPriority: 3,
		Features: &domain.Features{
			UserTier:         domain.TierEnterprise,
			BusinessPriority: domain.BusinessCritical,
			Deadline:         &deadline,
		},
	})
	require.NoError(t, err)

	// 3 manual + 4 critical + 3 imminent deadline + 1 enterprise, clamped
	assert.Equal(t, 10, p.CalculatedPriority)
	assert.Equal(t, string(domain.DestinationCritical), p.RecommendedDestination)
	assert.False(t, p.IsAnomaly)
	assert.Equal(t, FallbackModelVersion, p.ModelVersion)
	assert.NotEmpty(t, p.PriorityReason)
	assert.Contains(t, p.PriorityFactors, "business_priority")
}

func TestPredict_EmptyFeatures(t *testing.T) {
	s := readyService()
	p, err := s.Predict(PredictRequest{TaskID: "empty", TaskType: domain.EmailNotification})
	require.NoError(t, err)
	assert.Greater(t, p.PredictedDurationMs, int64(0))
	assert.GreaterOrEqual(t, p.CalculatedPriority, 0)
}

func TestPredict_AnomalyDetection(t *testing.T) {
	s := readyService()
	p, err := s.Predict(PredictRequest{
		TaskID:   "big",
		TaskType: domain.EmailNotification,
		Features: &domain.Features{
			InputSizeBytes:   domain.Int64Ptr(100 * 1024 * 1024),
			DataQualityScore: domain.Float64Ptr(0.2),
		},
	})
	require.NoError(t, err)
	assert.True(t, p.IsAnomaly)
	assert.Contains(t, p.AnomalyTags, "oversized_input")
	assert.Contains(t, p.AnomalyTags, "low_data_quality")
	assert.Equal(t, string(domain.DestinationAnomaly), p.RecommendedDestination)
	assert.Less(t, p.SuccessProbability, 0.95)
}

func TestPredict_RequestedKindsFilter(t *testing.T) {
	s := readyService()
	p, err := s.Predict(PredictRequest{
		TaskID:         "kinds",
		TaskType:       domain.DataProcessing,
		ManualPriority: 6,
		RequestedKinds: []domain.PredictionKind{domain.KindPriority},
	})
	require.NoError(t, err)
	assert.NotZero(t, p.CalculatedPriority)
	assert.Zero(t, p.PredictedDurationMs)
	assert.Empty(t, p.RecommendedDestination)
	assert.Zero(t, p.SuccessProbability)
	assert.Zero(t, p.EstimatedCPUPercent)
}

func TestRetrain_RequiresMinimumRecords(t *testing.T) {
	s := readyService()
	_, err := s.Retrain(5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errval.ErrBufferTooSmall))
}

func TestRetrain_LearnedTierOverlays(t *testing.T) {
	s := readyService()
	for i := 0; i < 10; i++ {
		s.Record(domain.Observation{
			TaskID:           "obs",
			TaskType:         domain.EmailNotification,
			ActualDurationMs: 1800,
			WasSuccessful:    true,
			QueueName:        "normal-priority-queue",
		})
	}

	trained, err := s.Retrain(1)
	require.NoError(t, err)
	assert.Equal(t, 10, trained)

	p, err := s.Predict(PredictRequest{TaskID: "after", TaskType: domain.EmailNotification})
	require.NoError(t, err)
	assert.Equal(t, int64(1800), p.PredictedDurationMs)
	assert.Equal(t, 1.0, p.SuccessProbability)
	assert.Equal(t, "learned-v1", p.ModelVersion)
}

func TestBuffer_Bounded(t *testing.T) {
	b := NewBuffer(3)
	for i := 0; i < 5; i++ {
		b.Append(domain.Observation{TaskID: string(rune('a' + i))})
	}
	assert.Equal(t, 3, b.Len())
	snapshot := b.Snapshot()
	assert.Equal(t, "c", snapshot[0].TaskID)
	assert.Equal(t, "e", snapshot[2].TaskID)
}

func TestStatistics(t *testing.T) {
	s := readyService()
	stats := s.Statistics()
	assert.Equal(t, FallbackModelVersion, stats.ModelVersion)
	assert.Zero(t, stats.PredictionsToday)

	_, err := s.Predict(PredictRequest{TaskID: "one", TaskType: domain.HealthCheck})
	require.NoError(t, err)
	stats = s.Statistics()
	assert.Equal(t, int64(1), stats.PredictionsToday)
}

func TestJitter_BoundedAndStablePerTask(t *testing.T) {
	jittery := &fallbackModel{jitter: true}
	plain := &fallbackModel{jitter: false}

	req := PredictRequest{TaskID: "jit-1", TaskType: domain.ReportGeneration}
	base := plain.Predict(req).PredictedDurationMs
	first := jittery.Predict(req).PredictedDurationMs
	second := jittery.Predict(req).PredictedDurationMs

	assert.Equal(t, first, second, "jitter is stable for one task id")
	assert.InDelta(t, float64(base), float64(first), 0.11*float64(base))
}
