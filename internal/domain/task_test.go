package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTask_JSONRoundTrip(t *testing.T) {
	deadline := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	started := time.Date(2025, time.June, 1, 11, 0, 1, 0, time.UTC)
	task := Task{
		ID:             "rt-1",
		Type:           ReportGeneration,
		Title:          "monthly numbers",
		Description:    "finance report",
		CreatedAt:      time.Date(2025, time.June, 1, 11, 0, 0, 0, time.UTC),
		StartedAt:      &started,
		DurationMs:     4200,
		ManualPriority: 6,
		RoutingKey:     "priority.high",
		RetryCount:     1,
		MaxRetries:     3,
		LastError:      "transient failure",
		ErrorHistory:   []string{"transient failure"},
		TraceID:        "0af7651916cd43dd8448eb211c80319c",
		SpanID:         "b7ad6b7169203331",
		Parameters:     map[string]any{"report_type": "monthly"},
		Features: &Features{
			InputSizeBytes:   Int64Ptr(2048),
			UserTier:         TierPremium,
			BusinessPriority: BusinessHigh,
			Deadline:         &deadline,
			IsScheduled:      BoolPtr(true),
		},
		Predictions: &Predictions{
			PredictedDurationMs:    5000,
			DurationConfidence:     0.8,
			CalculatedPriority:     7,
			PriorityScore:          0.7,
			PriorityReason:         "high business priority",
			PriorityFactors:        map[string]float64{"business_priority": 2},
			RecommendedDestination: "high",
			SuccessProbability:     0.92,
			ModelVersion:           "fallback-v1",
		},
		AIProcessed: true,
	}

	encoded, err := json.Marshal(task)
	require.NoError(t, err)

	var decoded Task
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, task, decoded)
}

func TestTask_UnknownFieldsTolerated(t *testing.T) {
	payload := `{"id":"x-1","type":"EmailNotification","manual_priority":2,"created_at":"2025-06-01T11:00:00Z","future_field":"ignored"}`
	var task Task
	require.NoError(t, json.Unmarshal([]byte(payload), &task))
	assert.Equal(t, "x-1", task.ID)
	assert.Equal(t, EmailNotification, task.Type)
}

func TestRecordError_BoundsHistory(t *testing.T) {
	task := Task{}
	at := time.Now().UTC()
	for i := 0; i < MaxErrorHistory+5; i++ {
		task.RecordError("boom", at)
	}
	assert.Len(t, task.ErrorHistory, MaxErrorHistory)
	assert.Equal(t, "boom", task.LastError)
	assert.Equal(t, &at, task.LastRetryAt)
}

func TestDestinationCatalog(t *testing.T) {
	assert.Len(t, AllDestinations(), 6)
	for _, dest := range AllDestinations() {
		policy := dest.Policy()
		assert.True(t, dest.Valid())
		assert.NotEmpty(t, policy.Queue)
		assert.NotEmpty(t, policy.RoutingKey)
		assert.Greater(t, policy.MaxDepth, 0)
		assert.Greater(t, policy.TTL, time.Duration(0))
	}
	assert.False(t, Destination("turbo").Valid())
	assert.Equal(t, AnomalyExchange, DestinationAnomaly.Policy().Exchange)
	assert.Equal(t, PriorityExchange, DestinationBatch.Policy().Exchange)
}

func TestFeatures_PopulatedFieldEnumeration(t *testing.T) {
	var empty *Features
	assert.Zero(t, empty.PopulatedFieldCount())

	f := &Features{
		UserID:         "u-1",
		UserTier:       TierFree,
		InputSizeBytes: Int64Ptr(10),
		IsWeekend:      BoolPtr(false),
	}
	assert.Equal(t, 4, f.PopulatedFieldCount())
	assert.ElementsMatch(t, []string{"user_id", "user_tier", "input_size_bytes", "is_weekend"}, f.PopulatedFieldNames())
}

func TestEffectivePriority_Bounds(t *testing.T) {
	task := Task{ManualPriority: 10, Predictions: &Predictions{CalculatedPriority: 10}}
	assert.Equal(t, 10, task.EffectivePriority())

	task = Task{ManualPriority: 0, Predictions: &Predictions{CalculatedPriority: 0}}
	assert.Equal(t, 0, task.EffectivePriority())

	task = Task{ManualPriority: 12}
	assert.Equal(t, 10, task.EffectivePriority(), "manual priority clamps into range")
}
