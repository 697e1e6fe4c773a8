package domain

// PredictionKind selects which axes the prediction service should compute.
type PredictionKind string

const (
	KindDuration    PredictionKind = "duration"
	KindPriority    PredictionKind = "priority"
	KindDestination PredictionKind = "destination"
	KindAnomaly     PredictionKind = "anomaly"
	KindSuccess     PredictionKind = "success"
	KindResource    PredictionKind = "resource"
)

// AllPredictionKinds returns the full six-valued kind set.
func AllPredictionKinds() []PredictionKind {
	return []PredictionKind{
		KindDuration,
		KindPriority,
		KindDestination,
		KindAnomaly,
		KindSuccess,
		KindResource,
	}
}

// Predictions is the model output attached to a task at publish time. The
// task owns this value; the model refers back to the task by id only.
type Predictions struct {
	PredictedDurationMs int64   `json:"predicted_duration_ms"`
	DurationConfidence  float64 `json:"duration_confidence"`

	CalculatedPriority int                `json:"calculated_priority"`
	PriorityScore      float64            `json:"priority_score"`
	PriorityReason     string             `json:"priority_reason,omitempty"`
	PriorityFactors    map[string]float64 `json:"priority_factors,omitempty"`

	RecommendedDestination string  `json:"recommended_destination,omitempty"`
	DestinationConfidence  float64 `json:"destination_confidence,omitempty"`

	IsAnomaly    bool     `json:"is_anomaly"`
	AnomalyScore float64  `json:"anomaly_score"`
	AnomalyTags  []string `json:"anomaly_tags,omitempty"`

	SuccessProbability float64  `json:"success_probability"`
	RiskTags           []string `json:"risk_tags,omitempty"`
	RecommendedAction  string   `json:"recommended_action,omitempty"`

	EstimatedCPUPercent  float64 `json:"estimated_cpu_percent,omitempty"`
	EstimatedMemoryMB    float64 `json:"estimated_memory_mb,omitempty"`
	EstimatedNetworkKBps float64 `json:"estimated_network_kbps,omitempty"`

	OptimizationHints []string `json:"optimization_hints,omitempty"`
	ModelVersion      string   `json:"model_version,omitempty"`
	PredictionTimeMs  int64    `json:"prediction_time_ms,omitempty"`
}
