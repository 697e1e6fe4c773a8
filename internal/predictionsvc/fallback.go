package predictionsvc

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/taskflow-ai/taskflow/internal/domain"
)

// FallbackModelVersion tags predictions produced by the statistical-plus-
// rules tier.
const FallbackModelVersion = "fallback-v1"

var baselineDurationMs = map[domain.TaskType]int64{
	domain.EmailNotification: 2000,
	domain.ReportGeneration:  30000,
	domain.DataProcessing:    60000,
	domain.ImageProcessing:   45000,
	domain.DataExport:        20000,
	domain.HealthCheck:       500,
}

var baselineInputBytes = map[domain.TaskType]int64{
	domain.EmailNotification: 4 * 1024,
	domain.ReportGeneration:  512 * 1024,
	domain.DataProcessing:    2 * 1024 * 1024,
	domain.ImageProcessing:   5 * 1024 * 1024,
	domain.DataExport:        1024 * 1024,
	domain.HealthCheck:       256,
}

var baselineResources = map[domain.TaskType][3]float64{
	// cpu %, memory MB, network KB/s
	domain.EmailNotification: {5, 64, 32},
	domain.ReportGeneration:  {40, 512, 128},
	domain.DataProcessing:    {70, 1024, 256},
	domain.ImageProcessing:   {85, 768, 512},
	domain.DataExport:        {30, 256, 384},
	domain.HealthCheck:       {1, 16, 8},
}

// fallbackModel is the explainable tier: fixed baselines adjusted by rules
// over the submitted features. Deterministic unless jitter is enabled.
type fallbackModel struct {
	jitter bool
}

func (m *fallbackModel) Version() string { return FallbackModelVersion }

func (m *fallbackModel) Predict(req PredictRequest) *domain.Predictions {
	f := req.Features
	if f == nil {
		f = &domain.Features{}
	}

	duration, durationConfidence := m.predictDuration(req.TaskID, req.TaskType, f)
	priority, score, reason, factors := m.predictPriority(req.ManualPriority, f)
	isAnomaly, anomalyScore, anomalyTags := m.detectAnomaly(req.TaskType, f)
	successProb, riskTags, action := m.predictSuccess(isAnomaly, f)

	p := &domain.Predictions{
		PredictedDurationMs:    duration,
		DurationConfidence:     durationConfidence,
		CalculatedPriority:     priority,
		PriorityScore:          score,
		PriorityReason:         reason,
		PriorityFactors:        factors,
		IsAnomaly:              isAnomaly,
		AnomalyScore:           anomalyScore,
		AnomalyTags:            anomalyTags,
		SuccessProbability:     successProb,
		RiskTags:               riskTags,
		RecommendedAction:      action,
		ModelVersion:           FallbackModelVersion,
		RecommendedDestination: string(recommendDestination(priority, isAnomaly, duration, f)),
		DestinationConfidence:  0.8,
	}

	if res, ok := baselineResources[req.TaskType]; ok {
		scale := float64(duration) / float64(baselineDurationMs[req.TaskType])
		p.EstimatedCPUPercent = res[0]
		p.EstimatedMemoryMB = res[1] * scale
		p.EstimatedNetworkKBps = res[2]
	}

	if duration > 60000 {
		p.OptimizationHints = append(p.OptimizationHints, "consider batch scheduling")
	}
	if f.IsPeakHour != nil && *f.IsPeakHour && priority <= 2 {
		p.OptimizationHints = append(p.OptimizationHints, "defer until off-peak")
	}
	return p
}

func (m *fallbackModel) predictDuration(taskID string, taskType domain.TaskType, f *domain.Features) (int64, float64) {
	base, ok := baselineDurationMs[taskType]
	if !ok {
		base = 10000
	}
	estimate := float64(base)
	confidence := 0.6

	if f.InputSizeBytes != nil {
		if baseline := baselineInputBytes[taskType]; baseline > 0 {
			ratio := float64(*f.InputSizeBytes) / float64(baseline)
			if ratio > 0 {
				estimate *= 0.5 + 0.5*ratio
			}
			confidence += 0.15
		}
	}
	if f.InputComplexity != nil {
		estimate *= 1 + *f.InputComplexity
		confidence += 0.05
	}
	if f.IsPeakHour != nil && *f.IsPeakHour {
		estimate *= 1.2
	}
	if f.QueueDepth != nil && *f.QueueDepth > 100 {
		estimate *= 1.1
	}

	if m.jitter {
		// bounded ±10% noise derived from the task id so repeated calls for
		// the same task still agree
		h := fnv.New32a()
		_, _ = h.Write([]byte(taskID))
		estimate *= 0.9 + 0.2*float64(h.Sum32()%1000)/1000
	}

	if confidence > 0.95 {
		confidence = 0.95
	}
	return int64(estimate), confidence
}

func (m *fallbackModel) predictPriority(manual int, f *domain.Features) (int, float64, string, map[string]float64) {
	priority := float64(manual)
	factors := map[string]float64{"manual_priority": float64(manual)}
	reason := "baseline from manual priority"

	switch f.BusinessPriority {
	case domain.BusinessCritical:
		priority += 4
		factors["business_priority"] = 4
		reason = "business-critical workload"
	case domain.BusinessHigh:
		priority += 2
		factors["business_priority"] = 2
		reason = "high business priority"
	case domain.BusinessLow:
		priority -= 1
		factors["business_priority"] = -1
	}

	if f.Deadline != nil {
		until := time.Until(*f.Deadline)
		switch {
		case until <= time.Hour:
			priority += 3
			factors["deadline_proximity"] = 3
			reason = reason + " with imminent deadline"
		case until <= 24*time.Hour:
			priority += 1
			factors["deadline_proximity"] = 1
		}
	}

	if f.UserTier == domain.TierEnterprise {
		priority += 1
		factors["user_tier"] = 1
	}

	if priority < 0 {
		priority = 0
	}
	if priority > 10 {
		priority = 10
	}
	return int(priority), priority / 10, reason, factors
}

func (m *fallbackModel) detectAnomaly(taskType domain.TaskType, f *domain.Features) (bool, float64, []string) {
	score := 0.0
	var tags []string

	if f.InputSizeBytes != nil {
		if baseline := baselineInputBytes[taskType]; baseline > 0 && *f.InputSizeBytes > 4*baseline {
			score += 0.5
			tags = append(tags, "oversized_input")
		}
	}
	if f.DataQualityScore != nil && *f.DataQualityScore < 0.5 {
		score += 0.4
		tags = append(tags, "low_data_quality")
	}
	if f.RecentTaskCount != nil && *f.RecentTaskCount > 100 {
		score += 0.3
		tags = append(tags, "submission_burst")
	}

	if score > 1 {
		score = 1
	}
	return score >= 0.5, score, tags
}

func (m *fallbackModel) predictSuccess(isAnomaly bool, f *domain.Features) (float64, []string, string) {
	prob := 0.95
	var risks []string

	if isAnomaly {
		prob -= 0.25
		risks = append(risks, "anomalous_input")
	}
	if f.DependsOnExternalAPI != nil && *f.DependsOnExternalAPI {
		prob -= 0.05
		risks = append(risks, "external_api_dependency")
	}
	if f.DependsOnDatabase != nil && *f.DependsOnDatabase {
		prob -= 0.03
		risks = append(risks, "database_dependency")
	}
	if f.DependsOnFile != nil && *f.DependsOnFile {
		prob -= 0.02
		risks = append(risks, "file_dependency")
	}

	action := "process normally"
	if prob < 0.7 {
		action = "route to anomaly queue for inspection"
	} else if len(risks) > 1 {
		action = "monitor closely"
	}
	return prob, risks, action
}

// recommendDestination mirrors the routing engine's fallback ladder so the
// service and the routing engine agree on destinations.
func recommendDestination(priority int, isAnomaly bool, durationMs int64, f *domain.Features) domain.Destination {
	if isAnomaly {
		return domain.DestinationAnomaly
	}
	scheduledOK := f.IsScheduled == nil || *f.IsScheduled
	if priority <= 2 && durationMs > 30000 && scheduledOK {
		return domain.DestinationBatch
	}
	switch {
	case priority >= 8:
		return domain.DestinationCritical
	case priority >= 5:
		return domain.DestinationHigh
	case priority >= 2:
		return domain.DestinationNormal
	default:
		return domain.DestinationLow
	}
}

func priorityReasonForStats(count int) string {
	return fmt.Sprintf("learned from %d observations", count)
}
