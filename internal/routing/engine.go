package routing

import (
	"fmt"
	"math"
	"time"

	"github.com/taskflow-ai/taskflow/internal/domain"
)

// Decision is the routing verdict for one task: where it goes and with which
// broker-level properties.
type Decision struct {
	Destination domain.Destination
	Exchange    string
	RoutingKey  string
	Priority    uint8
	TTL         time.Duration
	Reason      string
}

// BatchDurationThreshold is the predicted duration above which a low-priority
// task qualifies for the batch queue.
const BatchDurationThreshold = 30 * time.Second

// Decide maps (task, predictions) to a Decision. Predictions may be nil, in
// which case routing falls back to the manual-priority table. The function
// performs no I/O and touches no shared state.
func Decide(task *domain.Task, predictions *domain.Predictions) Decision {
	if predictions == nil {
		dest := fallbackDestination(task.EffectivePriority(), false, false)
		return decisionFor(dest, dest.Policy().WirePriority, "fallback: predictions unavailable")
	}

	recommended := domain.Destination(predictions.RecommendedDestination)
	if !recommended.Valid() {
		if predictions.RecommendedDestination == "" {
			// The model answered but skipped the destination axis; route by
			// the same table the fallback path uses, with the model's flags.
			dest := fallbackDestination(
				blendedPriority(task, predictions),
				predictions.IsAnomaly,
				batchSuitable(task, predictions),
			)
			return decisionFor(dest, wirePriority(predictions, dest),
				fmt.Sprintf("ai-optimized: %s", reasonOf(predictions)))
		}
		dest := domain.DestinationNormal
		return decisionFor(dest, wirePriority(predictions, dest),
			fmt.Sprintf("ai-optimized: %s (unknown destination %q, validated to normal)",
				reasonOf(predictions), predictions.RecommendedDestination))
	}

	return decisionFor(recommended, wirePriority(predictions, recommended),
		fmt.Sprintf("ai-optimized: %s", reasonOf(predictions)))
}

// fallbackDestination picks a destination from manual priority and flags.
// The anomaly flag wins, then batch suitability, then the priority ladder.
func fallbackDestination(priority int, isAnomaly, batchSuitable bool) domain.Destination {
	switch {
	case isAnomaly:
		return domain.DestinationAnomaly
	case batchSuitable:
		return domain.DestinationBatch
	case priority >= 8:
		return domain.DestinationCritical
	case priority >= 5:
		return domain.DestinationHigh
	case priority >= 2:
		return domain.DestinationNormal
	case priority >= 0:
		return domain.DestinationLow
	default:
		return domain.DestinationBatch
	}
}

// batchSuitable reports whether the task may be demoted to the batch queue.
// All three conditions must hold: low effective priority, a long predicted
// run, and the submitter not having marked it explicitly unscheduled.
func batchSuitable(task *domain.Task, predictions *domain.Predictions) bool {
	if blendedPriority(task, predictions) > 2 {
		return false
	}
	if predictions == nil || predictions.PredictedDurationMs <= BatchDurationThreshold.Milliseconds() {
		return false
	}
	if task.Features != nil && task.Features.IsScheduled != nil && !*task.Features.IsScheduled {
		return false
	}
	return true
}

// wirePriority scales the 0-10 calculated priority onto the 0-255 wire range
// and caps it at the destination's maximum so the broker never sees a value
// above the queue's x-max-priority.
func wirePriority(predictions *domain.Predictions, dest domain.Destination) uint8 {
	scaled := int(math.Round(float64(predictions.CalculatedPriority) * 25.5))
	if scaled < 0 {
		scaled = 0
	}
	if scaled > 255 {
		scaled = 255
	}
	if limit := int(dest.Policy().WirePriority); scaled > limit {
		scaled = limit
	}
	return uint8(scaled)
}

// blendedPriority computes the effective priority against the engine's own
// predictions argument without mutating the task.
func blendedPriority(task *domain.Task, predictions *domain.Predictions) int {
	copied := *task
	copied.Predictions = predictions
	return copied.EffectivePriority()
}

func reasonOf(predictions *domain.Predictions) string {
	if predictions.PriorityReason != "" {
		return predictions.PriorityReason
	}
	return "model recommendation"
}

func decisionFor(dest domain.Destination, priority uint8, reason string) Decision {
	policy := dest.Policy()
	return Decision{
		Destination: dest,
		Exchange:    policy.Exchange,
		RoutingKey:  policy.RoutingKey,
		Priority:    priority,
		TTL:         policy.TTL,
		Reason:      reason,
	}
}
