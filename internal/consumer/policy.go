package consumer

import (
	"time"

	"github.com/taskflow-ai/taskflow/configs"
	"github.com/taskflow-ai/taskflow/internal/domain"
)

// Policy is the consumption discipline for one destination.
type Policy struct {
	Concurrency int
	Prefetch    int
	MaxRetries  int
	RetryDelay  time.Duration
}

// DefaultPolicies returns the built-in per-destination policy table.
func DefaultPolicies() map[domain.Destination]Policy {
	return map[domain.Destination]Policy{
		domain.DestinationCritical: {Concurrency: 5, Prefetch: 1, MaxRetries: 2, RetryDelay: time.Second},
		domain.DestinationHigh:     {Concurrency: 3, Prefetch: 2, MaxRetries: 3, RetryDelay: 2 * time.Second},
		domain.DestinationNormal:   {Concurrency: 2, Prefetch: 5, MaxRetries: 3, RetryDelay: 5 * time.Second},
		domain.DestinationLow:      {Concurrency: 1, Prefetch: 10, MaxRetries: 3, RetryDelay: 5 * time.Second},
		domain.DestinationBatch:    {Concurrency: 1, Prefetch: 20, MaxRetries: 5, RetryDelay: 10 * time.Second},
		domain.DestinationAnomaly:  {Concurrency: 2, Prefetch: 1, MaxRetries: 1, RetryDelay: 5 * time.Second},
	}
}

// PoliciesFromConfig overlays environment overrides onto the default table.
// A zero override field keeps the default.
func PoliciesFromConfig(cfg configs.ConsumerConfig) map[domain.Destination]Policy {
	policies := DefaultPolicies()
	for dest, policy := range policies {
		override := cfg.Override(string(dest))
		if override.Concurrency > 0 {
			policy.Concurrency = override.Concurrency
		}
		if override.Prefetch > 0 {
			policy.Prefetch = override.Prefetch
		}
		if override.MaxRetries > 0 {
			policy.MaxRetries = override.MaxRetries
		}
		if override.RetryDelaySeconds > 0 {
			policy.RetryDelay = time.Duration(override.RetryDelaySeconds) * time.Second
		}
		policies[dest] = policy
	}
	return policies
}
