package domain

import "time"

// Destination is a named broker queue with fixed routing and policy.
type Destination string

const (
	DestinationCritical Destination = "critical"
	DestinationHigh     Destination = "high"
	DestinationNormal   Destination = "normal"
	DestinationLow      Destination = "low"
	DestinationBatch    Destination = "batch"
	DestinationAnomaly  Destination = "anomaly"
)

const (
	PriorityExchange = "priority-exchange"
	AnomalyExchange  = "anomaly-exchange"
	DLQExchange      = "dlq-exchange"

	DLQQueue      = "dlq-queue"
	DLQRoutingKey = "failed"
)

// DestinationPolicy holds the fixed broker-side properties of a destination.
type DestinationPolicy struct {
	Queue        string
	Exchange     string
	RoutingKey   string
	WirePriority uint8
	TTL          time.Duration
	MaxDepth     int
}

var destinationCatalog = map[Destination]DestinationPolicy{
	DestinationCritical: {
		Queue:        "critical-priority-queue",
		Exchange:     PriorityExchange,
		RoutingKey:   "priority.critical",
		WirePriority: 255,
		TTL:          60 * time.Second,
		MaxDepth:     1000,
	},
	DestinationHigh: {
		Queue:        "high-priority-queue",
		Exchange:     PriorityExchange,
		RoutingKey:   "priority.high",
		WirePriority: 200,
		TTL:          5 * time.Minute,
		MaxDepth:     5000,
	},
	DestinationNormal: {
		Queue:        "normal-priority-queue",
		Exchange:     PriorityExchange,
		RoutingKey:   "priority.normal",
		WirePriority: 100,
		TTL:          10 * time.Minute,
		MaxDepth:     10000,
	},
	DestinationLow: {
		Queue:        "low-priority-queue",
		Exchange:     PriorityExchange,
		RoutingKey:   "priority.low",
		WirePriority: 50,
		TTL:          30 * time.Minute,
		MaxDepth:     20000,
	},
	DestinationBatch: {
		Queue:        "batch-queue",
		Exchange:     PriorityExchange,
		RoutingKey:   "priority.batch",
		WirePriority: 10,
		TTL:          time.Hour,
		MaxDepth:     50000,
	},
	DestinationAnomaly: {
		Queue:        "anomaly-queue",
		Exchange:     AnomalyExchange,
		RoutingKey:   "anomaly.detected",
		WirePriority: 150,
		TTL:          5 * time.Minute,
		MaxDepth:     2000,
	},
}

// AllDestinations lists the catalog in descending urgency order.
func AllDestinations() []Destination {
	return []Destination{
		DestinationCritical,
		DestinationHigh,
		DestinationNormal,
		DestinationLow,
		DestinationBatch,
		DestinationAnomaly,
	}
}

func (d Destination) Valid() bool {
	_, ok := destinationCatalog[d]
	return ok
}

// Policy returns the fixed properties of the destination. It must only be
// called on catalog members; Valid gates unknown values.
func (d Destination) Policy() DestinationPolicy {
	return destinationCatalog[d]
}
