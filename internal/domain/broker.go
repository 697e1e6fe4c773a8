package domain

import (
	"context"
	"time"
)

// Message is a broker-agnostic outgoing message. The rabbitmq package maps
// it onto AMQP publishing properties.
type Message struct {
	Body        []byte
	ContentType string
	Priority    uint8
	Expiration  time.Duration
	Headers     map[string]any
	Persistent  bool
}

// Broker publishes messages and reports connection health.
type Broker interface {
	IsHealthy() bool
	Publish(ctx context.Context, exchange, routingKey string, msg Message) error
	Close() error
}

// Delivery is one received message. Ack and Nack are mutually exclusive and
// must be called exactly once per delivery.
type Delivery interface {
	Body() []byte
	Headers() map[string]any
	Ack() error
	Nack(requeue bool) error
}

// DeliverySource opens a consuming channel for one destination with the
// given prefetch. The returned channel closes when the context is done or
// the underlying channel fails.
type DeliverySource interface {
	Consume(ctx context.Context, dest Destination, consumerName string, prefetch int) (<-chan Delivery, error)
}
