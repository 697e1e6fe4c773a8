package rabbitmq

import (
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/taskflow-ai/taskflow/internal/domain"
)

// topologyChannel is the slice of the AMQP channel the declaration needs;
// tests substitute a recording fake.
type topologyChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// DeclareTopology declares the exchanges, queues and bindings the system
// runs on. Declarations are idempotent against the broker: running this N
// times leaves the same state as running it once, so both the producer and
// every worker call it at startup.
func (c *Client) DeclareTopology() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer func() {
		if err := ch.Close(); err != nil {
			slog.Error("error occurred while closing topology channel", "error", err.Error())
		}
	}()

	if err := declareTopology(ch); err != nil {
		return err
	}
	slog.Info("Broker topology has been declared successfully")
	return nil
}

func declareTopology(ch topologyChannel) error {
	exchanges := []struct {
		name string
		kind string
	}{
		{domain.PriorityExchange, "topic"},
		{domain.AnomalyExchange, "direct"},
		{domain.DLQExchange, "direct"},
	}
	for _, ex := range exchanges {
		if err := ch.ExchangeDeclare(
			ex.name,
			ex.kind,
			true,  // durable
			false, // auto-delete
			false, // internal
			false, // no-wait
			nil,
		); err != nil {
			return err
		}
	}

	for _, dest := range domain.AllDestinations() {
		policy := dest.Policy()
		args := amqp.Table{
			"x-max-priority":            int32(policy.WirePriority),
			"x-message-ttl":             int32(policy.TTL.Milliseconds()),
			"x-max-length":              int32(policy.MaxDepth),
			"x-overflow":                "reject-publish",
			"x-dead-letter-exchange":    domain.DLQExchange,
			"x-dead-letter-routing-key": domain.DLQRoutingKey,
		}
		if _, err := ch.QueueDeclare(
			policy.Queue,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			args,
		); err != nil {
			return err
		}
		if err := ch.QueueBind(policy.Queue, policy.RoutingKey, policy.Exchange, false, nil); err != nil {
			return err
		}
	}

	if _, err := ch.QueueDeclare(domain.DLQQueue, true, false, false, false, nil); err != nil {
		return err
	}
	return ch.QueueBind(domain.DLQQueue, domain.DLQRoutingKey, domain.DLQExchange, false, nil)
}
