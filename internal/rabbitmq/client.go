package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/taskflow-ai/taskflow/internal/domain"
	"github.com/taskflow-ai/taskflow/internal/errval"
)

// Client holds the process-wide broker connection. Publishing uses one
// confirmed channel guarded by a mutex; each consumer opens its own channel
// so prefetch settings never interfere.
type Client struct {
	conn *amqp.Connection

	pubMu      sync.Mutex
	pubChannel *amqp.Channel
}

// NewClient dials the broker, retrying with constant backoff the way the
// rest of our infrastructure connections do, then declares the topology.
func NewClient(ctx context.Context, amqpURL string) (*Client, error) {
	var conn *amqp.Connection

	err := backoff.Retry(func() error {
		var dialErr error
		if conn, dialErr = amqp.Dial(amqpURL); dialErr != nil {
			slog.ErrorContext(ctx, "failed to connect to RabbitMQ.. retrying...", "error", dialErr)
			return dialErr
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(3*time.Second), 5), ctx))
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		closeQuietly(conn)
		return nil, err
	}

	// Publisher confirms turn broker-side rejections (queue overflow under
	// x-overflow=reject-publish) into observable nacks.
	if err := ch.Confirm(false); err != nil {
		closeQuietly(conn)
		return nil, err
	}

	client := &Client{conn: conn, pubChannel: ch}
	if err := client.DeclareTopology(); err != nil {
		slog.Error("Error while declaring broker topology", "error", err.Error())
		closeQuietly(conn)
		return nil, err
	}

	return client, nil
}

// Publish sends one message and waits for the broker's confirmation.
func (c *Client) Publish(ctx context.Context, exchange, routingKey string, msg domain.Message) error {
	publishing := amqp.Publishing{
		ContentType:  msg.ContentType,
		Body:         msg.Body,
		Priority:     msg.Priority,
		Headers:      amqp.Table(msg.Headers),
		DeliveryMode: amqp.Transient,
	}
	if msg.Persistent {
		publishing.DeliveryMode = amqp.Persistent
	}
	if msg.Expiration > 0 {
		publishing.Expiration = fmt.Sprintf("%d", msg.Expiration.Milliseconds())
	}

	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	confirmation, err := c.pubChannel.PublishWithDeferredConfirmWithContext(
		ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		publishing,
	)
	if err != nil {
		if isOverflow(err) {
			return fmt.Errorf("%w: %s", errval.ErrPublishOverflow, err.Error())
		}
		return fmt.Errorf("%w: %s", errval.ErrPublishFailed, err.Error())
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s", errval.ErrPublishFailed, err.Error())
	}
	if !acked {
		// A basic.nack under reject-publish means the destination is full.
		return errval.ErrPublishOverflow
	}
	return nil
}

// Consume opens a dedicated channel for one destination with the given
// prefetch and adapts deliveries onto the domain interface. The returned
// channel closes when ctx is done or the AMQP channel dies.
func (c *Client) Consume(ctx context.Context, dest domain.Destination, consumerName string, prefetch int) (<-chan domain.Delivery, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}

	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, err
	}

	queue := dest.Policy().Queue
	msgs, err := ch.ConsumeWithContext(
		ctx,
		queue,
		consumerName,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}

	out := make(chan domain.Delivery)
	go func() {
		defer close(out)
		defer func() {
			if err := ch.Close(); err != nil {
				slog.Error("Error occurred while closing consumer channel", "queue", queue, "error", err.Error())
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- &amqpDelivery{d: d}:
				case <-ctx.Done():
					// Never acked; the broker redelivers after the channel closes.
					return
				}
			}
		}
	}()

	return out, nil
}

type amqpDelivery struct {
	d amqp.Delivery
}

func (a *amqpDelivery) Body() []byte { return a.d.Body }

func (a *amqpDelivery) Headers() map[string]any { return map[string]any(a.d.Headers) }

func (a *amqpDelivery) Ack() error { return a.d.Ack(false) }

func (a *amqpDelivery) Nack(requeue bool) error { return a.d.Nack(false, requeue) }

func (c *Client) IsHealthy() bool {
	if c.conn.IsClosed() {
		slog.Error("RabbitMQ connection is closed, Rabbit is not healthy")
		return false
	}

	ch, err := c.conn.Channel()
	if err != nil {
		slog.Error("Failed to open RabbitMQ channel, Rabbit is not healthy", "error", err)
		return false
	}
	defer func() {
		if err := ch.Close(); err != nil {
			slog.Error("Error occurred while closing rabbit channel created for health check", "error", err.Error())
		}
	}()

	return true
}

func (c *Client) Close() error {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	if err := c.pubChannel.Close(); err != nil && !c.conn.IsClosed() {
		_ = c.conn.Close()
		return err
	}
	return c.conn.Close()
}

func isOverflow(err error) bool {
	amqpErr, ok := err.(*amqp.Error)
	if ok && amqpErr.Code == amqp.ResourceLocked {
		return true
	}
	return ok && strings.Contains(strings.ToLower(amqpErr.Reason), "overflow")
}

func closeQuietly(conn *amqp.Connection) {
	if err := conn.Close(); err != nil {
		slog.Error("error occurred while closing connection", "error", err.Error())
	}
}
