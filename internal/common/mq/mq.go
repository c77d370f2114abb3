package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange topology for the tracking plane: order status changes fan out per
// order id on a topic exchange, drone telemetry goes to a fanout shared by
// every observer.
const (
	OrderStatusExchange = "order_status_topic"
	TelemetryExchange   = "delivery_telemetry"
)

var ErrClosed = errors.New("mq client closed")

// Client wraps one connection and channel and redials transparently when the
// broker drops them. Exclusive queues die with the connection, so consumers
// re-bind through the usual Bind* calls after a drop.
type Client struct {
	url string

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

func Dial(host string, port int, user, pass string) (*Client, error) {
	c := &Client{url: fmt.Sprintf("amqp://%s:%s@%s:%d/", user, pass, host, port)}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connectLocked() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	c.conn, c.ch = conn, ch
	return nil
}

// channel returns a live channel, redialing and redeclaring the exchanges if
// the previous one died.
func (c *Client) channel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.conn.IsClosed() || c.ch.IsClosed() {
		if err := c.connectLocked(); err != nil {
			return nil, err
		}
		if err := declareTopology(c.ch); err != nil {
			return nil, err
		}
	}
	return c.ch, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *Client) DeclareTopology() error {
	ch, err := c.channel()
	if err != nil {
		return err
	}
	return declareTopology(ch)
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(OrderStatusExchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	return ch.ExchangeDeclare(TelemetryExchange, "fanout", true, false, false, false, nil)
}

// BindOrderQueue declares an exclusive auto-deleted queue receiving status
// pushes for a single order id.
func (c *Client) BindOrderQueue(orderID string) (string, error) {
	ch, err := c.channel()
	if err != nil {
		return "", err
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return "", err
	}
	if err := ch.QueueBind(q.Name, orderID, OrderStatusExchange, false, nil); err != nil {
		return "", err
	}
	return q.Name, nil
}

// BindTelemetryQueue declares an exclusive auto-deleted queue on the
// telemetry fanout.
func (c *Client) BindTelemetryQueue() (string, error) {
	ch, err := c.channel()
	if err != nil {
		return "", err
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return "", err
	}
	if err := ch.QueueBind(q.Name, "", TelemetryExchange, false, nil); err != nil {
		return "", err
	}
	return q.Name, nil
}

func (c *Client) Publish(ctx context.Context, exchange, key string, body []byte) error {
	ch, err := c.channel()
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now().UTC(),
		ContentType:  "application/json",
		Body:         body,
	})
}

func (c *Client) Consume(queue, consumer string) (<-chan amqp.Delivery, error) {
	ch, err := c.channel()
	if err != nil {
		return nil, err
	}
	return ch.Consume(queue, consumer, true, false, false, false, nil)
}

// CancelConsumer stops delivery to the named consumer; the exclusive queue is
// dropped with the channel.
func (c *Client) CancelConsumer(consumer string) error {
	ch, err := c.channel()
	if err != nil {
		return err
	}
	return ch.Cancel(consumer, false)
}
