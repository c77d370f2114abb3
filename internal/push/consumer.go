// Package push adapts the message broker into the two event feeds the
// trackers consume: per-order status envelopes and the drone telemetry
// stream.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/google/uuid"

	"delivery-tracking/internal/common/logger"
	"delivery-tracking/internal/common/mq"
	"delivery-tracking/internal/domain"
)

var errUnsubscribed = errors.New("unsubscribed")

type Consumer struct {
	mq *mq.Client
	lg *logger.Logger
}

func NewConsumer(client *mq.Client, lg *logger.Logger) *Consumer {
	return &Consumer{mq: client, lg: lg}
}

// Subscribe opens the push channel for one order id. The returned function
// cancels the consumer; it is safe to call more than once.
func (c *Consumer) Subscribe(ctx context.Context, orderID string, handler func(domain.Envelope)) (func(), error) {
	tag := "order-" + orderID + "-" + uuid.NewString()[:8]
	open := func() (<-chan amqp.Delivery, error) {
		queue, err := c.mq.BindOrderQueue(orderID)
		if err != nil {
			return nil, err
		}
		return c.mq.Consume(queue, tag)
	}
	deliveries, err := open()
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go c.pump(ctx, done, deliveries, open, func(body []byte) {
		var env domain.Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			c.lg.Warn("malformed_push_frame", map[string]any{"order_id": orderID})
			return
		}
		handler(env)
	})

	return c.unsubOnce(done, tag), nil
}

// SubscribeTelemetry feeds every drone telemetry frame on the fanout to the
// handler. Frames that do not decode are dropped and logged.
func (c *Consumer) SubscribeTelemetry(ctx context.Context, handler func(domain.TelemetryUpdate)) (func(), error) {
	tag := "telemetry-" + uuid.NewString()[:8]
	open := func() (<-chan amqp.Delivery, error) {
		queue, err := c.mq.BindTelemetryQueue()
		if err != nil {
			return nil, err
		}
		return c.mq.Consume(queue, tag)
	}
	deliveries, err := open()
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go c.pump(ctx, done, deliveries, open, func(body []byte) {
		var env domain.Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			c.lg.Warn("malformed_telemetry_frame", nil)
			return
		}
		switch env.Type {
		case domain.TypeDeliveryProgress, domain.TypeDroneGPS:
			var upd domain.TelemetryUpdate
			if err := json.Unmarshal(env.Payload, &upd); err != nil || upd.DeliveryID == "" {
				c.lg.Warn("malformed_telemetry_payload", map[string]any{"type": env.Type})
				return
			}
			handler(upd)
		}
	})

	return c.unsubOnce(done, tag), nil
}

func (c *Consumer) unsubOnce(done chan struct{}, tag string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			_ = c.mq.CancelConsumer(tag)
		})
	}
}

// pump applies frames until unsubscribed. A closed delivery channel means the
// broker dropped the stream; the pump resubscribes and keeps going, since the
// monotonic merge makes replayed frames harmless.
func (c *Consumer) pump(ctx context.Context, done <-chan struct{}, deliveries <-chan amqp.Delivery, reopen func() (<-chan amqp.Delivery, error), apply func([]byte)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case d, ok := <-deliveries:
			if !ok {
				next, err := c.reopenWithBackoff(ctx, done, reopen)
				if err != nil {
					return
				}
				deliveries = next
				continue
			}
			apply(d.Body)
		}
	}
}

func (c *Consumer) reopenWithBackoff(ctx context.Context, done <-chan struct{}, reopen func() (<-chan amqp.Delivery, error)) (<-chan amqp.Delivery, error) {
	var deliveries <-chan amqp.Delivery
	op := func() error {
		select {
		case <-done:
			return backoff.Permanent(errUnsubscribed)
		default:
		}
		d, err := reopen()
		if err != nil {
			c.lg.Warn("push_resubscribe_failed", map[string]any{"reason": err.Error()})
			return err
		}
		deliveries = d
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // keep trying until unsubscribed or ctx done
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	c.lg.Info("push_resubscribed", nil)
	return deliveries, nil
}
