package amqp

import (
	"context"
	"fmt"
	"time"

	"finsight/internal/log"
)

// Handler processes one event. A non-nil error requeues the delivery.
type Handler func(ctx context.Context, e *NotificationEvent) error

// Consume delivers events to handle until ctx is cancelled. Broken
// connections are re-established with exponential backoff.
func (c *Client) Consume(ctx context.Context, handle Handler) error {
	for attempt := 0; ; attempt++ {
		err := c.consumeOnce(ctx, handle)
		if ctx.Err() != nil {
			c.log().InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		}
		wait := exponentialBackoff(attempt)
		c.log().WarnContext(ctx, "Consumer interrupted, reconnecting",
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeNetwork,
			"retry_in", wait.String())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) consumeOnce(ctx context.Context, handle Handler) error {
	ch, err := c.ensureChannel()
	if err != nil {
		return err
	}
	if err := ch.Qos(10, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	msgs, err := ch.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (manual ack below)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.log().InfoContext(ctx, "Started consuming notification events", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				c.mu.Lock()
				c.closeLocked()
				c.mu.Unlock()
				return fmt.Errorf("message channel closed")
			}

			event, err := NotificationEventFromJSON(delivery.Body)
			if err != nil {
				c.log().ErrorContext(ctx, "Failed to unmarshal event", log.FieldError, err)
				_ = delivery.Nack(false, false) // poison message, drop it
				continue
			}

			if err := handle(ctx, event); err != nil {
				c.log().ErrorContext(ctx, "Failed to handle event",
					log.FieldError, err,
					log.FieldUserID, event.UserID,
					log.FieldNotifType, event.Type)
				// requeue once; redelivered messages that fail again are dropped
				_ = delivery.Nack(false, !delivery.Redelivered)
				continue
			}

			_ = delivery.Ack(false)
			c.log().DebugContext(ctx, "Processed notification event",
				log.FieldUserID, event.UserID,
				log.FieldNotifType, event.Type)
		}
	}
}
