package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Handler processes one message body from the named queue.  A non-nil error
// rejects the message without requeue.
type Handler func(ctx context.Context, queue string, body []byte) error

// Consumer drains every email queue and hands each delivery to a Handler.
type Consumer struct {
	url      string
	log      *zap.Logger
	handle   Handler
	prefetch int
}

func NewConsumer(url string, handle Handler, log *zap.Logger) *Consumer {
	return &Consumer{url: url, log: log, handle: handle, prefetch: 50}
}

// Run connects, consumes, and reconnects with exponential backoff until ctx
// is cancelled.  It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("mail-consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("mail-consumer: consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		c.log.Warn("mail-consumer: set QoS failed", zap.Error(err))
	}
	if err := declareQueues(ch); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	closed := make(chan string, len(EmailQueues))
	for _, q := range EmailQueues {
		msgs, err := ch.Consume(q, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("consume %s: %w", q, err)
		}
		go func(q string, msgs <-chan amqp.Delivery) {
			for d := range msgs {
				c.deliver(ctx, q, d)
			}
			closed <- q
		}(q, msgs)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case q := <-closed:
		return errors.New("deliveries channel closed for " + q)
	}
}

// deliver runs the handler and acks or rejects the delivery.
func (c *Consumer) deliver(ctx context.Context, queue string, d amqp.Delivery) {
	if err := c.handle(ctx, queue, d.Body); err != nil {
		c.log.Error("mail-consumer: handle message failed",
			zap.String("queue", queue), zap.Error(err))
		// no requeue, a poison message would loop forever
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}
