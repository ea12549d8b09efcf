package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// HandlerFunc processes one message body.  A non-nil error rejects the
// message without requeueing it.
type HandlerFunc func(ctx context.Context, body []byte) error

// Consumer drains the mail queue.  Run keeps reconnecting with exponential
// backoff until ctx is cancelled.
type Consumer struct {
	url      string
	queue    string
	handle   HandlerFunc
	logger   *zap.Logger
	prefetch int
}

func NewConsumer(url, queue string, handle HandlerFunc, logger *zap.Logger) *Consumer {
	return &Consumer{url: url, queue: queue, handle: handle, logger: logger, prefetch: 10}
}

// Run blocks until ctx is done.  It only returns ctx.Err().
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := dial(ctx, c.url)
		if err != nil {
			c.logger.Warn("mail-consumer: failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("mail-consumer: consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		c.logger.Warn("mail-consumer: set QoS failed", zap.Error(err))
	}
	if err := declare(ch, c.queue); err != nil {
		return err
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if c.Process(ctx, d.Body) {
				_ = d.Ack(false)
			} else {
				_ = d.Nack(false, false) // do not requeue, avoids tight redelivery loops
			}
		}
	}
}

// Process runs the handler on one body and reports whether it should be
// acknowledged.  Handler panics count as failures.
func (c *Consumer) Process(ctx context.Context, body []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("mail-consumer: handler panicked", zap.Any("panic", r))
			ok = false
		}
	}()
	if err := c.handle(ctx, body); err != nil {
		c.logger.Error("mail-consumer: handle message failed", zap.Error(err))
		return false
	}
	return true
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
