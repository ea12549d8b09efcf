// Package queue moves rendered notification mail through RabbitMQ.  The web
// process publishes; the mail worker consumes and delivers.
package queue

import (
	"context"
	"fmt"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher publishes mail payloads to a durable queue.  Each call opens its
// own connection so a broker restart never leaves the web process holding a
// dead channel.
type Publisher struct {
	url    string
	queue  string
	logger *zap.Logger
}

func NewPublisher(url, queue string, logger *zap.Logger) *Publisher {
	return &Publisher{url: url, queue: queue, logger: logger}
}

// Publish sends body as a persistent JSON message.  Errors are logged and
// returned; callers treat them as a failed delivery, never as fatal.
func (p *Publisher) Publish(ctx context.Context, body []byte) error {
	conn, err := dial(ctx, p.url)
	if err != nil {
		p.logger.Warn("rabbitmq: dial failed", zap.Error(err))
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.logger.Warn("rabbitmq: channel open failed", zap.Error(err))
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := declare(ch, p.queue); err != nil {
		p.logger.Warn("rabbitmq: queue declare failed", zap.Error(err), zap.String("queue", p.queue))
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		p.logger.Warn("rabbitmq: publish failed", zap.Error(err), zap.String("queue", p.queue))
		return fmt.Errorf("publish: %w", err)
	}
	p.logger.Debug("mail queued", zap.String("queue", p.queue))
	return nil
}

// handshakeTimeout bounds the TCP connect and AMQP handshake when ctx has no
// deadline of its own.  Same value as amqp091's default.
const handshakeTimeout = 30 * time.Second

// dial opens a broker connection whose TCP connect and handshake both end at
// ctx's deadline, or after handshakeTimeout.  The library clears the socket
// deadline once the handshake completes.
func dial(ctx context.Context, url string) (*amqp.Connection, error) {
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			d := &net.Dialer{Timeout: handshakeTimeout}
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			deadline, ok := ctx.Deadline()
			if !ok {
				deadline = time.Now().Add(handshakeTimeout)
			}
			if err := conn.SetDeadline(deadline); err != nil {
				_ = conn.Close()
				return nil, err
			}
			return conn, nil
		},
	})
}

// declare makes sure the durable queue exists.  Idempotent.
func declare(ch *amqp.Channel, name string) error {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare %s: %w", name, err)
	}
	return nil
}
