package notify

import (
	"context"
	"encoding/json"
	"fmt"
)

// MailPublisher is satisfied by queue.Publisher.
type MailPublisher interface {
	Publish(ctx context.Context, body []byte) error
}

// QueueTransport hands messages to the broker; the mail worker delivers
// them later.  Success means the broker accepted the message.
type QueueTransport struct {
	pub MailPublisher
}

func NewQueueTransport(pub MailPublisher) *QueueTransport {
	return &QueueTransport{pub: pub}
}

func (t *QueueTransport) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: marshal: %w", err)
	}
	if err := t.pub.Publish(ctx, body); err != nil {
		return fmt.Errorf("queue: %w", err)
	}
	return nil
}
