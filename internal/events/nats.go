package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/civicdesk/complaint-portal/internal/model"
)

const (
	SubjectSubmitted = "complaint.submitted"
	SubjectVerified  = "complaint.verified"
)

// Publisher announces complaint lifecycle changes to other services.  The
// payload is the public status view; the verification code is never sent.
type Publisher interface {
	PublishSubmitted(ctx context.Context, status model.ComplaintStatus) error
	PublishVerified(ctx context.Context, status model.ComplaintStatus) error
	Close()
}

// ComplaintEvent is the JSON body published on both subjects.
type ComplaintEvent struct {
	ReferenceID string `json:"reference_id"`
	Verified    bool   `json:"verified"`
	CreatedAt   string `json:"created_at"`
	OccurredAt  string `json:"occurred_at"`
}

type natsConn interface {
	Publish(subj string, data []byte) error
	Close()
}

type natsPublisher struct {
	conn   natsConn
	logger *zap.Logger
}

func NewNATSPublisher(url string, logger *zap.Logger) (Publisher, error) {
	conn, err := nats.Connect(url, nats.Name("complaint-portal"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("connected to NATS", zap.String("url", url))
	return &natsPublisher{conn: conn, logger: logger}, nil
}

func (p *natsPublisher) PublishSubmitted(ctx context.Context, status model.ComplaintStatus) error {
	return p.publish(SubjectSubmitted, status)
}

func (p *natsPublisher) PublishVerified(ctx context.Context, status model.ComplaintStatus) error {
	return p.publish(SubjectVerified, status)
}

func (p *natsPublisher) publish(subject string, status model.ComplaintStatus) error {
	data, err := json.Marshal(ComplaintEvent{
		ReferenceID: status.ReferenceID,
		Verified:    status.Verified,
		CreatedAt:   status.CreatedAt,
		OccurredAt:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		p.logger.Error("failed to marshal complaint event", zap.Error(err))
		return fmt.Errorf("failed to marshal complaint event: %w", err)
	}

	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Error("failed to publish complaint event", zap.Error(err), zap.String("subject", subject), zap.String("reference_id", status.ReferenceID))
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}

	p.logger.Debug("complaint event published", zap.String("subject", subject), zap.String("reference_id", status.ReferenceID))
	return nil
}

func (p *natsPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
		p.logger.Info("NATS connection closed")
	}
}

// NopPublisher drops every event.  Used when NATS_URL is empty.
type NopPublisher struct{}

func (NopPublisher) PublishSubmitted(context.Context, model.ComplaintStatus) error {
	return nil
}

func (NopPublisher) PublishVerified(context.Context, model.ComplaintStatus) error {
	return nil
}

func (NopPublisher) Close() {}
