// Package notify delivers the verification mail to submitters and the
// new-complaint summary to administrators.  Delivery is best effort: every
// failure, including a panicking transport, is logged and reported as false.
package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"net/url"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/civicdesk/complaint-portal/internal/model"
	"github.com/civicdesk/complaint-portal/internal/utils"
)

// Notifier is the boundary the complaint service talks to.
type Notifier interface {
	NotifySubmitter(ctx context.Context, email, referenceID, token string) bool
	NotifyAdmins(ctx context.Context, c model.Complaint) bool
}

// Message is one rendered mail.  Name is a stable stem used by sinks that
// store messages (file names, queue payload ids).
type Message struct {
	Name    string   `json:"name"`
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// Transport moves a rendered message somewhere: an SMTP relay, the console,
// a directory, a Redis list or the broker.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

//go:embed templates/*.txt
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.txt"))

// Mailer renders messages and hands them to a Transport.
type Mailer struct {
	transport Transport
	sender    string
	admins    []string
	baseURL   string
	ttl       time.Duration
	logger    *zap.Logger
}

// MailerOptions groups the values a Mailer needs besides its transport.
type MailerOptions struct {
	Sender  string
	Admins  []string
	BaseURL string
	TTL     time.Duration
}

func NewMailer(t Transport, opts MailerOptions, logger *zap.Logger) *Mailer {
	return &Mailer{
		transport: t,
		sender:    opts.Sender,
		admins:    opts.Admins,
		baseURL:   opts.BaseURL,
		ttl:       opts.TTL,
		logger:    logger,
	}
}

// VerificationLink is the emailed entry point for a complaint.
func VerificationLink(baseURL, referenceID, token string) string {
	return fmt.Sprintf("%s/verify/%s/%s", baseURL, url.PathEscape(referenceID), url.PathEscape(token))
}

func (m *Mailer) NotifySubmitter(ctx context.Context, email, referenceID, token string) bool {
	body, err := render("verification_email.txt", map[string]any{
		"ReferenceID": referenceID,
		"Token":       token,
		"Link":        VerificationLink(m.baseURL, referenceID, token),
		"TTL":         utils.HumanDuration(m.ttl),
	})
	if err != nil {
		m.logger.Error("failed to render verification email", zap.Error(err), zap.String("reference_id", referenceID))
		return false
	}
	return m.deliver(ctx, Message{
		Name:    referenceID,
		From:    m.sender,
		To:      []string{email},
		Subject: "Confirm your complaint: " + referenceID,
		Body:    body,
	})
}

func (m *Mailer) NotifyAdmins(ctx context.Context, c model.Complaint) bool {
	if len(m.admins) == 0 {
		return false
	}
	body, err := render("admin_notification.txt", map[string]any{
		"ReferenceID": c.ReferenceID,
		"SubmittedAt": c.CreatedAt.UTC().Format(time.RFC3339),
		"Name":        c.Name,
		"Email":       c.Email,
		"Location":    c.Location,
		"Issue":       c.Issue,
	})
	if err != nil {
		m.logger.Error("failed to render admin notification", zap.Error(err), zap.String("reference_id", c.ReferenceID))
		return false
	}
	return m.deliver(ctx, Message{
		Name:    "admin_" + c.ReferenceID,
		From:    m.sender,
		To:      append([]string(nil), m.admins...),
		Subject: "New complaint submitted: " + c.ReferenceID,
		Body:    body,
	})
}

func (m *Mailer) deliver(ctx context.Context, msg Message) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("mail transport panicked", zap.Any("panic", r), zap.String("message", msg.Name))
			ok = false
		}
	}()

	if err := m.transport.Send(ctx, msg); err != nil {
		m.logger.Warn("mail not delivered",
			zap.Error(err),
			zap.String("message", msg.Name),
			zap.Strings("to", msg.To))
		return false
	}
	m.logger.Info("mail delivered", zap.String("message", msg.Name), zap.Strings("to", msg.To))
	return true
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
