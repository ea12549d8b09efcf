package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/civicdesk/complaint-portal/internal/events"
	"github.com/civicdesk/complaint-portal/internal/metrics"
	"github.com/civicdesk/complaint-portal/internal/model"
	"github.com/civicdesk/complaint-portal/internal/notify"
)

// ComplaintStore is the slice of repository.ComplaintRepo the service uses.
type ComplaintStore interface {
	Create(name, email, issue, location string, now time.Time) model.Complaint
	Get(ref string) (model.Complaint, error)
	MarkVerified(ref string, check func(model.Complaint) model.Outcome) model.Outcome
}

var ErrMissingFields = errors.New("name, email, issue and location are required")

// SubmitInput is the submission form.
type SubmitInput struct {
	Name     string
	Email    string
	Issue    string
	Location string
}

// SubmitResult tells the caller what to show after a submission.  The
// complaint is stored regardless of EmailSent.
type SubmitResult struct {
	ReferenceID string
	Email       string
	EmailSent   bool
}

// Options configures a ComplaintService.  Zero values pick defaults.
type Options struct {
	TTL         time.Duration    // default 24h
	SendTimeout time.Duration    // default 10s
	Now         func() time.Time // default time.Now
}

// ComplaintService owns submission and the verification workflow.  Both
// verification entry points go through Verify.
type ComplaintService struct {
	store       ComplaintStore
	notifier    notify.Notifier
	events      events.Publisher
	metrics     *metrics.Metrics
	ttl         time.Duration
	sendTimeout time.Duration
	now         func() time.Time
	logger      *zap.Logger

	wg sync.WaitGroup // background notifications and events
}

func NewComplaintService(store ComplaintStore, n notify.Notifier, ev events.Publisher, m *metrics.Metrics, opts Options, logger *zap.Logger) *ComplaintService {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if ev == nil {
		ev = events.NopPublisher{}
	}
	if m == nil {
		m = metrics.New()
	}
	return &ComplaintService{
		store:       store,
		notifier:    n,
		events:      ev,
		metrics:     m,
		ttl:         opts.TTL,
		sendTimeout: opts.SendTimeout,
		now:         opts.Now,
		logger:      logger,
	}
}

// TTL is the verification window.
func (s *ComplaintService) TTL() time.Duration { return s.ttl }

// Submit stores a complaint, then mails the verification code.  The record
// is committed before any mail is attempted, so a failing transport only
// changes EmailSent.  The submitter mail is bounded by the send timeout and
// detached from request cancellation; admin mail and the submitted event run
// in the background.
func (s *ComplaintService) Submit(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	in = SubmitInput{
		Name:     strings.TrimSpace(in.Name),
		Email:    strings.TrimSpace(in.Email),
		Issue:    strings.TrimSpace(in.Issue),
		Location: strings.TrimSpace(in.Location),
	}
	if in.Name == "" || in.Email == "" || in.Issue == "" || in.Location == "" {
		return SubmitResult{}, ErrMissingFields
	}

	c := s.store.Create(in.Name, in.Email, in.Issue, in.Location, s.now())
	s.metrics.Submitted.Inc()
	s.logger.Info("complaint submitted", zap.String("reference_id", c.ReferenceID))

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sendTimeout)
	sent := s.notifier.NotifySubmitter(sendCtx, c.Email, c.ReferenceID, c.Token)
	cancel()
	s.metrics.ObserveNotification("submitter", sent)
	if !sent {
		s.logger.Warn("verification email not sent", zap.String("reference_id", c.ReferenceID))
	}

	s.background(func(bg context.Context) {
		admin := s.notifier.NotifyAdmins(bg, c)
		s.metrics.ObserveNotification("admin", admin)
		if admin {
			s.logger.Info("admin notified", zap.String("reference_id", c.ReferenceID))
		}
		if err := s.events.PublishSubmitted(bg, c.Status()); err != nil {
			s.logger.Warn("submitted event not published", zap.Error(err), zap.String("reference_id", c.ReferenceID))
		}
	})

	return SubmitResult{ReferenceID: c.ReferenceID, Email: c.Email, EmailSent: sent}, nil
}

// Verify runs the verification workflow at the current time.
func (s *ComplaintService) Verify(ctx context.Context, ref, token string) model.Outcome {
	out := s.VerifyAt(ref, token, s.now())
	s.metrics.ObserveVerification(out)
	s.logger.Info("verification attempt", zap.String("reference_id", ref), zap.String("outcome", string(out)))

	if out == model.OutcomeVerified {
		if c, err := s.store.Get(ref); err == nil {
			s.background(func(bg context.Context) {
				if err := s.events.PublishVerified(bg, c.Status()); err != nil {
					s.logger.Warn("verified event not published", zap.Error(err), zap.String("reference_id", ref))
				}
			})
		}
	}
	return out
}

// VerifyAt is the verification workflow:
//
//  1. unknown reference: OutcomeInvalidReference
//  2. now - created_at > TTL: OutcomeExpired, even with the right code
//  3. constant-time equal codes: OutcomeVerified, record marked verified
//  4. otherwise: OutcomeTokenMismatch
//
// Only step 3 mutates, and repeating it is harmless.
func (s *ComplaintService) VerifyAt(ref, token string, now time.Time) model.Outcome {
	return s.store.MarkVerified(ref, func(c model.Complaint) model.Outcome {
		if now.Sub(c.CreatedAt) > s.ttl {
			return model.OutcomeExpired
		}
		if subtle.ConstantTimeCompare([]byte(c.Token), []byte(token)) == 1 {
			return model.OutcomeVerified
		}
		return model.OutcomeTokenMismatch
	})
}

// Status returns the public view of a complaint or model.ErrNotFound.
func (s *ComplaintService) Status(ref string) (model.ComplaintStatus, error) {
	c, err := s.store.Get(ref)
	if err != nil {
		return model.ComplaintStatus{}, err
	}
	return c.Status(), nil
}

// Close waits for background notifications until ctx expires.
func (s *ComplaintService) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ComplaintService) background(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
		defer cancel()
		fn(ctx)
	}()
}
