package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/civicdesk/complaint-portal/internal/metrics"
	"github.com/civicdesk/complaint-portal/internal/model"
	"github.com/civicdesk/complaint-portal/internal/repository"
)

type fixedGenerator struct{}

func (fixedGenerator) ReferenceID() string { return "REF-AB12CD34" }
func (fixedGenerator) Code() string        { return "000000" }

// mockNotifier records calls through func fields.
type mockNotifier struct {
	NotifySubmitterFunc func(ctx context.Context, email, ref, token string) bool
	NotifyAdminsFunc    func(ctx context.Context, c model.Complaint) bool
}

func (m *mockNotifier) NotifySubmitter(ctx context.Context, email, ref, token string) bool {
	if m.NotifySubmitterFunc != nil {
		return m.NotifySubmitterFunc(ctx, email, ref, token)
	}
	return true
}

func (m *mockNotifier) NotifyAdmins(ctx context.Context, c model.Complaint) bool {
	if m.NotifyAdminsFunc != nil {
		return m.NotifyAdminsFunc(ctx, c)
	}
	return true
}

type mockEvents struct {
	mu        sync.Mutex
	submitted []model.ComplaintStatus
	verified  []model.ComplaintStatus
	err       error
}

func (m *mockEvents) PublishSubmitted(_ context.Context, s model.ComplaintStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted = append(m.submitted, s)
	return m.err
}

func (m *mockEvents) PublishVerified(_ context.Context, s model.ComplaintStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verified = append(m.verified, s)
	return m.err
}

func (m *mockEvents) Close() {}

var t0 = time.Unix(1000, 0)

type fixture struct {
	svc    *ComplaintService
	repo   *repository.ComplaintRepo
	events *mockEvents
	now    time.Time
}

func newFixture(t *testing.T, n *mockNotifier) *fixture {
	t.Helper()
	f := &fixture{
		repo:   repository.NewComplaintRepo(fixedGenerator{}),
		events: &mockEvents{},
		now:    t0,
	}
	if n == nil {
		n = &mockNotifier{}
	}
	f.svc = NewComplaintService(f.repo, n, f.events, metrics.New(), Options{
		TTL: 86400 * time.Second,
		Now: func() time.Time { return f.now },
	}, zaptest.NewLogger(t))
	return f
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.svc.Close(ctx))
}

func validInput() SubmitInput {
	return SubmitInput{Name: "Ada", Email: "ada@example.com", Issue: "Broken streetlight", Location: "5th Ave"}
}

func TestSubmit_StoresAndNotifies(t *testing.T) {
	var gotEmail, gotRef, gotToken string
	var admins model.Complaint
	f := newFixture(t, &mockNotifier{
		NotifySubmitterFunc: func(_ context.Context, email, ref, token string) bool {
			gotEmail, gotRef, gotToken = email, ref, token
			return true
		},
		NotifyAdminsFunc: func(_ context.Context, c model.Complaint) bool {
			admins = c
			return true
		},
	})

	res, err := f.svc.Submit(context.Background(), validInput())
	require.NoError(t, err)
	f.wait(t)

	assert.Equal(t, SubmitResult{ReferenceID: "REF-AB12CD34", Email: "ada@example.com", EmailSent: true}, res)
	assert.Equal(t, "ada@example.com", gotEmail)
	assert.Equal(t, "REF-AB12CD34", gotRef)
	assert.Equal(t, "000000", gotToken)
	assert.Equal(t, "Broken streetlight", admins.Issue)

	c, err := f.repo.Get("REF-AB12CD34")
	require.NoError(t, err)
	assert.Equal(t, t0, c.CreatedAt)
	assert.False(t, c.Verified)

	require.Len(t, f.events.submitted, 1)
	assert.Equal(t, "REF-AB12CD34", f.events.submitted[0].ReferenceID)
}

func TestSubmit_NotificationFailureStillStores(t *testing.T) {
	f := newFixture(t, &mockNotifier{
		NotifySubmitterFunc: func(context.Context, string, string, string) bool { return false },
		NotifyAdminsFunc:    func(context.Context, model.Complaint) bool { return false },
	})
	f.events.err = errors.New("nats down")

	res, err := f.svc.Submit(context.Background(), validInput())
	require.NoError(t, err)
	f.wait(t)

	assert.False(t, res.EmailSent)
	_, err = f.repo.Get(res.ReferenceID)
	assert.NoError(t, err)
}

func TestSubmit_SubmitterMailSurvivesCancelledRequest(t *testing.T) {
	var ctxErr error
	f := newFixture(t, &mockNotifier{
		NotifySubmitterFunc: func(ctx context.Context, _, _, _ string) bool {
			ctxErr = ctx.Err()
			_, hasDeadline := ctx.Deadline()
			return hasDeadline
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.svc.Submit(ctx, validInput())
	require.NoError(t, err)
	f.wait(t)
	assert.NoError(t, ctxErr)
	assert.True(t, res.EmailSent)
}

func TestSubmit_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		in   SubmitInput
	}{
		{"no name", SubmitInput{Email: "a@b.c", Issue: "x", Location: "y"}},
		{"blank email", SubmitInput{Name: "A", Email: "   ", Issue: "x", Location: "y"}},
		{"no issue", SubmitInput{Name: "A", Email: "a@b.c", Location: "y"}},
		{"no location", SubmitInput{Name: "A", Email: "a@b.c", Issue: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			f := newFixture(t, &mockNotifier{
				NotifySubmitterFunc: func(context.Context, string, string, string) bool {
					called = true
					return true
				},
			})
			_, err := f.svc.Submit(context.Background(), tt.in)
			assert.ErrorIs(t, err, ErrMissingFields)
			assert.False(t, called)
			assert.Equal(t, 0, f.repo.Len())
		})
	}
}

func TestVerify_Outcomes(t *testing.T) {
	tests := []struct {
		name     string
		ref      string
		token    string
		elapsed  time.Duration
		want     model.Outcome
		verified bool
	}{
		{"correct code inside window", "REF-AB12CD34", "000000", 86399 * time.Second, model.OutcomeVerified, true},
		{"correct code at window edge", "REF-AB12CD34", "000000", 86400 * time.Second, model.OutcomeVerified, true},
		{"correct code after window", "REF-AB12CD34", "000000", 86401 * time.Second, model.OutcomeExpired, false},
		{"wrong code after window", "REF-AB12CD34", "123456", 86401 * time.Second, model.OutcomeExpired, false},
		{"wrong code", "REF-AB12CD34", "000001", time.Second, model.OutcomeTokenMismatch, false},
		{"prefix of code", "REF-AB12CD34", "00000", time.Second, model.OutcomeTokenMismatch, false},
		{"empty code", "REF-AB12CD34", "", time.Second, model.OutcomeTokenMismatch, false},
		{"unknown reference", "REF-FFFFFFFF", "000000", time.Second, model.OutcomeInvalidReference, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			_, err := f.svc.Submit(context.Background(), validInput())
			require.NoError(t, err)

			f.now = t0.Add(tt.elapsed)
			assert.Equal(t, tt.want, f.svc.Verify(context.Background(), tt.ref, tt.token))
			f.wait(t)

			c, err := f.repo.Get("REF-AB12CD34")
			require.NoError(t, err)
			assert.Equal(t, tt.verified, c.Verified)
			if tt.verified {
				require.Len(t, f.events.verified, 1)
				assert.True(t, f.events.verified[0].Verified)
			} else {
				assert.Empty(t, f.events.verified)
			}
		})
	}
}

func TestVerify_Idempotent(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Submit(context.Background(), validInput())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.Equal(t, model.OutcomeVerified, f.svc.Verify(context.Background(), "REF-AB12CD34", "000000"))
	}
	f.wait(t)
	c, _ := f.repo.Get("REF-AB12CD34")
	assert.True(t, c.Verified)
	assert.Len(t, f.events.verified, 3)
}

func TestVerify_ExpiredAfterVerificationKeepsFlag(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Submit(context.Background(), validInput())
	require.NoError(t, err)
	require.Equal(t, model.OutcomeVerified, f.svc.Verify(context.Background(), "REF-AB12CD34", "000000"))

	f.now = t0.Add(48 * time.Hour)
	assert.Equal(t, model.OutcomeExpired, f.svc.Verify(context.Background(), "REF-AB12CD34", "000000"))
	f.wait(t)

	st, err := f.svc.Status("REF-AB12CD34")
	require.NoError(t, err)
	assert.True(t, st.Verified)
}

func TestVerify_ConcurrentAttempts(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Submit(context.Background(), validInput())
	require.NoError(t, err)

	var wg sync.WaitGroup
	outcomes := make(chan model.Outcome, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token := "000000"
			if i%2 == 1 {
				token = "111111"
			}
			outcomes <- f.svc.VerifyAt("REF-AB12CD34", token, t0)
		}(i)
	}
	wg.Wait()
	close(outcomes)

	counts := map[model.Outcome]int{}
	for o := range outcomes {
		counts[o]++
	}
	assert.Equal(t, 25, counts[model.OutcomeVerified])
	assert.Equal(t, 25, counts[model.OutcomeTokenMismatch])
	c, _ := f.repo.Get("REF-AB12CD34")
	assert.True(t, c.Verified)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Submit(context.Background(), validInput())
	require.NoError(t, err)
	f.wait(t)

	st, err := f.svc.Status("REF-AB12CD34")
	require.NoError(t, err)
	assert.Equal(t, model.ComplaintStatus{
		ReferenceID: "REF-AB12CD34",
		Verified:    false,
		CreatedAt:   "1970-01-01T00:16:40Z",
	}, st)

	_, err = f.svc.Status("REF-00000000")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestNewComplaintService_Defaults(t *testing.T) {
	svc := NewComplaintService(repository.NewComplaintRepo(fixedGenerator{}), &mockNotifier{}, nil, nil, Options{}, zaptest.NewLogger(t))
	assert.Equal(t, 24*time.Hour, svc.TTL())
	_, err := svc.Submit(context.Background(), validInput())
	require.NoError(t, err)
	require.NoError(t, svc.Close(context.Background()))
}
