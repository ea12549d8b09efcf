package repository

import (
	"sync"
	"time"

	"github.com/civicdesk/complaint-portal/internal/model"
)

// Generator supplies the identifiers stamped onto new complaints.
type Generator interface {
	ReferenceID() string
	Code() string
}

// ComplaintRepo is the in-process complaint store.  A single RWMutex guards
// the map so inserts and the verify read-modify-write never interleave.
// Records are never evicted; they live as long as the process.
type ComplaintRepo struct {
	mu   sync.RWMutex
	gen  Generator
	data map[string]*model.Complaint
}

func NewComplaintRepo(gen Generator) *ComplaintRepo {
	return &ComplaintRepo{gen: gen, data: make(map[string]*model.Complaint)}
}

// Create stamps a new complaint with an unused reference id, a verification
// code and the given creation time, stores it and returns a copy.
func (r *ComplaintRepo) Create(name, email, issue, location string, now time.Time) model.Complaint {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref := r.gen.ReferenceID()
	for r.data[ref] != nil { // never overwrite an existing complaint
		ref = r.gen.ReferenceID()
	}
	c := &model.Complaint{
		ReferenceID: ref,
		Name:        name,
		Email:       email,
		Issue:       issue,
		Location:    location,
		Token:       r.gen.Code(),
		CreatedAt:   now,
	}
	r.data[c.ReferenceID] = c
	return *c
}

// Get returns a copy of the complaint or model.ErrNotFound.
func (r *ComplaintRepo) Get(ref string) (model.Complaint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.data[ref]
	if !ok {
		return model.Complaint{}, model.ErrNotFound
	}
	return *c, nil
}

// MarkVerified runs check against the current record while holding the write
// lock and flips Verified when check reports OutcomeVerified.  Unknown
// references yield OutcomeInvalidReference without calling check.
func (r *ComplaintRepo) MarkVerified(ref string, check func(model.Complaint) model.Outcome) model.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.data[ref]
	if !ok {
		return model.OutcomeInvalidReference
	}
	out := check(*c)
	if out == model.OutcomeVerified {
		c.Verified = true
	}
	return out
}

// Len reports how many complaints are held.
func (r *ComplaintRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}
