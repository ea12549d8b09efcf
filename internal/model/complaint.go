package model

import (
	"errors"
	"time"
)

// Complaint represents one submitted complaint as held by the in-memory
// complaint store.  Only Verified ever changes after creation.
//
// Fields:
//
//	ReferenceID – public identifier (REF-XXXXXXXX), the lookup key.
//	Name        – submitter name as typed into the form.
//	Email       – submitter email; the verification code is mailed here.
//	Issue       – free-form complaint text.
//	Location    – free-form location text.
//	Token       – 6-digit verification code. Never leaves the service layer.
//	CreatedAt   – creation time, used only for the TTL check.
//	Verified    – set once by a successful verification, never reverted.
type Complaint struct {
	ReferenceID string
	Name        string
	Email       string
	Issue       string
	Location    string
	Token       string
	CreatedAt   time.Time
	Verified    bool
}

// ComplaintStatus is the public, token-free view of a complaint.  It is
// what the status endpoint and domain events expose.
type ComplaintStatus struct {
	ReferenceID string `json:"reference_id"`
	Verified    bool   `json:"verified"`
	CreatedAt   string `json:"created_at"`
}

// Status strips the complaint down to its public fields.
func (c Complaint) Status() ComplaintStatus {
	return ComplaintStatus{
		ReferenceID: c.ReferenceID,
		Verified:    c.Verified,
		CreatedAt:   c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Outcome is the result of one verification attempt.
type Outcome string

const (
	OutcomeVerified         Outcome = "verified_now"
	OutcomeInvalidReference Outcome = "already_invalid_reference"
	OutcomeExpired          Outcome = "expired"
	OutcomeTokenMismatch    Outcome = "token_mismatch"
)

var (
	ErrNotFound             = errors.New("complaint not found")
	ErrExpired              = errors.New("verification token expired")
	ErrTokenMismatch        = errors.New("verification token mismatch")
	ErrTransportUnavailable = errors.New("mail transport unavailable")
)

// Err maps an outcome onto the error taxonomy.  OutcomeVerified maps to nil.
func (o Outcome) Err() error {
	switch o {
	case OutcomeInvalidReference:
		return ErrNotFound
	case OutcomeExpired:
		return ErrExpired
	case OutcomeTokenMismatch:
		return ErrTokenMismatch
	}
	return nil
}
