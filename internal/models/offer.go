package models

import "time"

// OfferStatus is the lifecycle state of an offer
type OfferStatus string

const (
	OfferPending          OfferStatus = "pending"
	OfferAwaitingResponse OfferStatus = "awaiting_response"
	OfferAccepted         OfferStatus = "accepted"
	OfferRejected         OfferStatus = "rejected"
	OfferExpired          OfferStatus = "expired"
)

// Terminal reports whether no transition leaves the status.
func (s OfferStatus) Terminal() bool {
	return s == OfferAccepted || s == OfferRejected || s == OfferExpired
}

// Customer responses recorded on an answered offer.
const (
	ResponseAccept = "accept"
	ResponseReject = "reject"
)

// Offer is a time-bounded priced proposal waiting for a customer decision.
// Status and the follow-up fields are written by internal/lifecycle only.
type Offer struct {
	ID               string        `json:"id"`
	ReportID         string        `json:"report_id"`
	BranchID         string        `json:"branch_id,omitempty"`
	CompanyID        string        `json:"company_id,omitempty"`
	CreatedBy        string        `json:"created_by"`
	IsPublic         bool          `json:"is_public"`
	Status           OfferStatus   `json:"status"`
	StatusHistory    []StatusEntry `json:"status_history"`
	SentAt           *time.Time    `json:"sent_at,omitempty"`
	ValidUntil       time.Time     `json:"valid_until"`
	FollowUpAttempts int           `json:"follow_up_attempts"`
	LastFollowUpAt   *time.Time    `json:"last_follow_up_at,omitempty"`
	EscalatedAt      *time.Time    `json:"escalated_at,omitempty"`
	RespondedAt      *time.Time    `json:"responded_at,omitempty"`
	CustomerResponse string        `json:"customer_response,omitempty"`
	Version          int64         `json:"version"`
	CreatedAt        time.Time     `json:"created_at"`
}

// Resource projects the offer for authorization.
func (o Offer) Resource() Resource {
	return Resource{
		ID:        o.ID,
		Kind:      KindOffer,
		BranchID:  o.BranchID,
		CompanyID: o.CompanyID,
		CreatedBy: o.CreatedBy,
		IsPublic:  o.IsPublic,
	}
}

// Clone returns a deep copy so callers never share history slices or
// timestamp pointers.
func (o Offer) Clone() Offer {
	c := o
	c.StatusHistory = append([]StatusEntry(nil), o.StatusHistory...)
	c.SentAt = cloneTime(o.SentAt)
	c.LastFollowUpAt = cloneTime(o.LastFollowUpAt)
	c.EscalatedAt = cloneTime(o.EscalatedAt)
	c.RespondedAt = cloneTime(o.RespondedAt)
	return c
}

// NewOffer is the request body for drafting an offer. BranchID and CompanyID
// are optional and must match the report's when given.
type NewOffer struct {
	ReportID   string    `json:"report_id"`
	BranchID   string    `json:"branch_id"`
	CompanyID  string    `json:"company_id"`
	IsPublic   bool      `json:"is_public"`
	ValidUntil time.Time `json:"valid_until"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
