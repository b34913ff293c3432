package lifecycle

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/besikta/inspection-server/internal/models"
)

// Transition names, used in errors, metrics and logs.
const (
	OfferSend     = "send"
	OfferAccept   = "accept"
	OfferReject   = "reject"
	OfferFollowUp = "follow_up"
	OfferEscalate = "escalate"
	OfferExpire   = "expire"
)

var offerEdges = map[models.OfferStatus][]models.OfferStatus{
	models.OfferPending:          {models.OfferAwaitingResponse},
	models.OfferAwaitingResponse: {models.OfferAwaitingResponse, models.OfferAccepted, models.OfferRejected, models.OfferExpired},
}

// OfferTransitionAllowed reports whether from → to is an edge of the offer
// state machine. Stores use it to refuse commits that bypass the transitions.
func OfferTransitionAllowed(from, to models.OfferStatus) bool {
	for _, s := range offerEdges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// FollowUpPolicy holds the time thresholds of the scheduled transitions.
// The follow-up, escalation and expiry thresholds are measured as elapsed
// time since sending (a day is 24h). The once-per-day guard and the interval
// between reminders count calendar days in Location.
type FollowUpPolicy struct {
	FollowUpAfterDays    int
	FollowUpIntervalDays int
	MaxFollowUps         int
	EscalateAfterDays    int
	ExpireAfterDays      int
	Location             *time.Location
}

// DefaultFollowUpPolicy returns the standard reminder cadence.
func DefaultFollowUpPolicy() FollowUpPolicy {
	return FollowUpPolicy{
		FollowUpAfterDays:    7,
		FollowUpIntervalDays: 1,
		MaxFollowUps:         3,
		EscalateAfterDays:    14,
		ExpireAfterDays:      30,
		Location:             time.UTC,
	}
}

// Loc returns the time zone calendar days are counted in.
func (p FollowUpPolicy) Loc() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// DaysBetween counts calendar days from a to b in the policy's location.
func (p FollowUpPolicy) DaysBetween(a, b time.Time) int {
	loc := p.Loc()
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// SameDay reports whether a and b fall on the same calendar day.
func (p FollowUpPolicy) SameDay(a, b time.Time) bool {
	return p.DaysBetween(a, b) == 0
}

// Elapsed reports whether at least days full days passed between since and now.
func Elapsed(since, now time.Time, days int) bool {
	return now.Sub(since) >= time.Duration(days)*24*time.Hour
}

// OfferChange is the result of an offer transition: the next offer value and
// everything that must be written or emitted together with it.
type OfferChange struct {
	Transition string
	Offer      models.Offer
	// Entry is the appended history entry; nil when the status is untouched.
	Entry *models.StatusEntry
	// ReportOfferStatus, when set, is propagated to the linked report.
	ReportOfferStatus models.OfferStatus
	Notifications     []models.Notification
}

func (c OfferChange) withStatus(status models.OfferStatus, by Actor, reason string, now time.Time) OfferChange {
	history, entry := appendEntry(c.Offer.StatusHistory, models.StatusEntry{
		Status:        string(status),
		Timestamp:     now,
		ChangedBy:     by.ID,
		ChangedByName: by.Name,
		Reason:        reason,
	})
	c.Offer.Status = status
	c.Offer.StatusHistory = history
	c.Entry = &entry
	return c
}

func (c OfferChange) notify(kind models.NotificationKind, to models.Role, now time.Time) OfferChange {
	c.Notifications = append(c.Notifications, models.Notification{
		ID:            uuid.New(),
		Kind:          kind,
		OfferID:       c.Offer.ID,
		ReportID:      c.Offer.ReportID,
		BranchID:      c.Offer.BranchID,
		CompanyID:     c.Offer.CompanyID,
		RecipientRole: to,
		Attempt:       c.Offer.FollowUpAttempts,
		CreatedAt:     now,
	})
	return c
}

func begin(name string, o models.Offer) OfferChange {
	return OfferChange{Transition: name, Offer: o.Clone()}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// SendOffer moves a pending offer to awaiting_response.
func SendOffer(o models.Offer, by Actor, now time.Time) (OfferChange, error) {
	if o.Status != models.OfferPending {
		return OfferChange{}, invalidOffer(o.Status, OfferSend, "")
	}
	if now.After(o.ValidUntil) {
		return OfferChange{}, invalidOffer(o.Status, OfferSend, "validity period has elapsed")
	}
	c := begin(OfferSend, o)
	c.Offer.SentAt = timePtr(now)
	return c.withStatus(models.OfferAwaitingResponse, by, "", now), nil
}

// AcceptOffer records the customer's acceptance.
func AcceptOffer(o models.Offer, by Actor, now time.Time) (OfferChange, error) {
	if o.Status != models.OfferAwaitingResponse {
		return OfferChange{}, invalidOffer(o.Status, OfferAccept, "")
	}
	if now.After(o.ValidUntil) {
		return OfferChange{}, invalidOffer(o.Status, OfferAccept, "validity period has elapsed")
	}
	c := begin(OfferAccept, o)
	c.Offer.RespondedAt = timePtr(now)
	c.Offer.CustomerResponse = models.ResponseAccept
	c = c.withStatus(models.OfferAccepted, by, "", now)
	c.ReportOfferStatus = models.OfferAccepted
	return c.notify(models.NotifyOfferAccepted, models.RoleBranchAdmin, now), nil
}

// RejectOffer records the customer's rejection with an optional reason.
func RejectOffer(o models.Offer, by Actor, reason string, now time.Time) (OfferChange, error) {
	if o.Status != models.OfferAwaitingResponse {
		return OfferChange{}, invalidOffer(o.Status, OfferReject, "")
	}
	c := begin(OfferReject, o)
	c.Offer.RespondedAt = timePtr(now)
	c.Offer.CustomerResponse = models.ResponseReject
	c = c.withStatus(models.OfferRejected, by, reason, now)
	c.ReportOfferStatus = models.OfferRejected
	return c.notify(models.NotifyOfferRejected, models.RoleBranchAdmin, now), nil
}

// FollowUpOffer sends the next reminder. The offer stays awaiting_response
// and the attempt counter moves by one. A second call on the same calendar
// day returns ErrSchedulerSkew.
func FollowUpOffer(o models.Offer, policy FollowUpPolicy, now time.Time) (OfferChange, error) {
	if o.Status != models.OfferAwaitingResponse || o.SentAt == nil {
		return OfferChange{}, invalidOffer(o.Status, OfferFollowUp, "")
	}
	if o.LastFollowUpAt != nil && policy.SameDay(*o.LastFollowUpAt, now) {
		return OfferChange{}, ErrSchedulerSkew
	}
	if !Elapsed(*o.SentAt, now, policy.FollowUpAfterDays) {
		return OfferChange{}, ErrNotDue
	}
	if o.FollowUpAttempts >= policy.MaxFollowUps {
		return OfferChange{}, ErrNotDue
	}
	if o.LastFollowUpAt != nil && policy.DaysBetween(*o.LastFollowUpAt, now) < policy.FollowUpIntervalDays {
		return OfferChange{}, ErrNotDue
	}

	c := begin(OfferFollowUp, o)
	c.Offer.FollowUpAttempts++
	c.Offer.LastFollowUpAt = timePtr(now)
	reason := fmt.Sprintf("follow-up %d of %d", c.Offer.FollowUpAttempts, policy.MaxFollowUps)
	c = c.withStatus(models.OfferAwaitingResponse, System, reason, now)
	return c.notify(models.NotifyOfferFollowUp, models.RoleCustomer, now), nil
}

// EscalateOffer asks the branch admin to chase an unanswered offer. The
// status stays awaiting_response and an "escalated" entry is recorded. Fires
// at most once per offer.
func EscalateOffer(o models.Offer, policy FollowUpPolicy, now time.Time) (OfferChange, error) {
	if o.Status != models.OfferAwaitingResponse || o.SentAt == nil {
		return OfferChange{}, invalidOffer(o.Status, OfferEscalate, "")
	}
	if o.EscalatedAt != nil {
		if policy.SameDay(*o.EscalatedAt, now) {
			return OfferChange{}, ErrSchedulerSkew
		}
		return OfferChange{}, ErrNotDue
	}
	if !Elapsed(*o.SentAt, now, policy.EscalateAfterDays) {
		return OfferChange{}, ErrNotDue
	}
	c := begin(OfferEscalate, o)
	c.Offer.EscalatedAt = timePtr(now)
	c = c.withStatus(models.OfferAwaitingResponse, System, "escalated", now)
	return c.notify(models.NotifyOfferEscalated, models.RoleBranchAdmin, now), nil
}

// ExpireOffer closes an offer whose validity ran out or that went
// unanswered for too long.
func ExpireOffer(o models.Offer, policy FollowUpPolicy, now time.Time) (OfferChange, error) {
	if o.Status != models.OfferAwaitingResponse {
		return OfferChange{}, invalidOffer(o.Status, OfferExpire, "")
	}
	reason := ""
	switch {
	case now.After(o.ValidUntil):
		reason = "validity period elapsed"
	case o.SentAt != nil && Elapsed(*o.SentAt, now, policy.ExpireAfterDays):
		reason = fmt.Sprintf("no response within %d days", policy.ExpireAfterDays)
	default:
		return OfferChange{}, ErrNotDue
	}
	c := begin(OfferExpire, o).withStatus(models.OfferExpired, System, reason, now)
	c.ReportOfferStatus = models.OfferExpired
	return c.notify(models.NotifyOfferExpired, models.RoleBranchAdmin, now), nil
}
