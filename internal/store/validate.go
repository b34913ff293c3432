package store

import (
	"fmt"

	"github.com/besikta/inspection-server/internal/lifecycle"
	"github.com/besikta/inspection-server/internal/models"
)

func illegal(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIllegalCommit, fmt.Sprintf(format, args...))
}

func checkEntry(history []models.StatusEntry, next []models.StatusEntry, entry models.StatusEntry, status string) error {
	if len(next) != len(history)+1 {
		return illegal("history must grow by exactly one entry")
	}
	last := next[len(next)-1]
	if last.Hash != entry.Hash || last.Status != status {
		return illegal("entry does not match the appended history")
	}
	if n := len(history); n > 0 {
		if last.PrevHash != history[n-1].Hash || !last.Timestamp.After(history[n-1].Timestamp) {
			return illegal("entry does not follow the stored history")
		}
	}
	return nil
}

// ValidateOfferCommit checks that c moves current along an edge of the offer
// state machine. Both store implementations call it before writing.
func ValidateOfferCommit(current models.Offer, c OfferCommit) error {
	if current.Version != c.ExpectedVersion {
		return ErrConflict
	}
	next := c.Offer
	if next.ID != current.ID {
		return illegal("offer id mismatch")
	}
	if c.Entry == nil {
		return illegal("offer commit without a history entry")
	}
	if !lifecycle.OfferTransitionAllowed(current.Status, next.Status) {
		return illegal("offer cannot move from %s to %s", current.Status, next.Status)
	}
	switch d := next.FollowUpAttempts - current.FollowUpAttempts; {
	case d == 0:
	case d == 1 && next.Status == models.OfferAwaitingResponse:
	default:
		return illegal("follow-up attempts moved from %d to %d", current.FollowUpAttempts, next.FollowUpAttempts)
	}
	return checkEntry(current.StatusHistory, next.StatusHistory, *c.Entry, string(next.Status))
}

// ValidateAppointmentCommit is the appointment counterpart of
// ValidateOfferCommit. It also enforces that a linked report never changes.
func ValidateAppointmentCommit(current models.Appointment, c AppointmentCommit) error {
	if current.Version != c.ExpectedVersion {
		return ErrConflict
	}
	next := c.Appointment
	if next.ID != current.ID {
		return illegal("appointment id mismatch")
	}
	if c.Entry == nil {
		return illegal("appointment commit without a history entry")
	}
	if !lifecycle.AppointmentTransitionAllowed(current.Status, next.Status) {
		return illegal("appointment cannot move from %s to %s", current.Status, next.Status)
	}
	if current.ReportID != "" && next.ReportID != current.ReportID {
		return illegal("report id is immutable once set")
	}
	return checkEntry(current.StatusHistory, next.StatusHistory, *c.Entry, string(next.Status))
}
