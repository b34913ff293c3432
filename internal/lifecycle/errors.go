// Package lifecycle holds the state machines for offers and appointments.
// Transitions are pure functions: they take an entity value and return the
// next value plus everything that has to be written with it, or a typed
// error. They never mutate their input and never touch storage.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/besikta/inspection-server/internal/models"
)

var (
	// ErrInvalidTransition matches every *InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNotDue means a time-driven transition's threshold has not been reached.
	ErrNotDue = errors.New("transition not due")
	// ErrSchedulerSkew means the current period was already processed; callers
	// log it as a no-op.
	ErrSchedulerSkew = errors.New("already processed for this period")
)

// InvalidTransitionError reports a transition attempted from a state that
// does not define it. From carries the current state for diagnostics.
type InvalidTransitionError struct {
	Entity    models.ResourceKind
	From      string
	Attempted string
	Detail    string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid %s transition %q from %q", e.Entity, e.Attempted, e.From)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is lets errors.Is(err, ErrInvalidTransition) match.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func invalidOffer(from models.OfferStatus, attempted, detail string) error {
	return &InvalidTransitionError{Entity: models.KindOffer, From: string(from), Attempted: attempted, Detail: detail}
}

func invalidAppointment(from models.AppointmentStatus, attempted, detail string) error {
	return &InvalidTransitionError{Entity: models.KindAppointment, From: string(from), Attempted: attempted, Detail: detail}
}

// Actor is whoever a status entry is attributed to.
type Actor struct {
	ID   string
	Name string
}

// System is the actor of scheduler-driven transitions.
var System = Actor{ID: "system", Name: "System"}

// ActorFor attributes a transition to an authenticated principal.
func ActorFor(p models.Principal) Actor {
	name := p.Name
	if name == "" {
		name = p.ID
	}
	return Actor{ID: p.ID, Name: name}
}
