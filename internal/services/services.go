// Package services contains the business logic layer.
// Services are called by handlers and the scheduler; every mutating call
// reads the entity, evaluates the caller's permission, runs the lifecycle
// transition and commits the result, retrying on version conflicts.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/besikta/inspection-server/internal/authz"
	"github.com/besikta/inspection-server/internal/lifecycle"
	"github.com/besikta/inspection-server/internal/metrics"
	"github.com/besikta/inspection-server/internal/models"
	"github.com/besikta/inspection-server/internal/notify"
	"github.com/besikta/inspection-server/internal/store"
)

// ErrValidation marks malformed requests.
var ErrValidation = errors.New("invalid request")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Deps are the collaborators shared by all services.
type Deps struct {
	Store    store.Store
	Notifier notify.Dispatcher
	Metrics  *metrics.Metrics
	Logger   *zap.SugaredLogger
	// CommitRetries bounds how often a conflicting commit is re-read and
	// re-applied before Conflict surfaces.
	CommitRetries int
	Now           func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) retries() int {
	if d.CommitRetries < 0 {
		return 0
	}
	return d.CommitRetries
}

// outcome labels an error for the transition metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, authz.ErrPermissionDenied):
		return "denied"
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return "invalid"
	case errors.Is(err, lifecycle.ErrNotDue):
		return "not_due"
	case errors.Is(err, lifecycle.ErrSchedulerSkew):
		return "skew"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	}
	return "error"
}

// dispatch hands notifications to the sender after the commit. A failed
// dispatch is logged; the committed transition stands and is not retried.
func (d Deps) dispatch(ctx context.Context, ns []models.Notification) {
	for _, n := range ns {
		if err := d.Notifier.Dispatch(ctx, n); err != nil {
			d.Logger.Errorw("Failed to dispatch notification",
				"error", err,
				"notification_id", n.ID,
				"kind", n.Kind,
				"offer_id", n.OfferID,
			)
		}
	}
}
