// Package store defines the persistence contract of the core. Entity status
// is written only through Commit calls, which are compare-and-set on the
// entity version and carry the history entry and any report propagation so
// they land as one unit.
package store

import (
	"context"
	"errors"

	"github.com/besikta/inspection-server/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means the entity changed since it was read.
	ErrConflict = errors.New("version conflict")
	// ErrIllegalCommit means the commit does not describe a lifecycle
	// transition the store accepts.
	ErrIllegalCommit = errors.New("illegal commit")
)

// OfferCommit is the write produced by one offer transition.
type OfferCommit struct {
	Offer           models.Offer
	ExpectedVersion int64
	// Entry is the appended history entry. Every transition records one,
	// including those that keep the status (follow-up, escalation).
	Entry             *models.StatusEntry
	ReportOfferStatus models.OfferStatus
}

// AppointmentCommit is the write produced by one appointment transition.
type AppointmentCommit struct {
	Appointment     models.Appointment
	ExpectedVersion int64
	Entry           *models.StatusEntry
}

type OfferStore interface {
	CreateOffer(ctx context.Context, o models.Offer) error
	GetOffer(ctx context.Context, id string) (models.Offer, error)
	ListOffersByStatus(ctx context.Context, status models.OfferStatus) ([]models.Offer, error)
	// CommitOffer applies c and returns the stored offer with its new
	// version. ErrConflict when ExpectedVersion is stale.
	CommitOffer(ctx context.Context, c OfferCommit) (models.Offer, error)
}

type AppointmentStore interface {
	CreateAppointment(ctx context.Context, a models.Appointment) error
	GetAppointment(ctx context.Context, id string) (models.Appointment, error)
	CommitAppointment(ctx context.Context, c AppointmentCommit) (models.Appointment, error)
}

type ReportStore interface {
	CreateReport(ctx context.Context, r models.Report) error
	GetReport(ctx context.Context, id string) (models.Report, error)
}

type CustomerStore interface {
	CreateCustomer(ctx context.Context, c models.Customer) error
	GetCustomer(ctx context.Context, id string) (models.Customer, error)
}

// PrincipalStore holds the canonical principal records tokens are checked
// against.
type PrincipalStore interface {
	SavePrincipal(ctx context.Context, p models.Principal) error
	GetPrincipal(ctx context.Context, id string) (models.Principal, error)
}

// HistoryReader serves the audit feed.
type HistoryReader interface {
	ListHistory(ctx context.Context, kind models.ResourceKind, entityID string) ([]models.HistoryRecord, error)
	RecentHistory(ctx context.Context, limit int) ([]models.HistoryRecord, error)
	// AllHistoryHashes returns every entry hash in insertion order.
	AllHistoryHashes(ctx context.Context) ([]string, error)
}

// Store is everything the services need from persistence.
type Store interface {
	OfferStore
	AppointmentStore
	ReportStore
	CustomerStore
	PrincipalStore
	HistoryReader
	Ping(ctx context.Context) error
}
