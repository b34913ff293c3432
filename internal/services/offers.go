package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/besikta/inspection-server/internal/authz"
	"github.com/besikta/inspection-server/internal/lifecycle"
	"github.com/besikta/inspection-server/internal/models"
	"github.com/besikta/inspection-server/internal/store"
)

// OfferService handles offer business logic
type OfferService struct {
	Deps
	policy lifecycle.FollowUpPolicy
}

// NewOfferService creates a new offer service
func NewOfferService(deps Deps, policy lifecycle.FollowUpPolicy) *OfferService {
	return &OfferService{Deps: deps, policy: policy}
}

// Policy returns the follow-up policy the scheduled transitions use.
func (s *OfferService) Policy() lifecycle.FollowUpPolicy {
	return s.policy
}

// Get returns an offer the caller may read.
func (s *OfferService) Get(ctx context.Context, pc authz.PermissionContext, id string) (models.Offer, error) {
	o, err := s.Store.GetOffer(ctx, id)
	if err != nil {
		return models.Offer{}, err
	}
	if err := authz.Authorize(pc, o.Resource(), authz.OpRead); err != nil {
		return models.Offer{}, err
	}
	return o, nil
}

// Create drafts a pending offer for a report. The offer takes the report's
// branch and company, and the caller must be allowed to update the report
// since the offer drives its offer status.
func (s *OfferService) Create(ctx context.Context, pc authz.PermissionContext, req models.NewOffer) (models.Offer, error) {
	if req.ReportID == "" {
		return models.Offer{}, invalid("report_id is required")
	}
	now := s.now()
	if !req.ValidUntil.After(now) {
		return models.Offer{}, invalid("valid_until must be in the future")
	}
	report, err := s.Store.GetReport(ctx, req.ReportID)
	if err != nil {
		return models.Offer{}, err
	}
	if req.BranchID != "" && req.BranchID != report.BranchID {
		return models.Offer{}, invalid("branch_id must match the report's branch")
	}
	if req.CompanyID != "" && req.CompanyID != report.CompanyID {
		return models.Offer{}, invalid("company_id must match the report's company")
	}

	o := models.Offer{
		ID:         uuid.NewString(),
		ReportID:   report.ID,
		BranchID:   report.BranchID,
		CompanyID:  report.CompanyID,
		CreatedBy:  pc.Principal.ID,
		IsPublic:   req.IsPublic,
		Status:     models.OfferPending,
		ValidUntil: req.ValidUntil.UTC(),
		CreatedAt:  now.UTC(),
	}
	if err := authz.Authorize(pc, report.Resource(), authz.OpUpdate); err != nil {
		s.Metrics.Transition(string(models.KindOffer), "create", outcome(err))
		return models.Offer{}, err
	}
	if err := authz.Authorize(pc, o.Resource(), authz.OpCreate); err != nil {
		s.Metrics.Transition(string(models.KindOffer), "create", outcome(err))
		return models.Offer{}, err
	}
	if err := s.Store.CreateOffer(ctx, o); err != nil {
		return models.Offer{}, fmt.Errorf("create offer: %w", err)
	}
	s.Metrics.Transition(string(models.KindOffer), "create", outcome(nil))
	s.Logger.Infow("Offer created",
		"offer_id", o.ID,
		"report_id", o.ReportID,
		"branch_id", o.BranchID,
		"request_id", pc.RequestID,
	)
	return o, nil
}

// Send moves a pending offer to awaiting_response.
func (s *OfferService) Send(ctx context.Context, pc authz.PermissionContext, id string) (models.Offer, error) {
	by := lifecycle.ActorFor(pc.Principal)
	return s.apply(ctx, &pc, id, lifecycle.OfferSend, func(o models.Offer) (lifecycle.OfferChange, error) {
		return lifecycle.SendOffer(o, by, s.now())
	})
}

// Accept records the customer's acceptance.
func (s *OfferService) Accept(ctx context.Context, pc authz.PermissionContext, id string) (models.Offer, error) {
	by := lifecycle.ActorFor(pc.Principal)
	return s.apply(ctx, &pc, id, lifecycle.OfferAccept, func(o models.Offer) (lifecycle.OfferChange, error) {
		return lifecycle.AcceptOffer(o, by, s.now())
	})
}

// Reject records the customer's rejection.
func (s *OfferService) Reject(ctx context.Context, pc authz.PermissionContext, id, reason string) (models.Offer, error) {
	by := lifecycle.ActorFor(pc.Principal)
	return s.apply(ctx, &pc, id, lifecycle.OfferReject, func(o models.Offer) (lifecycle.OfferChange, error) {
		return lifecycle.RejectOffer(o, by, reason, s.now())
	})
}

// History returns the status history of an offer the caller may read.
func (s *OfferService) History(ctx context.Context, pc authz.PermissionContext, id string) ([]models.HistoryRecord, error) {
	if _, err := s.Get(ctx, pc, id); err != nil {
		return nil, err
	}
	return s.Store.ListHistory(ctx, models.KindOffer, id)
}

// applySystem runs a scheduler transition. There is no principal to
// authorize; the entry is attributed to the system actor by the transition.
func (s *OfferService) applySystem(ctx context.Context, id, name string, transition func(models.Offer) (lifecycle.OfferChange, error)) (models.Offer, error) {
	return s.apply(ctx, nil, id, name, transition)
}

// apply is the read, evaluate, transition, commit cycle. A version conflict
// restarts the cycle from the read, at most CommitRetries times.
func (s *OfferService) apply(ctx context.Context, pc *authz.PermissionContext, id, name string, transition func(models.Offer) (lifecycle.OfferChange, error)) (models.Offer, error) {
	var err error
	for attempt := 0; attempt <= s.retries(); attempt++ {
		var stored models.Offer
		var change lifecycle.OfferChange
		stored, change, err = s.applyOnce(ctx, pc, id, transition)
		if errors.Is(err, store.ErrConflict) {
			s.Logger.Debugw("Offer commit conflict, retrying", "offer_id", id, "transition", name, "attempt", attempt)
			continue
		}
		s.Metrics.Transition(string(models.KindOffer), name, outcome(err))
		if err != nil {
			return models.Offer{}, err
		}
		s.Logger.Infow("Offer transition",
			"offer_id", id,
			"transition", name,
			"status", stored.Status,
			"version", stored.Version,
		)
		s.dispatch(ctx, change.Notifications)
		return stored, nil
	}
	s.Metrics.Transition(string(models.KindOffer), name, outcome(err))
	return models.Offer{}, fmt.Errorf("offer %s %s: %w", id, name, err)
}

func (s *OfferService) applyOnce(ctx context.Context, pc *authz.PermissionContext, id string, transition func(models.Offer) (lifecycle.OfferChange, error)) (models.Offer, lifecycle.OfferChange, error) {
	o, err := s.Store.GetOffer(ctx, id)
	if err != nil {
		return models.Offer{}, lifecycle.OfferChange{}, err
	}
	if pc != nil {
		if err := authz.Authorize(*pc, o.Resource(), authz.OpUpdate); err != nil {
			return models.Offer{}, lifecycle.OfferChange{}, err
		}
	}
	change, err := transition(o)
	if err != nil {
		return models.Offer{}, lifecycle.OfferChange{}, err
	}
	stored, err := s.Store.CommitOffer(ctx, store.OfferCommit{
		Offer:             change.Offer,
		ExpectedVersion:   o.Version,
		Entry:             change.Entry,
		ReportOfferStatus: change.ReportOfferStatus,
	})
	if err != nil {
		return models.Offer{}, lifecycle.OfferChange{}, err
	}
	return stored, change, nil
}
