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

// AppointmentService handles appointment business logic
type AppointmentService struct {
	Deps
	policy lifecycle.AppointmentPolicy
}

// NewAppointmentService creates a new appointment service
func NewAppointmentService(deps Deps, policy lifecycle.AppointmentPolicy) *AppointmentService {
	return &AppointmentService{Deps: deps, policy: policy}
}

func (s *AppointmentService) Get(ctx context.Context, pc authz.PermissionContext, id string) (models.Appointment, error) {
	a, err := s.Store.GetAppointment(ctx, id)
	if err != nil {
		return models.Appointment{}, err
	}
	if err := authz.Authorize(pc, a.Resource(), authz.OpRead); err != nil {
		return models.Appointment{}, err
	}
	return a, nil
}

// Create books a scheduled appointment. The inspector defaults to the
// caller.
func (s *AppointmentService) Create(ctx context.Context, pc authz.PermissionContext, req models.NewAppointment) (models.Appointment, error) {
	if req.ScheduledAt.IsZero() {
		return models.Appointment{}, invalid("scheduled_at is required")
	}
	a := models.Appointment{
		ID:                  uuid.NewString(),
		BranchID:            req.BranchID,
		CompanyID:           req.CompanyID,
		CreatedBy:           pc.Principal.ID,
		Status:              models.AppointmentScheduled,
		AssignedInspectorID: req.AssignedInspectorID,
		ScheduledAt:         req.ScheduledAt.UTC(),
		CreatedAt:           s.now().UTC(),
	}
	if a.AssignedInspectorID == "" {
		a.AssignedInspectorID = pc.Principal.ID
	}
	if err := authz.Authorize(pc, a.Resource(), authz.OpCreate); err != nil {
		s.Metrics.Transition(string(models.KindAppointment), "create", outcome(err))
		return models.Appointment{}, err
	}
	if err := s.Store.CreateAppointment(ctx, a); err != nil {
		return models.Appointment{}, fmt.Errorf("create appointment: %w", err)
	}
	s.Metrics.Transition(string(models.KindAppointment), "create", outcome(nil))
	s.Logger.Infow("Appointment created",
		"appointment_id", a.ID,
		"branch_id", a.BranchID,
		"scheduled_at", a.ScheduledAt,
		"request_id", pc.RequestID,
	)
	return a, nil
}

func (s *AppointmentService) Start(ctx context.Context, pc authz.PermissionContext, id string) (models.Appointment, error) {
	by := lifecycle.ActorFor(pc.Principal)
	return s.apply(ctx, pc, id, lifecycle.AppointmentStart, func(a models.Appointment) (lifecycle.AppointmentChange, error) {
		return lifecycle.StartAppointment(a, by, s.now())
	})
}

// Complete finishes an in-progress appointment and links reportID, which
// must name a report the caller can read.
func (s *AppointmentService) Complete(ctx context.Context, pc authz.PermissionContext, id, reportID string) (models.Appointment, error) {
	if err := s.checkReport(ctx, pc, reportID); err != nil {
		return models.Appointment{}, err
	}
	by := lifecycle.ActorFor(pc.Principal)
	return s.apply(ctx, pc, id, lifecycle.AppointmentComplete, func(a models.Appointment) (lifecycle.AppointmentChange, error) {
		return lifecycle.CompleteAppointment(a, by, reportID, s.now())
	})
}

// CompleteDirectly skips in_progress when the deployment allows it.
func (s *AppointmentService) CompleteDirectly(ctx context.Context, pc authz.PermissionContext, id, reportID string) (models.Appointment, error) {
	if err := s.checkReport(ctx, pc, reportID); err != nil {
		return models.Appointment{}, err
	}
	by := lifecycle.ActorFor(pc.Principal)
	return s.apply(ctx, pc, id, lifecycle.AppointmentCompleteDirectly, func(a models.Appointment) (lifecycle.AppointmentChange, error) {
		return lifecycle.CompleteAppointmentDirectly(a, s.policy, by, reportID, s.now())
	})
}

func (s *AppointmentService) Cancel(ctx context.Context, pc authz.PermissionContext, id, reason string) (models.Appointment, error) {
	by := lifecycle.ActorFor(pc.Principal)
	return s.apply(ctx, pc, id, lifecycle.AppointmentCancel, func(a models.Appointment) (lifecycle.AppointmentChange, error) {
		return lifecycle.CancelAppointment(a, by, reason, s.now())
	})
}

func (s *AppointmentService) NoShow(ctx context.Context, pc authz.PermissionContext, id string) (models.Appointment, error) {
	by := lifecycle.ActorFor(pc.Principal)
	return s.apply(ctx, pc, id, lifecycle.AppointmentNoShow, func(a models.Appointment) (lifecycle.AppointmentChange, error) {
		return lifecycle.MarkNoShow(a, by, s.now())
	})
}

// AssignReport confirms the report of a completed appointment. Only the
// already linked report id is accepted and nothing is written.
func (s *AppointmentService) AssignReport(ctx context.Context, pc authz.PermissionContext, id, reportID string) (models.Appointment, error) {
	return s.apply(ctx, pc, id, lifecycle.AppointmentAssignReport, func(a models.Appointment) (lifecycle.AppointmentChange, error) {
		return lifecycle.AssignReport(a, reportID)
	})
}

func (s *AppointmentService) checkReport(ctx context.Context, pc authz.PermissionContext, reportID string) error {
	if reportID == "" {
		return nil
	}
	report, err := s.Store.GetReport(ctx, reportID)
	if err != nil {
		return fmt.Errorf("report %s: %w", reportID, err)
	}
	return authz.Authorize(pc, report.Resource(), authz.OpRead)
}

// History returns the status history of an appointment the caller may read.
func (s *AppointmentService) History(ctx context.Context, pc authz.PermissionContext, id string) ([]models.HistoryRecord, error) {
	if _, err := s.Get(ctx, pc, id); err != nil {
		return nil, err
	}
	return s.Store.ListHistory(ctx, models.KindAppointment, id)
}

func (s *AppointmentService) apply(ctx context.Context, pc authz.PermissionContext, id, name string, transition func(models.Appointment) (lifecycle.AppointmentChange, error)) (models.Appointment, error) {
	var err error
	for attempt := 0; attempt <= s.retries(); attempt++ {
		var stored models.Appointment
		stored, err = s.applyOnce(ctx, pc, id, transition)
		if errors.Is(err, store.ErrConflict) {
			s.Logger.Debugw("Appointment commit conflict, retrying", "appointment_id", id, "transition", name, "attempt", attempt)
			continue
		}
		s.Metrics.Transition(string(models.KindAppointment), name, outcome(err))
		if err != nil {
			return models.Appointment{}, err
		}
		s.Logger.Infow("Appointment transition",
			"appointment_id", id,
			"transition", name,
			"status", stored.Status,
			"request_id", pc.RequestID,
		)
		return stored, nil
	}
	s.Metrics.Transition(string(models.KindAppointment), name, outcome(err))
	return models.Appointment{}, fmt.Errorf("appointment %s %s: %w", id, name, err)
}

func (s *AppointmentService) applyOnce(ctx context.Context, pc authz.PermissionContext, id string, transition func(models.Appointment) (lifecycle.AppointmentChange, error)) (models.Appointment, error) {
	a, err := s.Store.GetAppointment(ctx, id)
	if err != nil {
		return models.Appointment{}, err
	}
	if err := authz.Authorize(pc, a.Resource(), authz.OpUpdate); err != nil {
		return models.Appointment{}, err
	}
	change, err := transition(a)
	if err != nil {
		return models.Appointment{}, err
	}
	if !change.Changed() {
		return change.Appointment, nil
	}
	return s.Store.CommitAppointment(ctx, store.AppointmentCommit{
		Appointment:     change.Appointment,
		ExpectedVersion: a.Version,
		Entry:           change.Entry,
	})
}
