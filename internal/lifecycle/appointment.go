package lifecycle

import (
	"time"

	"github.com/besikta/inspection-server/internal/models"
)

const (
	AppointmentStart            = "start"
	AppointmentComplete         = "complete"
	AppointmentCompleteDirectly = "complete_directly"
	AppointmentCancel           = "cancel"
	AppointmentNoShow           = "no_show"
	AppointmentAssignReport     = "assign_report"
)

// AppointmentPolicy gates the optional shortcut from scheduled straight to
// completed.
type AppointmentPolicy struct {
	AllowDirectCompletion bool
}

var appointmentEdges = map[models.AppointmentStatus][]models.AppointmentStatus{
	models.AppointmentScheduled:  {models.AppointmentInProgress, models.AppointmentCompleted, models.AppointmentCancelled, models.AppointmentNoShow},
	models.AppointmentInProgress: {models.AppointmentCompleted},
}

// AppointmentTransitionAllowed reports whether from → to is an edge of the
// appointment state machine under any policy.
func AppointmentTransitionAllowed(from, to models.AppointmentStatus) bool {
	for _, s := range appointmentEdges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AppointmentChange is the result of an appointment transition.
type AppointmentChange struct {
	Transition  string
	Appointment models.Appointment
	Entry       *models.StatusEntry
}

// Changed reports whether anything has to be written.
func (c AppointmentChange) Changed() bool {
	return c.Entry != nil
}

func moveAppointment(name string, a models.Appointment, to models.AppointmentStatus, by Actor, reason string, now time.Time) AppointmentChange {
	next := a.Clone()
	history, entry := appendEntry(next.StatusHistory, models.StatusEntry{
		Status:        string(to),
		Timestamp:     now,
		ChangedBy:     by.ID,
		ChangedByName: by.Name,
		Reason:        reason,
	})
	next.Status = to
	next.StatusHistory = history
	return AppointmentChange{Transition: name, Appointment: next, Entry: &entry}
}

// StartAppointment begins the on-site inspection.
func StartAppointment(a models.Appointment, by Actor, now time.Time) (AppointmentChange, error) {
	if a.Status != models.AppointmentScheduled {
		return AppointmentChange{}, invalidAppointment(a.Status, AppointmentStart, "")
	}
	return moveAppointment(AppointmentStart, a, models.AppointmentInProgress, by, "", now), nil
}

// CompleteAppointment finishes a started inspection, optionally linking the
// report it produced.
func CompleteAppointment(a models.Appointment, by Actor, reportID string, now time.Time) (AppointmentChange, error) {
	if a.Status != models.AppointmentInProgress {
		return AppointmentChange{}, invalidAppointment(a.Status, AppointmentComplete, "")
	}
	return complete(AppointmentComplete, a, by, reportID, now)
}

// CompleteAppointmentDirectly completes a scheduled appointment without the
// in_progress step. Only permitted when the policy allows it.
func CompleteAppointmentDirectly(a models.Appointment, policy AppointmentPolicy, by Actor, reportID string, now time.Time) (AppointmentChange, error) {
	if a.Status != models.AppointmentScheduled {
		return AppointmentChange{}, invalidAppointment(a.Status, AppointmentCompleteDirectly, "")
	}
	if !policy.AllowDirectCompletion {
		return AppointmentChange{}, invalidAppointment(a.Status, AppointmentCompleteDirectly, "direct completion is disabled")
	}
	return complete(AppointmentCompleteDirectly, a, by, reportID, now)
}

func complete(name string, a models.Appointment, by Actor, reportID string, now time.Time) (AppointmentChange, error) {
	if a.ReportID != "" && reportID != "" && a.ReportID != reportID {
		return AppointmentChange{}, invalidAppointment(a.Status, name, "report is already linked")
	}
	c := moveAppointment(name, a, models.AppointmentCompleted, by, "", now)
	if c.Appointment.ReportID == "" {
		c.Appointment.ReportID = reportID
	}
	return c, nil
}

// CancelAppointment cancels a scheduled appointment.
func CancelAppointment(a models.Appointment, by Actor, reason string, now time.Time) (AppointmentChange, error) {
	if a.Status != models.AppointmentScheduled {
		return AppointmentChange{}, invalidAppointment(a.Status, AppointmentCancel, "")
	}
	return moveAppointment(AppointmentCancel, a, models.AppointmentCancelled, by, reason, now), nil
}

// MarkNoShow records that the customer was not present.
func MarkNoShow(a models.Appointment, by Actor, now time.Time) (AppointmentChange, error) {
	if a.Status != models.AppointmentScheduled {
		return AppointmentChange{}, invalidAppointment(a.Status, AppointmentNoShow, "")
	}
	return moveAppointment(AppointmentNoShow, a, models.AppointmentNoShow, by, "", now), nil
}

// AssignReport re-asserts the report link of a completed appointment. The
// link is fixed when the appointment completes: repeating the same report id
// is a no-op, anything else is an invalid transition.
func AssignReport(a models.Appointment, reportID string) (AppointmentChange, error) {
	if a.Status != models.AppointmentCompleted {
		return AppointmentChange{}, invalidAppointment(a.Status, AppointmentAssignReport, "appointment is not completed")
	}
	if reportID == "" || a.ReportID != reportID {
		return AppointmentChange{}, invalidAppointment(a.Status, AppointmentAssignReport, "report id is immutable once set")
	}
	return AppointmentChange{Transition: AppointmentAssignReport, Appointment: a.Clone()}, nil
}
