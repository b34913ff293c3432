package models

import "time"

// AppointmentStatus is the lifecycle state of an inspection appointment
type AppointmentStatus string

const (
	AppointmentScheduled  AppointmentStatus = "scheduled"
	AppointmentInProgress AppointmentStatus = "in_progress"
	AppointmentCompleted  AppointmentStatus = "completed"
	AppointmentCancelled  AppointmentStatus = "cancelled"
	AppointmentNoShow     AppointmentStatus = "no_show"
)

// Terminal reports whether no status transition leaves the status.
func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentCompleted || s == AppointmentCancelled || s == AppointmentNoShow
}

// Appointment is an on-site inspection visit.
type Appointment struct {
	ID                  string            `json:"id"`
	BranchID            string            `json:"branch_id,omitempty"`
	CompanyID           string            `json:"company_id,omitempty"`
	CreatedBy           string            `json:"created_by"`
	Status              AppointmentStatus `json:"status"`
	ReportID            string            `json:"report_id,omitempty"`
	AssignedInspectorID string            `json:"assigned_inspector_id"`
	ScheduledAt         time.Time         `json:"scheduled_at"`
	StatusHistory       []StatusEntry     `json:"status_history"`
	Version             int64             `json:"version"`
	CreatedAt           time.Time         `json:"created_at"`
}

// Resource projects the appointment for authorization.
func (a Appointment) Resource() Resource {
	return Resource{
		ID:        a.ID,
		Kind:      KindAppointment,
		BranchID:  a.BranchID,
		CompanyID: a.CompanyID,
		CreatedBy: a.CreatedBy,
	}
}

// Clone returns a deep copy of the appointment.
func (a Appointment) Clone() Appointment {
	c := a
	c.StatusHistory = append([]StatusEntry(nil), a.StatusHistory...)
	return c
}

// NewAppointment is the request body for booking an appointment
type NewAppointment struct {
	BranchID            string    `json:"branch_id"`
	CompanyID           string    `json:"company_id"`
	AssignedInspectorID string    `json:"assigned_inspector_id"`
	ScheduledAt         time.Time `json:"scheduled_at"`
}
