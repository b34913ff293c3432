package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/besikta/inspection-server/internal/models"
)

func scheduledAppointment() models.Appointment {
	return models.Appointment{
		ID:                  "a1",
		BranchID:            "stockholm",
		CreatedBy:           "i1",
		AssignedInspectorID: "i1",
		Status:              models.AppointmentScheduled,
		ScheduledAt:         day(2025, 3, 1),
	}
}

func TestStartThenComplete(t *testing.T) {
	a := scheduledAppointment()
	started, err := StartAppointment(a, inspector, day(2025, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentInProgress, started.Appointment.Status)

	done, err := CompleteAppointment(started.Appointment, inspector, "R1", day(2025, 3, 1).Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentCompleted, done.Appointment.Status)
	assert.Equal(t, "R1", done.Appointment.ReportID)
	assert.Len(t, done.Appointment.StatusHistory, 2)
	assert.NoError(t, VerifyHistory(done.Appointment.StatusHistory))

	_, err = CompleteAppointment(a, inspector, "R1", day(2025, 3, 1))
	assert.ErrorIs(t, err, ErrInvalidTransition, "complete requires in_progress")
}

func TestCompleteDirectlyIsPolicyGated(t *testing.T) {
	a := scheduledAppointment()

	_, err := CompleteAppointmentDirectly(a, AppointmentPolicy{}, inspector, "R1", day(2025, 3, 1))
	require.ErrorIs(t, err, ErrInvalidTransition)

	c, err := CompleteAppointmentDirectly(a, AppointmentPolicy{AllowDirectCompletion: true}, inspector, "R1", day(2025, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentCompleted, c.Appointment.Status)
	assert.Len(t, c.Appointment.StatusHistory, 1)

	started, err := StartAppointment(a, inspector, day(2025, 3, 1))
	require.NoError(t, err)
	_, err = CompleteAppointmentDirectly(started.Appointment, AppointmentPolicy{AllowDirectCompletion: true}, inspector, "R1", day(2025, 3, 1))
	assert.ErrorIs(t, err, ErrInvalidTransition, "direct completion only leaves scheduled")
}

func TestReportIDIsImmutable(t *testing.T) {
	started, err := StartAppointment(scheduledAppointment(), inspector, day(2025, 3, 1))
	require.NoError(t, err)
	done, err := CompleteAppointment(started.Appointment, inspector, "R1", day(2025, 3, 1))
	require.NoError(t, err)

	_, err = AssignReport(done.Appointment, "R2")
	var ite *InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, string(models.AppointmentCompleted), ite.From)
	assert.Equal(t, AppointmentAssignReport, ite.Attempted)

	same, err := AssignReport(done.Appointment, "R1")
	require.NoError(t, err)
	assert.False(t, same.Changed())
	assert.Equal(t, "R1", same.Appointment.ReportID)

	_, err = AssignReport(started.Appointment, "R1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelAndNoShow(t *testing.T) {
	a := scheduledAppointment()

	cancelled, err := CancelAppointment(a, inspector, "customer rescheduled", day(2025, 2, 28))
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentCancelled, cancelled.Appointment.Status)
	assert.Equal(t, "customer rescheduled", cancelled.Entry.Reason)

	noShow, err := MarkNoShow(a, inspector, day(2025, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentNoShow, noShow.Appointment.Status)

	started, err := StartAppointment(a, inspector, day(2025, 3, 1))
	require.NoError(t, err)
	_, err = CancelAppointment(started.Appointment, inspector, "", day(2025, 3, 1))
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = MarkNoShow(started.Appointment, inspector, day(2025, 3, 1))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTerminalAppointments(t *testing.T) {
	a := scheduledAppointment()
	cancelled, err := CancelAppointment(a, inspector, "", day(2025, 3, 1))
	require.NoError(t, err)
	noShow, err := MarkNoShow(a, inspector, day(2025, 3, 1))
	require.NoError(t, err)
	done, err := CompleteAppointmentDirectly(a, AppointmentPolicy{AllowDirectCompletion: true}, inspector, "R1", day(2025, 3, 1))
	require.NoError(t, err)

	now := day(2025, 3, 2)
	policy := AppointmentPolicy{AllowDirectCompletion: true}
	for _, terminal := range []models.Appointment{cancelled.Appointment, noShow.Appointment, done.Appointment} {
		_, err := StartAppointment(terminal, inspector, now)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		_, err = CompleteAppointment(terminal, inspector, "", now)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		_, err = CompleteAppointmentDirectly(terminal, policy, inspector, "", now)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		_, err = CancelAppointment(terminal, inspector, "", now)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		_, err = MarkNoShow(terminal, inspector, now)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}
}

func TestAppointmentTransitionAllowed(t *testing.T) {
	assert.True(t, AppointmentTransitionAllowed(models.AppointmentScheduled, models.AppointmentInProgress))
	assert.True(t, AppointmentTransitionAllowed(models.AppointmentInProgress, models.AppointmentCompleted))
	assert.False(t, AppointmentTransitionAllowed(models.AppointmentInProgress, models.AppointmentCancelled))
	assert.False(t, AppointmentTransitionAllowed(models.AppointmentCompleted, models.AppointmentScheduled))
}
