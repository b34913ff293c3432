package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/besikta/inspection-server/internal/authz"
	"github.com/besikta/inspection-server/internal/lifecycle"
	"github.com/besikta/inspection-server/internal/models"
	"github.com/besikta/inspection-server/internal/store"
)

func (f *fixture) scheduledAppointment(t *testing.T) models.Appointment {
	t.Helper()
	a, err := f.appointments.Create(context.Background(), pc(f.inspector), models.NewAppointment{
		BranchID:    "stockholm",
		CompanyID:   "acme",
		ScheduledAt: day(2025, 1, 10),
	})
	require.NoError(t, err)
	return a
}

func TestAppointmentLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.scheduledAppointment(t)
	assert.Equal(t, models.AppointmentScheduled, a.Status)
	assert.Equal(t, "i1", a.AssignedInspectorID, "inspector defaults to the caller")

	a, err := f.appointments.Start(ctx, pc(f.inspector), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentInProgress, a.Status)

	a, err = f.appointments.Complete(ctx, pc(f.inspector), a.ID, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentCompleted, a.Status)
	assert.Equal(t, "r1", a.ReportID)

	history, err := f.appointments.History(ctx, pc(f.admin), a.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, string(models.AppointmentInProgress), history[0].Status)
	assert.Equal(t, string(models.AppointmentCompleted), history[1].Status)
}

func TestAppointmentReportIsImmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.scheduledAppointment(t)
	_, err := f.appointments.Start(ctx, pc(f.inspector), a.ID)
	require.NoError(t, err)
	done, err := f.appointments.Complete(ctx, pc(f.inspector), a.ID, "r1")
	require.NoError(t, err)

	_, err = f.appointments.AssignReport(ctx, pc(f.inspector), a.ID, "r2")
	var invalid *lifecycle.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, string(models.AppointmentCompleted), invalid.From)
	assert.Equal(t, lifecycle.AppointmentAssignReport, invalid.Attempted)

	same, err := f.appointments.AssignReport(ctx, pc(f.inspector), a.ID, "r1")
	require.NoError(t, err)
	assert.Equal(t, done.Version, same.Version, "repeating the linked report writes nothing")

	stored, err := f.store.GetAppointment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "r1", stored.ReportID)
}

func TestCompleteDirectly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.scheduledAppointment(t)
	_, err := f.appointments.CompleteDirectly(ctx, pc(f.inspector), a.ID, "r1")
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition, "disabled by default")

	allowing := NewAppointmentService(f.deps(f.store), lifecycle.AppointmentPolicy{AllowDirectCompletion: true})
	done, err := allowing.CompleteDirectly(ctx, pc(f.inspector), a.ID, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentCompleted, done.Status)
	require.Len(t, done.StatusHistory, 1)
	assert.Equal(t, string(models.AppointmentCompleted), done.StatusHistory[0].Status)
}

func TestCompleteRequiresReadableReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.CreateReport(ctx, models.Report{ID: "r9", BranchID: "goteborg", CompanyID: "globex", CreatedBy: "i2"}))
	a := f.scheduledAppointment(t)
	_, err := f.appointments.Start(ctx, pc(f.inspector), a.ID)
	require.NoError(t, err)

	_, err = f.appointments.Complete(ctx, pc(f.inspector), a.ID, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.appointments.Complete(ctx, pc(f.inspector), a.ID, "r9")
	var denied *authz.PermissionDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, authz.ReasonBranchMismatch, denied.Reason)

	allowing := NewAppointmentService(f.deps(f.store), lifecycle.AppointmentPolicy{AllowDirectCompletion: true})
	other := f.scheduledAppointment(t)
	_, err = allowing.CompleteDirectly(ctx, pc(f.inspector), other.ID, "r9")
	assert.ErrorIs(t, err, authz.ErrPermissionDenied)

	stored, err := f.store.GetAppointment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentInProgress, stored.Status)
	assert.Empty(t, stored.ReportID)
}

func TestCancelAndNoShowAreTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cancelled := f.scheduledAppointment(t)
	got, err := f.appointments.Cancel(ctx, pc(f.admin), cancelled.ID, "customer request")
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentCancelled, got.Status)
	assert.Equal(t, "customer request", got.StatusHistory[0].Reason)

	missed := f.scheduledAppointment(t)
	got, err = f.appointments.NoShow(ctx, pc(f.inspector), missed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentNoShow, got.Status)

	for _, id := range []string{cancelled.ID, missed.ID} {
		_, err := f.appointments.Start(ctx, pc(f.admin), id)
		assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
	}
}

func TestAppointmentPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.scheduledAppointment(t)

	_, err := f.appointments.Start(ctx, pc(f.outsider), a.ID)
	assert.ErrorIs(t, err, authz.ErrPermissionDenied)

	_, err = f.appointments.Get(ctx, pc(models.Anonymous()), a.ID)
	assert.ErrorIs(t, err, authz.ErrPermissionDenied, "appointments are never public")

	_, err = f.appointments.Create(ctx, pc(f.outsider), models.NewAppointment{
		BranchID:    "stockholm",
		ScheduledAt: day(2025, 1, 10),
	})
	assert.ErrorIs(t, err, authz.ErrPermissionDenied)

	_, err = f.appointments.Create(ctx, pc(f.inspector), models.NewAppointment{BranchID: "stockholm"})
	assert.ErrorIs(t, err, ErrValidation)
}
