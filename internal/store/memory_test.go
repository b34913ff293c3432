package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/besikta/inspection-server/internal/lifecycle"
	"github.com/besikta/inspection-server/internal/models"
)

var (
	t0    = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	actor = lifecycle.Actor{ID: "i1", Name: "Ida"}
)

func seedOffer(t *testing.T, m *Memory) models.Offer {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, m.CreateReport(ctx, models.Report{ID: "r1", BranchID: "b1", CreatedBy: "i1"}))
	o := models.Offer{
		ID:         "o1",
		ReportID:   "r1",
		BranchID:   "b1",
		CreatedBy:  "i1",
		Status:     models.OfferPending,
		ValidUntil: t0.AddDate(0, 1, 0),
		CreatedAt:  t0,
	}
	require.NoError(t, m.CreateOffer(ctx, o))
	return o
}

func commitChange(ctx context.Context, m *Memory, version int64, c lifecycle.OfferChange) (models.Offer, error) {
	return m.CommitOffer(ctx, OfferCommit{
		Offer:             c.Offer,
		ExpectedVersion:   version,
		Entry:             c.Entry,
		ReportOfferStatus: c.ReportOfferStatus,
	})
}

func TestMemoryCommitOffer(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	o := seedOffer(t, m)

	sent, err := lifecycle.SendOffer(o, actor, t0)
	require.NoError(t, err)
	stored, err := commitChange(ctx, m, 0, sent)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	assert.Equal(t, models.OfferAwaitingResponse, stored.Status)

	accepted, err := lifecycle.AcceptOffer(stored, actor, t0.Add(time.Hour))
	require.NoError(t, err)
	stored, err = commitChange(ctx, m, stored.Version, accepted)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)

	report, err := m.GetReport(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.OfferAccepted, report.OfferStatus)

	history, err := m.ListHistory(ctx, models.KindOffer, "o1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 0, history[0].Seq)
	assert.Equal(t, 1, history[1].Seq)
	assert.Equal(t, string(models.OfferAccepted), history[1].Status)

	hashes, err := m.AllHistoryHashes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{history[0].Hash, history[1].Hash}, hashes)
}

func TestMemoryCommitConflict(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	o := seedOffer(t, m)

	sent, err := lifecycle.SendOffer(o, actor, t0)
	require.NoError(t, err)
	_, err = commitChange(ctx, m, 0, sent)
	require.NoError(t, err)

	_, err = commitChange(ctx, m, 0, sent)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemoryRefusesIllegalCommits(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	o := seedOffer(t, m)

	t.Run("status change without entry", func(t *testing.T) {
		next := o.Clone()
		next.Status = models.OfferAccepted
		_, err := m.CommitOffer(ctx, OfferCommit{Offer: next})
		assert.ErrorIs(t, err, ErrIllegalCommit)
	})

	t.Run("edge outside the state machine", func(t *testing.T) {
		sent, err := lifecycle.SendOffer(o, actor, t0)
		require.NoError(t, err)
		forged := sent
		forged.Offer.Status = models.OfferAccepted
		forged.Offer.StatusHistory[0].Status = string(models.OfferAccepted)
		_, err = commitChange(ctx, m, 0, forged)
		assert.ErrorIs(t, err, ErrIllegalCommit)
	})

	t.Run("attempt counter bumped outside follow-up", func(t *testing.T) {
		next := o.Clone()
		next.FollowUpAttempts = 2
		_, err := m.CommitOffer(ctx, OfferCommit{Offer: next})
		assert.ErrorIs(t, err, ErrIllegalCommit)
	})

	stored, err := m.GetOffer(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OfferPending, stored.Status)
	assert.Equal(t, int64(0), stored.Version)
}

func TestMemoryEscalationIsRecorded(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	o := seedOffer(t, m)
	policy := lifecycle.DefaultFollowUpPolicy()

	sent, err := lifecycle.SendOffer(o, actor, t0)
	require.NoError(t, err)
	stored, err := commitChange(ctx, m, 0, sent)
	require.NoError(t, err)

	escalated, err := lifecycle.EscalateOffer(stored, policy, t0.AddDate(0, 0, 14))
	require.NoError(t, err)

	silent := escalated
	silent.Entry = nil
	silent.Offer.StatusHistory = stored.StatusHistory
	_, err = commitChange(ctx, m, stored.Version, silent)
	assert.ErrorIs(t, err, ErrIllegalCommit, "escalation must leave a history entry")

	stored, err = commitChange(ctx, m, stored.Version, escalated)
	require.NoError(t, err)
	require.NotNil(t, stored.EscalatedAt)

	history, err := m.ListHistory(ctx, models.KindOffer, o.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, string(models.OfferAwaitingResponse), history[1].Status)
	assert.Equal(t, "escalated", history[1].Reason)
	assert.Equal(t, "system", history[1].ChangedBy)
}

func TestMemoryConcurrentCommitsOneWins(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	o := seedOffer(t, m)
	sent, err := lifecycle.SendOffer(o, actor, t0)
	require.NoError(t, err)
	stored, err := commitChange(ctx, m, 0, sent)
	require.NoError(t, err)

	accept, err := lifecycle.AcceptOffer(stored, actor, t0.Add(time.Hour))
	require.NoError(t, err)
	reject, err := lifecycle.RejectOffer(stored, actor, "", t0.Add(time.Hour))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, c := range []lifecycle.OfferChange{accept, reject} {
		wg.Add(1)
		go func(i int, c lifecycle.OfferChange) {
			defer wg.Done()
			_, errs[i] = commitChange(ctx, m, stored.Version, c)
		}(i, c)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrConflict)
		}
	}
	assert.Equal(t, 1, wins)

	history, err := m.ListHistory(ctx, models.KindOffer, o.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestMemoryAppointmentReportImmutable(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a := models.Appointment{ID: "a1", BranchID: "b1", Status: models.AppointmentScheduled, ScheduledAt: t0}
	require.NoError(t, m.CreateAppointment(ctx, a))

	done, err := lifecycle.CompleteAppointmentDirectly(a, lifecycle.AppointmentPolicy{AllowDirectCompletion: true}, actor, "R1", t0)
	require.NoError(t, err)
	stored, err := m.CommitAppointment(ctx, AppointmentCommit{Appointment: done.Appointment, Entry: done.Entry})
	require.NoError(t, err)
	assert.Equal(t, "R1", stored.ReportID)

	forged := stored.Clone()
	forged.ReportID = "R2"
	_, err = m.CommitAppointment(ctx, AppointmentCommit{Appointment: forged, ExpectedVersion: stored.Version, Entry: done.Entry})
	assert.ErrorIs(t, err, ErrIllegalCommit)
}

func TestMemoryNotFound(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.GetOffer(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.GetPrincipal(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	err = m.CreateOffer(ctx, models.Offer{ID: "o1", ReportID: "nope"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRecentHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	o := seedOffer(t, m)
	sent, err := lifecycle.SendOffer(o, actor, t0)
	require.NoError(t, err)
	stored, err := commitChange(ctx, m, 0, sent)
	require.NoError(t, err)
	rejected, err := lifecycle.RejectOffer(stored, actor, "no", t0.Add(time.Minute))
	require.NoError(t, err)
	_, err = commitChange(ctx, m, stored.Version, rejected)
	require.NoError(t, err)

	recent, err := m.RecentHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, string(models.OfferRejected), recent[0].Status)
}
