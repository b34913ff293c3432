package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/besikta/inspection-server/internal/authz"
	"github.com/besikta/inspection-server/internal/models"
)

func TestRecentHistoryIsFiltered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.CreateReport(ctx, models.Report{ID: "r2", BranchID: "goteborg", CreatedBy: "i2"}))

	local := f.sentOffer(t)
	remote, err := f.offers.Create(ctx, pc(f.outsider), models.NewOffer{ReportID: "r2", ValidUntil: day(2025, 1, 31)})
	require.NoError(t, err)
	_, err = f.offers.Send(ctx, pc(f.outsider), remote.ID)
	require.NoError(t, err)

	records, err := f.history.Recent(ctx, pc(f.inspector), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, local.ID, records[0].EntityID)

	records, err = f.history.Recent(ctx, pc(f.superadmin), 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, remote.ID, records[0].EntityID, "newest first")

	records, err = f.history.Recent(ctx, pc(models.Anonymous()), 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestVerifyHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.sentOffer(t)
	_, err := f.offers.Accept(ctx, pc(f.customer), o.ID)
	require.NoError(t, err)

	assert.NoError(t, f.history.Verify(ctx, pc(f.admin), models.KindOffer, o.ID))
	assert.ErrorIs(t, f.history.Verify(ctx, pc(f.outsider), models.KindOffer, o.ID), authz.ErrPermissionDenied)
	assert.ErrorIs(t, f.history.Verify(ctx, pc(f.admin), models.KindCustomer, "x"), ErrValidation)
}
