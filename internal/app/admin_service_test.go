package app

import (
	"context"
	"testing"

	"property_due_alerts/internal/domain/obligation"
	"property_due_alerts/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminID int64 = 4242

func newAdminService(t *testing.T, adminID int64) (*AdminService, *testutil.InMemoryStore) {
	t.Helper()
	store := testutil.NewInMemoryStore()
	log := testutil.Logger()
	lifecycle := NewObligationLifecycle(store, nil, log)
	alerts := NewAlertService(
		NewAlertScanner(store, log),
		NewDispatchTracker(store, log),
		lifecycle,
		testutil.NewRecordingDispatcher(),
		DispatchOptions{},
		log,
	)
	return NewAdminService(lifecycle, alerts, adminID, "property_1"), store
}

func TestAdminService_RejectsStrangers(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAdminService(t, testAdminID)

	_, err := svc.AddObligation(ctx, 1, obligation.KindContract, testutil.Date("2024-03-01"), obligation.RecurrenceNone, "Lease")
	assert.ErrorIs(t, err, ErrAdminNotAuthorized)
	_, err = svc.ListObligations(ctx, 1, nil)
	assert.ErrorIs(t, err, ErrAdminNotAuthorized)
	_, err = svc.PreviewDue(ctx, 1, testutil.Date("2024-03-01"))
	assert.ErrorIs(t, err, ErrAdminNotAuthorized)
	assert.ErrorIs(t, svc.DeleteObligation(ctx, 1, "obl_x"), ErrAdminNotAuthorized)
}

func TestAdminService_NoAdminConfigured(t *testing.T) {
	svc, _ := newAdminService(t, 0)
	_, err := svc.ListObligations(context.Background(), 0, nil)
	assert.ErrorIs(t, err, ErrAdminNotAuthorized)
}

func TestAdminService_ManagesObligations(t *testing.T) {
	ctx := context.Background()
	svc, store := newAdminService(t, testAdminID)

	o, err := svc.AddObligation(ctx, testAdminID, obligation.KindMaintenance, testutil.Date("2024-03-01"), obligation.RecurrenceAnnual, "Chimney sweep")
	require.NoError(t, err)
	assert.Equal(t, "property_1", o.OwnerID)

	list, err := svc.ListObligations(ctx, testAdminID, []obligation.Status{obligation.StatusActive})
	require.NoError(t, err)
	require.Len(t, list, 1)

	due, err := svc.PreviewDue(ctx, testAdminID, testutil.Date("2024-03-01"))
	require.NoError(t, err)
	assert.Len(t, due, 1)
	rule, _ := store.Rule(o.Rules[0].ID)
	assert.False(t, rule.Fired, "preview must not claim")

	res, err := svc.RenewObligation(ctx, testAdminID, o.ID, testutil.Date("2024-02-20"))
	require.NoError(t, err)
	assert.Equal(t, testutil.Date("2025-03-01"), res.Next.DueDate)

	_, err = svc.CancelObligation(ctx, testAdminID, res.Next.ID)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteObligation(ctx, testAdminID, o.ID))

	list, err = svc.ListObligations(ctx, testAdminID, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, obligation.StatusCancelled, list[0].Status)
}
