package order

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type recordedOrder struct {
	challengeID string
	completed   bool
}

type fakeLedger struct {
	recorded []recordedOrder
	settled  []string
}

func (f *fakeLedger) RecordOrder(id string, _ decimal.Decimal, completed bool) {
	f.recorded = append(f.recorded, recordedOrder{challengeID: id, completed: completed})
}

func (f *fakeLedger) SettleOrder(id string) { f.settled = append(f.settled, id) }

func TestPlaceAndSettle(t *testing.T) {
	ledger := &fakeLedger{}
	m := NewInMemory(ledger)
	ctx := context.Background()

	o, err := m.Place(ctx, Placement{
		TenantID:    "t1",
		UserID:      "u1",
		ChallengeID: "c1",
		FinalPrice:  decimal.NewFromInt(199),
	})
	require.NoError(t, err)
	require.Equal(t, PaymentPending, o.PaymentStatus)
	require.Nil(t, o.CompletedAt)
	require.Equal(t, []recordedOrder{{challengeID: "c1"}}, ledger.recorded)

	got, err := m.Settle(ctx, "t1", o.ID, PaymentCompleted)
	require.NoError(t, err)
	require.Equal(t, PaymentCompleted, got.PaymentStatus)
	require.NotNil(t, got.CompletedAt)
	require.Equal(t, []string{"c1"}, ledger.settled)

	// Settling twice is a conflict.
	_, err = m.Settle(ctx, "t1", o.ID, PaymentFailed)
	require.ErrorIs(t, err, ErrNotPending)
}

func TestSettleFailedDoesNotTouchLedger(t *testing.T) {
	ledger := &fakeLedger{}
	m := NewInMemory(ledger)
	ctx := context.Background()

	o, err := m.Place(ctx, Placement{TenantID: "t1", UserID: "u1", ChallengeID: "c1", FinalPrice: decimal.NewFromInt(50)})
	require.NoError(t, err)

	got, err := m.Settle(ctx, "t1", o.ID, PaymentFailed)
	require.NoError(t, err)
	require.Equal(t, PaymentFailed, got.PaymentStatus)
	require.Nil(t, got.CompletedAt)
	require.Empty(t, ledger.settled)
}

func TestTenantScoping(t *testing.T) {
	m := NewInMemory(nil)
	ctx := context.Background()

	o, err := m.Place(ctx, Placement{TenantID: "t1", UserID: "u1", ChallengeID: "c1", FinalPrice: decimal.Zero})
	require.NoError(t, err)

	_, err = m.OrderByID(ctx, "t2", o.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = m.Settle(ctx, "t2", o.ID, PaymentCompleted)
	require.ErrorIs(t, err, ErrNotFound)

	list, err := m.ListByUser(ctx, "t2", "u1")
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestPlacementValidation(t *testing.T) {
	m := NewInMemory(nil)
	_, err := m.Place(context.Background(), Placement{TenantID: "t1", UserID: "u1"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = m.Place(context.Background(), Placement{
		TenantID: "t1", UserID: "u1", ChallengeID: "c1",
		FinalPrice: decimal.NewFromInt(-1),
	})
	require.ErrorIs(t, err, ErrInvalidInput)
}
