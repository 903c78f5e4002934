package payroll_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anihan/payroll-engine/ledger"
	"github.com/anihan/payroll-engine/payroll"
)

func TestCancelPayment_ReversesDebtCredits(t *testing.T) {
	ctx := context.Background()
	store, svc, clock := newTestEngine(t)

	// GIVEN: a completed payment whose gross was fully deducted
	seedWorker(t, svc, "w1")
	seedSession(t, svc)
	d1 := seedDebt(t, svc, clock, "w1", "40")
	d2 := seedDebt(t, svc, clock, "w1", "60")
	p := seedPayment(t, svc, "w1", "100")

	_, err := svc.ProcessDebtPayment(ctx, payroll.DebtPaymentRequest{
		WorkerID: "w1", Amount: money("100"),
	})
	require.NoError(t, err)

	gotP, err := store.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.PaymentCompleted, gotP.Status)

	// WHEN: cancelling it
	res, err := svc.CancelPayment(ctx, p.ID, "supervisor")
	require.NoError(t, err)

	// THEN: the payment is cancelled and both debts restored exactly
	assert.Equal(t, ledger.PaymentCancelled, res.Payment.Status)
	assert.Len(t, res.Reversed, 2)
	assert.Empty(t, res.SkippedDebts)
	require.NotEmpty(t, res.ReferenceNumber)

	got1, err := store.GetDebt(ctx, d1.ID)
	require.NoError(t, err)
	assert.True(t, got1.Balance.Equal(money("40")))
	assert.True(t, got1.TotalPaid.IsZero())
	assert.Equal(t, ledger.DebtPending, got1.Status)
	assert.NoError(t, got1.CheckInvariant())

	got2, err := store.GetDebt(ctx, d2.ID)
	require.NoError(t, err)
	assert.True(t, got2.Balance.Equal(money("60")))
	assert.Equal(t, ledger.DebtPending, got2.Status)

	// The original payment rows were not edited; refunds are new rows
	// sharing the reversal reference.
	for _, id := range []ledger.DebtID{d1.ID, d2.ID} {
		entries, err := store.DebtEntries(ctx, id)
		require.NoError(t, err)
		var payments, refunds int
		for _, e := range entries {
			switch e.Type {
			case ledger.DebtTxPayment:
				payments++
			case ledger.DebtTxRefund:
				refunds++
				assert.Equal(t, res.ReferenceNumber, e.ReferenceNumber)
			}
		}
		assert.Equal(t, 1, payments, "payment row must survive the reversal")
		assert.Equal(t, 1, refunds)
	}

	// Worker aggregates reflect the restored debt.
	w, err := store.GetWorker(ctx, "w1")
	require.NoError(t, err)
	assert.True(t, w.CurrentBalance.Equal(money("100")))
	assert.True(t, w.TotalPaid.IsZero())
}

func TestCancelPayment_PendingNeedsNoReversal(t *testing.T) {
	ctx := context.Background()
	store, svc, _ := newTestEngine(t)

	seedWorker(t, svc, "w1")
	seedSession(t, svc)
	p := seedPayment(t, svc, "w1", "250")

	res, err := svc.CancelPayment(ctx, p.ID, "supervisor")
	require.NoError(t, err)

	assert.Equal(t, ledger.PaymentCancelled, res.Payment.Status)
	assert.Empty(t, res.Reversed)
	assert.Empty(t, res.ReferenceNumber)

	gotP, err := store.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.PaymentCancelled, gotP.Status)
}

func TestCancelPayment_CancelledIsTerminal(t *testing.T) {
	ctx := context.Background()
	_, svc, _ := newTestEngine(t)

	seedWorker(t, svc, "w1")
	seedSession(t, svc)
	p := seedPayment(t, svc, "w1", "250")

	_, err := svc.CancelPayment(ctx, p.ID, "supervisor")
	require.NoError(t, err)

	// A second cancellation is an illegal transition, not a no-op.
	_, err = svc.CancelPayment(ctx, p.ID, "supervisor")
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)

	var te *ledger.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "payment", te.Entity)
	assert.Equal(t, string(ledger.PaymentCancelled), te.From)
}

func TestCancelPayment_UnknownPayment(t *testing.T) {
	ctx := context.Background()
	_, svc, _ := newTestEngine(t)

	_, err := svc.CancelPayment(ctx, "nope", "supervisor")
	assert.ErrorIs(t, err, ledger.ErrPaymentNotFound)
}
