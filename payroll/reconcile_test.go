package payroll_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anihan/payroll-engine/ledger"
	"github.com/anihan/payroll-engine/payroll"
	"github.com/anihan/payroll-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// fakeClock lets tests control the engine's notion of now, so debts
// issued in sequence get distinct DateIncurred values.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestEngine(t *testing.T) (*sqlite.Store, *payroll.Service, *fakeClock) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := newFakeClock()
	svc := payroll.NewService(store, payroll.Config{Now: clock.Now})
	return store, svc, clock
}

func money(s string) ledger.Money {
	return ledger.ParseMoney(s)
}

func seedWorker(t *testing.T, svc *payroll.Service, id string) *ledger.Worker {
	t.Helper()
	w, err := svc.RegisterWorker(context.Background(), ledger.WorkerID(id), "Worker "+id)
	require.NoError(t, err)
	return w
}

func seedSession(t *testing.T, svc *payroll.Service) *ledger.Session {
	t.Helper()
	s, err := svc.OpenSession(context.Background(), "week-10")
	require.NoError(t, err)
	return s
}

func seedDebt(t *testing.T, svc *payroll.Service, clock *fakeClock, workerID, principal string) *ledger.Debt {
	t.Helper()
	d, err := svc.IssueDebt(context.Background(), payroll.IssueDebtRequest{
		WorkerID:  ledger.WorkerID(workerID),
		Principal: money(principal),
		DueDate:   clock.Now().Add(30 * 24 * time.Hour),
	})
	require.NoError(t, err)
	clock.Advance(time.Hour)
	return d
}

func seedPayment(t *testing.T, svc *payroll.Service, workerID, gross string) *ledger.Payment {
	t.Helper()
	p, err := svc.CreatePayment(context.Background(), payroll.CreatePaymentRequest{
		WorkerID:    ledger.WorkerID(workerID),
		GrossPay:    money(gross),
		PeriodStart: time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, time.March, 8, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return p
}

// =============================================================================
// PRECONDITIONS
// =============================================================================

func TestProcessDebtPayment_FailsClosed(t *testing.T) {
	ctx := context.Background()
	_, svc, _ := newTestEngine(t)

	// Unknown worker
	_, err := svc.ProcessDebtPayment(ctx, payroll.DebtPaymentRequest{
		WorkerID: "ghost", Amount: money("50"),
	})
	assert.ErrorIs(t, err, ledger.ErrWorkerNotFound)

	// No active session
	seedWorker(t, svc, "w1")
	_, err = svc.ProcessDebtPayment(ctx, payroll.DebtPaymentRequest{
		WorkerID: "w1", Amount: money("50"),
	})
	assert.ErrorIs(t, err, ledger.ErrNoActiveSession)

	// No payroll payments in the session
	seedSession(t, svc)
	_, err = svc.ProcessDebtPayment(ctx, payroll.DebtPaymentRequest{
		WorkerID: "w1", Amount: money("50"),
	})
	assert.ErrorIs(t, err, ledger.ErrNoPendingPayments)

	// No open debts
	seedPayment(t, svc, "w1", "100")
	_, err = svc.ProcessDebtPayment(ctx, payroll.DebtPaymentRequest{
		WorkerID: "w1", Amount: money("50"),
	})
	assert.ErrorIs(t, err, ledger.ErrNoOpenDebts)

	// Bad input never reaches the store
	_, err = svc.ProcessDebtPayment(ctx, payroll.DebtPaymentRequest{
		WorkerID: "w1", Amount: money("-5"),
	})
	assert.True(t, ledger.IsValidation(err))

	_, err = svc.ProcessDebtPayment(ctx, payroll.DebtPaymentRequest{
		WorkerID: "w1", Amount: money("50"), Strategy: "halfsies",
	})
	assert.True(t, ledger.IsValidation(err))
}

// =============================================================================
// HAPPY PATHS
// =============================================================================

func TestProcessDebtPayment_FullPayoff(t *testing.T) {
	ctx := context.Background()
	store, svc, clock := newTestEngine(t)

	// GIVEN: one worker, two debts totalling 100, payroll of 500
	seedWorker(t, svc, "w1")
	seedSession(t, svc)
	d1 := seedDebt(t, svc, clock, "w1", "40")
	d2 := seedDebt(t, svc, clock, "w1", "60")
	p := seedPayment(t, svc, "w1", "500")

	// WHEN: paying 100
	res, err := svc.ProcessDebtPayment(ctx, payroll.DebtPaymentRequest{
		WorkerID: "w1", Amount: money("100"), PaymentMethod: "payroll_deduction",
	})
	require.NoError(t, err)

	// THEN: both debts cleared, oldest first
	require.Len(t, res.Allocations, 2)
	assert.Equal(t, d1.ID, res.Allocations[0].DebtID)
	assert.Equal(t, d2.ID, res.Allocations[1].DebtID)
	assert.True(t, res.TotalAllocated.Equal(money("100")))
	assert.True(t, res.Unallocated.IsZero())
	assert.True(t, res.WorkerBalance.IsZero())

	got1, err := store.GetDebt(ctx, d1.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.DebtPaid, got1.Status)
	assert.NoError(t, got1.CheckInvariant())

	got2, err := store.GetDebt(ctx, d2.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.DebtPaid, got2.Status)

	// The payroll absorbed exactly the allocated total
	gotP, err := store.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, gotP.TotalDebtDeduction.Equal(money("100")))
	assert.True(t, gotP.NetPay.Equal(money("400")))
	assert.Equal(t, ledger.PaymentPartiallyPaid, gotP.Status)

	// Worker aggregates recomputed
	w, err := store.GetWorker(ctx, "w1")
	require.NoError(t, err)
	assert.True(t, w.CurrentBalance.IsZero())
	assert.True(t, w.TotalPaid.Equal(money("100")))
}

func TestProcessDebtPayment_PaymentCompletedWhenGrossExhausted(t *testing.T) {
	ctx := context.Background()
	store, svc, clock := newTestEngine(t)

	// GIVEN: debt 100, gross pay only 60
	seedWorker(t, svc, "w1")
	seedSession(t, svc)
	d := seedDebt(t, svc, clock, "w1", "100")
	p := seedPayment(t, svc, "w1", "60")

	// WHEN: requesting more than payroll can absorb
	res, err := svc.ProcessDebtPayment(ctx, payroll.DebtPaymentRequest{
		WorkerID: "w1", Amount: money("100"),
	})
	require.NoError(t, err)

	// THEN: capped at deduction capacity
	assert.True(t, res.TotalAllocated.Equal(money("60")))

	gotP, err := store.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, gotP.NetPay.IsZero())
	assert.Equal(t, ledger.PaymentCompleted, gotP.Status)

	gotD, err := store.GetDebt(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, gotD.Balance.Equal(money("40")))
	assert.Equal(t, ledger.DebtPartiallyPaid, gotD.Status)
}

func TestProcessDebtPayment_EqualSplitAtFullCapacity(t *testing.T) {
	ctx := context.Background()
	store, svc, clock := newTestEngine(t)

	// GIVEN: six debts of 20 and payroll of exactly 100, so the equal
	// share does not divide evenly and the request uses every peso of
	// deduction capacity
	seedWorker(t, svc, "w1")
	seedSession(t, svc)
	for i := 0; i < 6; i++ {
		seedDebt(t, svc, clock, "w1", "20")
	}
	p := seedPayment(t, svc, "w1", "100")

	// WHEN
	res, err := svc.ProcessDebtPayment(ctx, payroll.DebtPaymentRequest{
		WorkerID: "w1", Amount: money("100"), Strategy: ledger.StrategyEqual,
	})

	// THEN: the plan fits inside the payroll, 16.66 per debt
	require.NoError(t, err)
	require.Len(t, res.Allocations, 6)
	assert.True(t, res.TotalAllocated.Equal(money("99.96")))
	assert.False(t, res.TotalAllocated.GreaterThan(money("100")))
	for _, a := range res.Allocations {
		assert.True(t, a.Amount.Equal(money("16.66")))
	}

	gotP, err := store.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, gotP.TotalDebtDeduction.Equal(money("99.96")))
	assert.True(t, gotP.NetPay.Equal(money("0.04")))
}

func TestProcessDebtPayment_SharedReferenceAndLinkage(t *testing.T) {
	ctx := context.Background()
	store, svc, clock := newTestEngine(t)

	seedWorker(t, svc, "w1")
	seedSession(t, svc)
	d1 := seedDebt(t, svc, clock, "w1", "50")
	d2 := seedDebt(t, svc, clock, "w1", "200")
	p := seedPayment(t, svc, "w1", "300")

	res, err := svc.ProcessDebtPayment(ctx, payroll.DebtPaymentRequest{
		WorkerID: "w1", Amount: money("120"), Strategy: ledger.StrategyProportional,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.ReferenceNumber)

	// Every debt entry written by this run shares one reference and is
	// linked to the payroll payment it came out of.
	for _, d := range []ledger.DebtID{d1.ID, d2.ID} {
		entries, err := store.DebtEntries(ctx, d)
		require.NoError(t, err)
		var paymentEntries int
		for _, e := range entries {
			if e.Type != ledger.DebtTxPayment {
				continue
			}
			paymentEntries++
			assert.Equal(t, res.ReferenceNumber, e.ReferenceNumber)
			require.NotNil(t, e.PaymentID)
			assert.Equal(t, p.ID, *e.PaymentID)
		}
		assert.Equal(t, 1, paymentEntries)
	}

	// The payment side carries a matching deduction entry.
	pEntries, err := store.PaymentEntries(ctx, p.ID)
	require.NoError(t, err)
	var deductions int
	for _, e := range pEntries {
		if e.Action == ledger.PaymentActionDeduction {
			deductions++
			assert.Equal(t, res.ReferenceNumber, e.ReferenceNumber)
			assert.Equal(t, "total_debt_deduction", e.ChangedField)
		}
	}
	assert.Equal(t, 1, deductions)
}

// =============================================================================
// LEDGER REPLAY PROPERTY
// =============================================================================

func TestDebtHistoryReplaysToCurrentBalance(t *testing.T) {
	ctx := context.Background()
	store, svc, clock := newTestEngine(t)

	seedWorker(t, svc, "w1")
	seedSession(t, svc)
	d := seedDebt(t, svc, clock, "w1", "100")
	seedPayment(t, svc, "w1", "500")

	// Two partial payments
	for _, amount := range []string{"30", "25"} {
		_, err := svc.ProcessDebtPayment(ctx, payroll.DebtPaymentRequest{
			WorkerID: "w1", Amount: money(amount),
		})
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	entries, err := store.DebtEntries(ctx, d.ID)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	// Replaying the entries in order must land on the stored balance,
	// and each row must chain onto the previous one.
	for i := 1; i < len(entries); i++ {
		assert.True(t, entries[i].PreviousBalance.Equal(entries[i-1].NewBalance),
			"entry %d does not chain", i)
	}

	got, err := store.GetDebt(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, entries[len(entries)-1].NewBalance.Equal(got.Balance))
	assert.True(t, got.Balance.Equal(money("45")))
	assert.NoError(t, got.CheckInvariant())
}

// =============================================================================
// INTEREST
// =============================================================================

func TestIssueDebtAppliesInterestUpFront(t *testing.T) {
	ctx := context.Background()
	store, svc, clock := newTestEngine(t)

	seedWorker(t, svc, "w1")
	d, err := svc.IssueDebt(ctx, payroll.IssueDebtRequest{
		WorkerID:     "w1",
		Principal:    money("200"),
		InterestRate: decimal.NewFromFloat(0.05),
		DueDate:      clock.Now().Add(30 * 24 * time.Hour),
	})
	require.NoError(t, err)

	assert.True(t, d.OriginalAmount.Equal(money("200")))
	assert.True(t, d.TotalInterest.Equal(money("10")))
	assert.True(t, d.Amount.Equal(money("210")))
	assert.True(t, d.Balance.Equal(money("210")))

	w, err := store.GetWorker(ctx, "w1")
	require.NoError(t, err)
	assert.True(t, w.TotalDebt.Equal(money("210")))
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestConcurrentDebtPaymentsNeverOverpay(t *testing.T) {
	ctx := context.Background()
	store, svc, clock := newTestEngine(t)

	// GIVEN: one debt of 100 and payroll of 100
	seedWorker(t, svc, "w1")
	seedSession(t, svc)
	d := seedDebt(t, svc, clock, "w1", "100")
	seedPayment(t, svc, "w1", "100")

	// WHEN: two payments of 60 race
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for attempt := 0; attempt < 5; attempt++ {
				_, err := svc.ProcessDebtPayment(ctx, payroll.DebtPaymentRequest{
					WorkerID: "w1", Amount: money("60"),
				})
				if err == nil || !ledger.IsRetryable(err) {
					return
				}
			}
		}()
	}
	wg.Wait()

	// THEN: the combined credit never exceeds what was owed
	got, err := store.GetDebt(ctx, d.ID)
	require.NoError(t, err)
	assert.NoError(t, got.CheckInvariant())
	assert.False(t, got.TotalPaid.GreaterThan(money("100")))
	assert.False(t, got.Balance.IsNegative())

	w, err := store.GetWorker(ctx, "w1")
	require.NoError(t, err)
	assert.False(t, w.TotalPaid.GreaterThan(money("100")))
}
