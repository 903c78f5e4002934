package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anihan/payroll-engine/ledger"
	"github.com/anihan/payroll-engine/payroll"
	"github.com/anihan/payroll-engine/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func money(s string) ledger.Money {
	return ledger.ParseMoney(s)
}

func insertDebt(t *testing.T, store *sqlite.Store, id, workerID, balance string) *ledger.Debt {
	t.Helper()
	d := &ledger.Debt{
		ID:           ledger.DebtID(id),
		WorkerID:     ledger.WorkerID(workerID),
		OriginalAmount: money(balance),
		Amount:       money(balance),
		Balance:      money(balance),
		TotalPaid:    ledger.ZeroMoney(),
		TotalInterest: ledger.ZeroMoney(),
		Status:       ledger.DebtPending,
		DueDate:      time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC),
		DateIncurred: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt:    time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.InsertDebt(context.Background(), d))
	return d
}

func insertWorker(t *testing.T, store *sqlite.Store, id string) {
	t.Helper()
	require.NoError(t, store.InsertWorker(context.Background(), &ledger.Worker{
		ID:             ledger.WorkerID(id),
		Name:           "Worker " + id,
		TotalDebt:      ledger.ZeroMoney(),
		TotalPaid:      ledger.ZeroMoney(),
		CurrentBalance: ledger.ZeroMoney(),
		CreatedAt:      time.Now().UTC(),
	}))
}

// =============================================================================
// OPTIMISTIC VERSIONING
// =============================================================================

func TestUpdateDebt_StaleVersionRejected(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	insertWorker(t, store, "w1")
	insertDebt(t, store, "d1", "w1", "100")

	// GIVEN: two copies of the same row
	a, err := store.GetDebt(ctx, "d1")
	require.NoError(t, err)
	b, err := store.GetDebt(ctx, "d1")
	require.NoError(t, err)

	// WHEN: the first copy wins the update
	a.ApplyPayment(money("40"), time.Now().UTC())
	require.NoError(t, store.UpdateDebt(ctx, a))

	// THEN: the stale copy is rejected
	b.ApplyPayment(money("40"), time.Now().UTC())
	err = store.UpdateDebt(ctx, b)
	assert.ErrorIs(t, err, ledger.ErrConcurrentModification)

	// And the winning write bumped the version.
	got, err := store.GetDebt(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, a.Version, got.Version)
	assert.True(t, got.Balance.Equal(money("60")))
}

func TestUpdatePayment_StaleVersionRejected(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	insertWorker(t, store, "w1")
	require.NoError(t, store.InsertSession(ctx, &ledger.Session{ID: "s1", Name: "week", Active: true, StartedAt: time.Now().UTC()}))

	p := &ledger.Payment{
		ID:        "p1",
		WorkerID:  "w1",
		SessionID: "s1",
		GrossPay:  money("100"),
		ManualDeduction:    ledger.ZeroMoney(),
		OtherDeductions:    ledger.ZeroMoney(),
		TotalDebtDeduction: ledger.ZeroMoney(),
		Status:    ledger.PaymentPending,
		CreatedAt: time.Now().UTC(),
	}
	p.RecomputeNetPay()
	require.NoError(t, store.InsertPayment(ctx, p))

	a, err := store.GetPayment(ctx, "p1")
	require.NoError(t, err)
	b, err := store.GetPayment(ctx, "p1")
	require.NoError(t, err)

	a.ApplyDebtDeduction(money("30"), "ref")
	require.NoError(t, store.UpdatePayment(ctx, a))

	b.ApplyDebtDeduction(money("30"), "ref")
	assert.ErrorIs(t, store.UpdatePayment(ctx, b), ledger.ErrConcurrentModification)
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	insertWorker(t, store, "w1")

	wantErr := assert.AnError
	err := store.WithTx(ctx, func(repo payroll.Repository) error {
		insertDebtViaRepo(t, repo, "d1", "w1")
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)

	// Nothing committed.
	got, err := store.GetDebt(ctx, "d1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func insertDebtViaRepo(t *testing.T, repo payroll.Repository, id, workerID string) *ledger.Debt {
	t.Helper()
	d := &ledger.Debt{
		ID:           ledger.DebtID(id),
		WorkerID:     ledger.WorkerID(workerID),
		OriginalAmount: money("10"),
		Amount:       money("10"),
		Balance:      money("10"),
		TotalPaid:    ledger.ZeroMoney(),
		TotalInterest: ledger.ZeroMoney(),
		Status:       ledger.DebtPending,
		DueDate:      time.Now().UTC().Add(time.Hour),
		DateIncurred: time.Now().UTC(),
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, repo.InsertDebt(context.Background(), d))
	return d
}

// =============================================================================
// QUERY SEMANTICS
// =============================================================================

func TestOpenDebts_ExcludesSettled(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	insertWorker(t, store, "w1")

	insertDebt(t, store, "d1", "w1", "50")
	insertDebt(t, store, "d2", "w1", "70")

	// A paid debt must not appear.
	paid, err := store.GetDebt(ctx, "d1")
	require.NoError(t, err)
	paid.ApplyPayment(money("50"), time.Now().UTC())
	require.NoError(t, store.UpdateDebt(ctx, paid))

	open, err := store.OpenDebts(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, ledger.DebtID("d2"), open[0].ID)

	// All debts remain visible through WorkerDebts.
	all, err := store.WorkerDebts(ctx, "w1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMarkOverdueDebts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	insertWorker(t, store, "w1")
	insertDebt(t, store, "d1", "w1", "100")

	// Before the due date nothing changes.
	n, err := store.MarkOverdueDebts(ctx, time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n)

	// After the due date the debt flips to overdue.
	n, err = store.MarkOverdueDebts(ctx, time.Date(2026, time.April, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := store.GetDebt(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, ledger.DebtOverdue, got.Status)

	// Overdue debts still show up as open.
	open, err := store.OpenDebts(ctx, "w1")
	require.NoError(t, err)
	assert.Len(t, open, 1)

	// Idempotent.
	n, err = store.MarkOverdueDebts(ctx, time.Date(2026, time.April, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGetPayment_CorruptBreakdownSurfaces(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "payroll.db")
	store, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	insertWorker(t, store, "w1")
	require.NoError(t, store.InsertSession(ctx, &ledger.Session{ID: "s1", Name: "week", Active: true, StartedAt: time.Now().UTC()}))
	p := &ledger.Payment{
		ID:                 "p1",
		WorkerID:           "w1",
		SessionID:          "s1",
		GrossPay:           money("100"),
		ManualDeduction:    ledger.ZeroMoney(),
		OtherDeductions:    ledger.ZeroMoney(),
		TotalDebtDeduction: ledger.ZeroMoney(),
		Status:             ledger.PaymentPending,
		CreatedAt:          time.Now().UTC(),
	}
	p.RecomputeNetPay()
	require.NoError(t, store.InsertPayment(ctx, p))

	// GIVEN: the stored breakdown is damaged out of band
	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.ExecContext(ctx, `UPDATE payments SET breakdown_json = '{not json' WHERE id = 'p1'`)
	require.NoError(t, err)

	// THEN: reads report the damage instead of returning a payment
	// with a silently empty breakdown
	got, err := store.GetPayment(ctx, "p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "p1")
	assert.Nil(t, got)
}

func TestActiveSession_AtMostOne(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.InsertSession(ctx, &ledger.Session{ID: "s1", Name: "a", Active: true, StartedAt: time.Now().UTC()}))
	require.NoError(t, store.DeactivateSessions(ctx))
	require.NoError(t, store.InsertSession(ctx, &ledger.Session{ID: "s2", Name: "b", Active: true, StartedAt: time.Now().UTC()}))

	active, err := store.ActiveSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, ledger.SessionID("s2"), active.ID)
}
