/*
reconcile.go - Payment reconciliation orchestrator

PURPOSE:
  Converts one requested debt payment amount for a worker into
  concrete ledger mutations: payroll deductions, debt credits, history
  rows, worker aggregates and an audit line - all inside one
  transaction, committed or rolled back as a whole.

ALGORITHM:
  1. Validate inputs; fail closed before any transaction is opened.
  2. In one unit of work:
     a. Resolve worker, active session, open payroll payments
        (oldest first) and open debts (oldest incurred first).
     b. Cap the requested amount at the payroll deduction capacity,
        then resolve the allocation plan (ledger.Allocate).
     c. Deduct the allocated total from the payroll payments
        sequentially, writing a PaymentEntry per payment touched.
     d. Credit each allocation against its debt, writing a DebtEntry
        per debt with one shared reference number. Every DebtEntry is
        linked to the primary (first touched) payroll payment so a
        later cancellation can find what to reverse.
     e. Recompute the worker's aggregates from live debt rows.
     f. Append the audit record.
  3. Commit. Any error in 2a-2f rolls everything back.

BALANCE SYMMETRY:
  The payroll side is deducted by exactly the allocated total, never
  the raw requested amount. Under the legacy keep-remainder policy an
  under-allocated plan would otherwise withhold pay with no matching
  debt credit.
*/
package payroll

import (
	"context"
	"fmt"

	"github.com/anihan/payroll-engine/ledger"
	"github.com/prometheus/client_golang/prometheus"
)

// DebtPaymentRequest is one requested debt deduction for a worker.
type DebtPaymentRequest struct {
	WorkerID      ledger.WorkerID
	Amount        ledger.Money
	PaymentMethod string
	// Strategy overrides the service default when set.
	Strategy    ledger.Strategy
	PerformedBy string
}

// DebtPaymentResult reports what one reconciliation changed.
type DebtPaymentResult struct {
	ReferenceNumber string
	Strategy        ledger.Strategy
	Allocations     []ledger.Allocation
	TotalAllocated  ledger.Money
	Unallocated     ledger.Money
	Payments        []ledger.Payment // updated payroll payments
	WorkerBalance   ledger.Money     // worker's new current balance
}

// ProcessDebtPayment runs the reconciliation workflow. On any failure
// after validation the transaction is rolled back entirely.
func (s *Service) ProcessDebtPayment(ctx context.Context, req DebtPaymentRequest) (result *DebtPaymentResult, err error) {
	timer := prometheus.NewTimer(operationSeconds.WithLabelValues("reconcile"))
	defer func() {
		timer.ObserveDuration()
		reconciliationsTotal.WithLabelValues(outcomeLabel(err)).Inc()
	}()

	if req.WorkerID == "" {
		return nil, &ledger.ValidationError{Field: "worker_id", Message: "must not be empty"}
	}
	if !req.Amount.IsPositive() {
		return nil, &ledger.ValidationError{Field: "amount", Message: "must be positive"}
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = s.strategy
	}
	if !ledger.ValidStrategy(strategy) {
		return nil, &ledger.ValidationError{Field: "strategy", Message: fmt.Sprintf("unknown strategy %q", strategy)}
	}

	now := s.now()
	err = s.store.WithTx(ctx, func(repo Repository) error {
		worker, err := repo.GetWorker(ctx, req.WorkerID)
		if err != nil {
			return err
		}
		if worker == nil {
			return ledger.ErrWorkerNotFound
		}

		sess, err := repo.ActiveSession(ctx)
		if err != nil {
			return err
		}
		if sess == nil {
			return ledger.ErrNoActiveSession
		}

		payments, err := repo.OpenPayments(ctx, worker.ID, sess.ID)
		if err != nil {
			return err
		}
		if len(payments) == 0 {
			return ledger.ErrNoPendingPayments
		}

		debts, err := repo.OpenDebts(ctx, worker.ID)
		if err != nil {
			return err
		}
		if len(debts) == 0 {
			return ledger.ErrNoOpenDebts
		}

		// The deduction cannot exceed what the payroll can absorb.
		capacity := ledger.ZeroMoney()
		for i := range payments {
			capacity = capacity.Add(payments[i].DeductionCapacity())
		}
		effective := req.Amount.Min(capacity)
		if !effective.IsPositive() {
			return ledger.ErrNothingToAllocate
		}

		plan := ledger.Allocate(debts, effective, strategy, s.remainder)
		if !plan.TotalAllocated.IsPositive() {
			return ledger.ErrNothingToAllocate
		}

		ref := ledger.NewReference("DPY")

		// Deduct the allocated total from payroll, oldest payment first.
		remaining := plan.TotalAllocated
		var touched []ledger.Payment
		var primary ledger.PaymentID
		for i := range payments {
			if !remaining.IsPositive() {
				break
			}
			p := &payments[i]
			before := p.TotalDebtDeduction
			took := p.ApplyDebtDeduction(remaining, ref)
			if !took.IsPositive() {
				continue
			}
			remaining = remaining.Sub(took)
			if primary == "" {
				primary = p.ID
			}
			if err := repo.UpdatePayment(ctx, p); err != nil {
				return err
			}
			if err := repo.AppendPaymentEntry(ctx, ledger.PaymentEntry{
				ID:              ledger.NewRowID(),
				PaymentID:       p.ID,
				Action:          ledger.PaymentActionDeduction,
				ChangedField:    "total_debt_deduction",
				OldAmount:       before,
				NewAmount:       p.TotalDebtDeduction,
				ReferenceNumber: ref,
				PerformedBy:     req.PerformedBy,
				RecordedAt:      now,
			}); err != nil {
				return err
			}
			touched = append(touched, *p)
		}
		if remaining.IsPositive() {
			// Capacity was computed from the same rows in the same
			// transaction, so the plan must always fit.
			return &ledger.InvariantError{Detail: fmt.Sprintf("allocated %s exceeds payroll capacity", plan.TotalAllocated)}
		}

		// Credit each allocation against its debt.
		byID := make(map[ledger.DebtID]*ledger.Debt, len(debts))
		for i := range debts {
			byID[debts[i].ID] = &debts[i]
		}
		for _, a := range plan.Allocations {
			d := byID[a.DebtID]
			if d == nil {
				return fmt.Errorf("allocation references unknown debt %s: %w", a.DebtID, ledger.ErrDebtNotFound)
			}
			prev := d.Balance
			d.ApplyPayment(a.Amount, now)
			if err := repo.UpdateDebt(ctx, d); err != nil {
				return err
			}
			pid := primary
			if err := repo.AppendDebtEntry(ctx, ledger.DebtEntry{
				ID:              ledger.NewRowID(),
				DebtID:          d.ID,
				PaymentID:       &pid,
				Type:            ledger.DebtTxPayment,
				AmountPaid:      a.Amount,
				PreviousBalance: prev,
				NewBalance:      d.Balance,
				PaymentMethod:   req.PaymentMethod,
				ReferenceNumber: ref,
				RecordedAt:      now,
			}); err != nil {
				return err
			}
		}

		if err := refreshAggregates(ctx, repo, worker); err != nil {
			return err
		}

		if err := appendAudit(ctx, repo, "debt_payment", req.PerformedBy, ref,
			fmt.Sprintf("worker=%s allocated=%s strategy=%s debts=%d",
				worker.ID, plan.TotalAllocated, strategy, len(plan.Allocations)), now); err != nil {
			return err
		}

		result = &DebtPaymentResult{
			ReferenceNumber: ref,
			Strategy:        strategy,
			Allocations:     plan.Allocations,
			TotalAllocated:  plan.TotalAllocated,
			Unallocated:     req.Amount.Sub(plan.TotalAllocated).ClampZero(),
			Payments:        touched,
			WorkerBalance:   worker.CurrentBalance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	allocatedAmountTotal.Add(result.TotalAllocated.Float64())
	return result, nil
}
