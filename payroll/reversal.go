/*
reversal.go - Payment cancellation and debt-side reversal

PURPOSE:
  Cancelling a completed payment must undo the debt credits that were
  recorded when it was processed. Reversal is itself a new auditable
  event: each affected debt gets a fresh refund history row. The
  original rows are never edited or deleted.

PARTIAL-FAILURE POLICY:
  Unlike reconciliation, reversal is not all-or-nothing across linked
  debts. A linked debt that no longer exists is logged, counted and
  skipped; the remaining debts are still reversed and the cancellation
  still lands. A missing debt must not block the cancellation itself.
*/
package payroll

import (
	"context"
	"fmt"
	"log"

	"github.com/anihan/payroll-engine/ledger"
	"github.com/prometheus/client_golang/prometheus"
)

// CancelResult reports what a cancellation reversed.
type CancelResult struct {
	Payment         ledger.Payment
	ReferenceNumber string              // reference of the reversal, if one ran
	Reversed        []ledger.Allocation // amount restored per debt
	SkippedDebts    []ledger.DebtID     // linked debts that could not be found
}

// CancelPayment cancels a payroll payment. A completed payment also
// has its debt-side effects reversed through its linked history rows.
// Cancelling a pending or processing payment requires no reversal.
func (s *Service) CancelPayment(ctx context.Context, paymentID ledger.PaymentID, performedBy string) (result *CancelResult, err error) {
	timer := prometheus.NewTimer(operationSeconds.WithLabelValues("cancel"))
	defer func() {
		timer.ObserveDuration()
		reversalsTotal.WithLabelValues(outcomeLabel(err)).Inc()
	}()

	if paymentID == "" {
		return nil, &ledger.ValidationError{Field: "payment_id", Message: "must not be empty"}
	}

	now := s.now()
	err = s.store.WithTx(ctx, func(repo Repository) error {
		p, err := repo.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p == nil {
			return ledger.ErrPaymentNotFound
		}
		if !p.Status.CanTransition(ledger.PaymentCancelled) {
			return &ledger.TransitionError{Entity: "payment", From: string(p.Status), To: string(ledger.PaymentCancelled)}
		}

		res := &CancelResult{}

		// Reverse debt credits recorded against this payment.
		entries, err := repo.DebtEntriesByPayment(ctx, p.ID)
		if err != nil {
			return err
		}
		ref := ""
		for _, e := range entries {
			if e.Type != ledger.DebtTxPayment {
				continue
			}
			d, err := repo.GetDebt(ctx, e.DebtID)
			if err != nil {
				return err
			}
			if d == nil {
				// Missing debt: skip, keep cancelling. See package doc.
				log.Printf("reversal: debt %s linked to payment %s not found, skipping", e.DebtID, p.ID)
				reversalSkipsTotal.Inc()
				res.SkippedDebts = append(res.SkippedDebts, e.DebtID)
				continue
			}
			if ref == "" {
				ref = ledger.NewReference("REV")
			}
			prev := d.Balance
			d.ReversePayment(e.AmountPaid)
			if err := repo.UpdateDebt(ctx, d); err != nil {
				return err
			}
			pid := p.ID
			if err := repo.AppendDebtEntry(ctx, ledger.DebtEntry{
				ID:              ledger.NewRowID(),
				DebtID:          d.ID,
				PaymentID:       &pid,
				Type:            ledger.DebtTxRefund,
				AmountPaid:      e.AmountPaid,
				PreviousBalance: prev,
				NewBalance:      d.Balance,
				PaymentMethod:   e.PaymentMethod,
				ReferenceNumber: ref,
				RecordedAt:      now,
			}); err != nil {
				return err
			}
			res.Reversed = append(res.Reversed, ledger.Allocation{
				DebtID:        d.ID,
				Amount:        e.AmountPaid,
				BalanceBefore: prev,
				BalanceAfter:  d.Balance,
			})
		}

		oldStatus := p.Status
		p.Status = ledger.PaymentCancelled
		if err := repo.UpdatePayment(ctx, p); err != nil {
			return err
		}
		if err := repo.AppendPaymentEntry(ctx, ledger.PaymentEntry{
			ID:              ledger.NewRowID(),
			PaymentID:       p.ID,
			Action:          ledger.PaymentActionCancellation,
			ChangedField:    "status",
			OldAmount:       p.NetPay,
			NewAmount:       p.NetPay,
			ReferenceNumber: ref,
			PerformedBy:     performedBy,
			Note:            fmt.Sprintf("%s -> %s", oldStatus, ledger.PaymentCancelled),
			RecordedAt:      now,
		}); err != nil {
			return err
		}

		w, err := repo.GetWorker(ctx, p.WorkerID)
		if err != nil {
			return err
		}
		if w != nil {
			if err := refreshAggregates(ctx, repo, w); err != nil {
				return err
			}
		}

		if err := appendAudit(ctx, repo, "payment_cancelled", performedBy, ref,
			fmt.Sprintf("payment=%s reversed_debts=%d skipped=%d", p.ID, len(res.Reversed), len(res.SkippedDebts)), now); err != nil {
			return err
		}

		res.Payment = *p
		res.ReferenceNumber = ref
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
