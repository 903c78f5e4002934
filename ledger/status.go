/*
status.go - Status machines for Debt and Payment

Debt:    pending -> partially_paid -> paid
         pending/partially_paid -> overdue   (time-derived, balance > 0)
         any non-paid -> cancelled           (write-off)
         paid and cancelled are terminal.

Payment: pending -> processing -> completed
         pending/processing/partially_paid -> cancelled
         completed -> cancelled              (triggers reversal)
         cancelled is terminal.

Transitions not listed here are rejected with a TransitionError and
produce no ledger mutation.
*/
package ledger

import "time"

var debtTransitions = map[DebtStatus]map[DebtStatus]bool{
	DebtPending: {
		DebtPartiallyPaid: true,
		DebtPaid:          true,
		DebtOverdue:       true,
		DebtCancelled:     true,
	},
	DebtPartiallyPaid: {
		DebtPartiallyPaid: true,
		DebtPaid:          true,
		DebtOverdue:       true,
		DebtCancelled:     true,
	},
	DebtOverdue: {
		DebtPartiallyPaid: true,
		DebtPaid:          true,
		DebtCancelled:     true,
	},
	DebtPaid:      {},
	DebtCancelled: {},
}

var paymentTransitions = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentPending: {
		PaymentProcessing:    true,
		PaymentPartiallyPaid: true,
		PaymentCompleted:     true,
		PaymentCancelled:     true,
	},
	PaymentProcessing: {
		PaymentPartiallyPaid: true,
		PaymentCompleted:     true,
		PaymentCancelled:     true,
	},
	PaymentPartiallyPaid: {
		PaymentPartiallyPaid: true,
		PaymentCompleted:     true,
		PaymentCancelled:     true,
	},
	PaymentCompleted: {
		PaymentCancelled: true,
	},
	PaymentCancelled: {},
}

// CanTransition reports whether the debt status machine allows the move.
func (s DebtStatus) CanTransition(to DebtStatus) bool {
	return debtTransitions[s][to]
}

// CanTransition reports whether the payment status machine allows the move.
func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	return paymentTransitions[s][to]
}

// DeriveDebtStatus computes the time-dependent status of an open debt.
// Overdue is derived, not transitioned by an explicit event.
func DeriveDebtStatus(d *Debt, now time.Time) DebtStatus {
	switch d.Status {
	case DebtPaid, DebtCancelled:
		return d.Status
	}
	if d.Balance.IsZero() {
		return DebtPaid
	}
	if now.After(d.DueDate) {
		return DebtOverdue
	}
	if d.TotalPaid.IsPositive() {
		return DebtPartiallyPaid
	}
	return DebtPending
}
