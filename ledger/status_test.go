package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/anihan/payroll-engine/ledger"
)

func TestDebtStatusTransitions(t *testing.T) {
	// Paid and cancelled are terminal.
	for _, to := range []ledger.DebtStatus{
		ledger.DebtPending, ledger.DebtPartiallyPaid, ledger.DebtPaid,
		ledger.DebtOverdue, ledger.DebtCancelled,
	} {
		assert.False(t, ledger.DebtPaid.CanTransition(to), "paid -> %s", to)
		assert.False(t, ledger.DebtCancelled.CanTransition(to), "cancelled -> %s", to)
	}

	assert.True(t, ledger.DebtPending.CanTransition(ledger.DebtPartiallyPaid))
	assert.True(t, ledger.DebtPending.CanTransition(ledger.DebtOverdue))
	assert.True(t, ledger.DebtPending.CanTransition(ledger.DebtCancelled))
	assert.True(t, ledger.DebtOverdue.CanTransition(ledger.DebtPaid))
	assert.False(t, ledger.DebtOverdue.CanTransition(ledger.DebtOverdue))
}

func TestPaymentStatusTransitions(t *testing.T) {
	// Cancelled is terminal.
	for _, to := range []ledger.PaymentStatus{
		ledger.PaymentPending, ledger.PaymentProcessing, ledger.PaymentCompleted,
		ledger.PaymentPartiallyPaid, ledger.PaymentCancelled,
	} {
		assert.False(t, ledger.PaymentCancelled.CanTransition(to), "cancelled -> %s", to)
	}

	// Completed can only be cancelled (which triggers reversal).
	assert.True(t, ledger.PaymentCompleted.CanTransition(ledger.PaymentCancelled))
	assert.False(t, ledger.PaymentCompleted.CanTransition(ledger.PaymentPending))
	assert.False(t, ledger.PaymentCompleted.CanTransition(ledger.PaymentPartiallyPaid))

	assert.True(t, ledger.PaymentPending.CanTransition(ledger.PaymentProcessing))
	assert.True(t, ledger.PaymentPartiallyPaid.CanTransition(ledger.PaymentCompleted))
	assert.True(t, ledger.PaymentProcessing.CanTransition(ledger.PaymentCancelled))
}
