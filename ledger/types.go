/*
Package ledger defines the durable records of the payroll debt engine
and the pure logic that operates on them.

KEY CONCEPTS IN THIS FILE (types.go):
  - Debt:         A worker's outstanding obligation with derived status
  - DebtEntry:    Immutable ledger line recording one balance change
  - Payment:      One payroll disbursement, subject to deductions
  - PaymentEntry: Immutable ledger line recording one payment change
  - Worker:       Aggregate projections over the worker's debts

DESIGN PRINCIPLES:
  1. Immutability: History rows are never modified, only appended.
     Corrections are new refund entries, not edits of the past.
  2. Precision: Money wraps decimal.Decimal; no float drift.
  3. Derived status: Debt status is computed from balance and due
     date, never stored independently of them.
  4. Optimistic versions: Debt and Payment carry a Version bumped on
     every update so concurrent mutation is detected, not lost.

SEE ALSO:
  - status.go: Allowed status transitions
  - allocation.go: Splitting a payment across open debts
  - errors.go: Error taxonomy
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type WorkerID string
type DebtID string
type PaymentID string
type SessionID string

// =============================================================================
// DEBT
// =============================================================================

type DebtStatus string

const (
	DebtPending       DebtStatus = "pending"
	DebtPartiallyPaid DebtStatus = "partially_paid"
	DebtPaid          DebtStatus = "paid"
	DebtOverdue       DebtStatus = "overdue"
	DebtCancelled     DebtStatus = "cancelled"
)

// Debt is one outstanding obligation of a worker.
//
// INVARIANT: Balance = Amount - TotalPaid, and Balance >= 0, for every
// debt at rest that has not been written off. Write-off forces the
// balance to zero without a payment, which is why cancelled debts are
// excluded from the arithmetic invariant.
type Debt struct {
	ID             DebtID
	WorkerID       WorkerID
	OriginalAmount Money // principal
	Amount         Money // principal + interest
	Balance        Money // remaining owed
	TotalPaid      Money
	TotalInterest  Money
	InterestRate   decimal.Decimal
	Status         DebtStatus
	DueDate        time.Time
	DateIncurred   time.Time
	LastPaymentDate *time.Time
	Version        int64
	CreatedAt      time.Time
}

// Open reports whether the debt can still receive allocations.
func (d *Debt) Open() bool {
	return d.Status == DebtPending || d.Status == DebtPartiallyPaid || d.Status == DebtOverdue
}

// ApplyPayment credits an allocation against the debt and rederives
// its status. The caller guarantees amount <= Balance.
func (d *Debt) ApplyPayment(amount Money, at time.Time) {
	d.Balance = d.Balance.Sub(amount).ClampZero()
	d.TotalPaid = d.TotalPaid.Add(amount)
	t := at
	d.LastPaymentDate = &t
	if d.Balance.IsZero() {
		d.Status = DebtPaid
	} else {
		d.Status = DebtPartiallyPaid
	}
}

// ReversePayment undoes one previously applied allocation.
func (d *Debt) ReversePayment(amount Money) {
	d.Balance = d.Balance.Add(amount)
	d.TotalPaid = d.TotalPaid.Sub(amount).ClampZero()
	if d.TotalPaid.IsPositive() {
		d.Status = DebtPartiallyPaid
	} else {
		d.Status = DebtPending
	}
}

// CheckInvariant verifies Balance = Amount - TotalPaid and Balance >= 0.
// Cancelled (written-off) debts are exempt from the arithmetic identity.
func (d *Debt) CheckInvariant() error {
	if d.Balance.IsNegative() {
		return &InvariantError{DebtID: d.ID, Detail: "negative balance"}
	}
	if d.Status == DebtCancelled {
		return nil
	}
	if !d.Balance.Equal(d.Amount.Sub(d.TotalPaid)) {
		return &InvariantError{DebtID: d.ID, Detail: "balance != amount - total_paid"}
	}
	return nil
}

// =============================================================================
// DEBT HISTORY (append-only)
// =============================================================================

type DebtTransactionType string

const (
	DebtTxCreate     DebtTransactionType = "create"
	DebtTxPayment    DebtTransactionType = "payment"
	DebtTxAdjustment DebtTransactionType = "adjustment"
	DebtTxInterest   DebtTransactionType = "interest"
	DebtTxRefund     DebtTransactionType = "refund"
	DebtTxWriteOff   DebtTransactionType = "write_off"
)

// DebtEntry is one immutable ledger line against a debt. Replaying a
// debt's entries in order and taking the last NewBalance must reproduce
// the debt's current balance.
type DebtEntry struct {
	ID              string
	DebtID          DebtID
	PaymentID       *PaymentID // payroll payment that caused it, if any
	Type            DebtTransactionType
	AmountPaid      Money
	PreviousBalance Money
	NewBalance      Money
	PaymentMethod   string
	ReferenceNumber string
	RecordedAt      time.Time
}

// =============================================================================
// PAYMENT
// =============================================================================

type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "pending"
	PaymentProcessing    PaymentStatus = "processing"
	PaymentCompleted     PaymentStatus = "completed"
	PaymentPartiallyPaid PaymentStatus = "partially_paid"
	PaymentCancelled     PaymentStatus = "cancelled"
)

// DeductionCategory tags one line of a payment's deduction breakdown.
// A closed enum replaces the open-ended map the category data used to
// live in.
type DeductionCategory string

const (
	DeductionDebtRepayment DeductionCategory = "debt_repayment"
	DeductionManual        DeductionCategory = "manual"
	DeductionSupplies      DeductionCategory = "supplies"
	DeductionOther         DeductionCategory = "other"
)

type DeductionLine struct {
	Category DeductionCategory `json:"category"`
	Amount   Money             `json:"amount"`
	Note     string            `json:"note,omitempty"`
}

type DeductionBreakdown []DeductionLine

func (b DeductionBreakdown) Total() Money {
	total := ZeroMoney()
	for _, l := range b {
		total = total.Add(l.Amount)
	}
	return total
}

// Payment is one payroll disbursement for a worker in a session.
//
// INVARIANT: NetPay = GrossPay - TotalDebtDeduction - ManualDeduction -
// OtherDeductions, clamped >= 0. GrossPay is an immutable payroll fact;
// deductions accumulate against it.
type Payment struct {
	ID                 PaymentID
	WorkerID           WorkerID
	SessionID          SessionID
	GrossPay           Money
	ManualDeduction    Money
	OtherDeductions    Money
	TotalDebtDeduction Money
	NetPay             Money
	Status             PaymentStatus
	Breakdown          DeductionBreakdown
	PeriodStart        time.Time
	PeriodEnd          time.Time
	Version            int64
	CreatedAt          time.Time
}

// RecomputeNetPay re-derives NetPay from the invariant.
func (p *Payment) RecomputeNetPay() {
	p.NetPay = p.GrossPay.
		Sub(p.TotalDebtDeduction).
		Sub(p.ManualDeduction).
		Sub(p.OtherDeductions).
		ClampZero()
}

// DeductionCapacity is how much debt deduction the payment can still
// absorb before its gross pay is exhausted.
func (p *Payment) DeductionCapacity() Money {
	return p.GrossPay.Sub(p.TotalDebtDeduction).ClampZero()
}

// Deductable reports whether the payment can receive a debt deduction.
func (p *Payment) Deductable() bool {
	switch p.Status {
	case PaymentPending, PaymentProcessing, PaymentPartiallyPaid:
		return p.DeductionCapacity().IsPositive()
	}
	return false
}

// ApplyDebtDeduction takes min(capacity, requested) from the payment,
// records it in the breakdown, recomputes net pay and status, and
// returns the amount actually taken.
func (p *Payment) ApplyDebtDeduction(requested Money, note string) Money {
	take := requested.Min(p.DeductionCapacity())
	if !take.IsPositive() {
		return ZeroMoney()
	}
	p.TotalDebtDeduction = p.TotalDebtDeduction.Add(take)
	p.Breakdown = append(p.Breakdown, DeductionLine{
		Category: DeductionDebtRepayment,
		Amount:   take,
		Note:     note,
	})
	p.RecomputeNetPay()
	if p.NetPay.IsZero() {
		p.Status = PaymentCompleted
	} else {
		p.Status = PaymentPartiallyPaid
	}
	return take
}

// =============================================================================
// PAYMENT HISTORY (append-only)
// =============================================================================

type PaymentActionType string

const (
	PaymentActionCreate       PaymentActionType = "create"
	PaymentActionDeduction    PaymentActionType = "deduction"
	PaymentActionCancellation PaymentActionType = "cancellation"
)

// PaymentEntry is one immutable ledger line against a payment.
type PaymentEntry struct {
	ID              string
	PaymentID       PaymentID
	Action          PaymentActionType
	ChangedField    string
	OldAmount       Money
	NewAmount       Money
	ReferenceNumber string
	PerformedBy     string
	Note            string
	RecordedAt      time.Time
}

// =============================================================================
// WORKER
// =============================================================================

// Worker carries cached projections over its debts. The aggregates are
// recomputed from live debt rows after every mutating operation, never
// adjusted incrementally.
type Worker struct {
	ID             WorkerID
	Name           string
	TotalDebt      Money // sum of Amount over non-cancelled debts
	TotalPaid      Money // sum of TotalPaid
	CurrentBalance Money // sum of Balance
	CreatedAt      time.Time
}

// RecomputeAggregates refreshes the cached sums from the debt rows.
func (w *Worker) RecomputeAggregates(debts []Debt) {
	totalDebt, totalPaid, balance := ZeroMoney(), ZeroMoney(), ZeroMoney()
	for _, d := range debts {
		if d.Status != DebtCancelled {
			totalDebt = totalDebt.Add(d.Amount)
		}
		totalPaid = totalPaid.Add(d.TotalPaid)
		balance = balance.Add(d.Balance)
	}
	w.TotalDebt = totalDebt
	w.TotalPaid = totalPaid
	w.CurrentBalance = balance
}

// =============================================================================
// SESSION & AUDIT
// =============================================================================

// Session is one payroll period. Only payments in the active session
// are eligible for debt deduction.
type Session struct {
	ID        SessionID
	Name      string
	Active    bool
	StartedAt time.Time
}

// AuditRecord is one append-only line in the audit trail.
type AuditRecord struct {
	ID              string
	Action          string
	Actor           string
	ReferenceNumber string
	Details         string
	RecordedAt      time.Time
}
