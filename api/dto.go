/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

ENVELOPE:
  Every response, success or failure, uses the same shape:

    {"status": true,  "message": "...", "data": {...}}
    {"status": false, "message": "...", "data": null}

  Clients branch on "status"; "message" is human-readable; "data"
  carries the payload on success.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts cross the wire as decimal strings ("150.00"), never floats.
  ledger.Money marshals itself that way.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: Domain records these project
*/
package api

import (
	"time"

	"github.com/anihan/payroll-engine/ledger"
	"github.com/anihan/payroll-engine/payroll"
)

// =============================================================================
// ENVELOPE
// =============================================================================

// Envelope is the uniform response wrapper.
type Envelope struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

type CreateWorkerRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type OpenSessionRequest struct {
	Name string `json:"name"`
}

type IssueDebtRequest struct {
	WorkerID     string `json:"worker_id"`
	Principal    string `json:"principal"`
	InterestRate string `json:"interest_rate"`
	DueDate      string `json:"due_date"` // YYYY-MM-DD
	PerformedBy  string `json:"performed_by"`
}

type CreatePaymentRequest struct {
	WorkerID        string `json:"worker_id"`
	GrossPay        string `json:"gross_pay"`
	ManualDeduction string `json:"manual_deduction"`
	OtherDeductions string `json:"other_deductions"`
	PeriodStart     string `json:"period_start"` // YYYY-MM-DD
	PeriodEnd       string `json:"period_end"`   // YYYY-MM-DD
	PerformedBy     string `json:"performed_by"`
}

// DebtPaymentRequest is the body of the reconciliation endpoint.
type DebtPaymentRequest struct {
	Amount        string `json:"amount"`
	PaymentMethod string `json:"payment_method"`
	Strategy      string `json:"strategy"` // equal | proportional | auto; empty = server default
	PerformedBy   string `json:"performed_by"`
}

type CancelPaymentRequest struct {
	PerformedBy string `json:"performed_by"`
}

type WriteOffRequest struct {
	Reason      string `json:"reason"`
	PerformedBy string `json:"performed_by"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type WorkerDTO struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	TotalDebt      string    `json:"total_debt"`
	TotalPaid      string    `json:"total_paid"`
	CurrentBalance string    `json:"current_balance"`
	CreatedAt      time.Time `json:"created_at"`
}

type SessionDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	StartedAt time.Time `json:"started_at"`
}

type DebtDTO struct {
	ID              string     `json:"id"`
	WorkerID        string     `json:"worker_id"`
	OriginalAmount  string     `json:"original_amount"`
	Amount          string     `json:"amount"`
	Balance         string     `json:"balance"`
	TotalPaid       string     `json:"total_paid"`
	TotalInterest   string     `json:"total_interest"`
	InterestRate    string     `json:"interest_rate"`
	Status          string     `json:"status"`
	DueDate         time.Time  `json:"due_date"`
	DateIncurred    time.Time  `json:"date_incurred"`
	LastPaymentDate *time.Time `json:"last_payment_date,omitempty"`
}

type DebtEntryDTO struct {
	ID              string    `json:"id"`
	DebtID          string    `json:"debt_id"`
	PaymentID       string    `json:"payment_id,omitempty"`
	Type            string    `json:"type"`
	AmountPaid      string    `json:"amount_paid"`
	PreviousBalance string    `json:"previous_balance"`
	NewBalance      string    `json:"new_balance"`
	PaymentMethod   string    `json:"payment_method,omitempty"`
	ReferenceNumber string    `json:"reference_number"`
	RecordedAt      time.Time `json:"recorded_at"`
}

type PaymentDTO struct {
	ID                 string                 `json:"id"`
	WorkerID           string                 `json:"worker_id"`
	SessionID          string                 `json:"session_id"`
	GrossPay           string                 `json:"gross_pay"`
	ManualDeduction    string                 `json:"manual_deduction"`
	OtherDeductions    string                 `json:"other_deductions"`
	TotalDebtDeduction string                 `json:"total_debt_deduction"`
	NetPay             string                 `json:"net_pay"`
	Status             string                 `json:"status"`
	Breakdown          []ledger.DeductionLine `json:"deduction_breakdown"`
	PeriodStart        time.Time              `json:"period_start"`
	PeriodEnd          time.Time              `json:"period_end"`
}

type PaymentEntryDTO struct {
	ID              string    `json:"id"`
	PaymentID       string    `json:"payment_id"`
	Action          string    `json:"action"`
	ChangedField    string    `json:"changed_field,omitempty"`
	OldAmount       string    `json:"old_amount"`
	NewAmount       string    `json:"new_amount"`
	ReferenceNumber string    `json:"reference_number,omitempty"`
	PerformedBy     string    `json:"performed_by,omitempty"`
	Note            string    `json:"note,omitempty"`
	RecordedAt      time.Time `json:"recorded_at"`
}

type AllocationDTO struct {
	DebtID        string `json:"debt_id"`
	Amount        string `json:"amount"`
	BalanceBefore string `json:"balance_before"`
	BalanceAfter  string `json:"balance_after"`
}

// DebtPaymentResultDTO reports a completed reconciliation.
type DebtPaymentResultDTO struct {
	ReferenceNumber string          `json:"reference_number"`
	Strategy        string          `json:"strategy"`
	Allocations     []AllocationDTO `json:"allocations"`
	TotalAllocated  string          `json:"total_allocated"`
	Unallocated     string          `json:"unallocated"`
	Payments        []PaymentDTO    `json:"payments"`
	WorkerBalance   string          `json:"worker_balance"`
}

// CancelResultDTO reports a completed cancellation.
type CancelResultDTO struct {
	Payment         PaymentDTO      `json:"payment"`
	ReferenceNumber string          `json:"reference_number,omitempty"`
	Reversed        []AllocationDTO `json:"reversed"`
	SkippedDebts    []string        `json:"skipped_debts,omitempty"`
}

type AuditDTO struct {
	ID              string    `json:"id"`
	Action          string    `json:"action"`
	Actor           string    `json:"actor"`
	ReferenceNumber string    `json:"reference_number,omitempty"`
	Details         string    `json:"details"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toWorkerDTO(w *ledger.Worker) WorkerDTO {
	return WorkerDTO{
		ID:             string(w.ID),
		Name:           w.Name,
		TotalDebt:      w.TotalDebt.String(),
		TotalPaid:      w.TotalPaid.String(),
		CurrentBalance: w.CurrentBalance.String(),
		CreatedAt:      w.CreatedAt,
	}
}

func toSessionDTO(s *ledger.Session) SessionDTO {
	return SessionDTO{
		ID:        string(s.ID),
		Name:      s.Name,
		Active:    s.Active,
		StartedAt: s.StartedAt,
	}
}

func toDebtDTO(d *ledger.Debt) DebtDTO {
	return DebtDTO{
		ID:              string(d.ID),
		WorkerID:        string(d.WorkerID),
		OriginalAmount:  d.OriginalAmount.String(),
		Amount:          d.Amount.String(),
		Balance:         d.Balance.String(),
		TotalPaid:       d.TotalPaid.String(),
		TotalInterest:   d.TotalInterest.String(),
		InterestRate:    d.InterestRate.String(),
		Status:          string(d.Status),
		DueDate:         d.DueDate,
		DateIncurred:    d.DateIncurred,
		LastPaymentDate: d.LastPaymentDate,
	}
}

func toDebtDTOs(debts []ledger.Debt) []DebtDTO {
	dtos := make([]DebtDTO, len(debts))
	for i := range debts {
		dtos[i] = toDebtDTO(&debts[i])
	}
	return dtos
}

func toDebtEntryDTO(e ledger.DebtEntry) DebtEntryDTO {
	dto := DebtEntryDTO{
		ID:              e.ID,
		DebtID:          string(e.DebtID),
		Type:            string(e.Type),
		AmountPaid:      e.AmountPaid.String(),
		PreviousBalance: e.PreviousBalance.String(),
		NewBalance:      e.NewBalance.String(),
		PaymentMethod:   e.PaymentMethod,
		ReferenceNumber: e.ReferenceNumber,
		RecordedAt:      e.RecordedAt,
	}
	if e.PaymentID != nil {
		dto.PaymentID = string(*e.PaymentID)
	}
	return dto
}

func toPaymentDTO(p *ledger.Payment) PaymentDTO {
	breakdown := p.Breakdown
	if breakdown == nil {
		breakdown = ledger.DeductionBreakdown{}
	}
	return PaymentDTO{
		ID:                 string(p.ID),
		WorkerID:           string(p.WorkerID),
		SessionID:          string(p.SessionID),
		GrossPay:           p.GrossPay.String(),
		ManualDeduction:    p.ManualDeduction.String(),
		OtherDeductions:    p.OtherDeductions.String(),
		TotalDebtDeduction: p.TotalDebtDeduction.String(),
		NetPay:             p.NetPay.String(),
		Status:             string(p.Status),
		Breakdown:          breakdown,
		PeriodStart:        p.PeriodStart,
		PeriodEnd:          p.PeriodEnd,
	}
}

func toPaymentEntryDTO(e ledger.PaymentEntry) PaymentEntryDTO {
	return PaymentEntryDTO{
		ID:              e.ID,
		PaymentID:       string(e.PaymentID),
		Action:          string(e.Action),
		ChangedField:    e.ChangedField,
		OldAmount:       e.OldAmount.String(),
		NewAmount:       e.NewAmount.String(),
		ReferenceNumber: e.ReferenceNumber,
		PerformedBy:     e.PerformedBy,
		Note:            e.Note,
		RecordedAt:      e.RecordedAt,
	}
}

func toAllocationDTOs(allocs []ledger.Allocation) []AllocationDTO {
	dtos := make([]AllocationDTO, len(allocs))
	for i, a := range allocs {
		dtos[i] = AllocationDTO{
			DebtID:        string(a.DebtID),
			Amount:        a.Amount.String(),
			BalanceBefore: a.BalanceBefore.String(),
			BalanceAfter:  a.BalanceAfter.String(),
		}
	}
	return dtos
}

func toDebtPaymentResultDTO(res *payroll.DebtPaymentResult) DebtPaymentResultDTO {
	payments := make([]PaymentDTO, len(res.Payments))
	for i := range res.Payments {
		payments[i] = toPaymentDTO(&res.Payments[i])
	}
	return DebtPaymentResultDTO{
		ReferenceNumber: res.ReferenceNumber,
		Strategy:        string(res.Strategy),
		Allocations:     toAllocationDTOs(res.Allocations),
		TotalAllocated:  res.TotalAllocated.String(),
		Unallocated:     res.Unallocated.String(),
		Payments:        payments,
		WorkerBalance:   res.WorkerBalance.String(),
	}
}

func toCancelResultDTO(res *payroll.CancelResult) CancelResultDTO {
	skipped := make([]string, len(res.SkippedDebts))
	for i, id := range res.SkippedDebts {
		skipped[i] = string(id)
	}
	return CancelResultDTO{
		Payment:         toPaymentDTO(&res.Payment),
		ReferenceNumber: res.ReferenceNumber,
		Reversed:        toAllocationDTOs(res.Reversed),
		SkippedDebts:    skipped,
	}
}

func toAuditDTOs(recs []ledger.AuditRecord) []AuditDTO {
	dtos := make([]AuditDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = AuditDTO{
			ID:              rec.ID,
			Action:          rec.Action,
			Actor:           rec.Actor,
			ReferenceNumber: rec.ReferenceNumber,
			Details:         rec.Details,
			RecordedAt:      rec.RecordedAt,
		}
	}
	return dtos
}
