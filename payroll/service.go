/*
service.go - Payroll engine service and supporting operations

PURPOSE:
  Service is the stateless entry point for every ledger-mutating
  operation. It holds no entity state of its own; all dependencies
  (store, clock, strategy defaults) are injected at construction and
  every operation runs against an explicitly scoped unit of work.

OPERATIONS:
  ProcessDebtPayment  reconcile.go - allocate a payment across debts
  CancelPayment       reversal.go  - cancel and, if needed, reverse
  RegisterWorker, OpenSession, IssueDebt, CreatePayment, WriteOffDebt
                      below        - supporting lifecycle operations

ERROR CONTRACT:
  Operations return typed errors from the ledger taxonomy. Nothing in
  this package formats responses; the HTTP boundary maps errors to the
  uniform envelope.
*/
package payroll

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/anihan/payroll-engine/ledger"
)

// Service coordinates ledger mutations. Safe for concurrent use; all
// shared state lives in the store.
type Service struct {
	store     Store
	strategy  ledger.Strategy
	remainder ledger.RemainderPolicy
	now       func() time.Time
}

// Config carries the injectable defaults for a Service.
type Config struct {
	DefaultStrategy ledger.Strategy
	Remainder       ledger.RemainderPolicy
	Now             func() time.Time
}

// NewService builds a Service over the given store.
func NewService(store Store, cfg Config) *Service {
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = ledger.StrategyAuto
	}
	if cfg.Remainder == "" {
		cfg.Remainder = ledger.RemainderKeep
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:     store,
		strategy:  cfg.DefaultStrategy,
		remainder: cfg.Remainder,
		now:       cfg.Now,
	}
}

// =============================================================================
// SUPPORTING LIFECYCLE OPERATIONS
// =============================================================================

// RegisterWorker creates a worker with zeroed aggregates.
func (s *Service) RegisterWorker(ctx context.Context, id ledger.WorkerID, name string) (*ledger.Worker, error) {
	if id == "" {
		return nil, &ledger.ValidationError{Field: "worker_id", Message: "must not be empty"}
	}
	if name == "" {
		return nil, &ledger.ValidationError{Field: "name", Message: "must not be empty"}
	}
	w := &ledger.Worker{
		ID:             id,
		Name:           name,
		TotalDebt:      ledger.ZeroMoney(),
		TotalPaid:      ledger.ZeroMoney(),
		CurrentBalance: ledger.ZeroMoney(),
		CreatedAt:      s.now(),
	}
	if err := s.store.InsertWorker(ctx, w); err != nil {
		return nil, fmt.Errorf("register worker: %w", err)
	}
	return w, nil
}

// OpenSession deactivates any current session and opens a new active
// payroll session.
func (s *Service) OpenSession(ctx context.Context, name string) (*ledger.Session, error) {
	if name == "" {
		return nil, &ledger.ValidationError{Field: "name", Message: "must not be empty"}
	}
	sess := &ledger.Session{
		ID:        ledger.SessionID(ledger.NewRowID()),
		Name:      name,
		Active:    true,
		StartedAt: s.now(),
	}
	err := s.store.WithTx(ctx, func(repo Repository) error {
		if err := repo.DeactivateSessions(ctx); err != nil {
			return err
		}
		return repo.InsertSession(ctx, sess)
	})
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return sess, nil
}

// IssueDebtRequest carries the inputs for debt issuance.
type IssueDebtRequest struct {
	WorkerID     ledger.WorkerID
	Principal    ledger.Money
	InterestRate decimal.Decimal // e.g. 0.05 for 5%
	DueDate      time.Time
	PerformedBy  string
}

// IssueDebt creates a debt and its opening history row.
func (s *Service) IssueDebt(ctx context.Context, req IssueDebtRequest) (*ledger.Debt, error) {
	if req.WorkerID == "" {
		return nil, &ledger.ValidationError{Field: "worker_id", Message: "must not be empty"}
	}
	if !req.Principal.IsPositive() {
		return nil, &ledger.ValidationError{Field: "principal", Message: "must be positive"}
	}
	if req.InterestRate.IsNegative() {
		return nil, &ledger.ValidationError{Field: "interest_rate", Message: "must not be negative"}
	}

	now := s.now()
	interest := req.Principal.Mul(req.InterestRate)
	total := req.Principal.Add(interest)
	d := &ledger.Debt{
		ID:             ledger.DebtID(ledger.NewRowID()),
		WorkerID:       req.WorkerID,
		OriginalAmount: req.Principal,
		Amount:         total,
		Balance:        total,
		TotalPaid:      ledger.ZeroMoney(),
		TotalInterest:  interest,
		InterestRate:   req.InterestRate,
		Status:         ledger.DebtPending,
		DueDate:        req.DueDate,
		DateIncurred:   now,
		CreatedAt:      now,
	}

	err := s.store.WithTx(ctx, func(repo Repository) error {
		w, err := repo.GetWorker(ctx, req.WorkerID)
		if err != nil {
			return err
		}
		if w == nil {
			return ledger.ErrWorkerNotFound
		}
		if err := repo.InsertDebt(ctx, d); err != nil {
			return err
		}
		if err := repo.AppendDebtEntry(ctx, ledger.DebtEntry{
			ID:              ledger.NewRowID(),
			DebtID:          d.ID,
			Type:            ledger.DebtTxCreate,
			AmountPaid:      ledger.ZeroMoney(),
			PreviousBalance: ledger.ZeroMoney(),
			NewBalance:      d.Balance,
			ReferenceNumber: ledger.NewReference("DBT"),
			RecordedAt:      now,
		}); err != nil {
			return err
		}
		if err := refreshAggregates(ctx, repo, w); err != nil {
			return err
		}
		return appendAudit(ctx, repo, "debt_issued", req.PerformedBy, "",
			fmt.Sprintf("worker=%s amount=%s due=%s", req.WorkerID, total, req.DueDate.Format("2006-01-02")), now)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// CreatePaymentRequest carries the inputs for a payroll disbursement.
type CreatePaymentRequest struct {
	WorkerID        ledger.WorkerID
	GrossPay        ledger.Money
	ManualDeduction ledger.Money
	OtherDeductions ledger.Money
	PeriodStart     time.Time
	PeriodEnd       time.Time
	PerformedBy     string
}

// CreatePayment records a pending payroll payment in the active session.
func (s *Service) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*ledger.Payment, error) {
	if req.WorkerID == "" {
		return nil, &ledger.ValidationError{Field: "worker_id", Message: "must not be empty"}
	}
	if !req.GrossPay.IsPositive() {
		return nil, &ledger.ValidationError{Field: "gross_pay", Message: "must be positive"}
	}
	if req.ManualDeduction.IsNegative() || req.OtherDeductions.IsNegative() {
		return nil, &ledger.ValidationError{Field: "deductions", Message: "must not be negative"}
	}

	now := s.now()
	p := &ledger.Payment{
		ID:                 ledger.PaymentID(ledger.NewRowID()),
		WorkerID:           req.WorkerID,
		GrossPay:           req.GrossPay,
		ManualDeduction:    req.ManualDeduction,
		OtherDeductions:    req.OtherDeductions,
		TotalDebtDeduction: ledger.ZeroMoney(),
		Status:             ledger.PaymentPending,
		PeriodStart:        req.PeriodStart,
		PeriodEnd:          req.PeriodEnd,
		CreatedAt:          now,
	}
	if req.ManualDeduction.IsPositive() {
		p.Breakdown = append(p.Breakdown, ledger.DeductionLine{Category: ledger.DeductionManual, Amount: req.ManualDeduction})
	}
	if req.OtherDeductions.IsPositive() {
		p.Breakdown = append(p.Breakdown, ledger.DeductionLine{Category: ledger.DeductionOther, Amount: req.OtherDeductions})
	}
	p.RecomputeNetPay()

	err := s.store.WithTx(ctx, func(repo Repository) error {
		w, err := repo.GetWorker(ctx, req.WorkerID)
		if err != nil {
			return err
		}
		if w == nil {
			return ledger.ErrWorkerNotFound
		}
		sess, err := repo.ActiveSession(ctx)
		if err != nil {
			return err
		}
		if sess == nil {
			return ledger.ErrNoActiveSession
		}
		p.SessionID = sess.ID
		if err := repo.InsertPayment(ctx, p); err != nil {
			return err
		}
		return repo.AppendPaymentEntry(ctx, ledger.PaymentEntry{
			ID:          ledger.NewRowID(),
			PaymentID:   p.ID,
			Action:      ledger.PaymentActionCreate,
			ChangedField: "gross_pay",
			OldAmount:   ledger.ZeroMoney(),
			NewAmount:   p.GrossPay,
			PerformedBy: req.PerformedBy,
			RecordedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// WriteOffDebt forces a debt's balance to zero and marks it cancelled
// without a corresponding payment.
func (s *Service) WriteOffDebt(ctx context.Context, debtID ledger.DebtID, reason, performedBy string) (*ledger.Debt, error) {
	var out *ledger.Debt
	now := s.now()
	err := s.store.WithTx(ctx, func(repo Repository) error {
		d, err := repo.GetDebt(ctx, debtID)
		if err != nil {
			return err
		}
		if d == nil {
			return ledger.ErrDebtNotFound
		}
		if !d.Status.CanTransition(ledger.DebtCancelled) {
			return &ledger.TransitionError{Entity: "debt", From: string(d.Status), To: string(ledger.DebtCancelled)}
		}

		prev := d.Balance
		d.Balance = ledger.ZeroMoney()
		d.Status = ledger.DebtCancelled
		if err := repo.UpdateDebt(ctx, d); err != nil {
			return err
		}
		if err := repo.AppendDebtEntry(ctx, ledger.DebtEntry{
			ID:              ledger.NewRowID(),
			DebtID:          d.ID,
			Type:            ledger.DebtTxWriteOff,
			AmountPaid:      prev,
			PreviousBalance: prev,
			NewBalance:      ledger.ZeroMoney(),
			ReferenceNumber: ledger.NewReference("WOF"),
			RecordedAt:      now,
		}); err != nil {
			return err
		}

		w, err := repo.GetWorker(ctx, d.WorkerID)
		if err != nil {
			return err
		}
		if w != nil {
			if err := refreshAggregates(ctx, repo, w); err != nil {
				return err
			}
		}
		out = d
		return appendAudit(ctx, repo, "debt_written_off", performedBy, "",
			fmt.Sprintf("debt=%s amount=%s reason=%s", d.ID, prev, reason), now)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// refreshAggregates recomputes and persists a worker's cached sums
// from its live debt rows, inside the caller's transaction.
func refreshAggregates(ctx context.Context, repo Repository, w *ledger.Worker) error {
	debts, err := repo.WorkerDebts(ctx, w.ID)
	if err != nil {
		return err
	}
	w.RecomputeAggregates(debts)
	return repo.UpdateWorkerAggregates(ctx, w)
}
