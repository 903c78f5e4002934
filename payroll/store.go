/*
store.go - Persistence interfaces consumed by the payroll engine

PURPOSE:
  Defines the capability set the engine needs from storage: typed
  per-entity accessors plus a scoped unit of work. The engine depends
  only on these interfaces, not on a specific database.

UNIT OF WORK:
  WithTx runs fn inside one database transaction. Every read and
  write fn performs through the passed Repository hits that same
  transaction; fn returning an error rolls everything back. The store
  owns begin/commit/rollback/release on every exit path - the engine
  never manages transaction lifecycle itself.

CONCURRENCY CONTRACT:
  UpdateDebt and UpdatePayment are version-checked: they match the
  row's current version, bump it, and return
  ledger.ErrConcurrentModification when another transaction got there
  first. Combined with writer-serializing transactions this closes
  the lost-update race between two reconciliations for one worker.

MISSING ROWS:
  Get* methods return (nil, nil) for a missing row. The engine turns
  that into the typed not-found error for its context.
*/
package payroll

import (
	"context"
	"time"

	"github.com/anihan/payroll-engine/ledger"
)

// Repository is the typed accessor set for all ledger entities.
// History and audit tables are append-only: no update or delete
// methods exist for them.
type Repository interface {
	// Workers
	GetWorker(ctx context.Context, id ledger.WorkerID) (*ledger.Worker, error)
	InsertWorker(ctx context.Context, w *ledger.Worker) error
	UpdateWorkerAggregates(ctx context.Context, w *ledger.Worker) error

	// Sessions
	ActiveSession(ctx context.Context) (*ledger.Session, error)
	InsertSession(ctx context.Context, s *ledger.Session) error
	DeactivateSessions(ctx context.Context) error

	// Debts
	GetDebt(ctx context.Context, id ledger.DebtID) (*ledger.Debt, error)
	WorkerDebts(ctx context.Context, workerID ledger.WorkerID) ([]ledger.Debt, error)
	// OpenDebts returns pending/partially_paid/overdue debts with a
	// positive balance, oldest DateIncurred first.
	OpenDebts(ctx context.Context, workerID ledger.WorkerID) ([]ledger.Debt, error)
	InsertDebt(ctx context.Context, d *ledger.Debt) error
	UpdateDebt(ctx context.Context, d *ledger.Debt) error
	MarkOverdueDebts(ctx context.Context, asOf time.Time) (int64, error)
	AppendDebtEntry(ctx context.Context, e ledger.DebtEntry) error
	DebtEntries(ctx context.Context, debtID ledger.DebtID) ([]ledger.DebtEntry, error)
	DebtEntriesByPayment(ctx context.Context, paymentID ledger.PaymentID) ([]ledger.DebtEntry, error)

	// Payments
	GetPayment(ctx context.Context, id ledger.PaymentID) (*ledger.Payment, error)
	// OpenPayments returns pending/processing/partially_paid payments
	// for the worker in the session, oldest first.
	OpenPayments(ctx context.Context, workerID ledger.WorkerID, sessionID ledger.SessionID) ([]ledger.Payment, error)
	InsertPayment(ctx context.Context, p *ledger.Payment) error
	UpdatePayment(ctx context.Context, p *ledger.Payment) error
	AppendPaymentEntry(ctx context.Context, e ledger.PaymentEntry) error
	PaymentEntries(ctx context.Context, paymentID ledger.PaymentID) ([]ledger.PaymentEntry, error)

	// Audit
	AppendAudit(ctx context.Context, rec ledger.AuditRecord) error
	AuditTrail(ctx context.Context, limit int) ([]ledger.AuditRecord, error)
}

// Store is a Repository that can also open a scoped unit of work.
type Store interface {
	Repository
	WithTx(ctx context.Context, fn func(Repository) error) error
}
