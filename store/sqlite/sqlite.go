/*
Package sqlite provides the SQLite-backed implementation of the
payroll storage interfaces.

INTERFACES IMPLEMENTED:
  payroll.Repository: Typed accessors for all ledger entities
  payroll.Store:      Repository + WithTx scoped unit of work

APPEND-ONLY ENFORCEMENT:
  debt_history, payment_history and audit_log have no UPDATE or
  DELETE statements anywhere in this package. Corrections happen
  through new refund rows.

KEY TABLES:
  workers:          Worker records with cached aggregates
  sessions:         Payroll sessions; at most one active
  debts:            Debt rows with version column
  debt_history:     Immutable per-debt ledger lines
  payments:         Payroll payments with version column
  payment_history:  Immutable per-payment ledger lines
  audit_log:        Append-only audit trail

CONCURRENCY:
  The DSN sets _txlock=immediate so every transaction takes the write
  lock at BEGIN, serializing writers. On top of that, debts and
  payments carry a version column; UPDATE statements match the loaded
  version and bump it, returning ledger.ErrConcurrentModification on
  a stale read. WAL mode keeps readers unblocked.

MONEY & TIME:
  Amounts are stored as decimal strings, timestamps as RFC3339 text,
  mirroring the exact in-memory representation.

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  ...
  svc := payroll.NewService(store, payroll.Config{})
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/anihan/payroll-engine/ledger"
	"github.com/anihan/payroll-engine/payroll"
)

// dbtx is the common surface of *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements payroll.Store on SQLite.
type Store struct {
	db *sql.DB
	queries
}

// queries implements payroll.Repository against either the pool or an
// open transaction.
type queries struct {
	db dbtx
}

// New opens (or creates) the database at dbPath and migrates the
// schema. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single writer at a time keeps _txlock=immediate meaningful
	// and avoids SQLITE_BUSY under concurrent reconciliations.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, queries: queries{db: db}}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		total_debt TEXT NOT NULL DEFAULT '0',
		total_paid TEXT NOT NULL DEFAULT '0',
		current_balance TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT FALSE,
		started_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_active ON sessions(active);

	CREATE TABLE IF NOT EXISTS debts (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL REFERENCES workers(id),
		original_amount TEXT NOT NULL,
		amount TEXT NOT NULL,
		balance TEXT NOT NULL,
		total_paid TEXT NOT NULL DEFAULT '0',
		total_interest TEXT NOT NULL DEFAULT '0',
		interest_rate TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		due_date TEXT NOT NULL,
		date_incurred TEXT NOT NULL,
		last_payment_date TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_debts_worker ON debts(worker_id);
	CREATE INDEX IF NOT EXISTS idx_debts_worker_status ON debts(worker_id, status, date_incurred);
	CREATE INDEX IF NOT EXISTS idx_debts_due ON debts(status, due_date);

	-- Append-only: no UPDATE or DELETE on this table. Ever.
	CREATE TABLE IF NOT EXISTS debt_history (
		id TEXT PRIMARY KEY,
		debt_id TEXT NOT NULL REFERENCES debts(id),
		payment_id TEXT,
		tx_type TEXT NOT NULL,
		amount_paid TEXT NOT NULL,
		previous_balance TEXT NOT NULL,
		new_balance TEXT NOT NULL,
		payment_method TEXT,
		reference_number TEXT,
		recorded_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_debt_history_debt ON debt_history(debt_id, recorded_at);
	CREATE INDEX IF NOT EXISTS idx_debt_history_payment ON debt_history(payment_id) WHERE payment_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_debt_history_reference ON debt_history(reference_number);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL REFERENCES workers(id),
		session_id TEXT NOT NULL REFERENCES sessions(id),
		gross_pay TEXT NOT NULL,
		manual_deduction TEXT NOT NULL DEFAULT '0',
		other_deductions TEXT NOT NULL DEFAULT '0',
		total_debt_deduction TEXT NOT NULL DEFAULT '0',
		net_pay TEXT NOT NULL,
		status TEXT NOT NULL,
		breakdown_json TEXT,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_payments_worker_session ON payments(worker_id, session_id, status, created_at);

	-- Append-only: no UPDATE or DELETE on this table. Ever.
	CREATE TABLE IF NOT EXISTS payment_history (
		id TEXT PRIMARY KEY,
		payment_id TEXT NOT NULL REFERENCES payments(id),
		action TEXT NOT NULL,
		changed_field TEXT,
		old_amount TEXT NOT NULL DEFAULT '0',
		new_amount TEXT NOT NULL DEFAULT '0',
		reference_number TEXT,
		performed_by TEXT,
		note TEXT,
		recorded_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_payment_history_payment ON payment_history(payment_id, recorded_at);

	-- Append-only: no UPDATE or DELETE on this table. Ever.
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		actor TEXT NOT NULL,
		reference_number TEXT,
		details TEXT,
		recorded_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_recorded ON audit_log(recorded_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

// WithTx runs fn inside one database transaction. The transaction is
// committed when fn returns nil and rolled back otherwise; the caller
// never manages commit/rollback itself.
func (s *Store) WithTx(ctx context.Context, fn func(payroll.Repository) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{db: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// WORKERS
// =============================================================================

func (q *queries) GetWorker(ctx context.Context, id ledger.WorkerID) (*ledger.Worker, error) {
	var (
		w                                        ledger.Worker
		totalDebt, totalPaid, balance, createdAt string
	)
	err := q.db.QueryRowContext(ctx,
		"SELECT id, name, total_debt, total_paid, current_balance, created_at FROM workers WHERE id = ?",
		id,
	).Scan(&w.ID, &w.Name, &totalDebt, &totalPaid, &balance, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get worker: %w", err)
	}
	w.TotalDebt = ledger.ParseMoney(totalDebt)
	w.TotalPaid = ledger.ParseMoney(totalPaid)
	w.CurrentBalance = ledger.ParseMoney(balance)
	w.CreatedAt = parseTime(createdAt)
	return &w, nil
}

func (q *queries) InsertWorker(ctx context.Context, w *ledger.Worker) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO workers (id, name, total_debt, total_paid, current_balance, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.Name, w.TotalDebt.String(), w.TotalPaid.String(), w.CurrentBalance.String(),
		formatTime(w.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.ValidationError{Field: "worker_id", Message: "already registered"}
		}
		return fmt.Errorf("failed to insert worker: %w", err)
	}
	return nil
}

func (q *queries) UpdateWorkerAggregates(ctx context.Context, w *ledger.Worker) error {
	_, err := q.db.ExecContext(ctx,
		"UPDATE workers SET total_debt = ?, total_paid = ?, current_balance = ? WHERE id = ?",
		w.TotalDebt.String(), w.TotalPaid.String(), w.CurrentBalance.String(), w.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update worker aggregates: %w", err)
	}
	return nil
}

// =============================================================================
// SESSIONS
// =============================================================================

func (q *queries) ActiveSession(ctx context.Context) (*ledger.Session, error) {
	var (
		s         ledger.Session
		startedAt string
	)
	err := q.db.QueryRowContext(ctx,
		"SELECT id, name, active, started_at FROM sessions WHERE active = TRUE ORDER BY started_at DESC LIMIT 1",
	).Scan(&s.ID, &s.Name, &s.Active, &startedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	s.StartedAt = parseTime(startedAt)
	return &s, nil
}

func (q *queries) InsertSession(ctx context.Context, s *ledger.Session) error {
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO sessions (id, name, active, started_at) VALUES (?, ?, ?, ?)",
		s.ID, s.Name, s.Active, formatTime(s.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (q *queries) DeactivateSessions(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, "UPDATE sessions SET active = FALSE WHERE active = TRUE")
	if err != nil {
		return fmt.Errorf("failed to deactivate sessions: %w", err)
	}
	return nil
}

// =============================================================================
// DEBTS
// =============================================================================

const debtColumns = `id, worker_id, original_amount, amount, balance, total_paid, total_interest,
	interest_rate, status, due_date, date_incurred, last_payment_date, version, created_at`

func (q *queries) GetDebt(ctx context.Context, id ledger.DebtID) (*ledger.Debt, error) {
	debts, err := q.queryDebts(ctx, "SELECT "+debtColumns+" FROM debts WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(debts) == 0 {
		return nil, nil
	}
	return &debts[0], nil
}

func (q *queries) WorkerDebts(ctx context.Context, workerID ledger.WorkerID) ([]ledger.Debt, error) {
	return q.queryDebts(ctx,
		"SELECT "+debtColumns+" FROM debts WHERE worker_id = ? ORDER BY date_incurred ASC, id ASC",
		workerID)
}

func (q *queries) OpenDebts(ctx context.Context, workerID ledger.WorkerID) ([]ledger.Debt, error) {
	return q.queryDebts(ctx,
		`SELECT `+debtColumns+` FROM debts
		 WHERE worker_id = ? AND status IN ('pending', 'partially_paid', 'overdue') AND CAST(balance AS REAL) > 0
		 ORDER BY date_incurred ASC, id ASC`,
		workerID)
}

func (q *queries) InsertDebt(ctx context.Context, d *ledger.Debt) error {
	d.Version = 1
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO debts (`+debtColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.WorkerID, d.OriginalAmount.String(), d.Amount.String(), d.Balance.String(),
		d.TotalPaid.String(), d.TotalInterest.String(), d.InterestRate.String(),
		d.Status, formatTime(d.DueDate), formatTime(d.DateIncurred),
		nullTime(d.LastPaymentDate), d.Version, formatTime(d.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert debt: %w", err)
	}
	return nil
}

// UpdateDebt persists a mutated debt with an optimistic version check.
// A stale version means another transaction changed the row since it
// was loaded: the caller's whole operation must roll back and retry.
func (q *queries) UpdateDebt(ctx context.Context, d *ledger.Debt) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE debts SET balance = ?, total_paid = ?, status = ?, last_payment_date = ?,
			version = version + 1
		 WHERE id = ? AND version = ?`,
		d.Balance.String(), d.TotalPaid.String(), d.Status, nullTime(d.LastPaymentDate),
		d.ID, d.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update debt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update debt: %w", err)
	}
	if n == 0 {
		return ledger.ErrConcurrentModification
	}
	d.Version++
	return nil
}

func (q *queries) MarkOverdueDebts(ctx context.Context, asOf time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE debts SET status = 'overdue', version = version + 1
		 WHERE status IN ('pending', 'partially_paid') AND CAST(balance AS REAL) > 0 AND due_date < ?`,
		formatTime(asOf),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark overdue debts: %w", err)
	}
	return res.RowsAffected()
}

func (q *queries) queryDebts(ctx context.Context, query string, args ...any) ([]ledger.Debt, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query debts: %w", err)
	}
	defer rows.Close()

	var debts []ledger.Debt
	for rows.Next() {
		var (
			d                                               ledger.Debt
			original, amount, balance, paid, interest, rate string
			dueDate, dateIncurred, createdAt                string
			lastPayment                                     sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.WorkerID, &original, &amount, &balance, &paid, &interest,
			&rate, &d.Status, &dueDate, &dateIncurred, &lastPayment, &d.Version, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan debt: %w", err)
		}
		d.OriginalAmount = ledger.ParseMoney(original)
		d.Amount = ledger.ParseMoney(amount)
		d.Balance = ledger.ParseMoney(balance)
		d.TotalPaid = ledger.ParseMoney(paid)
		d.TotalInterest = ledger.ParseMoney(interest)
		d.InterestRate = ledger.ParseMoney(rate).Value
		d.DueDate = parseTime(dueDate)
		d.DateIncurred = parseTime(dateIncurred)
		d.CreatedAt = parseTime(createdAt)
		if lastPayment.Valid {
			t := parseTime(lastPayment.String)
			d.LastPaymentDate = &t
		}
		debts = append(debts, d)
	}
	return debts, rows.Err()
}

// =============================================================================
// DEBT HISTORY (append-only)
// =============================================================================

func (q *queries) AppendDebtEntry(ctx context.Context, e ledger.DebtEntry) error {
	var paymentID any
	if e.PaymentID != nil {
		paymentID = string(*e.PaymentID)
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO debt_history
		 (id, debt_id, payment_id, tx_type, amount_paid, previous_balance, new_balance,
		  payment_method, reference_number, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.DebtID, paymentID, e.Type, e.AmountPaid.String(),
		e.PreviousBalance.String(), e.NewBalance.String(),
		nullString(e.PaymentMethod), nullString(e.ReferenceNumber), formatTime(e.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append debt entry: %w", err)
	}
	return nil
}

const debtEntryColumns = `id, debt_id, payment_id, tx_type, amount_paid, previous_balance,
	new_balance, payment_method, reference_number, recorded_at`

func (q *queries) DebtEntries(ctx context.Context, debtID ledger.DebtID) ([]ledger.DebtEntry, error) {
	return q.queryDebtEntries(ctx,
		"SELECT "+debtEntryColumns+" FROM debt_history WHERE debt_id = ? ORDER BY recorded_at ASC, id ASC",
		debtID)
}

func (q *queries) DebtEntriesByPayment(ctx context.Context, paymentID ledger.PaymentID) ([]ledger.DebtEntry, error) {
	return q.queryDebtEntries(ctx,
		"SELECT "+debtEntryColumns+" FROM debt_history WHERE payment_id = ? ORDER BY recorded_at ASC, id ASC",
		paymentID)
}

func (q *queries) queryDebtEntries(ctx context.Context, query string, args ...any) ([]ledger.DebtEntry, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query debt history: %w", err)
	}
	defer rows.Close()

	var entries []ledger.DebtEntry
	for rows.Next() {
		var (
			e                               ledger.DebtEntry
			paymentID, method, ref          sql.NullString
			amountPaid, prevBal, newBal, at string
		)
		if err := rows.Scan(&e.ID, &e.DebtID, &paymentID, &e.Type, &amountPaid, &prevBal,
			&newBal, &method, &ref, &at); err != nil {
			return nil, fmt.Errorf("failed to scan debt entry: %w", err)
		}
		if paymentID.Valid {
			pid := ledger.PaymentID(paymentID.String)
			e.PaymentID = &pid
		}
		e.AmountPaid = ledger.ParseMoney(amountPaid)
		e.PreviousBalance = ledger.ParseMoney(prevBal)
		e.NewBalance = ledger.ParseMoney(newBal)
		e.PaymentMethod = method.String
		e.ReferenceNumber = ref.String
		e.RecordedAt = parseTime(at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// PAYMENTS
// =============================================================================

const paymentColumns = `id, worker_id, session_id, gross_pay, manual_deduction, other_deductions,
	total_debt_deduction, net_pay, status, breakdown_json, period_start, period_end, version, created_at`

func (q *queries) GetPayment(ctx context.Context, id ledger.PaymentID) (*ledger.Payment, error) {
	payments, err := q.queryPayments(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, nil
	}
	return &payments[0], nil
}

func (q *queries) OpenPayments(ctx context.Context, workerID ledger.WorkerID, sessionID ledger.SessionID) ([]ledger.Payment, error) {
	return q.queryPayments(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE worker_id = ? AND session_id = ? AND status IN ('pending', 'processing', 'partially_paid')
		 ORDER BY created_at ASC, id ASC`,
		workerID, sessionID)
}

func (q *queries) InsertPayment(ctx context.Context, p *ledger.Payment) error {
	p.Version = 1
	breakdown, err := json.Marshal(p.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to encode breakdown: %w", err)
	}
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.WorkerID, p.SessionID, p.GrossPay.String(), p.ManualDeduction.String(),
		p.OtherDeductions.String(), p.TotalDebtDeduction.String(), p.NetPay.String(),
		p.Status, string(breakdown), formatTime(p.PeriodStart), formatTime(p.PeriodEnd),
		p.Version, formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// UpdatePayment persists a mutated payment with the same optimistic
// version check as UpdateDebt.
func (q *queries) UpdatePayment(ctx context.Context, p *ledger.Payment) error {
	breakdown, err := json.Marshal(p.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to encode breakdown: %w", err)
	}
	res, err := q.db.ExecContext(ctx,
		`UPDATE payments SET total_debt_deduction = ?, net_pay = ?, status = ?, breakdown_json = ?,
			version = version + 1
		 WHERE id = ? AND version = ?`,
		p.TotalDebtDeduction.String(), p.NetPay.String(), p.Status, string(breakdown),
		p.ID, p.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if n == 0 {
		return ledger.ErrConcurrentModification
	}
	p.Version++
	return nil
}

func (q *queries) queryPayments(ctx context.Context, query string, args ...any) ([]ledger.Payment, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []ledger.Payment
	for rows.Next() {
		var (
			p                                  ledger.Payment
			gross, manual, other, debtDed, net string
			breakdown                          sql.NullString
			periodStart, periodEnd, createdAt  string
		)
		if err := rows.Scan(&p.ID, &p.WorkerID, &p.SessionID, &gross, &manual, &other,
			&debtDed, &net, &p.Status, &breakdown, &periodStart, &periodEnd, &p.Version, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.GrossPay = ledger.ParseMoney(gross)
		p.ManualDeduction = ledger.ParseMoney(manual)
		p.OtherDeductions = ledger.ParseMoney(other)
		p.TotalDebtDeduction = ledger.ParseMoney(debtDed)
		p.NetPay = ledger.ParseMoney(net)
		p.PeriodStart = parseTime(periodStart)
		p.PeriodEnd = parseTime(periodEnd)
		p.CreatedAt = parseTime(createdAt)
		if breakdown.Valid && breakdown.String != "" {
			if err := json.Unmarshal([]byte(breakdown.String), &p.Breakdown); err != nil {
				return nil, fmt.Errorf("failed to decode breakdown for payment %s: %w", p.ID, err)
			}
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// =============================================================================
// PAYMENT HISTORY (append-only)
// =============================================================================

func (q *queries) AppendPaymentEntry(ctx context.Context, e ledger.PaymentEntry) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO payment_history
		 (id, payment_id, action, changed_field, old_amount, new_amount, reference_number,
		  performed_by, note, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PaymentID, e.Action, nullString(e.ChangedField),
		e.OldAmount.String(), e.NewAmount.String(), nullString(e.ReferenceNumber),
		nullString(e.PerformedBy), nullString(e.Note), formatTime(e.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append payment entry: %w", err)
	}
	return nil
}

func (q *queries) PaymentEntries(ctx context.Context, paymentID ledger.PaymentID) ([]ledger.PaymentEntry, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, payment_id, action, changed_field, old_amount, new_amount, reference_number,
			performed_by, note, recorded_at
		 FROM payment_history WHERE payment_id = ? ORDER BY recorded_at ASC, id ASC`,
		paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment history: %w", err)
	}
	defer rows.Close()

	var entries []ledger.PaymentEntry
	for rows.Next() {
		var (
			e                                ledger.PaymentEntry
			field, ref, by, note             sql.NullString
			oldAmount, newAmount, recordedAt string
		)
		if err := rows.Scan(&e.ID, &e.PaymentID, &e.Action, &field, &oldAmount, &newAmount,
			&ref, &by, &note, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment entry: %w", err)
		}
		e.ChangedField = field.String
		e.OldAmount = ledger.ParseMoney(oldAmount)
		e.NewAmount = ledger.ParseMoney(newAmount)
		e.ReferenceNumber = ref.String
		e.PerformedBy = by.String
		e.Note = note.String
		e.RecordedAt = parseTime(recordedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// AUDIT LOG (append-only)
// =============================================================================

func (q *queries) AppendAudit(ctx context.Context, rec ledger.AuditRecord) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, action, actor, reference_number, details, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Action, rec.Actor, nullString(rec.ReferenceNumber),
		nullString(rec.Details), formatTime(rec.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

func (q *queries) AuditTrail(ctx context.Context, limit int) ([]ledger.AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, action, actor, reference_number, details, recorded_at
		 FROM audit_log ORDER BY recorded_at DESC, id DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var records []ledger.AuditRecord
	for rows.Next() {
		var (
			r            ledger.AuditRecord
			ref, details sql.NullString
			recordedAt   string
		)
		if err := rows.Scan(&r.ID, &r.Action, &r.Actor, &ref, &details, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		r.ReferenceNumber = ref.String
		r.Details = details.String
		r.RecordedAt = parseTime(recordedAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
