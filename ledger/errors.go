/*
errors.go - Centralized error taxonomy for the payroll engine

PURPOSE:
  All error types in one place. Callers classify failures with the
  Is* helpers instead of string matching; the HTTP boundary maps the
  classification to the uniform response envelope.

ERROR CATEGORIES:
  1. Validation errors     - Bad input, rejected before any mutation
  2. Not-found errors      - Worker, debt, payment or session missing
  3. Business-rule errors  - Valid input, forbidden state change
  4. Concurrency errors    - Version conflict, safe to retry

Persistence failures are wrapped with fmt.Errorf("...: %w", err) at
the store layer and fall into none of the above; they surface as
internal errors.
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all input validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrWorkerNotFound is returned when a worker id resolves to nothing.
	ErrWorkerNotFound = errors.New("worker not found")

	// ErrDebtNotFound is returned when a referenced debt doesn't exist.
	ErrDebtNotFound = errors.New("debt not found")

	// ErrPaymentNotFound is returned when a referenced payment doesn't exist.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrNoActiveSession is returned when no payroll session is open.
	ErrNoActiveSession = errors.New("no active payroll session")

	// ErrNoOpenDebts is returned when a worker has nothing left to pay down.
	ErrNoOpenDebts = errors.New("worker has no open debts")

	// ErrNoPendingPayments is returned when a debt deduction is requested
	// against payroll that does not exist in the active session.
	ErrNoPendingPayments = errors.New("no pending payroll payments for worker")

	// ErrNothingToAllocate is returned when the allocation plan is empty,
	// e.g. the payroll payments have no remaining deduction capacity.
	ErrNothingToAllocate = errors.New("no positive balance to allocate")

	// ErrInvalidTransition is the root of all status machine violations.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrConcurrentModification is returned when a version check fails.
	// The whole operation has been rolled back and may be retried.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// TransitionError reports an attempted illegal status change.
type TransitionError struct {
	Entity string // "debt" or "payment"
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %s to %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// InvariantError reports a broken ledger identity. It indicates a bug
// or corrupted data, never bad user input. DebtID is empty when the
// violation is not tied to a single debt.
type InvariantError struct {
	DebtID DebtID
	Detail string
}

func (e *InvariantError) Error() string {
	if e.DebtID == "" {
		return fmt.Sprintf("ledger invariant violated: %s", e.Detail)
	}
	return fmt.Sprintf("ledger invariant violated for debt %s: %s", e.DebtID, e.Detail)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation reports whether the error is bad input detected before
// any mutation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkerNotFound) ||
		errors.Is(err, ErrDebtNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrNoActiveSession)
}

// IsBusinessRule reports whether the error is a forbidden state change
// on otherwise valid input.
func IsBusinessRule(err error) bool {
	return errors.Is(err, ErrNoOpenDebts) ||
		errors.Is(err, ErrNoPendingPayments) ||
		errors.Is(err, ErrNothingToAllocate) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsRetryable reports whether the operation may succeed if retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
