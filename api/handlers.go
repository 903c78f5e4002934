/*
handlers.go - HTTP API handlers for the payroll debt engine

PURPOSE:
  Exposes the debt allocation and reconciliation engine via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to
  the payroll service. No business rules live here.

ENDPOINTS:
  Workers:
    POST   /api/workers                      Register worker
    GET    /api/workers/{id}                 Worker with aggregates
    GET    /api/workers/{id}/debts           All debts for worker
    POST   /api/workers/{id}/debt-payments   Reconcile a debt payment

  Debts:
    POST   /api/debts                        Issue debt
    GET    /api/debts/{id}                   Debt details
    GET    /api/debts/{id}/history           Debt ledger entries
    POST   /api/debts/{id}/write-off         Write off a debt

  Payments:
    POST   /api/payments                     Create payroll payment
    GET    /api/payments/{id}                Payment details
    GET    /api/payments/{id}/history        Payment ledger entries
    POST   /api/payments/{id}/cancel         Cancel (+ reverse)

  Sessions & audit:
    POST   /api/sessions                     Open payroll session
    GET    /api/sessions/active              Current active session
    GET    /api/audit                        Audit trail

ERROR HANDLING:
  Typed errors from the ledger taxonomy map to HTTP status here and
  nowhere else:
  - 400: validation errors
  - 404: worker/debt/payment not found
  - 409: business-rule failures, illegal transitions, version conflicts
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures and the envelope
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/anihan/payroll-engine/ledger"
	"github.com/anihan/payroll-engine/payroll"
	"github.com/anihan/payroll-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlite.Store
	Service *payroll.Service
}

// NewHandler creates a new handler over the store and service.
func NewHandler(store *sqlite.Store, service *payroll.Service) *Handler {
	return &Handler{Store: store, Service: service}
}

// =============================================================================
// WORKER HANDLERS
// =============================================================================

// CreateWorker registers a worker.
// POST /api/workers
func (h *Handler) CreateWorker(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	worker, err := h.Service.RegisterWorker(r.Context(), ledger.WorkerID(req.ID), req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, "worker registered", toWorkerDTO(worker))
}

// GetWorker returns one worker with its debt aggregates.
// GET /api/workers/{id}
func (h *Handler) GetWorker(w http.ResponseWriter, r *http.Request) {
	id := ledger.WorkerID(chi.URLParam(r, "id"))
	worker, err := h.Store.GetWorker(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if worker == nil {
		writeDomainError(w, ledger.ErrWorkerNotFound)
		return
	}
	writeJSON(w, http.StatusOK, "ok", toWorkerDTO(worker))
}

// ListWorkerDebts returns every debt of a worker, open or settled.
// GET /api/workers/{id}/debts
func (h *Handler) ListWorkerDebts(w http.ResponseWriter, r *http.Request) {
	id := ledger.WorkerID(chi.URLParam(r, "id"))
	worker, err := h.Store.GetWorker(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if worker == nil {
		writeDomainError(w, ledger.ErrWorkerNotFound)
		return
	}
	debts, err := h.Store.WorkerDebts(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "ok", toDebtDTOs(debts))
}

// ProcessDebtPayment runs the reconciliation workflow for a worker.
// POST /api/workers/{id}/debt-payments
func (h *Handler) ProcessDebtPayment(w http.ResponseWriter, r *http.Request) {
	id := ledger.WorkerID(chi.URLParam(r, "id"))
	var req DebtPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	res, err := h.Service.ProcessDebtPayment(r.Context(), payroll.DebtPaymentRequest{
		WorkerID:      id,
		Amount:        amount,
		PaymentMethod: req.PaymentMethod,
		Strategy:      ledger.Strategy(req.Strategy),
		PerformedBy:   req.PerformedBy,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "debt payment processed", toDebtPaymentResultDTO(res))
}

// =============================================================================
// DEBT HANDLERS
// =============================================================================

// IssueDebt creates a new debt for a worker.
// POST /api/debts
func (h *Handler) IssueDebt(w http.ResponseWriter, r *http.Request) {
	var req IssueDebtRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	principal, err := parseAmount("principal", req.Principal)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	rate := decimal.Zero
	if req.InterestRate != "" {
		rate, err = decimal.NewFromString(req.InterestRate)
		if err != nil {
			writeDomainError(w, &ledger.ValidationError{Field: "interest_rate", Message: "not a valid decimal"})
			return
		}
	}
	due, err := parseDate("due_date", req.DueDate)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	d, err := h.Service.IssueDebt(r.Context(), payroll.IssueDebtRequest{
		WorkerID:     ledger.WorkerID(req.WorkerID),
		Principal:    principal,
		InterestRate: rate,
		DueDate:      due,
		PerformedBy:  req.PerformedBy,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, "debt issued", toDebtDTO(d))
}

// GetDebt returns one debt.
// GET /api/debts/{id}
func (h *Handler) GetDebt(w http.ResponseWriter, r *http.Request) {
	id := ledger.DebtID(chi.URLParam(r, "id"))
	d, err := h.Store.GetDebt(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if d == nil {
		writeDomainError(w, ledger.ErrDebtNotFound)
		return
	}
	writeJSON(w, http.StatusOK, "ok", toDebtDTO(d))
}

// GetDebtHistory returns the append-only ledger of one debt.
// GET /api/debts/{id}/history
func (h *Handler) GetDebtHistory(w http.ResponseWriter, r *http.Request) {
	id := ledger.DebtID(chi.URLParam(r, "id"))
	d, err := h.Store.GetDebt(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if d == nil {
		writeDomainError(w, ledger.ErrDebtNotFound)
		return
	}
	entries, err := h.Store.DebtEntries(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]DebtEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toDebtEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, "ok", dtos)
}

// WriteOffDebt cancels a debt without payment.
// POST /api/debts/{id}/write-off
func (h *Handler) WriteOffDebt(w http.ResponseWriter, r *http.Request) {
	id := ledger.DebtID(chi.URLParam(r, "id"))
	var req WriteOffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	d, err := h.Service.WriteOffDebt(r.Context(), id, req.Reason, req.PerformedBy)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "debt written off", toDebtDTO(d))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// CreatePayment records a payroll payment in the active session.
// POST /api/payments
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	gross, err := parseAmount("gross_pay", req.GrossPay)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	manual, err := parseOptionalAmount("manual_deduction", req.ManualDeduction)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	other, err := parseOptionalAmount("other_deductions", req.OtherDeductions)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	start, err := parseDate("period_start", req.PeriodStart)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	end, err := parseDate("period_end", req.PeriodEnd)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	p, err := h.Service.CreatePayment(r.Context(), payroll.CreatePaymentRequest{
		WorkerID:        ledger.WorkerID(req.WorkerID),
		GrossPay:        gross,
		ManualDeduction: manual,
		OtherDeductions: other,
		PeriodStart:     start,
		PeriodEnd:       end,
		PerformedBy:     req.PerformedBy,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, "payment created", toPaymentDTO(p))
}

// GetPayment returns one payroll payment.
// GET /api/payments/{id}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id := ledger.PaymentID(chi.URLParam(r, "id"))
	p, err := h.Store.GetPayment(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if p == nil {
		writeDomainError(w, ledger.ErrPaymentNotFound)
		return
	}
	writeJSON(w, http.StatusOK, "ok", toPaymentDTO(p))
}

// GetPaymentHistory returns the append-only ledger of one payment.
// GET /api/payments/{id}/history
func (h *Handler) GetPaymentHistory(w http.ResponseWriter, r *http.Request) {
	id := ledger.PaymentID(chi.URLParam(r, "id"))
	p, err := h.Store.GetPayment(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if p == nil {
		writeDomainError(w, ledger.ErrPaymentNotFound)
		return
	}
	entries, err := h.Store.PaymentEntries(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]PaymentEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toPaymentEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, "ok", dtos)
}

// CancelPayment cancels a payment, reversing its debt credits when the
// payment had completed.
// POST /api/payments/{id}/cancel
func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	id := ledger.PaymentID(chi.URLParam(r, "id"))
	var req CancelPaymentRequest
	// An empty body is fine for cancellation.
	_ = json.NewDecoder(r.Body).Decode(&req)
	res, err := h.Service.CancelPayment(r.Context(), id, req.PerformedBy)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "payment cancelled", toCancelResultDTO(res))
}

// =============================================================================
// SESSION & AUDIT HANDLERS
// =============================================================================

// OpenSession opens a new active payroll session, deactivating any
// previous one.
// POST /api/sessions
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	sess, err := h.Service.OpenSession(r.Context(), req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, "session opened", toSessionDTO(sess))
}

// GetActiveSession returns the currently active payroll session.
// GET /api/sessions/active
func (h *Handler) GetActiveSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Store.ActiveSession(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if sess == nil {
		writeDomainError(w, ledger.ErrNoActiveSession)
		return
	}
	writeJSON(w, http.StatusOK, "ok", toSessionDTO(sess))
}

// GetAuditTrail returns recent audit records, newest first.
// GET /api/audit?limit=N
func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeDomainError(w, &ledger.ValidationError{Field: "limit", Message: "must be a positive integer"})
			return
		}
		limit = n
	}
	recs, err := h.Store.AuditTrail(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "ok", toAuditDTOs(recs))
}

// =============================================================================
// PARSING & RESPONSE HELPERS
// =============================================================================

func parseAmount(field, raw string) (ledger.Money, error) {
	if raw == "" {
		return ledger.ZeroMoney(), &ledger.ValidationError{Field: field, Message: "must not be empty"}
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return ledger.ZeroMoney(), &ledger.ValidationError{Field: field, Message: "not a valid decimal"}
	}
	return ledger.Money{Value: d}, nil
}

func parseOptionalAmount(field, raw string) (ledger.Money, error) {
	if raw == "" {
		return ledger.ZeroMoney(), nil
	}
	return parseAmount(field, raw)
}

func parseDate(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, &ledger.ValidationError{Field: field, Message: "must be YYYY-MM-DD"}
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope{Status: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil && message == "" {
		message = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope{Status: false, Message: message})
}

// writeDomainError maps the ledger error taxonomy onto HTTP status.
// This is the only place that mapping exists.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case ledger.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case ledger.IsBusinessRule(err), ledger.IsRetryable(err):
		writeError(w, http.StatusConflict, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}
