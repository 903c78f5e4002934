// Prometheus instrumentation for the engine's two state-changing
// workflows. Exposed by the API server at /metrics.
package payroll

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payroll_reconciliations_total",
		Help: "Debt payment reconciliation operations by outcome.",
	}, []string{"outcome"})

	reversalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payroll_reversals_total",
		Help: "Payment cancellation/reversal operations by outcome.",
	}, []string{"outcome"})

	allocatedAmountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payroll_allocated_amount_total",
		Help: "Sum of amounts allocated to debts by completed reconciliations.",
	})

	reversalSkipsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payroll_reversal_skipped_debts_total",
		Help: "Linked debts skipped during reversal because they were missing.",
	})

	operationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payroll_operation_duration_seconds",
		Help:    "Duration of ledger-mutating operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
