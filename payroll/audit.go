// Audit trail writer. The audit record shares the transaction of the
// mutation it describes: if the audit write fails, the whole operation
// rolls back.
package payroll

import (
	"context"
	"time"

	"github.com/anihan/payroll-engine/ledger"
)

func appendAudit(ctx context.Context, repo Repository, action, actor, reference, details string, at time.Time) error {
	if actor == "" {
		actor = "system"
	}
	return repo.AppendAudit(ctx, ledger.AuditRecord{
		ID:              ledger.NewRowID(),
		Action:          action,
		Actor:           actor,
		ReferenceNumber: reference,
		Details:         details,
		RecordedAt:      at,
	})
}
