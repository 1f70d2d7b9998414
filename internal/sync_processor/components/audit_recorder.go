package components

import (
	"context"
	"log/slog"
	"time"

	"github.com/qrpay-reconciler/internal/domain/qrcode"
	"github.com/qrpay-reconciler/internal/domain/reconlog"
	"github.com/qrpay-reconciler/internal/metrics"
	"github.com/qrpay-reconciler/internal/sync_processor/service"
)

// AuditRecorderImpl appends one reconciliation log document per attempt.
// Writes are best-effort: a failed audit write is logged but never fails the
// attempt that produced it.
type AuditRecorderImpl struct {
	logs   reconlog.Repository
	logger *slog.Logger
}

func NewAuditRecorder(logs reconlog.Repository, logger *slog.Logger) service.AuditRecorder {
	return &AuditRecorderImpl{
		logs:   logs,
		logger: logger,
	}
}

// Record writes one audit document for a reconciliation attempt
func (a *AuditRecorderImpl) Record(ctx context.Context, qrID string, checkCount int, local qrcode.Status, remote *qrcode.Status, outcome reconlog.Outcome, detail string) {
	entry := &reconlog.Entry{
		QRID:         qrID,
		AttemptAt:    time.Now(),
		CheckCount:   checkCount,
		LocalStatus:  local,
		RemoteStatus: remote,
		Outcome:      outcome,
		// Dead-lettered jobs need the same manual review workflow as
		// irreconcilable states, so both surface through ListConflicts.
		Conflict: outcome == reconlog.OutcomeConflict || outcome == reconlog.OutcomeDeadLettered,
		Detail:   detail,
	}

	metrics.SyncJobsProcessed.WithLabelValues(string(outcome)).Inc()
	if entry.Conflict {
		metrics.ReconciliationConflicts.Inc()
		a.logger.Warn("Reconciliation conflict flagged for manual review",
			"qr_id", qrID,
			"local_status", local,
			"remote_status", remote,
			"detail", detail,
		)
	}

	if err := a.logs.Create(ctx, entry); err != nil {
		a.logger.Error("Failed to write reconciliation log entry",
			"qr_id", qrID,
			"outcome", outcome,
			"error", err,
		)
	}
}
