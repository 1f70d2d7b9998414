// Package metrics exposes Prometheus counters for the reconciliation engine.
// Both binaries register against the default registry and serve it on their
// HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookNotifications counts ingested webhook notifications by result:
	// applied, idempotent, rejected, not_found, invalid.
	WebhookNotifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_notifications_total",
		Help: "Webhook payment notifications processed, by result.",
	}, []string{"result"})

	// SyncJobsProcessed counts completed sync jobs by reconciliation outcome.
	SyncJobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_jobs_processed_total",
		Help: "Sync jobs processed, by reconciliation outcome.",
	}, []string{"outcome"})

	// SyncJobsDeadLettered counts jobs parked after exhausting their retry budget.
	SyncJobsDeadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_jobs_dead_lettered_total",
		Help: "Sync jobs parked after exhausting retries.",
	})

	// MovementsRecorded counts ledger movements written, by movement type.
	MovementsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "movements_recorded_total",
		Help: "Ledger movements recorded, by movement type.",
	}, []string{"type"})

	// QRCodesExpired counts QR codes flipped to EXPIRED by the hourly sweep.
	QRCodesExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qr_codes_expired_total",
		Help: "QR codes expired by the due-date sweep.",
	})

	// ReconciliationConflicts counts attempts that found remote and local
	// state irreconcilable.
	ReconciliationConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciliation_conflicts_total",
		Help: "Reconciliation attempts flagged as conflicts for manual review.",
	})
)
