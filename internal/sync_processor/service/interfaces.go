package service

import (
	"context"

	"github.com/qrpay-reconciler/internal/domain/movement"
	"github.com/qrpay-reconciler/internal/domain/qrcode"
	"github.com/qrpay-reconciler/internal/domain/reconlog"
	"github.com/qrpay-reconciler/internal/domain/shared"
	"github.com/qrpay-reconciler/internal/domain/syncjob"
	"github.com/qrpay-reconciler/internal/domain/syncstatus"
)

// ReconcileService reconciles one QR against the bank. A nil return acks the
// job; an error sends it through the dispatcher's retry and dead-letter
// handling.
type ReconcileService interface {
	Reconcile(ctx context.Context, job *syncjob.Job) error
}

// StatusTracker loads and persists the per-QR polling bookkeeping row
type StatusTracker interface {
	// Load returns the QR's sync status, creating the zero-value row for a
	// QR that has never been checked.
	Load(ctx context.Context, qrID string) (*syncstatus.SyncStatus, error)
	Record(ctx context.Context, status *syncstatus.SyncStatus) error
}

// PaymentApplier credits a bank-confirmed payment discovered by polling
type PaymentApplier interface {
	// ExistingMovement returns the movement already recorded for the QR, or
	// nil when the QR has never been credited.
	ExistingMovement(ctx context.Context, qrID string) (*movement.Movement, error)

	// Apply executes the PAID transition, the credit movement, and the sync
	// status finalization in one transaction. It reports created=false when
	// the movement already existed.
	Apply(ctx context.Context, qr *qrcode.QRCode, status *syncstatus.SyncStatus, payment *shared.PaymentNotification) (*movement.Movement, bool, error)
}

// AuditRecorder appends one reconciliation log document per attempt
type AuditRecorder interface {
	Record(ctx context.Context, qrID string, checkCount int, local qrcode.Status, remote *qrcode.Status, outcome reconlog.Outcome, detail string)
}
