package qrcode

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines QR registry persistence operations. QR rows are never
// physically deleted; terminal statuses are the soft-retired form.
type Repository interface {
	Create(ctx context.Context, qr *QRCode) error
	GetByID(ctx context.Context, id string) (*QRCode, error)
	GetByTransactionID(ctx context.Context, accountID uuid.UUID, transactionID string) (*QRCode, error)

	// UpdateStatus performs an optimistic single-row write guarded by the
	// current status, so a concurrent terminal transition wins and the late
	// writer observes zero affected rows.
	UpdateStatus(ctx context.Context, id string, from, to Status) error

	// ExpireOverdue flips every ACTIVE QR whose due date precedes now to
	// EXPIRED and returns the ids it touched.
	ExpireOverdue(ctx context.Context, now time.Time) ([]string, error)

	// ListDueWithin returns non-terminal QRs whose due date falls inside the
	// window starting at now.
	ListDueWithin(ctx context.Context, now time.Time, window time.Duration) ([]*QRCode, error)

	// ListSyncCandidates returns pollable QRs due for a reconciliation check:
	// PENDING or ACTIVE, no final sync status, and either never checked or
	// next_check at or before now. Ordered PENDING before ACTIVE, oldest
	// first. Age and check-count limits are the scheduler's to enforce.
	ListSyncCandidates(ctx context.Context, now time.Time, limit int) ([]*SyncCandidate, error)

	WithTx(tx pgx.Tx) Repository
}

// SyncCandidate pairs a pollable QR with its polling progress. CheckCount is
// zero when the QR has never been checked.
type SyncCandidate struct {
	QR         *QRCode
	CheckCount int
}

// ErrQRCodeNotFound indicates missing QR registry entry
type ErrQRCodeNotFound struct {
	ID string
}

func (e ErrQRCodeNotFound) Error() string {
	return "qr code not found: " + e.ID
}

// Is matches any ErrQRCodeNotFound when the target id is empty
func (e ErrQRCodeNotFound) Is(target error) bool {
	t, ok := target.(ErrQRCodeNotFound)
	if !ok {
		return false
	}
	return t.ID == "" || t.ID == e.ID
}

// ErrInvalidState indicates a transition attempted against a QR whose current
// status does not admit it. It is surfaced to webhook callers and logged on
// the polling path since it may flag a reconciliation conflict.
type ErrInvalidState struct {
	ID        string
	Status    Status
	Attempted Status
}

func (e ErrInvalidState) Error() string {
	return "invalid state transition for qr " + e.ID + ": " + string(e.Status) + " -> " + string(e.Attempted)
}

// Is matches any ErrInvalidState when the target id is empty
func (e ErrInvalidState) Is(target error) bool {
	t, ok := target.(ErrInvalidState)
	if !ok {
		return false
	}
	return t.ID == "" || t.ID == e.ID
}

// ErrDuplicateTransactionID indicates transaction id uniqueness violation per account
type ErrDuplicateTransactionID struct {
	TransactionID string
}

func (e ErrDuplicateTransactionID) Error() string {
	return "qr code with transaction id already exists: " + e.TransactionID
}
