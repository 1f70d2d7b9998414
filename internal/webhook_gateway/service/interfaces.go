package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/qrpay-reconciler/internal/domain/qrcode"
	"github.com/qrpay-reconciler/internal/domain/shared"
	"github.com/qrpay-reconciler/internal/domain/syncstatus"
)

// PaymentResult describes the outcome of processing one payment notification
type PaymentResult struct {
	QRID           string
	MovementID     int64
	AlreadyApplied bool // A previous delivery or the poller credited this QR first
}

// PaymentService applies bank payment notifications to the ledger
type PaymentService interface {
	// ProcessNotification transitions the QR to PAID and records the credit
	// movement atomically. Redelivery of an already-applied payment returns
	// AlreadyApplied=true with no error and no second movement.
	// Returns qrcode.ErrQRCodeNotFound for unknown QRs, qrcode.ErrInvalidState
	// when the QR is cancelled or expired, ErrAmountMismatch when the amount
	// deviates from a fixed-amount QR, and ErrCurrencyMismatch when the
	// notification is denominated in another currency.
	ProcessNotification(ctx context.Context, notification *shared.PaymentNotification, correlationID string) (*PaymentResult, error)
}

// GenerateParams carries the terms of a QR to be issued
type GenerateParams struct {
	AccountID     uuid.UUID
	TransactionID string
	Amount        int64
	Currency      string
	Description   string
	DueDate       time.Time
	SingleUse     bool
	ModifyAmount  bool
}

// QRService manages QR code administration against the bank and the registry
type QRService interface {
	// Generate issues a QR at the bank, registers it locally and returns the
	// PNG image (bank-provided or locally rendered).
	Generate(ctx context.Context, params GenerateParams) (*qrcode.QRCode, []byte, error)

	// Cancel voids the QR at the bank first; the local CANCELLED transition
	// happens only after the bank confirms. Cancelling a PAID QR returns
	// qrcode.ErrInvalidState; re-cancelling is an idempotent no-op.
	Cancel(ctx context.Context, qrID string) (*qrcode.QRCode, error)

	// Get returns the registry entry and its sync status, which is nil when
	// the QR has not been polled yet.
	Get(ctx context.Context, qrID string) (*qrcode.QRCode, *syncstatus.SyncStatus, error)
}
