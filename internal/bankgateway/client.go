// Package bankgateway defines the contract with the external bank. The wire
// protocol and payload encryption are the bank client implementation's
// concern; account identifiers passed through here are expected to arrive
// pre-encrypted by the caller.
package bankgateway

import (
	"context"
	"time"

	"github.com/qrpay-reconciler/internal/domain/shared"
)

// StatusCode is the bank's QR status discriminator
type StatusCode int

const (
	StatusCodePending   StatusCode = 0
	StatusCodePaid      StatusCode = 1
	StatusCodeCancelled StatusCode = 9
)

// Token is an opaque bank session credential
type Token string

// GenerateRequest carries the terms of a QR to be issued by the bank
type GenerateRequest struct {
	TransactionID string
	AccountCode   string // Pre-encrypted collecting account identifier
	Amount        int64  // Cents/minor units
	Currency      string
	Description   string
	DueDate       time.Time
	SingleUse     bool
	ModifyAmount  bool
}

// GeneratedQR is the bank's response to a generate request. Image may be
// empty when the bank returns only the id; callers can render one locally.
type GeneratedQR struct {
	QRID  string
	Image []byte // PNG bytes
}

// StatusResponse mirrors the bank status query payload
type StatusResponse struct {
	StatusCode StatusCode
	Payments   []shared.PaymentNotification
}

// Client is the operations contract this engine consumes. Implementations
// own authentication token caching, transport and encryption.
type Client interface {
	Authenticate(ctx context.Context) (Token, error)
	GenerateQR(ctx context.Context, token Token, req GenerateRequest) (*GeneratedQR, error)
	CancelQR(ctx context.Context, token Token, qrID string) error
	GetStatus(ctx context.Context, token Token, qrID string) (*StatusResponse, error)
	ListPaidByDate(ctx context.Context, token Token, date time.Time) ([]shared.PaymentNotification, error)
}

// GatewayError wraps bank-side failures (network, auth, malformed response).
// All gateway errors are retryable from the sync worker's point of view.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return "bank gateway " + e.Op + " failed: " + e.Err.Error()
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
