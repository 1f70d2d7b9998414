package movement

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidAmount       = errors.New("movement amount must be positive")
	ErrUnknownMovementType = errors.New("unknown movement type")
)

// Type defines the possible account movement categories. Amounts are always
// stored as positive magnitudes; the sign is implied by the type.
type Type string

const (
	TypeDeposit     Type = "deposit"
	TypeWithdrawal  Type = "withdrawal"
	TypeTransferIn  Type = "transfer_in"
	TypeTransferOut Type = "transfer_out"
	TypeQRPayment   Type = "qr_payment"
	TypeFee         Type = "fee"
)

// Sign returns the direction the movement applies to the account balance
func (t Type) Sign() (int64, error) {
	switch t {
	case TypeDeposit, TypeTransferIn, TypeQRPayment:
		return 1, nil
	case TypeWithdrawal, TypeTransferOut, TypeFee:
		return -1, nil
	default:
		return 0, ErrUnknownMovementType
	}
}

// ReferenceType identifies the kind of record a movement references
type ReferenceType string

const (
	ReferenceTypeQRCode   ReferenceType = "qr_code"
	ReferenceTypeTransfer ReferenceType = "transfer"
	ReferenceTypeManual   ReferenceType = "manual"
)

// Movement is an immutable ledger entry. At most one qr_payment movement may
// exist per (referenceID, referenceType='qr_code') pair; this uniqueness is
// the exactly-once crediting guarantee.
type Movement struct {
	ID            int64         `json:"id"`
	AccountID     uuid.UUID     `json:"account_id"`
	Type          Type          `json:"movement_type"`
	Amount        int64         `json:"amount"` // Positive magnitude in cents/minor units
	BalanceBefore int64         `json:"balance_before"`
	BalanceAfter  int64         `json:"balance_after"`
	ReferenceID   string        `json:"reference_id"`
	ReferenceType ReferenceType `json:"reference_type"`
	Description   string        `json:"description,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Signed returns the movement's contribution to the account balance
func (m *Movement) Signed() (int64, error) {
	sign, err := m.Type.Sign()
	if err != nil {
		return 0, err
	}
	return sign * m.Amount, nil
}
